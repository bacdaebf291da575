package pubmatic

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/buger/jsonparser"
	nativeResponse "github.com/prebid/openrtb/v20/native1/response"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/errortypes"
	"github.com/prebid/prebid-adapters/openrtb_ext"
)

const (
	buyIDTargetingKey    = "hb_buyid_pubmatic"
	outstreamRendererID  = "pubmatic-outstream"
	outstreamRendererURL = "https://ads.pubmatic.com/AdServer/js/vastTemplate/vastRenderer_v2.js"
)

const (
	bannerTTLSeconds  = 360
	videoTTLSeconds   = 1800
	nativeTTLSeconds  = 1800
	defaultTTLSeconds = 360
)

// dealChannels maps the exchange's deal channel codes to their names.
var dealChannels = map[int]string{
	1: "PMP",
	5: "PREF",
	6: "PMPG",
}

func (a *PubmaticAdapter) MakeBids(request *adapters.BidderRequest, requestData *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	if response.StatusCode == http.StatusNoContent {
		return adapters.NewBidderResponseWithBidsCapacity(0), nil
	}
	if response.StatusCode == http.StatusBadRequest {
		return nil, []error{&errortypes.BadInput{
			Message: fmt.Sprintf("Unexpected status code: %d. Run with request.debug = 1 for more info", response.StatusCode),
		}}
	}
	if response.StatusCode != http.StatusOK {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d. Run with request.debug = 1 for more info", response.StatusCode),
		}}
	}

	var bidResp openrtb2.BidResponse
	if err := json.Unmarshal(response.Body, &bidResp); err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: err.Error(),
		}}
	}

	bidderResponse := adapters.NewBidderResponseWithBidsCapacity(5)
	if bidResp.Cur != "" {
		bidderResponse.Currency = bidResp.Cur
	}

	var errs []error
	for _, seatBid := range bidResp.SeatBid {
		buyID, _ := jsonparser.GetString(seatBid.Ext, "buyid")
		for i := range seatBid.Bid {
			typed, err := interpretBid(request, requestData, &seatBid.Bid[i], seatBid.Seat, buyID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if typed == nil {
				continue
			}
			bidderResponse.Bids = append(bidderResponse.Bids, typed)
		}
	}

	bidderResponse.PAAPI = paapiConfigs(bidResp.Ext)

	return bidderResponse, errs
}

// interpretBid normalizes one response bid. A nil bid with a nil error means the
// bid matched no requested impression and is dropped.
func interpretBid(request *adapters.BidderRequest, requestData *adapters.RequestData, bid *openrtb2.Bid, seat, buyID string) (*adapters.TypedBid, error) {
	imp := findImp(requestData.BidRequest, bid.ImpID)
	if imp == nil {
		logf("dropping bid %s: impid %s matches no impression", bid.ID, bid.ImpID)
		return nil, nil
	}
	placement := findPlacement(request, bid.ImpID)

	var ext openrtb_ext.ExtBidPubmatic
	if len(bid.Ext) > 0 {
		if err := json.Unmarshal(bid.Ext, &ext); err != nil {
			logf("unable to parse ext on bid %s: %v", bid.ID, err)
			ext = openrtb_ext.ExtBidPubmatic{}
		}
	}

	bidType := resolveBidType(&ext, imp)

	typed := &adapters.TypedBid{
		Bid:          bid,
		BidType:      bidType,
		Cpm:          math.Round(bid.Price*100) / 100,
		CreativeID:   bid.CrID,
		NetRevenue:   true,
		TTL:          ttlFor(bid, bidType),
		PartnerImpID: bid.ID,
		Seat:         seat,
		DspID:        ext.DspID,
		BidderCode:   ext.Marketplace,
	}
	if typed.CreativeID == "" {
		typed.CreativeID = bid.ID
	}
	if requestData.BidRequest.Site != nil {
		typed.Referrer = requestData.BidRequest.Site.Ref
	}
	if buyID != "" {
		typed.BidTargets = map[string]string{buyIDTargetingKey: buyID}
	}

	if bid.DealID != "" {
		typed.DealChannel = "PMP"
	}
	if ext.DealChannel != nil {
		name, ok := dealChannels[*ext.DealChannel]
		if !ok {
			logf("unrecognized deal channel %d on bid %s", *ext.DealChannel, bid.ID)
		}
		typed.DealChannel = name
	}

	typed.Meta = buildMeta(&ext, bid, seat, bidType)

	if ext.InBannerVideo {
		typed.InBannerVideo = true
		typed.Meta.MediaType = openrtb_ext.BidTypeVideo
	}

	switch bidType {
	case openrtb_ext.BidTypeNative:
		var native nativeResponse.Response
		if err := json.Unmarshal([]byte(bid.AdM), &native); err != nil {
			return nil, &errortypes.BadServerResponse{
				Message: fmt.Sprintf("unable to parse native adm on bid %s: %v", bid.ID, err),
			}
		}
		typed.NativeResponse = &native
	case openrtb_ext.BidTypeVideo:
		interpretVideoBid(typed, &ext, placement)
	}

	return typed, nil
}

// interpretVideoBid attaches the adpod deal tier and, for outstream placements
// without a publisher renderer, the default outstream renderer.
func interpretVideoBid(typed *adapters.TypedBid, ext *openrtb_ext.ExtBidPubmatic, placement *adapters.BidRequest) {
	if placement == nil || placement.MediaTypes.Video == nil {
		return
	}
	mtv := placement.MediaTypes.Video

	if ext.DealPriority > 0 && mtv.Context == adapters.VideoContextAdpod {
		duration := mtv.MaxDuration
		if ext.Video != nil && ext.Video.Duration > 0 {
			duration = ext.Video.Duration
		}
		typed.Video = &adapters.BidVideo{
			DurationSeconds: duration,
			Context:         mtv.Context,
			DealTier:        ext.DealPriority,
		}
	}

	if mtv.Context == adapters.VideoContextOutstream && placement.Renderer == nil && mtv.Renderer == nil {
		typed.Renderer = &adapters.RendererConfig{
			ID:  outstreamRendererID,
			URL: outstreamRendererURL,
		}
	}
}

func buildMeta(ext *openrtb_ext.ExtBidPubmatic, bid *openrtb2.Bid, seat string, bidType openrtb_ext.BidType) *adapters.BidMeta {
	meta := &adapters.BidMeta{
		MediaType: bidType,
		DChain:    ext.DChain,
		DSA:       ext.DSA,
	}

	// The seat wins over advid when both are present.
	buyer := seat
	if buyer == "" && ext.AdvID != nil && *ext.AdvID != "" {
		buyer = string(*ext.AdvID)
	}
	meta.BuyerID = buyer
	meta.AdvertiserID = buyer
	meta.AgencyID = buyer

	if ext.DspID != nil {
		meta.NetworkID = *ext.DspID
		meta.DemandSource = *ext.DspID
	}

	if len(bid.Cat) > 0 {
		meta.PrimaryCatID = bid.Cat[0]
		meta.SecondaryCatIDs = bid.Cat
	}
	if len(bid.ADomain) > 0 {
		meta.AdvertiserDomains = bid.ADomain
		meta.ClickURL = bid.ADomain[0]
		meta.BrandID = bid.ADomain[0]
	}

	return meta
}

func resolveBidType(ext *openrtb_ext.ExtBidPubmatic, imp *openrtb2.Imp) openrtb_ext.BidType {
	if ext.BidType != nil {
		switch *ext.BidType {
		case 0:
			return openrtb_ext.BidTypeBanner
		case 1:
			return openrtb_ext.BidTypeVideo
		case 2:
			return openrtb_ext.BidTypeNative
		default:
			logf("unrecognized bidtype %d in bid ext", *ext.BidType)
		}
	}

	if imp != nil {
		switch {
		case imp.Banner != nil:
			return openrtb_ext.BidTypeBanner
		case imp.Video != nil:
			return openrtb_ext.BidTypeVideo
		case imp.Native != nil:
			return openrtb_ext.BidTypeNative
		}
	}
	return openrtb_ext.BidTypeBanner
}

func ttlFor(bid *openrtb2.Bid, bidType openrtb_ext.BidType) int {
	if bid.Exp > 0 {
		return int(bid.Exp)
	}
	switch bidType {
	case openrtb_ext.BidTypeBanner:
		return bannerTTLSeconds
	case openrtb_ext.BidTypeVideo:
		return videoTTLSeconds
	case openrtb_ext.BidTypeNative:
		return nativeTTLSeconds
	}
	return defaultTTLSeconds
}

// paapiConfigs extracts the Protected Audience auction configs from the response
// ext, ordered by placement id for deterministic output.
func paapiConfigs(ext json.RawMessage) []*adapters.PAAPIConfig {
	if len(ext) == 0 {
		return nil
	}

	var respExt openrtb_ext.ExtBidResponsePubmatic
	if err := json.Unmarshal(ext, &respExt); err != nil {
		logf("unable to parse response ext: %v", err)
		return nil
	}
	if len(respExt.FledgeAuctionConfigs) == 0 {
		return nil
	}

	configs := make([]*adapters.PAAPIConfig, 0, len(respExt.FledgeAuctionConfigs))
	for impID, cfg := range respExt.FledgeAuctionConfigs {
		configs = append(configs, &adapters.PAAPIConfig{BidID: impID, Config: cfg})
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].BidID < configs[j].BidID })
	return configs
}

func findPlacement(request *adapters.BidderRequest, impID string) *adapters.BidRequest {
	for i := range request.Bids {
		if request.Bids[i].BidID == impID {
			return &request.Bids[i]
		}
	}
	return nil
}

func findImp(ortb *openrtb2.BidRequest, impID string) *openrtb2.Imp {
	if ortb == nil {
		return nil
	}
	for i := range ortb.Imp {
		if ortb.Imp[i].ID == impID {
			return &ortb.Imp[i]
		}
	}
	return nil
}
