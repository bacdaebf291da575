package adapters

import (
	"encoding/json"
	"net/http"

	nativeResponse "github.com/prebid/openrtb/v20/native1/response"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-adapters/openrtb_ext"
)

// Bidder turns an auction batch into HTTP request(s) to an exchange, and the
// exchange's HTTP response back into bids.
type Bidder interface {
	// MakeRequests makes the HTTP request which should be made to fetch bids.
	//
	// The returned errors explain why this bidder's bids will be "subpar" in some
	// way: placements the bidder had to skip, invalid params, and so on. A nil
	// RequestData with errors means no placement survived validation.
	MakeRequests(request *BidderRequest) (*RequestData, []error)

	// MakeBids unpacks the exchange's response into normalized bids.
	//
	// The bid list can be empty (no bids) but must not contain nil elements.
	MakeBids(request *BidderRequest, requestData *RequestData, response *ResponseData) (*BidderResponse, []error)

	// IsBidRequestValid reports whether one placement is well formed enough to
	// include in a batch. The returned error explains the rejection; MakeRequests
	// skips such placements with the same error.
	IsBidRequestValid(bid *BidRequest) error
}

// RequestData packages together the fields needed to make an http.Request, plus the
// parsed OpenRTB document so MakeBids can correlate response bids with imps.
type RequestData struct {
	Method  string
	Uri     string
	Body    []byte
	Headers http.Header

	BidRequest *openrtb2.BidRequest
}

// ResponseData packages together information from the exchange's http.Response.
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// BidderResponse is the interpreted result of one exchange response.
type BidderResponse struct {
	Bids     []*TypedBid
	Currency string

	// PAAPI holds the Protected Audience auction configs returned alongside (or
	// instead of) bids.
	PAAPI []*PAAPIConfig
}

// NewBidderResponseWithBidsCapacity returns a BidderResponse with the default USD
// currency and a bid slice of the given capacity.
func NewBidderResponseWithBidsCapacity(capacity int) *BidderResponse {
	return &BidderResponse{
		Currency: "USD",
		Bids:     make([]*TypedBid, 0, capacity),
	}
}

// TypedBid is one normalized bid: the OpenRTB bid plus everything the ad server
// hand-off needs.
type TypedBid struct {
	Bid     *openrtb2.Bid
	BidType openrtb_ext.BidType

	// Cpm is the bid price rounded to two decimals.
	Cpm      float64
	Currency string

	CreativeID   string
	NetRevenue   bool
	TTL          int
	Referrer     string
	PartnerImpID string

	// Seat is the seat the bid arrived on, empty when the exchange sent none.
	Seat  string
	DspID *int

	// DealChannel is the deal channel name for deal bids ("PMP", "PREF", "PMPG").
	// Empty for open market bids and for unrecognized channel codes.
	DealChannel string

	// BidTargets carries extra ad server targeting key/values.
	BidTargets map[string]string

	Meta *BidMeta

	// Video is set for adpod deal bids carrying a deal tier.
	Video *BidVideo

	Renderer *RendererConfig

	NativeResponse *nativeResponse.Response

	// BidderCode overrides the bidder attribution when the exchange responded on a
	// marketplace seat. Empty means the requesting bidder.
	BidderCode string

	// InBannerVideo marks banner bids whose creative plays video in the banner slot.
	InBannerVideo bool
}

// BidVideo describes an adpod bid's slotting.
type BidVideo struct {
	DurationSeconds int64  `json:"durationSeconds,omitempty"`
	Context         string `json:"context,omitempty"`
	DealTier        int    `json:"dealTier,omitempty"`
}

// BidMeta is the bid's advertiser metadata for ad server and reporting use.
type BidMeta struct {
	NetworkID         int                 `json:"networkId,omitempty"`
	DemandSource      int                 `json:"demandSource,omitempty"`
	BuyerID           string              `json:"buyerId,omitempty"`
	AdvertiserID      string              `json:"advertiserId,omitempty"`
	AgencyID          string              `json:"agencyId,omitempty"`
	BrandID           string              `json:"brandId,omitempty"`
	ClickURL          string              `json:"clickUrl,omitempty"`
	AdvertiserDomains []string            `json:"advertiserDomains,omitempty"`
	PrimaryCatID      string              `json:"primaryCatId,omitempty"`
	SecondaryCatIDs   []string            `json:"secondaryCatIds,omitempty"`
	MediaType         openrtb_ext.BidType `json:"mediaType,omitempty"`
	DChain            json.RawMessage     `json:"dchain,omitempty"`
	DSA               json.RawMessage     `json:"dsa,omitempty"`
}

// RendererConfig identifies an outstream renderer.
type RendererConfig struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// PAAPIConfig is one imp's Protected Audience auction config.
type PAAPIConfig struct {
	BidID  string          `json:"bidId"`
	Config json.RawMessage `json:"config"`
}

// UserSync is one user sync pixel or iframe.
type UserSync struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

const (
	SyncTypeIframe = "iframe"
	SyncTypeImage  = "image"
)

// SyncOptions states which sync types the publisher allows.
type SyncOptions struct {
	IframeEnabled bool
	PixelEnabled  bool
}
