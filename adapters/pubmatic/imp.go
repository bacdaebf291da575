package pubmatic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/native1"
	nativeRequest "github.com/prebid/openrtb/v20/native1/request"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/errortypes"
	"github.com/prebid/prebid-adapters/openrtb_ext"
	"github.com/prebid/prebid-adapters/util/ptrutil"
)

const nativeVersion = "1.2"

// parseAdSlot splits 'name@WxH' into its parts. The height may carry a ':suffix'
// which is dropped. A slot without a parsable size yields hasSize false; the caller
// then falls back to the mediaTypes sizes.
func parseAdSlot(adSlot string) (name string, w, h int64, hasSize bool) {
	adSlot = strings.TrimSpace(adSlot)
	parts := strings.Split(adSlot, "@")
	name = strings.TrimSpace(parts[0])
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return name, 0, 0, false
	}

	sizes := strings.Split(strings.ToLower(strings.TrimSpace(parts[1])), "x")
	if len(sizes) != 2 {
		logf("invalid adSlot %s, using mediaTypes sizes", adSlot)
		return name, 0, 0, false
	}

	w, err := strconv.ParseInt(strings.TrimSpace(sizes[0]), 10, 64)
	if err != nil {
		logf("invalid adSlot width in %s, using mediaTypes sizes", adSlot)
		return name, 0, 0, false
	}

	height := strings.TrimSpace(sizes[1])
	if i := strings.Index(height, ":"); i >= 0 {
		height = height[:i]
	}
	h, err = strconv.ParseInt(height, 10, 64)
	if err != nil {
		logf("invalid adSlot height in %s, using mediaTypes sizes", adSlot)
		return name, 0, 0, false
	}

	return name, w, h, true
}

// buildImp assembles one impression. A nil imp means the placement is skipped; the
// returned errors hold the reason plus any non-fatal warnings collected on the way.
func (a *PubmaticAdapter) buildImp(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic, conf *batchConf) (*openrtb2.Imp, []error) {
	slotName, slotW, slotH, hasSlotSize := parseAdSlot(params.AdSlot)

	imp := openrtb2.Imp{
		ID:                bid.BidID,
		TagID:             slotName,
		Secure:            ptrutil.ToPtr(int8(1)),
		DisplayManager:    adapters.DisplayManager,
		DisplayManagerVer: adapters.Version,
	}

	if bid.MediaTypes.Banner != nil {
		imp.Banner = buildBanner(bid, slotW, slotH, hasSlotSize)
	}
	if bid.MediaTypes.Video != nil {
		imp.Video = buildVideo(bid, params)
	}
	if bid.MediaTypes.Native != nil {
		imp.Native = buildNative(bid)
	}

	if imp.Banner == nil && imp.Video == nil && imp.Native == nil {
		return nil, []error{&errortypes.Warning{
			Message:     fmt.Sprintf("ignoring placement %s: no valid media type left", bid.AdUnitCode),
			WarningCode: errortypes.InvalidMediaTypeWarningCode,
		}}
	}

	if imp.Banner != nil && bid.FirstPartyData != nil && len(bid.FirstPartyData.BAttr) > 0 {
		var battr []adcom1.CreativeAttribute
		if err := json.Unmarshal(bid.FirstPartyData.BAttr, &battr); err != nil {
			logf("ignoring banner.battr on %s: not an attribute array", bid.AdUnitCode)
		} else {
			imp.Banner.BAttr = battr
		}
	}

	imp.PMP = buildPMP(bid, params)
	warnings := resolveFloors(&imp, bid, params, conf.currency)

	ext, err := buildImpExt(bid, params, conf)
	if err != nil {
		return nil, append(warnings, err)
	}
	imp.Ext = ext

	return &imp, warnings
}

// buildBanner picks the primary size from the ad slot when it has one, else consumes
// the first usable mediaTypes size. The remaining usable sizes become format entries.
// "fluid" entries are skipped.
func buildBanner(bid *adapters.BidRequest, slotW, slotH int64, hasSlotSize bool) *openrtb2.Banner {
	mtb := bid.MediaTypes.Banner

	var sizes []adapters.BannerSize
	for _, s := range mtb.Sizes {
		if !s.Valid() {
			logf("skipping unusable banner size on %s", bid.AdUnitCode)
			continue
		}
		sizes = append(sizes, s)
	}

	banner := &openrtb2.Banner{Pos: mtb.Pos}
	switch {
	case hasSlotSize:
		banner.W = ptrutil.ToPtr(slotW)
		banner.H = ptrutil.ToPtr(slotH)
	case len(sizes) > 0:
		banner.W = ptrutil.ToPtr(sizes[0].W)
		banner.H = ptrutil.ToPtr(sizes[0].H)
		sizes = sizes[1:]
	default:
		logf("no usable banner size on %s, dropping banner", bid.AdUnitCode)
		return nil
	}

	for _, s := range sizes {
		banner.Format = append(banner.Format, openrtb2.Format{W: s.W, H: s.H})
	}

	return banner
}

func buildVideo(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic) *openrtb2.Video {
	mtv := bid.MediaTypes.Video

	video := mtv.Video
	applyVideoParams(&video, params.Video)

	if len(mtv.PlayerSize) > 0 {
		if video.W == nil {
			video.W = ptrutil.ToPtr(mtv.PlayerSize[0][0])
		}
		if video.H == nil {
			video.H = ptrutil.ToPtr(mtv.PlayerSize[0][1])
		}
	}

	if video.Plcmt == 0 {
		logf("Video.plcmt param missing for %s", bid.AdUnitCode)
	}

	return &video
}

// applyVideoParams overlays the params-level video overrides, field by field.
func applyVideoParams(video *openrtb2.Video, p *openrtb_ext.ExtImpPubmaticVideo) {
	if p == nil {
		return
	}

	if len(p.MIMEs) > 0 {
		video.MIMEs = p.MIMEs
	}
	if p.MinDuration != nil {
		video.MinDuration = *p.MinDuration
	}
	if p.MaxDuration != nil {
		video.MaxDuration = *p.MaxDuration
	}
	if p.StartDelay != nil {
		video.StartDelay = p.StartDelay
	}
	if len(p.PlaybackMethod) > 0 {
		video.PlaybackMethod = p.PlaybackMethod
	}
	if len(p.API) > 0 {
		video.API = p.API
	}
	if len(p.Protocols) > 0 {
		video.Protocols = p.Protocols
	}
	if p.W != nil {
		video.W = p.W
	}
	if p.H != nil {
		video.H = p.H
	}
	if len(p.BAttr) > 0 {
		video.BAttr = p.BAttr
	}
	if p.Linearity != nil {
		video.Linearity = *p.Linearity
	}
	if p.Placement != nil {
		video.Placement = *p.Placement
	}
	if p.Plcmt != nil {
		video.Plcmt = *p.Plcmt
	}
	if p.MinBitrate != nil {
		video.MinBitRate = *p.MinBitrate
	}
	if p.MaxBitrate != nil {
		video.MaxBitRate = *p.MaxBitrate
	}
	if p.Skip != nil {
		video.Skip = p.Skip
	}
	if p.SkipMin != nil {
		video.SkipMin = *p.SkipMin
	}
	if p.SkipAfter != nil {
		video.SkipAfter = *p.SkipAfter
	}
}

type nativeAssetKind int

const (
	nativeAssetTitle nativeAssetKind = iota
	nativeAssetImage
	nativeAssetData
)

type nativeAssetSpec struct {
	kind     nativeAssetKind
	imgType  native1.ImageAssetType
	dataType native1.DataAssetType
}

// nativeAssetOrder fixes the asset ids: declared assets are emitted in this order
// with sequential ids.
var nativeAssetOrder = []string{
	"title", "icon", "image",
	"sponsoredBy", "body", "rating", "likes", "downloads", "price", "saleprice",
	"phone", "address", "desc2", "body2", "displayurl", "cta",
}

var nativeAssetSpecs = map[string]nativeAssetSpec{
	"title":       {kind: nativeAssetTitle},
	"icon":        {kind: nativeAssetImage, imgType: native1.ImageAssetTypeIcon},
	"image":       {kind: nativeAssetImage, imgType: native1.ImageAssetTypeMain},
	"sponsoredBy": {kind: nativeAssetData, dataType: native1.DataAssetTypeSponsored},
	"body":        {kind: nativeAssetData, dataType: native1.DataAssetTypeDesc},
	"rating":      {kind: nativeAssetData, dataType: native1.DataAssetTypeRating},
	"likes":       {kind: nativeAssetData, dataType: native1.DataAssetTypeLikes},
	"downloads":   {kind: nativeAssetData, dataType: native1.DataAssetTypeDownloads},
	"price":       {kind: nativeAssetData, dataType: native1.DataAssetTypePrice},
	"saleprice":   {kind: nativeAssetData, dataType: native1.DataAssetTypeSalePrice},
	"phone":       {kind: nativeAssetData, dataType: native1.DataAssetTypePhone},
	"address":     {kind: nativeAssetData, dataType: native1.DataAssetTypeAddress},
	"desc2":       {kind: nativeAssetData, dataType: native1.DataAssetTypeDesc2},
	"body2":       {kind: nativeAssetData, dataType: native1.DataAssetTypeDesc2},
	// DataAssetTypeDispayURL carries the openrtb library's own spelling.
	"displayurl": {kind: nativeAssetData, dataType: native1.DataAssetTypeDispayURL},
	"cta":        {kind: nativeAssetData, dataType: native1.DataAssetTypeCTAText},
}

// buildNative maps the declarative asset config onto an OpenRTB native request.
// Unrecognized asset keys are skipped; with no recognized asset left the native
// object is dropped entirely.
func buildNative(bid *adapters.BidRequest) *openrtb2.Native {
	declared := *bid.MediaTypes.Native

	for key := range declared {
		if _, ok := nativeAssetSpecs[key]; !ok {
			logf("skipping unrecognized native asset %s on %s", key, bid.AdUnitCode)
		}
	}

	var assets []nativeRequest.Asset
	for _, key := range nativeAssetOrder {
		cfg, ok := declared[key]
		if !ok {
			continue
		}
		spec := nativeAssetSpecs[key]

		asset := nativeRequest.Asset{ID: int64(len(assets))}
		if cfg.Required {
			asset.Required = 1
		}

		switch spec.kind {
		case nativeAssetTitle:
			asset.Title = &nativeRequest.Title{Len: cfg.Len, Ext: cfg.Ext}
		case nativeAssetImage:
			img := &nativeRequest.Image{Type: spec.imgType, MIMEs: cfg.MIMEs, Ext: cfg.Ext}
			if len(cfg.Sizes) >= 2 {
				img.W = cfg.Sizes[0]
				img.H = cfg.Sizes[1]
			}
			asset.Img = img
		case nativeAssetData:
			asset.Data = &nativeRequest.Data{Type: spec.dataType, Len: cfg.Len, Ext: cfg.Ext}
		}

		assets = append(assets, asset)
	}

	if len(assets) == 0 {
		logf("no recognized native assets on %s, dropping native", bid.AdUnitCode)
		return nil
	}

	buf, err := json.Marshal(nativeRequest.Request{Ver: nativeVersion, Assets: assets})
	if err != nil {
		logf("unable to marshal native request on %s: %v", bid.AdUnitCode, err)
		return nil
	}

	return &openrtb2.Native{Request: string(buf)}
}

// buildPMP passes a first party deals object through untouched, else builds one from
// params.deals.
func buildPMP(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic) *openrtb2.PMP {
	if bid.FirstPartyData != nil && bid.FirstPartyData.PMP != nil {
		return bid.FirstPartyData.PMP
	}

	ids := filterParamEntries(nil, params.Deals)
	if len(params.Deals) > 0 && len(ids) == 0 {
		logf("no usable deal ids on %s, deal ids need more than %d characters", bid.AdUnitCode, minParamLen)
	}
	if len(ids) == 0 {
		return nil
	}

	pmp := &openrtb2.PMP{}
	for _, id := range ids {
		pmp.Deals = append(pmp.Deals, openrtb2.Deal{ID: id})
	}
	return pmp
}

// resolveFloors sets the effective imp floor: the kadfloor param maxed against the
// minimum of the floors module's per-media-type answers. Module answers only count
// when positive and in the batch currency. Media-type floors that differ from the
// imp-level floor are kept on the media object's ext. The returned errors are
// non-fatal floor warnings.
func resolveFloors(imp *openrtb2.Imp, bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic, cur string) []error {
	var warnings []error

	kadfloor := -1.0
	if params.Kadfloor != "" {
		f, err := params.Kadfloor.Float64()
		if err != nil {
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("ignoring kadfloor on %s: %v", bid.AdUnitCode, err),
				WarningCode: errortypes.InvalidFloorWarningCode,
			})
		} else {
			kadfloor = f
		}
	}

	typeFloors := make(map[openrtb_ext.BidType]float64, 3)
	if bid.GetFloor != nil {
		if imp.Banner != nil {
			var sizes [][2]int64
			if imp.Banner.W != nil && imp.Banner.H != nil {
				sizes = append(sizes, [2]int64{*imp.Banner.W, *imp.Banner.H})
			}
			for _, f := range imp.Banner.Format {
				sizes = append(sizes, [2]int64{f.W, f.H})
			}
			f, ok, warns := minFloor(bid, cur, openrtb_ext.BidTypeBanner, sizes)
			warnings = append(warnings, warns...)
			if ok {
				typeFloors[openrtb_ext.BidTypeBanner] = f
			}
		}
		if imp.Video != nil {
			f, ok, warns := minFloor(bid, cur, openrtb_ext.BidTypeVideo, nil)
			warnings = append(warnings, warns...)
			if ok {
				typeFloors[openrtb_ext.BidTypeVideo] = f
			}
		}
		if imp.Native != nil {
			f, ok, warns := minFloor(bid, cur, openrtb_ext.BidTypeNative, nil)
			warnings = append(warnings, warns...)
			if ok {
				typeFloors[openrtb_ext.BidTypeNative] = f
			}
		}
	}

	effective := -1.0
	for _, f := range typeFloors {
		if effective < 0 || f < effective {
			effective = f
		}
	}
	if kadfloor > effective {
		effective = kadfloor
	}

	if effective > 0 {
		imp.BidFloor = effective
		imp.BidFloorCur = cur
	}

	for t, f := range typeFloors {
		if imp.BidFloor > 0 && f == imp.BidFloor {
			continue
		}
		ext := json.RawMessage(fmt.Sprintf(`{"bidfloor":%s}`, strconv.FormatFloat(f, 'f', -1, 64)))
		switch t {
		case openrtb_ext.BidTypeBanner:
			imp.Banner.Ext = ext
		case openrtb_ext.BidTypeVideo:
			imp.Video.Ext = ext
		case openrtb_ext.BidTypeNative:
			imp.Native.Ext = ext
		}
	}

	return warnings
}

// minFloor queries the floors module once per size (or once with the wildcard size
// when sizes is empty) and keeps the minimum accepted answer. Failed lookups become
// warnings and do not contribute.
func minFloor(bid *adapters.BidRequest, cur string, mediaType openrtb_ext.BidType, sizes [][2]int64) (float64, bool, []error) {
	if len(sizes) == 0 {
		sizes = [][2]int64{{}}
	}

	var warnings []error
	best := -1.0
	for _, size := range sizes {
		floor, err := bid.GetFloor(adapters.FloorRequest{Currency: cur, MediaType: mediaType, Size: size})
		if err != nil {
			warnings = append(warnings, &errortypes.Warning{
				Message:     fmt.Sprintf("floor lookup failed on %s for %s: %v", bid.AdUnitCode, mediaType, err),
				WarningCode: errortypes.InvalidFloorWarningCode,
			})
			continue
		}
		if floor.Currency != cur || floor.Floor <= 0 {
			continue
		}
		if best < 0 || floor.Floor < best {
			best = floor.Floor
		}
	}
	return best, best > 0, warnings
}

// buildKeyVal joins the dctr param and the jwplayer RTD segments into the key_val
// targeting string.
func buildKeyVal(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic) string {
	var parts []string

	if len(params.Dctr) > 0 {
		var dctr string
		if err := json.Unmarshal(params.Dctr, &dctr); err != nil {
			logf("ignoring param : dctr on %s: value needs to be a string", bid.AdUnitCode)
		} else if dctr = strings.TrimSpace(dctr); dctr != "" {
			parts = append(parts, dctr)
		}
	}

	if bid.RTD != nil && bid.RTD.JWPlayer != nil {
		jw := bid.RTD.JWPlayer
		if jw.Content.ID != "" {
			parts = append(parts, "jw-id="+jw.Content.ID)
		}
		for _, seg := range jw.Segments {
			parts = append(parts, "jw-"+seg+"=1")
		}
	}

	return strings.Join(parts, "|")
}

// formatPmZoneID normalizes the pmzoneid param: at most 50 comma separated entries,
// each trimmed.
func formatPmZoneID(pmZoneID string) string {
	if pmZoneID == "" {
		return ""
	}
	ids := strings.Split(pmZoneID, ",")
	if len(ids) > 50 {
		ids = ids[:50]
	}
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	return strings.Join(ids, ",")
}

func buildImpExt(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic, conf *batchConf) (json.RawMessage, error) {
	ext := openrtb_ext.ExtImpPubmaticRequest{
		KeyVal:   buildKeyVal(bid, params),
		PmZoneID: formatPmZoneID(params.PmZoneID),
	}
	if bid.FirstPartyData != nil {
		ext.GpID = bid.FirstPartyData.GpID
	}
	if conf.paapiEnabled {
		ext.AE = 1
	}

	buf, err := json.Marshal(ext)
	if err != nil {
		return nil, err
	}

	if data := impExtData(bid); len(data) > 0 {
		buf, err = jsonparser.Set(buf, data, "data")
		if err != nil {
			return nil, err
		}
		slot := gamAdSlot(data)
		if slot == "" {
			slot, _ = jsonparser.GetString(data, "pbadslot")
		}
		if slot != "" {
			buf, err = jsonparser.Set(buf, []byte(strconv.Quote(slot)), "dfp_ad_unit_code")
			if err != nil {
				return nil, err
			}
		}
	}

	return buf, nil
}

// impExtData returns a cleaned copy of the placement's ext.data block, or nil when
// nothing useful remains.
func impExtData(bid *adapters.BidRequest) []byte {
	if bid.FirstPartyData == nil || len(bid.FirstPartyData.Data) == 0 {
		return nil
	}

	data := append([]byte(nil), bid.FirstPartyData.Data...)
	if v, err := jsonparser.GetString(data, "pbadslot"); err == nil && strings.TrimSpace(v) == "" {
		data = jsonparser.Delete(data, "pbadslot")
	}

	empty := true
	_ = jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, offset int) error {
		empty = false
		return nil
	})
	if empty {
		return nil
	}
	return data
}

// gamAdSlot reads ext.data.adserver and returns the slot when the ad server is GAM.
func gamAdSlot(data []byte) string {
	name, err := jsonparser.GetString(data, "adserver", "name")
	if err != nil || !strings.EqualFold(name, "gam") {
		return ""
	}
	slot, err := jsonparser.GetString(data, "adserver", "adslot")
	if err != nil {
		return ""
	}
	return slot
}
