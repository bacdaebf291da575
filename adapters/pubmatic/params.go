package pubmatic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/errortypes"
	"github.com/prebid/prebid-adapters/openrtb_ext"
)

// Entries of deals, acat and bcat shorter than this are dropped.
const minParamLen = 3

// IsBidRequestValid reports whether the placement carries usable params. Placements
// failing this check are the ones MakeRequests skips.
func (a *PubmaticAdapter) IsBidRequestValid(bid *adapters.BidRequest) error {
	_, err := parseParams(bid)
	return err
}

func parseParams(bid *adapters.BidRequest) (*openrtb_ext.ExtImpPubmatic, error) {
	var params openrtb_ext.ExtImpPubmatic
	if len(bid.Params) > 0 {
		if err := json.Unmarshal(bid.Params, &params); err != nil {
			return nil, &errortypes.BadInput{
				Message: fmt.Sprintf("ignoring placement %s: invalid params: %v", bid.AdUnitCode, err),
			}
		}
	}

	params.PublisherID = strings.TrimSpace(params.PublisherID)
	if params.PublisherID == "" {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("ignoring placement %s: publisherId missing or not a string", bid.AdUnitCode),
		}
	}

	if err := validateVideo(bid, &params); err != nil {
		return nil, err
	}

	return &params, nil
}

func validateVideo(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic) error {
	mtv := bid.MediaTypes.Video
	if mtv == nil {
		return nil
	}

	if len(videoMIMEs(bid, params)) == 0 {
		return &errortypes.BadInput{
			Message: fmt.Sprintf("ignoring placement %s: video mimes missing", bid.AdUnitCode),
		}
	}

	if mtv.Context == "" {
		return &errortypes.BadInput{
			Message: fmt.Sprintf("ignoring placement %s: video context missing", bid.AdUnitCode),
		}
	}

	if mtv.Context == adapters.VideoContextOutstream &&
		params.OutstreamAU == "" &&
		bid.Renderer == nil &&
		mtv.Renderer == nil &&
		bid.MediaTypes.Banner == nil &&
		bid.MediaTypes.Native == nil {
		return &errortypes.BadInput{
			Message: fmt.Sprintf("ignoring placement %s: outstream video needs outstreamAU or a renderer", bid.AdUnitCode),
		}
	}

	return nil
}

// videoMIMEs resolves the playable mime types, params taking precedence over the
// mediaTypes declaration.
func videoMIMEs(bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic) []string {
	if params.Video != nil && len(params.Video.MIMEs) > 0 {
		return params.Video.MIMEs
	}
	if bid.MediaTypes.Video != nil {
		return bid.MediaTypes.Video.MIMEs
	}
	return nil
}

// filterParamEntries trims the entries, drops everything not longer than minParamLen
// and deduplicates keeping first-seen order. Used for deals, acat and bcat.
func filterParamEntries(dst []string, values []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = struct{}{}
	}

	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) <= minParamLen {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
