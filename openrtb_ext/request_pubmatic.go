package openrtb_ext

import (
	"encoding/json"

	"github.com/prebid/openrtb/v20/openrtb2"
)

// ExtRequestPubmatic defines the contract for bidrequest.ext on the translator request.
type ExtRequestPubmatic struct {
	Wrapper     *ExtRequestWrapper     `json:"wrapper,omitempty"`
	ACat        []string               `json:"acat,omitempty"`
	Epoch       int64                  `json:"epoch,omitempty"`
	Marketplace *ExtRequestMarketplace `json:"marketplace,omitempty"`
}

// ExtRequestWrapper carries the wrapper profile identity. Written once per request from
// the first placement that declares wrapper params.
type ExtRequestWrapper struct {
	Profile       int    `json:"profile,omitempty"`
	Version       int    `json:"version,omitempty"`
	Wiid          string `json:"wiid,omitempty"`
	Wv            string `json:"wv,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

// ExtRequestMarketplace lists the bidder codes allowed to respond on this request.
type ExtRequestMarketplace struct {
	AllowedBidders []string `json:"allowedbidders,omitempty"`
}

// ExtImpPubmaticRequest defines the contract for imp.ext on the translator request.
type ExtImpPubmaticRequest struct {
	KeyVal   string          `json:"key_val,omitempty"`
	PmZoneID string          `json:"pmZoneId,omitempty"`
	GpID     string          `json:"gpid,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	AE       int             `json:"ae,omitempty"`
}

// ExtUser defines the contract for bidrequest.user.ext.
type ExtUser struct {
	Consent string          `json:"consent,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ExtSource defines the contract for bidrequest.source.ext.
type ExtSource struct {
	SChain *openrtb2.SupplyChain `json:"schain,omitempty"`
}

// ExtRegs defines the contract for bidrequest.regs.ext.
type ExtRegs struct {
	GDPR      *int8           `json:"gdpr,omitempty"`
	USPrivacy string          `json:"us_privacy,omitempty"`
	DSA       json.RawMessage `json:"dsa,omitempty"`
}
