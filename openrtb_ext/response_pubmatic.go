package openrtb_ext

import (
	"encoding/json"

	"github.com/prebid/prebid-adapters/util/jsonutil"
)

// ExtBidPubmatic defines the contract for seatbid[i].bid[j].ext on the translator
// response. Everything is optional; the exchange only sets what it knows.
type ExtBidPubmatic struct {
	// BidType hints the creative's media type: 0 banner, 1 video, 2 native.
	BidType *int `json:"bidtype,omitempty"`

	DealChannel   *int                `json:"deal_channel,omitempty"`
	AdvID         *jsonutil.IntString `json:"advid,omitempty"`
	DspID         *int                `json:"dspid,omitempty"`
	DealPriority  int                 `json:"prebiddealpriority,omitempty"`
	Video         *ExtBidVideo        `json:"video,omitempty"`
	Marketplace   string              `json:"marketplace,omitempty"`
	InBannerVideo bool                `json:"ibv,omitempty"`
	DChain        json.RawMessage     `json:"dchain,omitempty"`
	DSA           json.RawMessage     `json:"dsa,omitempty"`
}

// ExtBidVideo carries the creative duration reported by the exchange.
type ExtBidVideo struct {
	Duration int64 `json:"duration,omitempty"`
}

// ExtBidResponsePubmatic defines the contract for bidresponse.ext.
type ExtBidResponsePubmatic struct {
	// FledgeAuctionConfigs maps imp IDs to PAAPI auction configs.
	FledgeAuctionConfigs map[string]json.RawMessage `json:"fledge_auction_configs,omitempty"`
}
