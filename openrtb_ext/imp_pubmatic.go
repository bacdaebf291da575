package openrtb_ext

import (
	"encoding/json"

	"github.com/prebid/openrtb/v20/adcom1"

	"github.com/prebid/prebid-adapters/util/jsonutil"
)

// ExtImpPubmatic defines the contract for a placement's pubmatic params.
//
// PublisherID is mandatory, everything else is optional. Kadfloor, PmZoneID, Dctr and
// Deals are placement specific; Currency, Kadpageurl, Wiid, ProfID, VerID, Lat, Lon,
// Yob and Gender are read once per batch from the first placement that declares them.
type ExtImpPubmatic struct {
	PublisherID string             `json:"publisherId"`
	AdSlot      string             `json:"adSlot,omitempty"`
	Kadfloor    jsonutil.IntString `json:"kadfloor,omitempty"`
	Kadpageurl  string             `json:"kadpageurl,omitempty"`
	PmZoneID    string             `json:"pmzoneid,omitempty"`
	Currency    string             `json:"currency,omitempty"`
	Wiid        string             `json:"wiid,omitempty"`
	ProfID      jsonutil.IntString `json:"profId,omitempty"`
	VerID       jsonutil.IntString `json:"verId,omitempty"`

	// Dctr holds the deal custom targeting string. Kept raw so a non-string value can
	// be ignored with a warning instead of failing the placement.
	Dctr json.RawMessage `json:"dctr,omitempty"`

	Deals []string `json:"deals,omitempty"`
	ACat  []string `json:"acat,omitempty"`
	BCat  []string `json:"bcat,omitempty"`

	Lat    jsonutil.IntString `json:"lat,omitempty"`
	Lon    jsonutil.IntString `json:"lon,omitempty"`
	Yob    jsonutil.IntString `json:"yob,omitempty"`
	Gender string             `json:"gender,omitempty"`

	OutstreamAU string               `json:"outstreamAU,omitempty"`
	Video       *ExtImpPubmaticVideo `json:"video,omitempty"`
}

// ExtImpPubmaticVideo holds the params-level video overrides. Any field set here wins
// over the corresponding mediaTypes.video attribute.
type ExtImpPubmaticVideo struct {
	MIMEs          []string                       `json:"mimes,omitempty"`
	MinDuration    *int64                         `json:"minduration,omitempty"`
	MaxDuration    *int64                         `json:"maxduration,omitempty"`
	StartDelay     *adcom1.StartDelay             `json:"startdelay,omitempty"`
	PlaybackMethod []adcom1.PlaybackMethod        `json:"playbackmethod,omitempty"`
	API            []adcom1.APIFramework          `json:"api,omitempty"`
	Protocols      []adcom1.MediaCreativeSubtype  `json:"protocols,omitempty"`
	W              *int64                         `json:"w,omitempty"`
	H              *int64                         `json:"h,omitempty"`
	BAttr          []adcom1.CreativeAttribute     `json:"battr,omitempty"`
	Linearity      *adcom1.LinearityMode          `json:"linearity,omitempty"`
	Placement      *adcom1.VideoPlacementSubtype  `json:"placement,omitempty"`
	Plcmt          *adcom1.VideoPlcmtSubtype      `json:"plcmt,omitempty"`
	MinBitrate     *int64                         `json:"minbitrate,omitempty"`
	MaxBitrate     *int64                         `json:"maxbitrate,omitempty"`
	Skip           *int8                          `json:"skip,omitempty"`
	SkipMin        *int64                         `json:"skipmin,omitempty"`
	SkipAfter      *int64                         `json:"skipafter,omitempty"`
}
