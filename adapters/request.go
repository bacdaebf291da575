package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prebid/openrtb/v20/adcom1"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-adapters/openrtb_ext"
)

// BidRequest is one placement entering the auction: the publisher's bidder params plus
// the ad unit's declared media types and per-imp first party data.
type BidRequest struct {
	// BidID uniquely identifies this placement within the auction. It becomes the imp
	// id on the wire and the requestId on returned bids.
	BidID string

	// AdUnitCode is the publisher's ad unit identifier (typically the div id).
	AdUnitCode string

	// TransactionID is the imp-level transaction id (ortb2Imp.ext.tid).
	TransactionID string

	// Params holds the raw bidder params for this placement.
	Params json.RawMessage

	MediaTypes MediaTypes

	// FirstPartyData carries the imp-level first party data attached to the ad unit.
	FirstPartyData *ImpFirstPartyData

	// UserIDAsEids holds the resolved identity eids for the user.
	UserIDAsEids []openrtb2.EID

	SChain *openrtb2.SupplyChain

	// GetFloor exposes the price floors module for this placement. Nil when no floors
	// are configured.
	GetFloor FloorFunc

	// Renderer is a publisher-supplied outstream renderer, if any.
	Renderer *RendererConfig

	// RTD carries real-time data segments attached by RTD providers.
	RTD *RTDParams
}

// MediaTypes declares the formats this placement accepts.
type MediaTypes struct {
	Banner *Banner `json:"banner,omitempty"`
	Video  *Video  `json:"video,omitempty"`
	Native *Native `json:"native,omitempty"`
}

// Banner is the mediaTypes.banner declaration.
type Banner struct {
	Sizes []BannerSize              `json:"sizes,omitempty"`
	Pos   *adcom1.PlacementPosition `json:"pos,omitempty"`
}

// BannerSize is one entry of mediaTypes.banner.sizes: either a [w,h] pair or the
// literal "fluid". Anything else unmarshals to a zero size, which builders skip.
type BannerSize struct {
	W     int64
	H     int64
	Fluid bool
}

func (s *BannerSize) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s.Fluid = str == "fluid"
		return nil
	}

	var pair []int64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) == 2 {
		s.W, s.H = pair[0], pair[1]
	}
	return nil
}

func (s BannerSize) MarshalJSON() ([]byte, error) {
	if s.Fluid {
		return []byte(`"fluid"`), nil
	}
	return []byte(fmt.Sprintf("[%d,%d]", s.W, s.H)), nil
}

// Valid reports whether the entry is a usable fixed size.
func (s BannerSize) Valid() bool {
	return !s.Fluid && s.W > 0 && s.H > 0
}

// Video is the mediaTypes.video declaration: the standard OpenRTB video attributes
// plus the header bidding specific fields.
type Video struct {
	openrtb2.Video

	// Context is "instream", "outstream" or "adpod".
	Context string `json:"context,omitempty"`

	// PlayerSize is the [[w,h]] player dimensions.
	PlayerSize [][2]int64 `json:"playerSize,omitempty"`

	Renderer *RendererConfig `json:"renderer,omitempty"`
}

const (
	VideoContextInstream  = "instream"
	VideoContextOutstream = "outstream"
	VideoContextAdpod     = "adpod"
)

// Native is the mediaTypes.native declaration, keyed by asset name ("title", "image",
// "icon", "sponsoredBy", "body", ...).
type Native map[string]NativeAssetParams

// NativeAssetParams configures one declared native asset.
type NativeAssetParams struct {
	Required bool  `json:"required,omitempty"`
	Len      int64 `json:"len,omitempty"`

	// Sizes is the [w, h] pair for image assets.
	Sizes []int64  `json:"sizes,omitempty"`
	MIMEs []string `json:"mimes,omitempty"`

	Ext json.RawMessage `json:"ext,omitempty"`
}

// ImpFirstPartyData is the imp-level first party data (ortb2Imp) for a placement.
type ImpFirstPartyData struct {
	// GpID is the global placement id.
	GpID string

	// Data is the ext.data block, forwarded to the exchange as-is apart from ad
	// server slot derivation.
	Data json.RawMessage

	// PMP passes a fully formed deals object through to the imp.
	PMP *openrtb2.PMP

	// BAttr holds banner.battr. Raw so a malformed value can be ignored rather than
	// failing the placement.
	BAttr json.RawMessage
}

// RTDParams carries real-time data segments for a placement.
type RTDParams struct {
	JWPlayer *JWPlayerTargeting
}

// JWPlayerTargeting is the jwplayer RTD provider's targeting block.
type JWPlayerTargeting struct {
	Content  JWPlayerContent `json:"content"`
	Segments []string        `json:"segments,omitempty"`
}

type JWPlayerContent struct {
	ID string `json:"id,omitempty"`
}

// FloorRequest asks the floors module for the floor of one media type and size.
type FloorRequest struct {
	Currency  string
	MediaType openrtb_ext.BidType

	// Size is the queried creative size. The zero value queries the wildcard size.
	Size [2]int64
}

// Floor is the floors module's answer.
type Floor struct {
	Currency string
	Floor    float64
}

// FloorFunc resolves a price floor for a placement.
type FloorFunc func(FloorRequest) (Floor, error)

// BidderRequest is the auction context shared by all placements of a batch.
type BidderRequest struct {
	AuctionID  string
	BidderCode string

	// Bids holds the placements participating in this auction, in declaration order.
	Bids []BidRequest

	// Timeout is the auction timeout; it becomes tmax on the wire.
	Timeout time.Duration

	RefererInfo *RefererInfo

	GDPR      *GDPRConsent
	USPrivacy string
	GPP       *GPPConsent

	// Ortb2 is the request-level first party data.
	Ortb2 *FirstPartyData

	Config RequestConfig

	// Env describes the environment the auction runs in. Nil outside a managed
	// runtime; the exchange then derives what it can from the transport.
	Env *Environment
}

// RefererInfo describes the page the auction runs on.
type RefererInfo struct {
	Page   string
	Ref    string
	Domain string
}

// GDPRConsent is the TCF consent state for the auction.
type GDPRConsent struct {
	ConsentString string
	GDPRApplies   *bool
}

// GPPConsent is the Global Privacy Platform consent state for the auction.
type GPPConsent struct {
	GPPString          string
	ApplicableSections []int8
}

// FirstPartyData is the request-level first party data (ortb2).
type FirstPartyData struct {
	Site   *openrtb2.Site
	App    *openrtb2.App
	User   *openrtb2.User
	Device *openrtb2.Device
	Regs   *openrtb2.Regs
	Source *openrtb2.Source
	BAdv   []string
	BCat   []string

	// BidderParams is this bidder's slice of ext.prebid.bidderparams.
	BidderParams json.RawMessage
}

// RequestConfig is the publisher configuration relevant to request building.
type RequestConfig struct {
	COPPA    bool
	TestMode bool

	// App switches the request into app mode when set.
	App     *openrtb2.App
	Content *openrtb2.Content
	Device  *openrtb2.Device

	AlternateBidderCodes *AlternateBidderCodes

	// PaapiEnabled marks imps as eligible for PAAPI auctions.
	PaapiEnabled bool
}

// AlternateBidderCodes configures which alternate seat codes may win for this bidder.
type AlternateBidderCodes struct {
	Enabled            bool
	AllowedBidderCodes []string
}

// Environment is what the runtime knows about the device running the auction.
type Environment struct {
	UserAgent      string
	ScreenWidth    int64
	ScreenHeight   int64
	Language       string
	DNT            bool
	ConnectionType adcom1.ConnectionType
}
