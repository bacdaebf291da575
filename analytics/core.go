// Package analytics defines the typed event bus connecting the auction engine to
// reporting modules.
package analytics

import (
	"fmt"
	"time"

	"github.com/prebid/prebid-adapters/errortypes"
)

// Event is one auction lifecycle event. The concrete types below form a closed set;
// Dispatch rejects anything else.
type Event interface {
	isAnalyticsEvent()
}

// AuctionInitEvent marks the start of an auction.
type AuctionInitEvent struct {
	AuctionID   string
	Timestamp   time.Time
	Timeout     time.Duration
	AdUnitCodes []string
}

// AuctionEndEvent marks the end of an auction. Modules holding per-auction state
// flush on this event.
type AuctionEndEvent struct {
	AuctionID string
	Timestamp time.Time
}

// BidRequestedEvent records that a bidder was called for a set of placements.
type BidRequestedEvent struct {
	AuctionID   string
	BidderCode  string
	AdUnitCodes []string
}

// BidResponseEvent records one bid arriving from a bidder.
type BidResponseEvent struct {
	AuctionID     string
	BidderCode    string
	AdUnitCode    string
	Cpm           float64
	Currency      string
	TimeToRespond time.Duration
}

// NoBidEvent records a bidder passing on a placement.
type NoBidEvent struct {
	AuctionID  string
	BidderCode string
	AdUnitCode string
}

// BidWonEvent records the ad server picking a bid for rendering.
type BidWonEvent struct {
	AuctionID  string
	BidderCode string
	AdUnitCode string
	Cpm        float64
	Currency   string
}

// BidTimeoutEvent records a bidder missing the auction timeout.
type BidTimeoutEvent struct {
	AuctionID  string
	BidderCode string
}

func (AuctionInitEvent) isAnalyticsEvent()  {}
func (AuctionEndEvent) isAnalyticsEvent()   {}
func (BidRequestedEvent) isAnalyticsEvent() {}
func (BidResponseEvent) isAnalyticsEvent()  {}
func (NoBidEvent) isAnalyticsEvent()        {}
func (BidWonEvent) isAnalyticsEvent()       {}
func (BidTimeoutEvent) isAnalyticsEvent()   {}

// Module consumes auction events. One method per event type keeps new events from
// silently passing a module by.
type Module interface {
	OnAuctionInit(AuctionInitEvent)
	OnAuctionEnd(AuctionEndEvent)
	OnBidRequested(BidRequestedEvent)
	OnBidResponse(BidResponseEvent)
	OnNoBid(NoBidEvent)
	OnBidWon(BidWonEvent)
	OnBidTimeout(BidTimeoutEvent)

	// Shutdown flushes whatever the module still holds and blocks until delivery
	// finished.
	Shutdown()
}

// Dispatch routes one event to the matching module method. An event type outside the
// closed set is an error, never a silent drop.
func Dispatch(m Module, event Event) error {
	switch e := event.(type) {
	case AuctionInitEvent:
		m.OnAuctionInit(e)
	case AuctionEndEvent:
		m.OnAuctionEnd(e)
	case BidRequestedEvent:
		m.OnBidRequested(e)
	case BidResponseEvent:
		m.OnBidResponse(e)
	case NoBidEvent:
		m.OnNoBid(e)
	case BidWonEvent:
		m.OnBidWon(e)
	case BidTimeoutEvent:
		m.OnBidTimeout(e)
	default:
		return &errortypes.Warning{
			Message:     fmt.Sprintf("analytics: dropping unknown event type %T", event),
			WarningCode: errortypes.DroppedEventWarningCode,
		}
	}
	return nil
}
