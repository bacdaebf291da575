package adnuntius

import (
	"errors"
	"sort"
)

var errMissingEndpoint = errors.New("adnuntius analytics: endpoint is required")

// auctionReport is the wire format of one flushed auction.
type auctionReport struct {
	ReportID    string         `json:"reportId"`
	AuctionID   string         `json:"auctionId"`
	StartTime   int64          `json:"startTime"`
	EndTime     int64          `json:"endTime"`
	TimeoutMS   int64          `json:"timeout,omitempty"`
	AdUnitCodes []string       `json:"adUnitCodes,omitempty"`
	Bidders     []bidderReport `json:"bidders,omitempty"`
}

type bidderReport struct {
	BidderCode string      `json:"bidderCode"`
	Requested  []string    `json:"requested,omitempty"`
	Bids       []bidReport `json:"bids,omitempty"`
	NoBids     []string    `json:"noBids,omitempty"`
	TimedOut   bool        `json:"timedOut,omitempty"`
	Wins       []bidReport `json:"wins,omitempty"`
}

type bidReport struct {
	AdUnitCode      string  `json:"adUnitCode"`
	Cpm             float64 `json:"cpm"`
	Currency        string  `json:"currency,omitempty"`
	TimeToRespondMS int64   `json:"timeToRespond,omitempty"`
}

// sortBidders keeps report output stable across runs; bidder records come out of a
// map.
func sortBidders(bidders []bidderReport) {
	sort.Slice(bidders, func(i, j int) bool { return bidders[i].BidderCode < bidders[j].BidderCode })
}
