// Package adnuntius reports auction outcomes to the Adnuntius analytics endpoint.
// It keeps one record per open auction and posts it as a JSON report when the
// auction ends.
package adnuntius

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"golang.org/x/net/context/ctxhttp"

	"github.com/prebid/prebid-adapters/analytics"
	"github.com/prebid/prebid-adapters/config"
)

const defaultTimeout = 2 * time.Second

// Module is the Adnuntius analytics module. Safe for concurrent auctions; each
// auction's record lives from AuctionInit to the flush triggered by AuctionEnd.
type Module struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client

	mu       sync.Mutex
	auctions map[string]*auctionRecord

	inflight sync.WaitGroup
}

type auctionRecord struct {
	started     time.Time
	timeout     time.Duration
	adUnitCodes []string
	bidders     map[string]*bidderRecord
}

type bidderRecord struct {
	requested []string
	bids      []bidRecord
	noBids    []string
	timedOut  bool
	wins      []bidRecord
}

type bidRecord struct {
	adUnitCode    string
	cpm           float64
	currency      string
	timeToRespond time.Duration
}

// NewModule builds the module from config. Endpoint is mandatory when enabled.
func NewModule(cfg config.AdnuntiusAnalytics, httpClient *http.Client) (*Module, error) {
	if cfg.Endpoint == "" {
		return nil, errMissingEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Module{
		endpoint: cfg.Endpoint,
		timeout:  timeout,
		client:   httpClient,
		auctions: make(map[string]*auctionRecord),
	}, nil
}

func (m *Module) OnAuctionInit(event analytics.AuctionInitEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.auctions[event.AuctionID]; ok {
		glog.Warningf("adnuntius analytics: auction %s initialized twice", event.AuctionID)
		return
	}
	m.auctions[event.AuctionID] = &auctionRecord{
		started:     event.Timestamp,
		timeout:     event.Timeout,
		adUnitCodes: event.AdUnitCodes,
		bidders:     make(map[string]*bidderRecord),
	}
}

func (m *Module) OnBidRequested(event analytics.BidRequestedEvent) {
	m.withAuction(event.AuctionID, func(rec *auctionRecord) {
		rec.bidder(event.BidderCode).requested = event.AdUnitCodes
	})
}

func (m *Module) OnBidResponse(event analytics.BidResponseEvent) {
	m.withAuction(event.AuctionID, func(rec *auctionRecord) {
		b := rec.bidder(event.BidderCode)
		b.bids = append(b.bids, bidRecord{
			adUnitCode:    event.AdUnitCode,
			cpm:           event.Cpm,
			currency:      event.Currency,
			timeToRespond: event.TimeToRespond,
		})
	})
}

func (m *Module) OnNoBid(event analytics.NoBidEvent) {
	m.withAuction(event.AuctionID, func(rec *auctionRecord) {
		b := rec.bidder(event.BidderCode)
		b.noBids = append(b.noBids, event.AdUnitCode)
	})
}

func (m *Module) OnBidTimeout(event analytics.BidTimeoutEvent) {
	m.withAuction(event.AuctionID, func(rec *auctionRecord) {
		rec.bidder(event.BidderCode).timedOut = true
	})
}

func (m *Module) OnBidWon(event analytics.BidWonEvent) {
	m.withAuction(event.AuctionID, func(rec *auctionRecord) {
		b := rec.bidder(event.BidderCode)
		b.wins = append(b.wins, bidRecord{
			adUnitCode: event.AdUnitCode,
			cpm:        event.Cpm,
			currency:   event.Currency,
		})
	})
}

// OnAuctionEnd flushes the auction's record. The record is removed first, so events
// straggling in after the end are dropped, not double counted.
func (m *Module) OnAuctionEnd(event analytics.AuctionEndEvent) {
	m.mu.Lock()
	rec, ok := m.auctions[event.AuctionID]
	delete(m.auctions, event.AuctionID)
	m.mu.Unlock()

	if !ok {
		glog.Warningf("adnuntius analytics: dropping auctionEnd for unknown auction %s", event.AuctionID)
		return
	}

	m.flush(event.AuctionID, rec, event.Timestamp)
}

// Shutdown flushes every auction still open and waits for all deliveries.
func (m *Module) Shutdown() {
	m.mu.Lock()
	open := m.auctions
	m.auctions = make(map[string]*auctionRecord)
	m.mu.Unlock()

	now := time.Now()
	for auctionID, rec := range open {
		m.flush(auctionID, rec, now)
	}
	m.inflight.Wait()
}

// withAuction runs fn against the auction's record under the lock. Events for
// auctions this module never saw, or saw flushed already, are dropped.
func (m *Module) withAuction(auctionID string, fn func(*auctionRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.auctions[auctionID]
	if !ok {
		glog.Warningf("adnuntius analytics: dropping event for unknown or flushed auction %s", auctionID)
		return
	}
	fn(rec)
}

func (rec *auctionRecord) bidder(code string) *bidderRecord {
	b, ok := rec.bidders[code]
	if !ok {
		b = &bidderRecord{}
		rec.bidders[code] = b
	}
	return b
}

func (m *Module) flush(auctionID string, rec *auctionRecord, ended time.Time) {
	report := buildReport(auctionID, rec, ended)

	body, err := json.Marshal(report)
	if err != nil {
		glog.Warningf("adnuntius analytics: unable to marshal report for auction %s: %v", auctionID, err)
		return
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		resp, err := ctxhttp.Post(ctx, m.client, m.endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			glog.Warningf("adnuntius analytics: report delivery for auction %s failed: %v", auctionID, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			glog.Warningf("adnuntius analytics: report for auction %s rejected with status %d", auctionID, resp.StatusCode)
		}
	}()
}

func buildReport(auctionID string, rec *auctionRecord, ended time.Time) auctionReport {
	report := auctionReport{
		AuctionID:   auctionID,
		StartTime:   rec.started.UnixMilli(),
		EndTime:     ended.UnixMilli(),
		TimeoutMS:   rec.timeout.Milliseconds(),
		AdUnitCodes: rec.adUnitCodes,
	}

	if id, err := uuid.NewV4(); err == nil {
		report.ReportID = id.String()
	}

	for code, b := range rec.bidders {
		br := bidderReport{
			BidderCode: code,
			Requested:  b.requested,
			NoBids:     b.noBids,
			TimedOut:   b.timedOut,
		}
		for _, bid := range b.bids {
			br.Bids = append(br.Bids, bidReport{
				AdUnitCode:      bid.adUnitCode,
				Cpm:             bid.cpm,
				Currency:        bid.currency,
				TimeToRespondMS: bid.timeToRespond.Milliseconds(),
			})
		}
		for _, win := range b.wins {
			br.Wins = append(br.Wins, bidReport{
				AdUnitCode: win.adUnitCode,
				Cpm:        win.cpm,
				Currency:   win.currency,
			})
		}
		report.Bidders = append(report.Bidders, br)
	}
	sortBidders(report.Bidders)

	return report
}
