package pubmatic

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/config"
	"github.com/prebid/prebid-adapters/errortypes"
	"github.com/prebid/prebid-adapters/openrtb_ext"
)

const (
	defaultEndpoint = "https://hbopenbid.pubmatic.com/translator?source=prebid-client"
	bidderCode      = "pubmatic"
	defaultCurrency = "USD"

	// The translator rejects batches above this size.
	maxImpressions = 30
)

type PubmaticAdapter struct {
	endpoint string
}

// Builder builds a new instance of the PubMatic adapter with the given config.
func Builder(cfg config.Adapter) (adapters.Bidder, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &PubmaticAdapter{endpoint: endpoint}, nil
}

func logf(msg string, args ...interface{}) {
	if glog.V(2) {
		glog.Infof(msg, args...)
	}
}

func setHeaders() http.Header {
	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")
	return headers
}

// batchConf carries the request-level values accumulated across the batch's
// placements. Single-value fields follow first-declared-wins semantics.
type batchConf struct {
	pubID         string
	currency      string
	kadpageurl    string
	wiid          string
	profID        int
	verID         int
	transactionID string

	yob    int64
	gender string
	lat    float64
	lon    float64
	hasGeo bool

	acat []string
	bcat []string

	eids   []openrtb2.EID
	schain *openrtb2.SupplyChain

	paapiEnabled bool
}

func (a *PubmaticAdapter) MakeRequests(request *adapters.BidderRequest) (*adapters.RequestData, []error) {
	var errs []error

	conf := &batchConf{paapiEnabled: request.Config.PaapiEnabled}
	if request.Ortb2 != nil {
		conf.bcat = filterParamEntries(nil, request.Ortb2.BCat)
		if len(request.Ortb2.BidderParams) > 0 {
			var bp struct {
				ACat []string `json:"acat"`
			}
			if err := json.Unmarshal(request.Ortb2.BidderParams, &bp); err != nil {
				logf("ignoring bidder params: %v", err)
			} else {
				conf.acat = filterParamEntries(nil, bp.ACat)
			}
		}
	}

	type placement struct {
		bid    *adapters.BidRequest
		params *openrtb_ext.ExtImpPubmatic
	}
	var placements []placement

	for i := range request.Bids {
		bid := &request.Bids[i]
		params, err := parseParams(bid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		accumulateConf(conf, bid, params)
		placements = append(placements, placement{bid: bid, params: params})
	}

	if len(placements) == 0 {
		if len(errs) == 0 {
			errs = append(errs, &errortypes.FailedToRequestBids{
				Message: "no placements to request bids for",
			})
		}
		logf("no valid placements in batch, dropping bid request")
		return nil, errs
	}
	if conf.currency == "" {
		conf.currency = defaultCurrency
	}
	if len(placements) > maxImpressions {
		logf("batch has %d placements, keeping the first %d", len(placements), maxImpressions)
		placements = placements[:maxImpressions]
	}

	ortb := &openrtb2.BidRequest{
		ID:   request.AuctionID,
		AT:   1,
		Cur:  []string{conf.currency},
		TMax: request.Timeout.Milliseconds(),
	}
	if request.Config.TestMode {
		ortb.Test = 1
	}

	for _, p := range placements {
		imp, impErrs := a.buildImp(p.bid, p.params, conf)
		errs = append(errs, impErrs...)
		if imp == nil {
			continue
		}
		ortb.Imp = append(ortb.Imp, *imp)
	}
	if len(ortb.Imp) == 0 {
		return nil, errs
	}

	site := buildSite(request, conf)
	if app := buildApp(request, site); app != nil {
		ortb.App = app
	} else {
		ortb.Site = site
	}
	ortb.Device = buildDevice(request)
	ortb.User = buildUser(request, conf)
	ortb.Regs = buildRegs(request)
	ortb.Source = buildSource(request, conf)
	if request.Ortb2 != nil {
		ortb.BAdv = request.Ortb2.BAdv
	}
	ortb.BCat = conf.bcat
	ortb.Ext = buildRequestExt(request, conf)

	body, err := json.Marshal(ortb)
	if err != nil {
		return nil, append(errs, err)
	}
	logf("pubmatic request body: %s", body)

	return &adapters.RequestData{
		Method:     http.MethodPost,
		Uri:        a.endpoint,
		Body:       body,
		Headers:    setHeaders(),
		BidRequest: ortb,
	}, errs
}

// accumulateConf folds one placement's batch-level params into the conf. The first
// placement declaring a value wins.
func accumulateConf(conf *batchConf, bid *adapters.BidRequest, params *openrtb_ext.ExtImpPubmatic) {
	if conf.pubID == "" {
		conf.pubID = params.PublisherID
	}
	if conf.currency == "" && params.Currency != "" {
		conf.currency = params.Currency
	}
	if conf.kadpageurl == "" {
		conf.kadpageurl = strings.TrimSpace(params.Kadpageurl)
	}
	if conf.wiid == "" {
		conf.wiid = params.Wiid
	}
	if conf.transactionID == "" {
		conf.transactionID = bid.TransactionID
	}
	if conf.profID == 0 && params.ProfID != "" {
		if v, err := params.ProfID.Int64(); err != nil {
			logf("ignoring profId %q: %v", string(params.ProfID), err)
		} else {
			conf.profID = int(v)
		}
	}
	if conf.verID == 0 && params.VerID != "" {
		if v, err := params.VerID.Int64(); err != nil {
			logf("ignoring verId %q: %v", string(params.VerID), err)
		} else {
			conf.verID = int(v)
		}
	}

	if conf.yob == 0 && params.Yob != "" {
		if v, err := params.Yob.Int64(); err != nil {
			logf("ignoring yob %q: %v", string(params.Yob), err)
		} else {
			conf.yob = v
		}
	}
	if conf.gender == "" {
		conf.gender = strings.TrimSpace(params.Gender)
	}
	if !conf.hasGeo && params.Lat != "" && params.Lon != "" {
		lat, latErr := params.Lat.Float64()
		lon, lonErr := params.Lon.Float64()
		if latErr != nil || lonErr != nil {
			logf("ignoring lat/lon params: not numeric")
		} else {
			conf.lat, conf.lon = lat, lon
			conf.hasGeo = true
		}
	}

	conf.acat = filterParamEntries(conf.acat, params.ACat)
	conf.bcat = filterParamEntries(conf.bcat, params.BCat)

	if len(conf.eids) == 0 {
		conf.eids = bid.UserIDAsEids
	}
	if conf.schain == nil {
		conf.schain = bid.SChain
	}
}
