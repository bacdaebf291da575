package pubmatic

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/golang/glog"
	"github.com/prebid/go-gdpr/vendorconsent"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/prebid/prebid-adapters/adapters"
	"github.com/prebid/prebid-adapters/openrtb_ext"
	"github.com/prebid/prebid-adapters/util/ptrutil"
)

// mergeFPD overlays first party data onto a base object with a JSON merge patch,
// so nested objects merge and first party values win.
func mergeFPD[T any](base, overlay *T) (*T, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	overlayJSON, err := json.Marshal(overlay)
	if err != nil {
		return nil, err
	}

	merged, err := jsonpatch.MergePatch(baseJSON, overlayJSON)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal(merged, out); err != nil {
		return nil, err
	}
	return out, nil
}

// buildSite assembles the site object. First party data merges in, but page, domain
// and ref always come from the auction context (or the kadpageurl override).
func buildSite(request *adapters.BidderRequest, conf *batchConf) *openrtb2.Site {
	site := &openrtb2.Site{
		Publisher: &openrtb2.Publisher{ID: conf.pubID},
	}

	page := conf.kadpageurl
	if page == "" && request.RefererInfo != nil {
		page = request.RefererInfo.Page
	}
	site.Page = page
	site.Domain = domainFromURL(page)
	if request.RefererInfo != nil {
		site.Ref = request.RefererInfo.Ref
	}

	if request.Ortb2 != nil && request.Ortb2.Site != nil {
		merged, err := mergeFPD(site, request.Ortb2.Site)
		if err != nil {
			logf("unable to merge site first party data: %v", err)
		} else {
			merged.Page = site.Page
			merged.Domain = site.Domain
			merged.Ref = site.Ref
			if merged.Publisher == nil {
				merged.Publisher = &openrtb2.Publisher{}
			}
			merged.Publisher.ID = conf.pubID
			site = merged
		}
	}

	if site.Content == nil && request.Config.Content != nil {
		site.Content = request.Config.Content
	}

	return site
}

// buildApp switches the request into app mode when an app is configured, taking the
// publisher and ext the site assembly produced.
func buildApp(request *adapters.BidderRequest, site *openrtb2.Site) *openrtb2.App {
	var app *openrtb2.App
	if request.Config.App != nil {
		app = ptrutil.Clone(request.Config.App)
	}
	if request.Ortb2 != nil && request.Ortb2.App != nil {
		if app == nil {
			app = ptrutil.Clone(request.Ortb2.App)
		} else if merged, err := mergeFPD(app, request.Ortb2.App); err != nil {
			logf("unable to merge app first party data: %v", err)
		} else {
			app = merged
		}
	}
	if app == nil {
		return nil
	}

	app.Publisher = site.Publisher
	if len(app.Ext) == 0 {
		app.Ext = site.Ext
	}
	if app.Content == nil && request.Config.Content != nil {
		app.Content = request.Config.Content
	}

	return app
}

// buildDevice starts from what the runtime knows about the device, then overlays the
// configured device and the first party device, later sources winning.
func buildDevice(request *adapters.BidderRequest) *openrtb2.Device {
	device := &openrtb2.Device{
		JS: ptrutil.ToPtr(int8(1)),
	}

	if env := request.Env; env != nil {
		device.UA = env.UserAgent
		device.W = env.ScreenWidth
		device.H = env.ScreenHeight
		dnt := int8(0)
		if env.DNT {
			dnt = 1
		}
		device.DNT = ptrutil.ToPtr(dnt)
		if env.Language != "" {
			device.Language = primaryLanguage(env.Language)
		}
		if env.ConnectionType != 0 {
			device.ConnectionType = ptrutil.ToPtr(env.ConnectionType)
		}
	}

	if request.Config.Device != nil {
		if merged, err := mergeFPD(device, request.Config.Device); err != nil {
			logf("unable to merge configured device: %v", err)
		} else {
			device = merged
		}
	}
	if request.Ortb2 != nil && request.Ortb2.Device != nil {
		if merged, err := mergeFPD(device, request.Ortb2.Device); err != nil {
			logf("unable to merge device first party data: %v", err)
		} else {
			device = merged
		}
	}

	return device
}

// buildUser assembles the user from the batch params, first party data and consent.
// Returns nil when there is nothing to say about the user.
func buildUser(request *adapters.BidderRequest, conf *batchConf) *openrtb2.User {
	user := &openrtb2.User{
		Yob:    conf.yob,
		Gender: conf.gender,
	}
	if conf.hasGeo {
		user.Geo = &openrtb2.Geo{
			Lat: ptrutil.ToPtr(conf.lat),
			Lon: ptrutil.ToPtr(conf.lon),
		}
	}

	if request.Ortb2 != nil && request.Ortb2.User != nil {
		if merged, err := mergeFPD(user, request.Ortb2.User); err != nil {
			logf("unable to merge user first party data: %v", err)
		} else {
			user = merged
		}
	}

	if len(user.EIDs) == 0 && len(conf.eids) > 0 {
		user.EIDs = conf.eids
	}

	if request.GDPR != nil && request.GDPR.ConsentString != "" {
		validateConsent(request.GDPR.ConsentString)
		if len(user.Ext) == 0 {
			ext, err := json.Marshal(openrtb_ext.ExtUser{Consent: request.GDPR.ConsentString})
			if err == nil {
				user.Ext = ext
			}
		} else {
			ext := append([]byte(nil), user.Ext...)
			ext, err := jsonparser.Set(ext, []byte(strconv.Quote(request.GDPR.ConsentString)), "consent")
			if err == nil {
				user.Ext = ext
			}
		}
	}

	if reflect.DeepEqual(user, &openrtb2.User{}) {
		return nil
	}
	return user
}

// validateConsent parses the TCF string so malformed consent gets surfaced in the
// logs. The string is forwarded either way; enforcement is the exchange's call.
func validateConsent(consent string) {
	if _, err := vendorconsent.ParseString(consent); err != nil {
		glog.Warningf("invalid TCF consent string: %v", err)
	}
}

// buildRegs collects the regulatory signals. Returns nil when none apply so the
// request carries no empty regs object.
func buildRegs(request *adapters.BidderRequest) *openrtb2.Regs {
	regs := &openrtb2.Regs{}
	ext := openrtb_ext.ExtRegs{}
	hasExt := false

	if g := request.GDPR; g != nil && g.GDPRApplies != nil {
		applies := int8(0)
		if *g.GDPRApplies {
			applies = 1
		}
		ext.GDPR = &applies
		hasExt = true
	}

	if request.USPrivacy != "" {
		ext.USPrivacy = request.USPrivacy
		hasExt = true
	}

	if gpp := request.GPP; gpp != nil && gpp.GPPString != "" {
		regs.GPP = gpp.GPPString
		regs.GPPSID = gpp.ApplicableSections
	} else if request.Ortb2 != nil && request.Ortb2.Regs != nil {
		regs.GPP = request.Ortb2.Regs.GPP
		regs.GPPSID = request.Ortb2.Regs.GPPSID
	}

	if request.Config.COPPA {
		regs.COPPA = 1
	}

	if request.Ortb2 != nil && request.Ortb2.Regs != nil && len(request.Ortb2.Regs.Ext) > 0 {
		if dsa, t, _, err := jsonparser.Get(request.Ortb2.Regs.Ext, "dsa"); err == nil && t == jsonparser.Object {
			ext.DSA = append([]byte(nil), dsa...)
			hasExt = true
		}
	}

	if hasExt {
		if buf, err := json.Marshal(ext); err == nil {
			regs.Ext = buf
		}
	}

	if regs.COPPA == 0 && regs.GPP == "" && len(regs.GPPSID) == 0 && len(regs.Ext) == 0 {
		return nil
	}
	return regs
}

func buildSource(request *adapters.BidderRequest, conf *batchConf) *openrtb2.Source {
	var source *openrtb2.Source
	if request.Ortb2 != nil && request.Ortb2.Source != nil {
		source = ptrutil.Clone(request.Ortb2.Source)
	}

	if conf.schain != nil {
		if source == nil {
			source = &openrtb2.Source{}
		}
		if ext, err := json.Marshal(openrtb_ext.ExtSource{SChain: conf.schain}); err == nil {
			source.Ext = ext
		}
	}

	return source
}

func buildRequestExt(request *adapters.BidderRequest, conf *batchConf) json.RawMessage {
	wrapper := &openrtb_ext.ExtRequestWrapper{
		Wv:            adapters.Version,
		TransactionID: conf.transactionID,
		Wiid:          conf.wiid,
		Profile:       conf.profID,
		Version:       conf.verID,
	}
	if wrapper.Wiid == "" {
		wrapper.Wiid = request.AuctionID
	}

	ext := openrtb_ext.ExtRequestPubmatic{
		Wrapper: wrapper,
		ACat:    conf.acat,
		Epoch:   time.Now().UnixMilli(),
	}

	if abc := request.Config.AlternateBidderCodes; abc != nil && abc.Enabled {
		own := request.BidderCode
		if own == "" {
			own = bidderCode
		}
		ext.Marketplace = &openrtb_ext.ExtRequestMarketplace{
			AllowedBidders: allowedBidders(own, abc.AllowedBidderCodes),
		}
	}

	buf, err := json.Marshal(ext)
	if err != nil {
		logf("unable to marshal request ext: %v", err)
		return nil
	}
	return buf
}

// allowedBidders resolves the marketplace allow-list. An absent list or a "*" entry
// opens the request to all bidders.
func allowedBidders(bidderCode string, allowed []string) []string {
	if len(allowed) == 0 {
		return []string{"all"}
	}

	own := strings.ToLower(bidderCode)
	out := []string{own}
	seen := map[string]struct{}{own: {}}

	for _, code := range allowed {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "*" {
			return []string{"all"}
		}
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// primaryLanguage reduces a BCP 47 tag to its primary subtag.
func primaryLanguage(lang string) string {
	if i := strings.Index(lang, "-"); i >= 0 {
		return lang[:i]
	}
	return lang
}

func domainFromURL(pageURL string) string {
	if pageURL == "" {
		return ""
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := u.Host
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}
