package pubmatic

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/prebid/prebid-adapters/adapters"
)

const (
	iframeSyncURL = "https://ads.pubmatic.com/AdServer/js/user_sync.html?kdntuid=1&p="
	imageSyncURL  = "https://image8.pubmatic.com/AdServer/ImgSync?p="
)

// GetUserSyncs returns the user sync for the given consent state. The iframe sync is
// preferred when the publisher allows it, else the image pixel.
func (a *PubmaticAdapter) GetUserSyncs(options adapters.SyncOptions, publisherID string, gdpr *adapters.GDPRConsent, usPrivacy string, gpp *adapters.GPPConsent, coppa bool) []adapters.UserSync {
	var syncType, syncURL string
	switch {
	case options.IframeEnabled:
		syncType = adapters.SyncTypeIframe
		syncURL = iframeSyncURL + url.QueryEscape(publisherID)
	case options.PixelEnabled:
		syncType = adapters.SyncTypeImage
		syncURL = imageSyncURL + url.QueryEscape(publisherID)
	default:
		glog.Warning("Please enable iframe/pixel based user sync.")
		return nil
	}

	var params strings.Builder
	if gdpr != nil && gdpr.GDPRApplies != nil {
		applies := "0"
		if *gdpr.GDPRApplies {
			applies = "1"
		}
		params.WriteString("&gdpr=" + applies)
		params.WriteString("&gdpr_consent=" + url.QueryEscape(gdpr.ConsentString))
	}
	if usPrivacy != "" {
		params.WriteString("&us_privacy=" + url.QueryEscape(usPrivacy))
	}
	if coppa {
		params.WriteString("&coppa=1")
	}
	if gpp != nil && gpp.GPPString != "" && len(gpp.ApplicableSections) > 0 {
		params.WriteString("&gpp=" + url.QueryEscape(gpp.GPPString))
		sids := make([]string, len(gpp.ApplicableSections))
		for i, sid := range gpp.ApplicableSections {
			sids[i] = strconv.Itoa(int(sid))
		}
		params.WriteString("&gpp_sid=" + url.QueryEscape(strings.Join(sids, ",")))
	}

	return []adapters.UserSync{{Type: syncType, URL: syncURL + params.String()}}
}
