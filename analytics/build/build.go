// Package build assembles the analytics runner from config.
package build

import (
	"net/http"

	"github.com/prebid/prebid-adapters/analytics"
	"github.com/prebid/prebid-adapters/analytics/adnuntius"
	"github.com/prebid/prebid-adapters/config"
)

// New builds a runner over the modules the config enables. A config with nothing
// enabled yields a runner that drops every event.
func New(cfg *config.Analytics, httpClient *http.Client) (*analytics.Runner, error) {
	var modules []analytics.Module

	if cfg.Adnuntius.Enabled {
		module, err := adnuntius.NewModule(cfg.Adnuntius, httpClient)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}

	return analytics.NewRunner(modules...), nil
}
