package config

import "time"

// Adapter holds the construction-time configuration for a bidder adapter.
type Adapter struct {
	// Endpoint is the bid endpoint. Adapters fall back to their well-known default
	// when empty.
	Endpoint string
}

// Analytics holds the configuration for the analytics modules.
type Analytics struct {
	Adnuntius AdnuntiusAnalytics
}

// AdnuntiusAnalytics configures the Adnuntius reporting module.
type AdnuntiusAnalytics struct {
	Enabled bool

	// Endpoint receives the per-auction JSON reports.
	Endpoint string

	// Timeout bounds each report delivery. Defaults to 2s when zero.
	Timeout time.Duration
}
