package audit

import (
	"time"

	"github.com/sells-group/price-audit/internal/vendor"
)

// Config tunes the retrieval pipeline.
type Config struct {
	MaxRetries int

	SearchURL            string
	SearchDomain         string
	ResultSelector       string
	ExcludedLinkPatterns []string
	// SearchRatePerSec throttles search navigations across all workers.
	// Zero disables the limiter.
	SearchRatePerSec float64

	SearchTimeout time.Duration
	VendorTimeout time.Duration
	FallbackWait  time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	PriceWait     time.Duration
	ClickTimeout  time.Duration
	Settle        time.Duration
	RetryBackoff  time.Duration

	BlockSelectors []string
	BlockPatterns  []string

	// Dismissals are the generic modal close strategies, tried in order.
	Dismissals []vendor.Locator
}

// DefaultConfig returns the pipeline settings used for production audits.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           2,
		SearchURL:            "https://www.bing.com/search?q=",
		SearchDomain:         "bing.com",
		ResultSelector:       ".b_algo a",
		ExcludedLinkPatterns: []string{"bing.com", "/chat", "/copilotsearch"},
		SearchTimeout:        15 * time.Second,
		VendorTimeout:        45 * time.Second,
		FallbackWait:         15 * time.Second,
		MinDelay:             time.Second,
		MaxDelay:             3 * time.Second,
		PriceWait:            5 * time.Second,
		ClickTimeout:         5 * time.Second,
		Settle:               3 * time.Second,
		RetryBackoff:         time.Second,
		BlockSelectors:       DefaultBlockSelectors(),
		BlockPatterns:        DefaultBlockPatterns(),
		Dismissals:           DefaultDismissals(),
	}
}

// DefaultDismissals returns the generic popup close strategies in priority
// order.
func DefaultDismissals() []vendor.Locator {
	return []vendor.Locator{
		{CSS: "div[class*='modal'], div[class*='popup'], div[class*='overlay'], div[id*='popup'], div[id*='modal']"},
		{CSS: "button", Text: "Continue", Partial: true},
		{CSS: "button[class*='close'], button[aria-label='Close'], a[class*='close']"},
		{CSS: "button[class*='dismiss'], button[id*='close'], button[class*='btn-close']"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.SearchURL == "" {
		c.SearchURL = d.SearchURL
	}
	if c.SearchDomain == "" {
		c.SearchDomain = d.SearchDomain
	}
	if c.ResultSelector == "" {
		c.ResultSelector = d.ResultSelector
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.VendorTimeout <= 0 {
		c.VendorTimeout = d.VendorTimeout
	}
	if c.PriceWait <= 0 {
		c.PriceWait = d.PriceWait
	}
	if c.ClickTimeout <= 0 {
		c.ClickTimeout = d.ClickTimeout
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}
