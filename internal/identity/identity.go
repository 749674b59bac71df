// Package identity selects the browsing fingerprint each audit attempt
// opens its session with.
package identity

import (
	"strings"

	"github.com/sells-group/price-audit/internal/model"
)

const (
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	AlternateUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0"
	DefaultReferer     = "https://www.bing.com/"
)

// Config configures the identity provider.
type Config struct {
	DefaultUserAgent   string   `yaml:"default_user_agent" mapstructure:"default_user_agent"`
	AlternateUserAgent string   `yaml:"alternate_user_agent" mapstructure:"alternate_user_agent"`
	Referer            string   `yaml:"referer" mapstructure:"referer"`
	FingerprintVendors []string `yaml:"fingerprinting_vendors" mapstructure:"fingerprinting_vendors"`
}

// Provider returns identities as a pure function of vendor and attempt.
type Provider struct {
	primary     model.Identity
	alternate   model.Identity
	fingerprint []string
}

// New builds a Provider. Empty config values fall back to the defaults.
func New(cfg Config) *Provider {
	if cfg.DefaultUserAgent == "" {
		cfg.DefaultUserAgent = DefaultUserAgent
	}
	if cfg.AlternateUserAgent == "" {
		cfg.AlternateUserAgent = AlternateUserAgent
	}
	if cfg.Referer == "" {
		cfg.Referer = DefaultReferer
	}

	headers := baseHeaders(cfg.Referer)
	cookies := []model.Cookie{
		{Name: "acceptCookies", Value: "true"},
		{Name: "user_type", Value: "guest"},
	}

	var fp []string
	for _, v := range cfg.FingerprintVendors {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			fp = append(fp, v)
		}
	}

	return &Provider{
		primary:     model.NewIdentity(cfg.DefaultUserAgent, headers, cookies),
		alternate:   model.NewIdentity(cfg.AlternateUserAgent, headers, cookies),
		fingerprint: fp,
	}
}

// Identity returns the identity for the given vendor and zero-based attempt.
// Retries against vendors known to fingerprint aggressively switch to the
// alternate browser identity.
func (p *Provider) Identity(vendorDomain string, attempt int) model.Identity {
	if attempt > 0 && p.Fingerprints(vendorDomain) {
		return p.alternate
	}
	return p.primary
}

// Fingerprints reports whether the vendor is in the fingerprinting set.
func (p *Provider) Fingerprints(vendorDomain string) bool {
	d := strings.ToLower(vendorDomain)
	for _, v := range p.fingerprint {
		if strings.Contains(d, v) {
			return true
		}
	}
	return false
}

func baseHeaders(referer string) map[string]string {
	return map[string]string{
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Encoding":           "gzip, deflate, br",
		"Referer":                   referer,
		"Connection":                "keep-alive",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "cross-site",
		"Sec-Fetch-User":            "?1",
	}
}
