package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/price-audit/internal/audit"
	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/identity"
	"github.com/sells-group/price-audit/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    store.Config    `yaml:"store" mapstructure:"store"`
	Input    InputConfig     `yaml:"input" mapstructure:"input"`
	Output   OutputConfig    `yaml:"output" mapstructure:"output"`
	Audit    AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Browser  browser.Config  `yaml:"browser" mapstructure:"browser"`
	Identity identity.Config `yaml:"identity" mapstructure:"identity"`
	Vendors  VendorsConfig   `yaml:"vendors" mapstructure:"vendors"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the product catalog and approved vendor list.
type InputConfig struct {
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
	VendorsPath string `yaml:"vendors_path" mapstructure:"vendors_path"`
}

// OutputConfig controls where evidence and the audit log are written.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	ReportPath string `yaml:"report_path" mapstructure:"report_path"`
	// MarkupLabels lists evidence labels that also persist page markup.
	// Success evidence always does.
	MarkupLabels []string `yaml:"markup_labels" mapstructure:"markup_labels"`
}

// AuditConfig tunes the retrieval pipeline and worker pool.
type AuditConfig struct {
	MaxRetries           int      `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency          int      `yaml:"concurrency" mapstructure:"concurrency"`
	SearchURL            string   `yaml:"search_url" mapstructure:"search_url"`
	SearchDomain         string   `yaml:"search_domain" mapstructure:"search_domain"`
	ResultSelector       string   `yaml:"result_selector" mapstructure:"result_selector"`
	ExcludedLinkPatterns []string `yaml:"excluded_link_patterns" mapstructure:"excluded_link_patterns"`
	SearchRatePerSec     float64  `yaml:"search_rate_per_sec" mapstructure:"search_rate_per_sec"`
	SearchTimeoutSecs    int      `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	VendorTimeoutSecs    int      `yaml:"vendor_timeout_secs" mapstructure:"vendor_timeout_secs"`
	FallbackWaitSecs     int      `yaml:"fallback_wait_secs" mapstructure:"fallback_wait_secs"`
	MinDelayMs           int      `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs           int      `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	PriceWaitSecs        int      `yaml:"price_wait_secs" mapstructure:"price_wait_secs"`
	ClickTimeoutSecs     int      `yaml:"click_timeout_secs" mapstructure:"click_timeout_secs"`
	SettleSecs           int      `yaml:"settle_secs" mapstructure:"settle_secs"`
	RetryBackoffMs       int      `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BlockSelectors       []string `yaml:"block_selectors" mapstructure:"block_selectors"`
	BlockPatterns        []string `yaml:"block_patterns" mapstructure:"block_patterns"`
}

// Pipeline converts the file representation into the auditor's settings.
func (a AuditConfig) Pipeline() audit.Config {
	secs := func(n int) time.Duration { return time.Duration(n) * time.Second }
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	cfg := audit.Config{
		MaxRetries:           a.MaxRetries,
		SearchURL:            a.SearchURL,
		SearchDomain:         a.SearchDomain,
		ResultSelector:       a.ResultSelector,
		ExcludedLinkPatterns: a.ExcludedLinkPatterns,
		SearchRatePerSec:     a.SearchRatePerSec,
		SearchTimeout:        secs(a.SearchTimeoutSecs),
		VendorTimeout:        secs(a.VendorTimeoutSecs),
		FallbackWait:         secs(a.FallbackWaitSecs),
		MinDelay:             ms(a.MinDelayMs),
		MaxDelay:             ms(a.MaxDelayMs),
		PriceWait:            secs(a.PriceWaitSecs),
		ClickTimeout:         secs(a.ClickTimeoutSecs),
		Settle:               secs(a.SettleSecs),
		RetryBackoff:         ms(a.RetryBackoffMs),
		BlockSelectors:       a.BlockSelectors,
		BlockPatterns:        a.BlockPatterns,
		Dismissals:           audit.DefaultDismissals(),
	}
	if len(cfg.BlockSelectors) == 0 {
		cfg.BlockSelectors = audit.DefaultBlockSelectors()
	}
	if len(cfg.BlockPatterns) == 0 {
		cfg.BlockPatterns = audit.DefaultBlockPatterns()
	}
	return cfg
}

// VendorsConfig locates an optional vendor profile file.
type VendorsConfig struct {
	ProfilesPath string `yaml:"profiles_path" mapstructure:"profiles_path"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICEAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	pipeline := audit.DefaultConfig()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "audit.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("input.catalog_path", "")
	v.SetDefault("input.vendors_path", "")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.report_path", "output/audit_log.xlsx")
	v.SetDefault("output.markup_labels", []string{"blocked", "debug", "error"})
	v.SetDefault("audit.max_retries", pipeline.MaxRetries)
	v.SetDefault("audit.concurrency", 2)
	v.SetDefault("audit.search_url", pipeline.SearchURL)
	v.SetDefault("audit.search_domain", pipeline.SearchDomain)
	v.SetDefault("audit.result_selector", pipeline.ResultSelector)
	v.SetDefault("audit.excluded_link_patterns", pipeline.ExcludedLinkPatterns)
	v.SetDefault("audit.search_rate_per_sec", 0)
	v.SetDefault("audit.search_timeout_secs", 15)
	v.SetDefault("audit.vendor_timeout_secs", 45)
	v.SetDefault("audit.fallback_wait_secs", 15)
	v.SetDefault("audit.min_delay_ms", 1000)
	v.SetDefault("audit.max_delay_ms", 3000)
	v.SetDefault("audit.price_wait_secs", 5)
	v.SetDefault("audit.click_timeout_secs", 5)
	v.SetDefault("audit.settle_secs", 3)
	v.SetDefault("audit.retry_backoff_ms", 1000)
	v.SetDefault("audit.block_selectors", pipeline.BlockSelectors)
	v.SetDefault("audit.block_patterns", pipeline.BlockPatterns)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("identity.default_user_agent", identity.DefaultUserAgent)
	v.SetDefault("identity.alternate_user_agent", identity.AlternateUserAgent)
	v.SetDefault("identity.referer", identity.DefaultReferer)
	v.SetDefault("identity.fingerprinting_vendors", []string{"lowes.com"})
	v.SetDefault("vendors.profiles_path", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "audit":
		if c.Input.CatalogPath == "" {
			errs = append(errs, "input.catalog_path is required")
		}
		if c.Input.VendorsPath == "" {
			errs = append(errs, "input.vendors_path is required")
		}
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
		if c.Audit.Concurrency < 1 {
			errs = append(errs, "audit.concurrency must be at least 1")
		}
		if c.Audit.MaxRetries < 1 {
			errs = append(errs, "audit.max_retries must be at least 1")
		}
		if c.Audit.MaxDelayMs < c.Audit.MinDelayMs {
			errs = append(errs, "audit.max_delay_ms must not be below audit.min_delay_ms")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case "runs":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
