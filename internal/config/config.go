// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup and passed into each component at construction; nothing mutates it
// afterwards.
type Config struct {
	Logger    LoggerConfig         `mapstructure:"logger" yaml:"logger"`
	HTTP      HTTPConfig           `mapstructure:"http" yaml:"http"`
	Session   SessionConfig        `mapstructure:"session" yaml:"session"`
	Browser   BrowserConfig        `mapstructure:"browser" yaml:"browser"`
	Intercept InterceptConfig      `mapstructure:"intercept" yaml:"intercept"`
	Extract   ExtractConfig        `mapstructure:"extract" yaml:"extract"`
	Export    ExportConfig         `mapstructure:"export" yaml:"export"`
	APIs      map[string]APIConfig `mapstructure:"apis" yaml:"apis"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// HTTPConfig tunes the direct API request path.
type HTTPConfig struct {
	BaseURL        string            `mapstructure:"base_url" yaml:"base_url"`
	Timeout        time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts    int               `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBaseDelay time.Duration     `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
}

// SessionConfig controls the cookie warm-up sequence performed before any
// API call is issued.
type SessionConfig struct {
	HomeURL      string            `mapstructure:"home_url" yaml:"home_url"`
	SearchURL    string            `mapstructure:"search_url" yaml:"search_url"`
	WarmupDelay  time.Duration     `mapstructure:"warmup_delay" yaml:"warmup_delay"`
	CookieDomain string            `mapstructure:"cookie_domain" yaml:"cookie_domain"`
	SeedCookies  map[string]string `mapstructure:"seed_cookies" yaml:"seed_cookies"`
}

// BrowserConfig holds settings for the headless browser fallback.
type BrowserConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	Width           int           `mapstructure:"width" yaml:"width"`
	Height          int           `mapstructure:"height" yaml:"height"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	PostLoadWait    time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Args            []string      `mapstructure:"args" yaml:"args"`
}

// InterceptConfig drives the captured-traffic matching in the network
// interception stage. Patterns are ordered most specific first; the broad
// fallbacks come last.
type InterceptConfig struct {
	PrimaryEndpoint string   `mapstructure:"primary_endpoint" yaml:"primary_endpoint"`
	Patterns        []string `mapstructure:"patterns" yaml:"patterns"`
}

// ExtractConfig configures the DOM scraping stage.
type ExtractConfig struct {
	Selectors        []string `mapstructure:"selectors" yaml:"selectors"`
	TitleSelectors   []string `mapstructure:"title_selectors" yaml:"title_selectors"`
	Limit            int      `mapstructure:"limit" yaml:"limit"`
	MaxTextLength    int      `mapstructure:"max_text_length" yaml:"max_text_length"`
	MaxJSONFragments int      `mapstructure:"max_json_fragments" yaml:"max_json_fragments"`
	LinkHost         string   `mapstructure:"link_host" yaml:"link_host"`
	ScreenshotDir    string   `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// ExportConfig configures the tabular sink.
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// APIConfig describes one target endpoint: its path, method, full parameter
// template, and the set of parameter names that must be supplied per call.
// Template values containing "{name}" are placeholders; they are validated
// against DynamicParams when the request spec is built.
type APIConfig struct {
	Path          string            `mapstructure:"path" yaml:"path"`
	Method        string            `mapstructure:"method" yaml:"method"`
	Params        map[string]string `mapstructure:"params" yaml:"params"`
	DynamicParams []string          `mapstructure:"dynamic_params" yaml:"dynamic_params"`
}

// SetDefaults initializes default values for all configuration parameters.
// The parameter template mirrors what a real browser sends on the search
// preview endpoint.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tokgrab")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- HTTP --
	v.SetDefault("http.base_url", "https://www.tiktok.com")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.retry_base_delay", "1s")
	v.SetDefault("http.headers", map[string]string{
		"accept":             "*/*",
		"accept-language":    "zh-CN,zh;q=0.9",
		"priority":           "u=1, i",
		"sec-ch-ua":          `"Google Chrome";v="137", "Chromium";v="137", "Not/A)Brand";v="24"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
		"sec-fetch-dest":     "empty",
		"sec-fetch-mode":     "cors",
		"sec-fetch-site":     "same-origin",
		"user-agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
	})

	// -- Session warm-up --
	v.SetDefault("session.home_url", "https://www.tiktok.com/")
	v.SetDefault("session.search_url", "https://www.tiktok.com/search")
	v.SetDefault("session.warmup_delay", "2s")
	v.SetDefault("session.cookie_domain", ".tiktok.com")
	v.SetDefault("session.seed_cookies", map[string]string{
		"tiktok_webapp_theme":        "light",
		"tiktok_webapp_theme_source": "auto",
	})

	// -- Browser --
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.page_load_timeout", "30s")
	v.SetDefault("browser.post_load_wait", "5s")

	// -- Intercept --
	v.SetDefault("intercept.primary_endpoint", "/api/search/general/preview/")
	v.SetDefault("intercept.patterns", []string{
		"/api/search/general/preview/",
		"/api/search/item/",
		"/api/search/",
		"/api/recommend/",
		"search",
	})

	// -- Extract --
	v.SetDefault("extract.selectors", []string{
		"[data-e2e='search-card-item']",
		"[data-e2e='search-video-item']",
		"[data-e2e*='search']",
		"div[class*='DivItemContainer']",
		"div[class*='video']",
		"a[href*='/video/']",
		"div[data-e2e]",
	})
	v.SetDefault("extract.title_selectors", []string{
		"h1", "h2", "h3", "[data-e2e*='title']", "strong", ".title",
	})
	v.SetDefault("extract.limit", 20)
	v.SetDefault("extract.max_text_length", 500)
	v.SetDefault("extract.max_json_fragments", 5)
	v.SetDefault("extract.link_host", "tiktok.com")
	v.SetDefault("extract.screenshot_dir", "debug")

	// -- Export --
	v.SetDefault("export.output_dir", "output")

	// -- APIs --
	v.SetDefault("apis.search_general_preview.path", "/api/search/general/preview/")
	v.SetDefault("apis.search_general_preview.method", "GET")
	v.SetDefault("apis.search_general_preview.dynamic_params", []string{"keyword"})
	v.SetDefault("apis.search_general_preview.params", map[string]string{
		"aid":                     "1988",
		"app_language":            "zh-Hans",
		"app_name":                "tiktok_web",
		"browser_language":        "zh-CN",
		"browser_name":            "Mozilla",
		"browser_online":          "true",
		"browser_platform":        "Win32",
		"browser_version":         "5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
		"channel":                 "tiktok_web",
		"cookie_enabled":          "true",
		"data_collection_enabled": "false",
		"device_platform":         "web_pc",
		"focus_state":             "true",
		"from_page":               "search",
		"history_len":             "3",
		"is_fullscreen":           "false",
		"is_page_visible":         "true",
		"keyword":                 "{keyword}",
		"os":                      "windows",
		"priority_region":         "",
		"referer":                 "https://www.google.com.hk/",
		"region":                  "JP",
		"root_referer":            "https://www.google.com.hk/",
		"screen_height":           "965",
		"screen_width":            "1715",
		"tz_name":                 "Asia/Shanghai",
		"user_is_login":           "false",
		"webcast_language":        "zh-Hans",
	})
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the built-in defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewFromViper creates a configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.HTTP.BaseURL == "" {
		return fmt.Errorf("http.base_url is required")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be a positive integer")
	}
	if c.HTTP.RetryBaseDelay < 0 {
		return fmt.Errorf("http.retry_base_delay must not be negative")
	}
	if c.Session.HomeURL == "" || c.Session.SearchURL == "" {
		return fmt.Errorf("session.home_url and session.search_url are required")
	}
	if c.Extract.Limit <= 0 {
		return fmt.Errorf("extract.limit must be a positive integer")
	}
	for name, api := range c.APIs {
		if api.Path == "" {
			return fmt.Errorf("apis.%s.path is required", name)
		}
		if api.Method == "" {
			return fmt.Errorf("apis.%s.method is required", name)
		}
	}
	return nil
}
