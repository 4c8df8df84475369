package config

import (
	"fmt"
	"sort"
	"time"
)

type Config struct {
	Websites      map[string]*SiteProfile `yaml:"websites" json:"websites"`
	SiteOrder     []string                `yaml:"site_order" json:"site_order"`
	Settings      Settings                `yaml:"settings" json:"settings"`
	Browser       BrowserConfig           `yaml:"browser" json:"browser"`
	Storage       StorageConfig           `yaml:"storage" json:"storage"`
	Observability ObservabilityConfig     `yaml:"observability" json:"observability"`
}

// Settings: глобальные параметры таймингов. Имена ключей совпадают со старым coupon_config.json.
type Settings struct {
	MaxRetries                    int     `yaml:"max_retries" json:"max_retries"`
	MaxBackoffTime                float64 `yaml:"max_backoff_time" json:"max_backoff_time"`
	RandomDelayMin                float64 `yaml:"random_delay_min" json:"random_delay_min"`
	RandomDelayMax                float64 `yaml:"random_delay_max" json:"random_delay_max"`
	ScrollPauseTime               float64 `yaml:"scroll_pause_time" json:"scroll_pause_time"`
	ScrollIncrement               int     `yaml:"scroll_increment" json:"scroll_increment"`
	LoadMoreMaxAttempts           int     `yaml:"load_more_max_attempts" json:"load_more_max_attempts"`
	SlowStart                     bool    `yaml:"slow_start" json:"slow_start"`
	AccelerationThreshold         int     `yaml:"acceleration_threshold" json:"acceleration_threshold"`
	AdaptiveDelay                 bool    `yaml:"adaptive_delay" json:"adaptive_delay"`
	EnableRateLimitDetection      bool    `yaml:"enable_rate_limit_detection" json:"enable_rate_limit_detection"`
	ManualRateLimitConfirmation   bool    `yaml:"manual_rate_limit_confirmation" json:"manual_rate_limit_confirmation"`
	RateLimitThreshold            int     `yaml:"rate_limit_threshold" json:"rate_limit_threshold"`
	RateLimitCheckMainContentOnly bool    `yaml:"rate_limit_check_main_content_only" json:"rate_limit_check_main_content_only"`
	RateLimitBackoffFactor        float64 `yaml:"rate_limit_backoff_factor" json:"rate_limit_backoff_factor"`
	BackoffJitterPct              int     `yaml:"backoff_jitter_pct" json:"backoff_jitter_pct"`
	FastScroll                    bool    `yaml:"fast_scroll" json:"fast_scroll"`
	EnableRapidMode               bool    `yaml:"enable_rapid_mode" json:"enable_rapid_mode"`
	ForceRateLimitChecks          bool    `yaml:"force_rate_limit_checks" json:"force_rate_limit_checks"`
	MaxRecoveryAttempts           int     `yaml:"max_recovery_attempts" json:"max_recovery_attempts"`
	ConnectionCheckInterval       int     `yaml:"connection_check_interval" json:"connection_check_interval"`
	RapidModeMinDelay             float64 `yaml:"rapid_mode_min_delay" json:"rapid_mode_min_delay"`
	RapidModeMaxDelay             float64 `yaml:"rapid_mode_max_delay" json:"rapid_mode_max_delay"`
	MaxClicksPerMinute            int     `yaml:"max_clicks_per_minute" json:"max_clicks_per_minute"`
}

type BrowserConfig struct {
	DebugAddress string `yaml:"debug_address" json:"debug_address"`
	DebugPort    int    `yaml:"debug_port" json:"debug_port"`
	ChromePath   string `yaml:"chrome_path" json:"chrome_path"`
	UserDataDir  string `yaml:"user_data_dir" json:"user_data_dir"`
	PageTimeoutS int    `yaml:"page_timeout_s" json:"page_timeout_s"`
	LaunchWaitS  int    `yaml:"launch_wait_s" json:"launch_wait_s"`
}

type StorageConfig struct {
	Driver           string `yaml:"driver" json:"driver"`
	Path             string `yaml:"path" json:"path"`
	DSN              string `yaml:"dsn" json:"dsn"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms" json:"command_timeout_ms"`
}

type ObservabilityConfig struct {
	LogPath       string `yaml:"log_path" json:"log_path"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups" json:"log_max_backups"`
	Console       bool   `yaml:"console" json:"console"`
}

// Validation
func (c *Config) Validate() error {
	if len(c.Websites) == 0 {
		return fmt.Errorf("websites must contain at least one site")
	}
	for key, site := range c.Websites {
		if site == nil {
			return fmt.Errorf("websites.%s is empty", key)
		}
		if site.URL == "" {
			return fmt.Errorf("websites.%s.url is required", key)
		}
		if len(ParseSelectors(site.CouponButtonSelector)) == 0 {
			return fmt.Errorf("websites.%s.coupon_button_selector is required", key)
		}
		if lo, hi := site.SiteSpecificSettings.MinDelayOverride, site.SiteSpecificSettings.MaxDelayOverride; lo != nil && hi != nil && *lo > *hi {
			return fmt.Errorf("websites.%s: min_delay_override must be <= max_delay_override", key)
		}
	}
	for _, key := range c.SiteOrder {
		if _, ok := c.Websites[key]; !ok {
			return fmt.Errorf("site_order references unknown site: %s", key)
		}
	}

	s := c.Settings
	if s.MaxRetries <= 0 {
		return fmt.Errorf("settings.max_retries must be > 0")
	}
	if s.RandomDelayMin < 0 || s.RandomDelayMax < 0 {
		return fmt.Errorf("settings.random_delay_min/max must be >= 0")
	}
	if s.RandomDelayMin > s.RandomDelayMax {
		return fmt.Errorf("settings.random_delay_min must be <= settings.random_delay_max")
	}
	if s.RapidModeMinDelay > s.RapidModeMaxDelay {
		return fmt.Errorf("settings.rapid_mode_min_delay must be <= settings.rapid_mode_max_delay")
	}
	if s.MaxBackoffTime < 1 {
		return fmt.Errorf("settings.max_backoff_time must be >= 1")
	}
	if s.RateLimitBackoffFactor < 1 {
		return fmt.Errorf("settings.rate_limit_backoff_factor must be >= 1")
	}
	if s.BackoffJitterPct < 0 || s.BackoffJitterPct > 100 {
		return fmt.Errorf("settings.backoff_jitter_pct must be between 0 and 100")
	}
	if s.RateLimitThreshold <= 0 {
		return fmt.Errorf("settings.rate_limit_threshold must be > 0")
	}
	if s.ScrollIncrement <= 0 {
		return fmt.Errorf("settings.scroll_increment must be > 0")
	}
	if s.LoadMoreMaxAttempts < 0 {
		return fmt.Errorf("settings.load_more_max_attempts must be >= 0")
	}
	if s.ConnectionCheckInterval <= 0 {
		return fmt.Errorf("settings.connection_check_interval must be > 0")
	}
	if s.MaxRecoveryAttempts <= 0 {
		return fmt.Errorf("settings.max_recovery_attempts must be > 0")
	}
	if s.MaxClicksPerMinute < 0 {
		return fmt.Errorf("settings.max_clicks_per_minute must be >= 0")
	}

	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("browser.debug_port must be between 1 and 65535")
	}
	if c.Browser.PageTimeoutS <= 0 {
		return fmt.Errorf("browser.page_timeout_s must be > 0")
	}
	if c.Browser.LaunchWaitS < 0 {
		return fmt.Errorf("browser.launch_wait_s must be >= 0")
	}

	switch c.Storage.Driver {
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case "mssql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver 'mssql'")
		}
		if c.Storage.CommandTimeoutMS <= 0 {
			return fmt.Errorf("storage.command_timeout_ms must be > 0")
		}
	default:
		return fmt.Errorf("storage.driver must be 'file', 'sqlite' or 'mssql'")
	}

	if c.Observability.LogPath == "" {
		return fmt.Errorf("observability.log_path is required")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("observability.log_level is required")
	}
	return nil
}

// SiteKeys возвращает порядок сайтов для меню: site_order либо по алфавиту.
func (c *Config) SiteKeys() []string {
	if len(c.SiteOrder) > 0 {
		keys := make([]string, 0, len(c.SiteOrder))
		seen := make(map[string]bool, len(c.SiteOrder))
		for _, k := range c.SiteOrder {
			if _, ok := c.Websites[k]; ok && !seen[k] {
				keys = append(keys, k)
				seen[k] = true
			}
		}
		// Сайты, не упомянутые в site_order, идут в конце
		var rest []string
		for k := range c.Websites {
			if !seen[k] {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		return append(keys, rest...)
	}

	keys := make([]string, 0, len(c.Websites))
	for k := range c.Websites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Site возвращает профиль сайта по ключу.
func (c *Config) Site(key string) (*SiteProfile, bool) {
	site, ok := c.Websites[key]
	return site, ok
}

// Getters
func (c *Config) GetPageTimeout() time.Duration {
	return time.Duration(c.Browser.PageTimeoutS) * time.Second
}

func (c *Config) GetLaunchWait() time.Duration {
	return time.Duration(c.Browser.LaunchWaitS) * time.Second
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Storage.CommandTimeoutMS) * time.Millisecond
}

func (c *Config) GetDebugAddress() string {
	return fmt.Sprintf("%s:%d", c.Browser.DebugAddress, c.Browser.DebugPort)
}

func (s Settings) GetMaxBackoff() time.Duration {
	return Seconds(s.MaxBackoffTime)
}

func (s Settings) GetScrollPause() time.Duration {
	return Seconds(s.ScrollPauseTime)
}

// Seconds переводит дробные секунды из конфига в time.Duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
