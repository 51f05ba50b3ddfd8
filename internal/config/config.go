package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for the portal client.
type Config struct {
	Portal  PortalConfig  `mapstructure:"portal"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PortalConfig identifies the hosted REST backend.
type PortalConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// HTTPConfig holds transport settings.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetryConfig bounds the retry policy applied to idempotent reads.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// StorageConfig locates the local state store.
type StorageConfig struct {
	Directory string `mapstructure:"directory"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout", "15s")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "8s")

	v.SetDefault("storage.directory", ".tsp")
	v.SetDefault("storage.prefix", "tsp_")

	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", false)
}

// Load reads config.yaml from the given directory (or the working
// directory when empty), applies TSP_-prefixed environment overrides,
// and fills in defaults. A missing config file is not an error. The
// returned Watcher can re-read the file on change; callers that do
// not want hot reload simply drop it.
func Load(dir string) (*Config, *Watcher, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	setDefaults(v)

	v.SetEnvPrefix("TSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, &Watcher{v: v}, nil
}

// Validate checks the fields the client cannot run without.
func (c *Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is required (set TSP_PORTAL_URL or config.yaml)")
	}
	if c.Portal.Key == "" {
		return fmt.Errorf("portal.key is required (set TSP_PORTAL_KEY or config.yaml)")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// Watcher hangs off one Load call and re-reads that call's config
// file when it changes on disk.
type Watcher struct {
	v *viper.Viper
}

// OnChange starts watching and hands each valid rewrite to onChange.
// Unparseable rewrites are ignored; the previous config stays in
// effect.
func (w *Watcher) OnChange(onChange func(*Config)) {
	if onChange == nil {
		return
	}
	v := w.v
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
}
