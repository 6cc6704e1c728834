package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meigma/swipe"
	"github.com/meigma/swipe/discovery"
)

// Default values for keys not set in any source.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultDiskSize  = ByteSize(swipe.DefaultDiskCacheSize)
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("cache.dir", DefaultCacheDir())
	v.SetDefault("cache.disk_size", uint64(DefaultDiskSize))
	v.SetDefault("cache.memory_size", uint64(swipe.DefaultMemoryCacheCost))
	v.SetDefault("cache.memory_entries", swipe.DefaultMemoryCacheEntries)
	v.SetDefault("feed.target_depth", swipe.DefaultTargetDepth)
	v.SetDefault("feed.max_attempts", swipe.DefaultMaxAttempts)
	v.SetDefault("feed.size_hint", 0)
	v.SetDefault("discovery.endpoint", discovery.DefaultEndpoint)
	v.SetDefault("discovery.rate_limit", 0)
	v.SetDefault("discovery.burst", 1)
	v.SetDefault("fetch.timeout", swipe.DefaultFetchTimeout)
	v.SetDefault("fetch.user_agent", swipe.DefaultUserAgent)
	v.SetDefault("state.dir", DefaultStateDir())
	v.SetDefault("metrics.addr", "")
	v.SetDefault("connectivity.probe_addr", "")
	v.SetDefault("connectivity.interval", 10*time.Second)
}

// ApplyDefaults fills zero values that sources may have cleared and
// normalizes case-insensitive fields.
func ApplyDefaults(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = DefaultCacheDir()
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = DefaultStateDir()
	}
	if cfg.Discovery.Endpoint == "" {
		cfg.Discovery.Endpoint = discovery.DefaultEndpoint
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = swipe.DefaultUserAgent
	}
}

// ConfigDir returns the directory searched for config.yaml.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "swipe")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "swipe")
	}
	return ".swipe"
}

// DefaultCacheDir returns the default disk tier location.
func DefaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "swipe", "images")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "swipe", "images")
	}
	return filepath.Join(".swipe", "images")
}

// DefaultStateDir returns the default decision database location.
func DefaultStateDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "swipe")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "swipe")
	}
	return filepath.Join(".swipe", "state")
}
