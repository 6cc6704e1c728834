// Package config loads CLI configuration from a YAML file, SWIPE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SWIPE_CACHE_DIR.
const EnvPrefix = "SWIPE"

// Config is the complete CLI configuration.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	State        StateConfig        `mapstructure:"state"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// CacheConfig sizes the image cache tiers.
type CacheConfig struct {
	// Dir holds the disk tier.
	Dir string `mapstructure:"dir" validate:"required"`

	// DiskSize is the disk tier budget. Accepts "250MB", "1GiB" or bytes.
	// Zero disables the limit.
	DiskSize ByteSize `mapstructure:"disk_size"`

	// MemorySize is the memory tier budget in decoded bytes.
	MemorySize ByteSize `mapstructure:"memory_size" validate:"gt=0"`

	// MemoryEntries caps the number of images held in memory. Zero disables
	// the count ceiling.
	MemoryEntries int `mapstructure:"memory_entries" validate:"gte=0"`
}

// FeedConfig controls the lookahead buffer.
type FeedConfig struct {
	TargetDepth int `mapstructure:"target_depth" validate:"gte=1,lte=100"`
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`

	// SizeHint is the longest image edge, in pixels, used when prefetching.
	// Zero keeps images at native size.
	SizeHint int `mapstructure:"size_hint" validate:"gte=0"`
}

// DiscoveryConfig points at the candidate source.
type DiscoveryConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`

	// RateLimit is the maximum requests per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"gte=0"`
}

// FetchConfig controls image downloads.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent"`
}

// StateConfig locates the decision database.
type StateConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// MetricsConfig enables the metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// ConnectivityConfig enables a reachability probe when ProbeAddr is set.
type ConnectivityConfig struct {
	ProbeAddr string        `mapstructure:"probe_addr" validate:"omitempty,hostname_port"`
	Interval  time.Duration `mapstructure:"interval" validate:"gte=0"`
}

// ByteSize is a size in bytes that decodes from human-readable strings.
type ByteSize uint64

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configPath (or the default config file if empty) into v,
// then decodes, completes and validates the result. A missing config file
// is not an error.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeHook(),
	)
}

func byteSizeHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("parse size %q: %w", v, err)
			}
			return ByteSize(n), nil
		case int:
			if v < 0 {
				return nil, fmt.Errorf("size %d is negative", v)
			}
			return ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("size %d is negative", v)
			}
			return ByteSize(v), nil
		case float64:
			if v < 0 {
				return nil, fmt.Errorf("size %v is negative", v)
			}
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
