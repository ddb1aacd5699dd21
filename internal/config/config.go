package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Region  RegionConfig  `yaml:"region" mapstructure:"region"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the geocode cache database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the external geocoding provider.
type GeocodeConfig struct {
	Provider            string  `yaml:"provider" mapstructure:"provider"`
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
	GoogleAPIKey        string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	TigerDatabaseURL    string  `yaml:"tiger_database_url" mapstructure:"tiger_database_url"`
	TigerMaxRating      int     `yaml:"tiger_max_rating" mapstructure:"tiger_max_rating"`
	MinIntervalMS       int     `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"` // 0 disables
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// MinInterval is the gate spacing between provider calls.
func (c GeocodeConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMS) * time.Millisecond
}

// Timeout is the per-request HTTP timeout.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BreakerCooldown is how long an open provider breaker rejects calls.
func (c GeocodeConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSecs) * time.Second
}

// RegionConfig describes the target metro area.
type RegionConfig struct {
	Name          string   `yaml:"name" mapstructure:"name"`
	Suffix        string   `yaml:"suffix" mapstructure:"suffix"`
	MinLat        float64  `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat        float64  `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon        float64  `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon        float64  `yaml:"max_lon" mapstructure:"max_lon"`
	Markers       []string `yaml:"markers" mapstructure:"markers"`
	StripSuffixes []string `yaml:"strip_suffixes" mapstructure:"strip_suffixes"`
}

// Build converts the config into a geocode.Region.
func (c RegionConfig) Build() geocode.Region {
	r := geocode.NewRegion(c.Name, c.Suffix, c.MinLat, c.MaxLat, c.MinLon, c.MaxLon, c.Markers...)
	r.StripSuffixes = c.StripSuffixes
	return r
}

// BatchConfig configures concurrent resolution.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
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
	v.SetEnvPrefix("INCIDENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	sd := geocode.SanDiego()
	minLat, maxLat, minLon, maxLon := sd.Bounds()

	// Defaults. Every key gets one so AutomaticEnv can override it.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "geocode_cache.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("geocode.provider", "nominatim")
	v.SetDefault("geocode.base_url", "")
	v.SetDefault("geocode.user_agent", "incident_geocoder")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.tiger_database_url", "")
	v.SetDefault("geocode.tiger_max_rating", geocode.DefaultTigerMaxRating)
	v.SetDefault("geocode.min_interval_ms", int(geocode.DefaultMinInterval/time.Millisecond))
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.requests_per_second", 1.0)
	v.SetDefault("geocode.breaker_threshold", 5)
	v.SetDefault("geocode.breaker_cooldown_secs", 60)
	v.SetDefault("region.name", sd.Name)
	v.SetDefault("region.suffix", sd.Suffix)
	v.SetDefault("region.min_lat", minLat)
	v.SetDefault("region.max_lat", maxLat)
	v.SetDefault("region.min_lon", minLon)
	v.SetDefault("region.max_lon", maxLon)
	v.SetDefault("region.markers", sd.Markers)
	v.SetDefault("region.strip_suffixes", sd.StripSuffixes)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Modes: "resolve"
// (anything that calls the provider) and "cache" (store only).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "cache":
	case "resolve":
		errs = append(errs, c.validateGeocode()...)
		errs = append(errs, c.validateRegion()...)
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
			errs = append(errs, "batch.concurrency must be between 1 and 50")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateGeocode() []string {
	var errs []string
	g := c.Geocode
	switch g.Provider {
	case "nominatim", "census":
	case "google":
		if g.GoogleAPIKey == "" {
			errs = append(errs, "geocode.google_api_key is required for the google provider")
		}
	case "tiger":
		if g.TigerDatabaseURL == "" {
			errs = append(errs, "geocode.tiger_database_url is required for the tiger provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("geocode.provider %q is not supported", g.Provider))
	}
	if g.MinIntervalMS < 0 {
		errs = append(errs, "geocode.min_interval_ms must be >= 0")
	}
	if g.TimeoutSecs <= 0 {
		errs = append(errs, "geocode.timeout_secs must be > 0")
	}
	if g.BreakerThreshold < 0 {
		errs = append(errs, "geocode.breaker_threshold must be >= 0")
	}
	return errs
}

func (c *Config) validateRegion() []string {
	var errs []string
	r := c.Region
	if r.MinLat >= r.MaxLat || r.MinLat < -90 || r.MaxLat > 90 {
		errs = append(errs, "region latitude bounds are invalid")
	}
	if r.MinLon >= r.MaxLon || r.MinLon < -180 || r.MaxLon > 180 {
		errs = append(errs, "region longitude bounds are invalid")
	}
	if len(r.Markers) == 0 {
		errs = append(errs, "region.markers must not be empty")
	}
	return errs
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
