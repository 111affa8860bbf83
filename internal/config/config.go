package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeocodeConfig configures the Nominatim client and the depot heuristic.
type GeocodeConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	City        string  `yaml:"city" mapstructure:"city"`
	Country     string  `yaml:"country" mapstructure:"country"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	DepotLat    float64 `yaml:"depot_lat" mapstructure:"depot_lat"`
	DepotLon    float64 `yaml:"depot_lon" mapstructure:"depot_lon"`
	ThresholdM  float64 `yaml:"threshold_m" mapstructure:"threshold_m"`
}

// RegistryConfig configures the CVR registry client.
type RegistryConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Country     string  `yaml:"country" mapstructure:"country"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SyncConfig configures the input side of a sync run.
type SyncConfig struct {
	Input      string `yaml:"input" mapstructure:"input"`
	Format     string `yaml:"format" mapstructure:"format"` // csv or sections
	Charset    string `yaml:"charset" mapstructure:"charset"`
	CaseStatus string `yaml:"case_status" mapstructure:"case_status"`
	MaxCases   int    `yaml:"max_cases" mapstructure:"max_cases"`
}

// BreakerConfig configures the circuit breakers around outbound services.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures post-run alerting and run metrics.
type MonitoringConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	SkipRateThreshold float64 `yaml:"skip_rate_threshold" mapstructure:"skip_rate_threshold"`
	MinCases          int     `yaml:"min_cases" mapstructure:"min_cases"`
	MetricsFile       string  `yaml:"metrics_file" mapstructure:"metrics_file"`
	PushgatewayURL    string  `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	MetricsJob        string  `yaml:"metrics_job" mapstructure:"metrics_job"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HENSTILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "henstillinger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.city", "Aarhus")
	v.SetDefault("geocode.country", "Denmark")
	v.SetDefault("geocode.user_agent", "AarhusRoutePlanner/1.0 (aarhuskommune.dk)")
	v.SetDefault("geocode.timeout_secs", 5)
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.depot_lat", 56.161147)
	v.SetDefault("geocode.depot_lon", 10.13455)
	v.SetDefault("geocode.threshold_m", 100.0)
	v.SetDefault("registry.enabled", true)
	v.SetDefault("registry.base_url", "https://cvrapi.dk")
	v.SetDefault("registry.country", "dk")
	v.SetDefault("registry.user_agent", "Henstillinger AAK")
	v.SetDefault("registry.timeout_secs", 5)
	v.SetDefault("registry.rate_limit", 2.0)
	v.SetDefault("registry.max_attempts", 2)
	v.SetDefault("sync.format", "csv")
	v.SetDefault("sync.charset", "windows-1252")
	v.SetDefault("sync.case_status", "Henstilling til oppfølging")
	v.SetDefault("sync.max_cases", 5000)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 60)
	v.SetDefault("monitoring.skip_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_cases", 5)
	v.SetDefault("monitoring.metrics_job", "henstilling_sync")

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

// Validate checks the settings a command mode depends on. Modes: "sync",
// "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "store":
		checkStore()
	case "sync":
		checkStore()
		if c.Sync.Input == "" {
			problems = append(problems, "sync.input is required")
		}
		switch c.Sync.Format {
		case "csv", "sections":
		default:
			problems = append(problems, "sync.format must be csv or sections")
		}
		if c.Sync.MaxCases < 0 {
			problems = append(problems, "sync.max_cases must be >= 0")
		}
		if c.Geocode.Enabled {
			if c.Geocode.UserAgent == "" {
				problems = append(problems, "geocode.user_agent is required when geocoding is enabled")
			}
			if c.Geocode.TimeoutSecs <= 0 {
				problems = append(problems, "geocode.timeout_secs must be > 0")
			}
			if c.Geocode.RateLimit <= 0 {
				problems = append(problems, "geocode.rate_limit must be > 0")
			}
		}
		if c.Geocode.ThresholdM <= 0 {
			problems = append(problems, "geocode.threshold_m must be > 0")
		}
		if c.Registry.Enabled {
			if c.Registry.MaxAttempts < 1 {
				problems = append(problems, "registry.max_attempts must be >= 1")
			}
			if c.Registry.TimeoutSecs <= 0 {
				problems = append(problems, "registry.timeout_secs must be > 0")
			}
			if c.Registry.RateLimit <= 0 {
				problems = append(problems, "registry.rate_limit must be > 0")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
