package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Map     MapConfig     `yaml:"map" mapstructure:"map"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// BackendConfig points at the index-generation service that serves the
// tract GeoJSON and computes new indices.
type BackendConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"` // 0 = no timeout
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"` // 0 = unthrottled
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// DatasetConfig configures local mode: when Path is set the dashboard reads
// tracts from disk instead of the backend and index generation is disabled.
type DatasetConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MapConfig configures the primary map.
type MapConfig struct {
	DefaultField string `yaml:"default_field" mapstructure:"default_field"`
	Width        int    `yaml:"width" mapstructure:"width"`
	Height       int    `yaml:"height" mapstructure:"height"`
}

// ExportConfig configures downloads.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
	// StatsPreference picks the slot whose race statistics are exported when
	// the caller does not name one and both slots carry statistics.
	StatsPreference string `yaml:"stats_preference" mapstructure:"stats_preference"`
	HistogramBins   int    `yaml:"histogram_bins" mapstructure:"histogram_bins"`
}

// ServerConfig configures the dashboard host.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	SessionTTLMins int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
	MaxSessions    int      `yaml:"max_sessions" mapstructure:"max_sessions"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("EQUITYMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.timeout_secs", 0)
	v.SetDefault("backend.rate_per_sec", 0)
	v.SetDefault("backend.user_agent", "equity-map/1.0")
	v.SetDefault("dataset.format", "geojson")
	v.SetDefault("map.default_field", "ndi_o")
	v.SetDefault("map.width", 1024)
	v.SetDefault("map.height", 768)
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.stats_preference", "activity")
	v.SetDefault("export.histogram_bins", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl_mins", 60)
	v.SetDefault("server.max_sessions", 50)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks the settings a command mode depends on. Mode is one of
// "serve", "render" or "generate".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		problems = append(problems, "map.width and map.height must be > 0")
	}
	switch c.Export.StatsPreference {
	case "activity", "residential":
	default:
		problems = append(problems, fmt.Sprintf("export.stats_preference %q must be activity or residential", c.Export.StatsPreference))
	}
	if c.Dataset.Path != "" {
		switch c.Dataset.Format {
		case "geojson", "shapefile":
		default:
			problems = append(problems, fmt.Sprintf("dataset.format %q must be geojson or shapefile", c.Dataset.Format))
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.MaxSessions <= 0 {
			problems = append(problems, "server.max_sessions must be > 0")
		}
		if c.Dataset.Path == "" && c.Backend.BaseURL == "" {
			problems = append(problems, "backend.base_url or dataset.path is required")
		}
	case "render":
		if c.Dataset.Path == "" && c.Backend.BaseURL == "" {
			problems = append(problems, "backend.base_url or dataset.path is required")
		}
	case "generate":
		if c.Backend.BaseURL == "" {
			problems = append(problems, "backend.base_url is required")
		}
		if c.Dataset.Path != "" {
			problems = append(problems, "index generation needs the backend; unset dataset.path")
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
