package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/metro-datahub/catalog-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pregen   PregenConfig   `yaml:"pregen" mapstructure:"pregen"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Metadata MetadataConfig `yaml:"metadata" mapstructure:"metadata"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PregenConfig configures access to the pre-generated data files.
type PregenConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	Delimiter     string `yaml:"delimiter" mapstructure:"delimiter"`
	Charset       string `yaml:"charset" mapstructure:"charset"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// BatchConfig configures where debug-batch output folders live.
type BatchConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// MetadataConfig configures the default metadata file for `metadata load`.
type MetadataConfig struct {
	File string `yaml:"file" mapstructure:"file"`
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
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("pregen.dir", "pregen")
	v.SetDefault("pregen.delimiter", ",")
	v.SetDefault("pregen.max_concurrent", 4)
	v.SetDefault("batch.dir", "batches")
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

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if len([]rune(c.Pregen.Delimiter)) > 1 {
		return eris.Errorf("config: pregen.delimiter must be a single character, got %q", c.Pregen.Delimiter)
	}
	return nil
}

// DelimiterRune returns the configured pregen delimiter, defaulting to comma.
func (c *Config) DelimiterRune() rune {
	for _, r := range c.Pregen.Delimiter {
		return r
	}
	return ','
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
