// Package config loads freshledger settings from defaults, an optional YAML
// file and FRESHLEDGER_* environment variables, and builds the components
// those settings describe.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"freshledger/internal/blob"
	"freshledger/internal/core"
	"freshledger/internal/infra/persistence/sqlite"
	"freshledger/internal/pricing"
)

// EnvPrefix prefixes every environment override; "." in keys becomes "_".
const EnvPrefix = "FRESHLEDGER"

// DefaultFileName is searched for in the working directory when Load gets
// no explicit path.
const DefaultFileName = "freshledger.yaml"

// Config is the complete freshledger configuration.
type Config struct {
	Storage core.StorageConfig `mapstructure:"storage"`
	Blob    blob.Config        `mapstructure:"blob"`
	Pricing PricingConfig      `mapstructure:"pricing"`
	Index   IndexConfig        `mapstructure:"index"`
	Log     LogConfig          `mapstructure:"log"`
	Metrics MetricsConfig      `mapstructure:"metrics"`
}

// PricingConfig holds the shelf-life tier table.
type PricingConfig struct {
	Tiers []pricing.Tier `mapstructure:"tiers"`
}

// IndexConfig controls the lookup cache.
type IndexConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig selects the logger encoding and level.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// MetricsConfig names the Prometheus namespace.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.sqlite_path", sqlite.DefaultPath)
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.session_token", "")

	tiers := make([]map[string]any, 0, 3)
	for _, t := range pricing.DefaultTiers() {
		tiers = append(tiers, map[string]any{"min_days": t.MinDays, "price": t.Price})
	}
	v.SetDefault("pricing.tiers", tiers)
	v.SetDefault("index.cache_ttl", "0s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.namespace", core.DefaultMetricsNamespace)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. An explicit path must exist; with an empty path
// DefaultFileName in the working directory is used when present.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// WriteDefault writes the default settings as YAML to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	v := viper.New()
	setDefaults(v)
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown drivers, unusable tier tables and bad log settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "", core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	if _, err := pricing.NewEngine(c.Pricing.Tiers); err != nil {
		errs = append(errs, fmt.Errorf("pricing.tiers: %w", err))
	}
	if c.Index.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("index.cache_ttl: must not be negative, got %s", c.Index.CacheTTL))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// PriceEngine builds the tier engine from the configured table.
func (c Config) PriceEngine() (*pricing.Engine, error) {
	return pricing.NewEngine(c.Pricing.Tiers)
}

// Logger builds a zap logger: json uses the production preset, console the
// development preset. Output goes to stderr.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
