/*
Package config loads process configuration for the server and batch CLI.

PURPOSE:
  One Config struct for every knob: HTTP server, database, logging, the
  calculation policy and the validation thresholds. Nothing in the
  reserving or validation packages reads the environment directly.

LOAD ORDER:
  1. .env files (joho/godotenv), existing process variables are kept
  2. Defaults and LIC_* environment variables (kelseyhightower/envconfig)
  3. YAML file given by -config, when present; keys in the file win
  4. Struct tag validation (go-playground/validator)

ENVIRONMENT EXAMPLES:
  LIC_SERVER_PORT=8080
  LIC_DB_SQLITE_PATH=./data/lic.db
  LIC_LOGGING_LEVEL=debug
  LIC_RESERVING_VALUATION_YEAR=2024
  LIC_RESERVING_HORIZON=10
  LIC_VALIDATION_YOY_CHANGE_LIMIT=0.25

DECIMALS:
  Rates and thresholds are kept as strings here and parsed with
  shopspring/decimal by Policy() and Thresholds(), so config files never
  pass through float64.

SEE ALSO:
  - reserving/policy.go: Policy
  - validation/types.go: Thresholds
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/validation"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "LIC"

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"DB"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Reserving  ReservingConfig  `yaml:"reserving" envconfig:"RESERVING"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"*"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" default:"10485760" validate:"gt=0"`
}

// DatabaseConfig locates the run store.
type DatabaseConfig struct {
	// Not tagged PATH: envconfig falls back to the bare tag name.
	Path string `yaml:"path" envconfig:"SQLITE_PATH" default:"./data/lic.db" validate:"required"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	Format     string `yaml:"format" envconfig:"FORMAT" default:"text" validate:"oneof=text json"`
	File       string `yaml:"file" envconfig:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" default:"50" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" default:"3" validate:"gte=0"`
}

// ReservingConfig holds the calculation policy.
type ReservingConfig struct {
	ValuationYear    int    `yaml:"valuation_year" envconfig:"VALUATION_YEAR" default:"2024" validate:"gt=0"`
	Horizon          int    `yaml:"horizon" envconfig:"HORIZON" default:"0" validate:"gte=0"`
	MaxHorizon       int    `yaml:"max_horizon" envconfig:"MAX_HORIZON" default:"100" validate:"gte=0"`
	DefaultLDF       string `yaml:"default_ldf" envconfig:"DEFAULT_LDF" default:"1" validate:"numeric"`
	RequireLDF       bool   `yaml:"require_ldf" envconfig:"REQUIRE_LDF" default:"false"`
	PatternTolerance string `yaml:"pattern_tolerance" envconfig:"PATTERN_TOLERANCE" default:"0.000001" validate:"numeric"`
	StrictPattern    bool   `yaml:"strict_pattern" envconfig:"STRICT_PATTERN" default:"false"`
}

// ValidationConfig holds the check thresholds.
type ValidationConfig struct {
	ReconciliationTolerance string `yaml:"reconciliation_tolerance" envconfig:"RECONCILIATION_TOLERANCE" default:"1" validate:"numeric"`
	DiscountRatioMin        string `yaml:"discount_ratio_min" envconfig:"DISCOUNT_RATIO_MIN" default:"0.85" validate:"numeric"`
	DiscountRatioMax        string `yaml:"discount_ratio_max" envconfig:"DISCOUNT_RATIO_MAX" default:"1.05" validate:"numeric"`
	RABELRatioMin           string `yaml:"ra_bel_ratio_min" envconfig:"RA_BEL_RATIO_MIN" default:"0.05" validate:"numeric"`
	RABELRatioMax           string `yaml:"ra_bel_ratio_max" envconfig:"RA_BEL_RATIO_MAX" default:"0.30" validate:"numeric"`
	YoYChangeLimit          string `yaml:"yoy_change_limit" envconfig:"YOY_CHANGE_LIMIT" default:"0.20" validate:"numeric"`
}

// PathsConfig contains file system locations for the batch run.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output" validate:"required"`
}

// Load builds the configuration. configFile may be empty; envFiles that do
// not exist are skipped.
func Load(configFile string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.Thresholds(); err != nil {
		return err
	}
	return nil
}

// Policy returns the calculation policy.
func (c *Config) Policy() (reserving.Policy, error) {
	r := c.Reserving
	ldf, err := decimal.NewFromString(r.DefaultLDF)
	if err != nil {
		return reserving.Policy{}, fmt.Errorf("reserving.default_ldf: %w", err)
	}
	tol, err := decimal.NewFromString(r.PatternTolerance)
	if err != nil {
		return reserving.Policy{}, fmt.Errorf("reserving.pattern_tolerance: %w", err)
	}
	p := reserving.Policy{
		DefaultLDF:       ldf,
		RequireLDF:       r.RequireLDF,
		Horizon:          r.Horizon,
		MaxHorizon:       r.MaxHorizon,
		PatternTolerance: tol,
		StrictPattern:    r.StrictPattern,
	}
	return p, p.Validate()
}

// Thresholds returns the validation thresholds.
func (c *Config) Thresholds() (validation.Thresholds, error) {
	v := c.Validation
	var t validation.Thresholds
	for _, f := range []struct {
		name string
		src  string
		dst  *decimal.Decimal
	}{
		{"reconciliation_tolerance", v.ReconciliationTolerance, &t.ReconciliationTolerance},
		{"discount_ratio_min", v.DiscountRatioMin, &t.DiscountRatioMin},
		{"discount_ratio_max", v.DiscountRatioMax, &t.DiscountRatioMax},
		{"ra_bel_ratio_min", v.RABELRatioMin, &t.RABELRatioMin},
		{"ra_bel_ratio_max", v.RABELRatioMax, &t.RABELRatioMax},
		{"yoy_change_limit", v.YoYChangeLimit, &t.YoYChangeLimit},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return t, fmt.Errorf("validation.%s: %w", f.name, err)
		}
		*f.dst = d
	}

	if t.ReconciliationTolerance.IsNegative() || t.YoYChangeLimit.IsNegative() {
		return t, fmt.Errorf("validation: tolerance and yoy_change_limit must not be negative")
	}
	if t.DiscountRatioMin.GreaterThan(t.DiscountRatioMax) {
		return t, fmt.Errorf("validation: discount_ratio_min %s exceeds max %s", t.DiscountRatioMin, t.DiscountRatioMax)
	}
	if t.RABELRatioMin.GreaterThan(t.RABELRatioMax) {
		return t, fmt.Errorf("validation: ra_bel_ratio_min %s exceeds max %s", t.RABELRatioMin, t.RABELRatioMax)
	}
	return t, nil
}

// LoggerOptions maps the logging section onto logger.Options.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
	}
}
