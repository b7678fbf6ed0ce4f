// Package config loads the migration run configuration from a YAML file and
// WOODLANDMIGRATE_* environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/loykin/woodlandmigrate/internal/auth/oauth2"
	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/legacy"
	"github.com/loykin/woodlandmigrate/internal/retry"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/util"
)

// EnvPrefix prefixes every environment override, e.g. WOODLANDMIGRATE_SOURCE_DSN.
const EnvPrefix = "WOODLANDMIGRATE"

type SourceConfig struct {
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	DSN      string        `mapstructure:"dsn" yaml:"dsn"`
	PageSize int           `mapstructure:"page_size" yaml:"page_size"`
	Tables   legacy.Tables `mapstructure:"tables" yaml:"tables"`
}

type TargetConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// BlobConfig points at the target blob store.
type BlobConfig struct {
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string"`
	Container        string `mapstructure:"container" yaml:"container"`
}

// LegacyFilesConfig points at the V1 document store.
type LegacyFilesConfig struct {
	ConnectionString string                         `mapstructure:"connection_string" yaml:"connection_string"`
	Container        string                         `mapstructure:"container" yaml:"container"`
	Insecure         bool                           `mapstructure:"insecure" yaml:"insecure"`
	Auth             oauth2.ClientCredentialsConfig `mapstructure:"auth" yaml:"auth"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
}

type MetricsConfig struct {
	// Addr enables the /metrics and /progress endpoint when set, e.g. ":9108".
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Config is the complete run configuration.
type Config struct {
	Source                 SourceConfig      `mapstructure:"source" yaml:"source"`
	Target                 TargetConfig      `mapstructure:"target" yaml:"target"`
	Blob                   BlobConfig        `mapstructure:"blob" yaml:"blob"`
	LegacyFiles            LegacyFilesConfig `mapstructure:"legacy_files" yaml:"legacy_files"`
	MaxDegreeOfParallelism int               `mapstructure:"max_degree_of_parallelism" yaml:"max_degree_of_parallelism"`
	ResumeAfter            int64             `mapstructure:"resume_after" yaml:"resume_after"`
	Retry                  retry.Config      `mapstructure:"retry" yaml:"retry"`
	AdminRoles             []string          `mapstructure:"admin_roles" yaml:"admin_roles"`
	Logging                LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics                MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// SourceStore returns the legacy database settings.
func (c Config) SourceStore() store.Config {
	return store.Config{Driver: c.Source.Driver, DSN: c.Source.DSN}
}

// TargetStore returns the target database settings.
func (c Config) TargetStore() store.Config {
	return store.Config{Driver: c.Target.Driver, DSN: c.Target.DSN}
}

// SetDefaults registers every key with its default so environment variables
// can override keys absent from the file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.driver", constants.DriverPostgresql)
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.page_size", constants.DefaultSourcePageSize)
	v.SetDefault("source.tables.users", constants.DefaultLegacyUsersTable)
	v.SetDefault("source.tables.owners", constants.DefaultLegacyOwnersTable)
	v.SetDefault("source.tables.documents", constants.DefaultLegacyDocumentsTable)
	v.SetDefault("target.driver", constants.DriverPostgresql)
	v.SetDefault("target.dsn", "")
	v.SetDefault("blob.connection_string", "")
	v.SetDefault("blob.container", constants.DefaultBlobContainer)
	v.SetDefault("legacy_files.connection_string", "")
	v.SetDefault("legacy_files.container", "")
	v.SetDefault("legacy_files.insecure", false)
	v.SetDefault("legacy_files.auth.header", "")
	v.SetDefault("legacy_files.auth.token_url", "")
	v.SetDefault("legacy_files.auth.client_id", "")
	v.SetDefault("legacy_files.auth.client_secret", "")
	v.SetDefault("legacy_files.auth.scopes", []string{})
	v.SetDefault("max_degree_of_parallelism", constants.DefaultMaxDegreeOfParallelism)
	v.SetDefault("resume_after", 0)
	v.SetDefault("retry.max_retries", constants.DefaultMaxRetries)
	v.SetDefault("retry.initial_delay", constants.DefaultInitialDelay)
	v.SetDefault("retry.max_delay", constants.DefaultMaxDelay)
	v.SetDefault("retry.backoff_factor", constants.DefaultBackoffFactor)
	v.SetDefault("admin_roles", constants.DefaultAdminRoles)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.addr", "")
}

// Load reads path (optional) into v and decodes the result. A nil v gets a
// fresh viper instance.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if p, ok := util.TrimEmptyCheck(path); ok {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, domain.FatalConfiguration("read config %s: %v", p, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, domain.FatalConfiguration("decode config: %v", err)
	}
	cfg.Retry = *cfg.Retry.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything needed before the first unit is touched.
func (c Config) Validate() error {
	if _, err := store.DialectFor(c.Source.Driver); err != nil {
		return domain.FatalConfiguration("source: %v", err)
	}
	if _, ok := util.TrimEmptyCheck(c.Source.DSN); !ok {
		return domain.FatalConfiguration("source.dsn is required")
	}
	if c.Source.PageSize <= 0 {
		return domain.FatalConfiguration("source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if err := c.Source.Tables.Validate(); err != nil {
		return domain.FatalConfiguration("source.tables: %v", err)
	}
	if _, err := store.DialectFor(c.Target.Driver); err != nil {
		return domain.FatalConfiguration("target: %v", err)
	}
	if _, ok := util.TrimEmptyCheck(c.Target.DSN); !ok {
		return domain.FatalConfiguration("target.dsn is required")
	}
	if _, ok := util.TrimEmptyCheck(c.Blob.ConnectionString); !ok {
		return domain.FatalConfiguration("blob.connection_string is required")
	}
	if _, ok := util.TrimEmptyCheck(c.LegacyFiles.ConnectionString); !ok {
		return domain.FatalConfiguration("legacy_files.connection_string is required")
	}
	if c.LegacyFiles.Auth.Enabled() {
		if err := c.LegacyFiles.Auth.Validate(); err != nil {
			return domain.FatalConfiguration("legacy_files.auth: %v", err)
		}
	}
	if c.MaxDegreeOfParallelism < 1 {
		return domain.FatalConfiguration("max_degree_of_parallelism must be at least 1, got %d", c.MaxDegreeOfParallelism)
	}
	if c.Retry.MaxRetries < 0 {
		return domain.FatalConfiguration("retry.max_retries must not be negative")
	}
	if c.ResumeAfter < 0 {
		return domain.FatalConfiguration("resume_after must not be negative")
	}
	if _, ok := common.ParseLogLevel(util.TrimAndLower(c.Logging.Level)); !ok {
		return domain.FatalConfiguration("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
	switch util.TrimAndLower(c.Logging.Format) {
	case "", "text", "json", "color", "colour":
	default:
		return domain.FatalConfiguration("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}
	return nil
}

// SetupLogging installs the configured logger as the global default.
func (c Config) SetupLogging(w io.Writer) (*common.Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	level, ok := common.ParseLogLevel(util.TrimAndLower(c.Logging.Level))
	if !ok {
		return nil, fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	format := util.TrimWithDefault(util.TrimAndLower(c.Logging.Format), "text")

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	common.EnableMasking(maskingEnabled)

	logger := common.NewLoggerWithWriter(w, level, format)
	common.SetDefaultLogger(logger)
	logger.Info("logging configured",
		"level", level.String(),
		"format", format,
		"mask_sensitive", maskingEnabled)
	return logger, nil
}

// RetryConfig returns a copy of the retry settings.
func (c Config) RetryConfig() *retry.Config {
	rc := c.Retry
	return rc.Normalize()
}
