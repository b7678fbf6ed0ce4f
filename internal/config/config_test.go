package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/domain"
)

const sampleYAML = `source:
  driver: sqlite
  dsn: "file:legacy.db"
  page_size: 250
  tables:
    owners: v1_owners
target:
  driver: postgresql
  dsn: "postgres://migrator:secret@db:5432/v2"
blob:
  connection_string: "s3://?region=eu-west-2&path_style=true"
legacy_files:
  connection_string: "https://legacy.example/files"
  auth:
    token_url: "https://idp.example/token"
    client_id: migrator
    client_secret: s3cret
    scopes: [files.read]
max_degree_of_parallelism: 4
retry:
  max_retries: 5
  initial_delay: 50ms
  max_delay: 2s
  backoff_factor: 3
admin_roles: [administrator]
logging:
  level: debug
  format: json
metrics:
  addr: ":9108"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Source.Driver)
	assert.Equal(t, 250, cfg.Source.PageSize)
	assert.Equal(t, "v1_owners", cfg.Source.Tables.Owners)
	assert.Equal(t, "users", cfg.Source.Tables.Users)
	assert.Equal(t, "postgresql", cfg.TargetStore().Driver)
	assert.Equal(t, "woodland-owner-files", cfg.Blob.Container)
	assert.Equal(t, "migrator", cfg.LegacyFiles.Auth.ClientID)
	assert.Equal(t, []string{"files.read"}, cfg.LegacyFiles.Auth.Scopes)
	assert.Equal(t, 4, cfg.MaxDegreeOfParallelism)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 3.0, cfg.Retry.BackoffFactor)
	assert.NotEmpty(t, cfg.Retry.RetryableErrors)
	assert.Equal(t, []string{"administrator"}, cfg.AdminRoles)
	assert.Equal(t, ":9108", cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WOODLANDMIGRATE_SOURCE_DSN", "file:other.db")
	t.Setenv("WOODLANDMIGRATE_MAX_DEGREE_OF_PARALLELISM", "32")
	t.Setenv("WOODLANDMIGRATE_RETRY_INITIAL_DELAY", "10ms")
	t.Setenv("WOODLANDMIGRATE_ADMIN_ROLES", "admin,fc_admin")

	cfg, err := Load(viper.New(), writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "file:other.db", cfg.Source.DSN)
	assert.Equal(t, 32, cfg.MaxDegreeOfParallelism)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, []string{"admin", "fc_admin"}, cfg.AdminRoles)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("WOODLANDMIGRATE_SOURCE_DSN", "postgres://v1")
	t.Setenv("WOODLANDMIGRATE_TARGET_DSN", "postgres://v2")
	t.Setenv("WOODLANDMIGRATE_BLOB_CONNECTION_STRING", "mem://")
	t.Setenv("WOODLANDMIGRATE_LEGACY_FILES_CONNECTION_STRING", "file:///legacy")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "postgresql", cfg.Source.Driver)
	assert.Equal(t, 500, cfg.Source.PageSize)
	assert.Equal(t, 16, cfg.MaxDegreeOfParallelism)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.False(t, cfg.LegacyFiles.Auth.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFatalConfigurationError)
}

func validConfig() Config {
	return Config{
		Source:                 SourceConfig{Driver: "sqlite", DSN: "file:a.db", PageSize: 10},
		Target:                 TargetConfig{Driver: "sqlite", DSN: "file:b.db"},
		Blob:                   BlobConfig{ConnectionString: "mem://"},
		LegacyFiles:            LegacyFilesConfig{ConnectionString: "mem://"},
		MaxDegreeOfParallelism: 1,
		Logging:                LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown source driver", func(c *Config) { c.Source.Driver = "oracle" }, "source"},
		{"missing source dsn", func(c *Config) { c.Source.DSN = " " }, "source.dsn"},
		{"zero page size", func(c *Config) { c.Source.PageSize = 0 }, "page_size"},
		{"bad table", func(c *Config) { c.Source.Tables.Users = "users; drop" }, "source.tables"},
		{"unknown target driver", func(c *Config) { c.Target.Driver = "mysql" }, "target"},
		{"missing target dsn", func(c *Config) { c.Target.DSN = "" }, "target.dsn"},
		{"missing blob", func(c *Config) { c.Blob.ConnectionString = "" }, "blob.connection_string"},
		{"missing legacy files", func(c *Config) { c.LegacyFiles.ConnectionString = "" }, "legacy_files.connection_string"},
		{"partial auth", func(c *Config) { c.LegacyFiles.Auth.ClientID = "x" }, "legacy_files.auth"},
		{"zero parallelism", func(c *Config) { c.MaxDegreeOfParallelism = 0 }, "max_degree_of_parallelism"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"negative resume", func(c *Config) { c.ResumeAfter = -1 }, "resume_after"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrFatalConfigurationError)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	prev := common.GetLogger()
	t.Cleanup(func() {
		common.SetDefaultLogger(prev)
		common.EnableMasking(true)
	})

	c := validConfig()
	c.Logging = LoggingConfig{Level: "debug", Format: "json"}
	var buf bytes.Buffer
	logger, err := c.SetupLogging(&buf)
	require.NoError(t, err)
	assert.Same(t, logger, common.GetLogger())
	assert.Equal(t, common.LogLevelDebug, logger.Level())

	logger.Info("connecting", "dsn", "postgres://migrator:secret@db/v2")
	out := buf.String()
	assert.True(t, strings.Contains(out, `"msg":"logging configured"`), out)
	assert.NotContains(t, out, "secret@")

	off := false
	c.Logging.MaskSensitive = &off
	_, err = c.SetupLogging(&buf)
	require.NoError(t, err)
	assert.False(t, common.IsMaskingEnabled())
}
