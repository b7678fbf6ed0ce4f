// Package woodlandmigrate migrates legacy woodland owner, agent and user
// records and their documents into the V2 schema and blob store.
//
// Typical use:
//
//	cfg, err := woodlandmigrate.LoadConfig("config.yaml")
//	m, err := woodlandmigrate.Open(ctx, cfg)
//	defer m.Close()
//	summary, err := m.Run(ctx)
package woodlandmigrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/woodlandmigrate/internal/auth/oauth2"
	"github.com/loykin/woodlandmigrate/internal/blob"
	"github.com/loykin/woodlandmigrate/internal/blob/httpsrc"
	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/config"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/files"
	"github.com/loykin/woodlandmigrate/internal/legacy"
	"github.com/loykin/woodlandmigrate/internal/mapper"
	"github.com/loykin/woodlandmigrate/internal/metrics"
	"github.com/loykin/woodlandmigrate/internal/migration"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/target"
)

// Re-export commonly used types for public API

// Config is the run configuration.
type Config = config.Config

// Summary is the outcome of a run.
type Summary = migration.Summary

// Failure describes a unit that ended Failed.
type Failure = migration.Failure

// Progress is one migration_progress row.
type Progress = target.Progress

// UnitState is the per-unit state.
type UnitState = domain.UnitState

// ErrorKind is the error taxonomy kind.
type ErrorKind = domain.ErrorKind

// Error taxonomy sentinels for errors.Is.
var (
	ErrSourceUnavailable  = domain.ErrSourceUnavailable
	ErrDataIntegrity      = domain.ErrDataIntegrity
	ErrWriteFailed        = domain.ErrWriteFailed
	ErrBlobTransient      = domain.ErrBlobTransient
	ErrFatalConfiguration = domain.ErrFatalConfigurationError
)

// LoadConfig reads a config file (optional) plus WOODLANDMIGRATE_* environment
// overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	return config.Load(nil, path)
}

// Target is an opened target store with its progress table.
type Target struct {
	db       *store.DB
	progress *target.ProgressStore
	ledger   *target.DocumentLedger
}

// OpenTarget opens the target database and creates the V2 schema if needed.
func OpenTarget(ctx context.Context, cfg store.Config) (*Target, error) {
	db, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open target store: %w", err)
	}
	if err := target.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Target{db: db, progress: target.NewProgressStore(db), ledger: target.NewDocumentLedger(db)}, nil
}

// StateCounts returns the number of units per persisted state.
func (t *Target) StateCounts(ctx context.Context) (map[UnitState]int64, error) {
	return t.progress.Counts(ctx)
}

// Failures lists failed units by legacy owner id. limit <= 0 lists all.
func (t *Target) Failures(ctx context.Context, limit int) ([]Progress, error) {
	return t.progress.List(ctx, domain.StateFailed, limit)
}

// Unit returns the progress row of one legacy owner, or nil.
func (t *Target) Unit(ctx context.Context, legacyOwnerID int64) (*Progress, error) {
	return t.progress.Get(ctx, legacyOwnerID)
}

// TableCounts returns row counts of the V2 tables.
func (t *Target) TableCounts(ctx context.Context) (map[string]int64, error) {
	return target.TableCounts(ctx, t.db)
}

// Close closes the target database.
func (t *Target) Close() error { return t.db.Close() }

// Migrator is a fully wired migration engine.
type Migrator struct {
	cfg          Config
	legacyDB     *store.DB
	target       *Target
	metrics      *metrics.Metrics
	orchestrator *migration.Orchestrator
	logger       *common.Logger
}

// Open validates cfg and connects the legacy store, the target store and both
// blob stores. Any failure here is reported before a unit is touched.
func Open(ctx context.Context, cfg Config) (m *Migrator, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := common.GetLogger().WithComponent("woodlandmigrate")

	legacyDB, err := store.Open(cfg.SourceStore())
	if err != nil {
		return nil, domain.SourceUnavailable("open legacy store", err)
	}
	defer func() {
		if err != nil {
			_ = legacyDB.Close()
		}
	}()
	if err := legacyDB.PingContext(ctx); err != nil {
		return nil, domain.SourceUnavailable("ping legacy store", err)
	}

	tgt, err := OpenTarget(ctx, cfg.TargetStore())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tgt.Close()
		}
	}()

	dest, err := blob.OpenStore(ctx, cfg.Blob.ConnectionString, cfg.Blob.Container)
	if err != nil {
		return nil, err
	}
	var auth httpsrc.Authorizer
	if cfg.LegacyFiles.Auth.Enabled() {
		ts, err := oauth2.NewTokenSource(cfg.LegacyFiles.Auth)
		if err != nil {
			return nil, domain.FatalConfiguration("legacy_files.auth: %v", err)
		}
		auth = ts
	}
	src, err := blob.OpenSource(ctx, cfg.LegacyFiles.ConnectionString, cfg.LegacyFiles.Container, blob.SourceOptions{
		Auth:               auth,
		InsecureSkipVerify: cfg.LegacyFiles.Insecure,
	})
	if err != nil {
		return nil, err
	}

	rc := cfg.RetryConfig()
	reader, err := legacy.NewReader(legacyDB, legacy.Options{
		Tables:   cfg.Source.Tables,
		PageSize: cfg.Source.PageSize,
		Retry:    rc,
	})
	if err != nil {
		return nil, domain.FatalConfiguration("legacy reader: %v", err)
	}

	met, err := metrics.New(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	writer := target.NewWriter(tgt.db, tgt.progress)
	fm := files.NewMigrator(src, dest, tgt.ledger)
	orch := migration.New(reader, mapper.New(cfg.AdminRoles), writer, fm, tgt.progress, migration.Options{
		MaxDegreeOfParallelism: cfg.MaxDegreeOfParallelism,
		Retry:                  rc,
		ResumeAfter:            cfg.ResumeAfter,
		Metrics:                met,
	})

	logger.Info("migration engine ready",
		"source", cfg.Source.Driver,
		"target", cfg.Target.Driver,
		"blob", blob.Describe(cfg.Blob.ConnectionString),
		"legacy_files", blob.Describe(cfg.LegacyFiles.ConnectionString))

	return &Migrator{
		cfg:          cfg,
		legacyDB:     legacyDB,
		target:       tgt,
		metrics:      met,
		orchestrator: orch,
		logger:       logger,
	}, nil
}

// Run migrates every pending unit. When metrics.addr is configured the
// metrics endpoint is served for the duration of the run.
func (m *Migrator) Run(ctx context.Context) (Summary, error) {
	if addr := m.cfg.Metrics.Addr; addr != "" {
		srv := metrics.NewServer(addr, m.metrics, m.progressReport)
		if _, err := srv.Start(); err != nil {
			return Summary{}, domain.FatalConfiguration("metrics server: %v", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				m.logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}
	return m.orchestrator.Run(ctx)
}

// ProgressReport is served on /progress.
type ProgressReport struct {
	Run    Summary             `json:"run"`
	States map[UnitState]int64 `json:"states"`
}

func (m *Migrator) progressReport(ctx context.Context) (any, error) {
	states, err := m.target.StateCounts(ctx)
	if err != nil {
		return nil, err
	}
	return ProgressReport{Run: m.orchestrator.Snapshot(), States: states}, nil
}

// Target returns the opened target store.
func (m *Migrator) Target() *Target { return m.target }

// Close releases the database connections.
func (m *Migrator) Close() error {
	return errors.Join(m.legacyDB.Close(), m.target.Close())
}
