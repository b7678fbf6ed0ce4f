// Package migration runs legacy owner units through map, write, file copy and
// commit on a bounded worker pool.
package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/files"
	"github.com/loykin/woodlandmigrate/internal/metrics"
	"github.com/loykin/woodlandmigrate/internal/retry"
)

// Source streams units ordered by legacy owner id, starting after afterID.
type Source interface {
	Stream(ctx context.Context, afterID int64, emit func(domain.Unit) error) error
}

// Mapper turns a unit into the target entity group.
type Mapper interface {
	MapUnit(u domain.Unit) (domain.Group, error)
}

// Writer persists a mapped group in one transaction.
type Writer interface {
	Write(ctx context.Context, legacyOwnerID int64, group domain.Group, attempt int) (domain.Identities, error)
}

// FileMigrator copies a unit's documents.
type FileMigrator interface {
	Migrate(ctx context.Context, legacyOwnerID int64, ids domain.Identities, docs []domain.DocumentRef) files.Report
}

// Progress persists per-unit state.
type Progress interface {
	IsCommitted(ctx context.Context, legacyOwnerID int64) (bool, error)
	MarkState(ctx context.Context, legacyOwnerID int64, state domain.UnitState, attempts int) error
	MarkCommitted(ctx context.Context, legacyOwnerID int64, attempts int) error
	MarkFailed(ctx context.Context, legacyOwnerID int64, kind domain.ErrorKind, reason string, attempts int) error
}

// Options tunes a run.
type Options struct {
	MaxDegreeOfParallelism int
	Retry                  *retry.Config
	// ResumeAfter starts the source after this legacy owner id. Committed
	// units are skipped either way.
	ResumeAfter int64
	Metrics     *metrics.Metrics
}

// Orchestrator drives a migration run.
type Orchestrator struct {
	source   Source
	mapper   Mapper
	writer   Writer
	files    FileMigrator
	progress Progress
	opts     Options
	logger   *common.Logger
	now      func() time.Time

	mu   sync.Mutex
	live Summary
}

// New creates an Orchestrator.
func New(source Source, mapper Mapper, writer Writer, fm FileMigrator, progress Progress, opts Options) *Orchestrator {
	if opts.MaxDegreeOfParallelism <= 0 {
		opts.MaxDegreeOfParallelism = constants.DefaultMaxDegreeOfParallelism
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultRetryConfig()
	}
	return &Orchestrator{
		source:   source,
		mapper:   mapper,
		writer:   writer,
		files:    fm,
		progress: progress,
		opts:     opts,
		logger:   common.GetLogger().WithComponent("orchestrator"),
		now:      time.Now,
	}
}

type unitResult struct {
	legacyOwnerID int64
	state         domain.UnitState
	kind          domain.ErrorKind
	reason        string
	attempts      int
	filesCopied   int
	filesFailed   int
}

// Run migrates every unit the source yields. Per-unit failures are reported
// in the summary. The returned error is non-nil when the source fails or ctx
// is cancelled; the summary is then marked Incomplete. Units already being
// processed when ctx is cancelled run to completion.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	started := o.now()
	o.mu.Lock()
	o.live = Summary{StartedAt: started}
	o.mu.Unlock()

	workers := o.opts.MaxDegreeOfParallelism
	o.logger.Info("migration run starting",
		"max_degree_of_parallelism", workers,
		"max_retries", o.opts.Retry.MaxRetries,
		"resume_after", o.opts.ResumeAfter)

	dispatch, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	unitCtx := context.WithoutCancel(ctx)

	units := make(chan domain.Unit, workers)
	results := make(chan unitResult, workers)

	var g errgroup.Group
	g.Go(func() error {
		defer close(units)
		err := o.source.Stream(dispatch, o.opts.ResumeAfter, func(u domain.Unit) error {
			select {
			case units <- u:
				return nil
			case <-dispatch.Done():
				return dispatch.Err()
			}
		})
		if err != nil {
			stopDispatch()
		}
		return err
	})

	var pool errgroup.Group
	for n := 0; n < workers; n++ {
		pool.Go(func() error {
			for u := range units {
				if dispatch.Err() != nil {
					continue
				}
				results <- o.processUnit(unitCtx, u)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := pool.Wait()
		close(results)
		return err
	})

	for r := range results {
		o.mu.Lock()
		o.live.add(r)
		o.mu.Unlock()
	}
	srcErr := g.Wait()

	finished := o.now()
	o.mu.Lock()
	o.live.FinishedAt = finished
	o.live.Duration = finished.Sub(started)
	var runErr error
	switch {
	case ctx.Err() != nil:
		o.live.Incomplete = true
		runErr = fmt.Errorf("migration cancelled: %w", ctx.Err())
	case srcErr != nil:
		o.live.Incomplete = true
		runErr = srcErr
		if domain.KindOf(srcErr) == "" {
			runErr = domain.SourceUnavailable("stream units", srcErr)
		}
	}
	summary := o.live.clone()
	o.mu.Unlock()

	if runErr != nil {
		o.logger.Error("migration run stopped early", "error", runErr, "summary", summary.String())
	} else {
		o.logger.Info("migration run completed", "summary", summary.String())
	}
	return summary, runErr
}

// Snapshot returns the counters of the current or last run.
func (o *Orchestrator) Snapshot() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live.clone()
}

func (o *Orchestrator) processUnit(ctx context.Context, u domain.Unit) unitResult {
	id := u.Owner.ID
	logger := o.logger.WithUnit(id)
	start := o.now()
	o.opts.Metrics.UnitStarted()

	res := o.migrateUnit(ctx, logger, u)

	o.opts.Metrics.UnitFinished(res.state, res.kind, o.now().Sub(start))
	o.opts.Metrics.RecordFiles(res.filesCopied, res.filesFailed)
	return res
}

func (o *Orchestrator) migrateUnit(ctx context.Context, logger *common.Logger, u domain.Unit) unitResult {
	id := u.Owner.ID
	res := unitResult{legacyOwnerID: id}

	var committed bool
	err := retry.WithRetry(ctx, o.opts.Retry, func() error {
		var err error
		committed, err = o.progress.IsCommitted(ctx, id)
		if err != nil {
			return domain.WriteFailed(id, "check progress", err)
		}
		return nil
	})
	if err != nil {
		return o.fail(ctx, logger, res, err)
	}
	if committed {
		logger.Debug("unit already committed; skipping")
		res.state = domain.StateSkipped
		return res
	}

	group, err := o.mapper.MapUnit(u)
	if err != nil {
		return o.fail(ctx, logger, res, err)
	}
	if err := o.progress.MarkState(ctx, id, domain.StateMapped, 0); err != nil {
		logger.Warn("could not record mapped state", "error", err)
	}

	cfg := *o.opts.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		o.opts.Metrics.RecordRetry()
		logger.Debug("unit attempt failed; retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	var report files.Report
	err = retry.Do(ctx, &cfg, func(attempt int) error {
		res.attempts = attempt
		ids, err := o.writer.Write(ctx, id, group, attempt)
		if err != nil {
			return err
		}
		report = o.files.Migrate(ctx, id, ids, u.Documents)
		if err := report.Err(id); err != nil {
			return err
		}
		if err := o.progress.MarkState(ctx, id, domain.StateFilesMigrated, attempt); err != nil {
			return domain.WriteFailed(id, "mark files migrated", err)
		}
		if err := o.progress.MarkCommitted(ctx, id, attempt); err != nil {
			return domain.WriteFailed(id, "mark committed", err)
		}
		return nil
	})
	res.filesCopied = report.Copied()
	res.filesFailed = len(report.Failed())
	if err != nil {
		return o.fail(ctx, logger, res, err)
	}

	res.state = domain.StateCommitted
	logger.Debug("unit committed", "attempts", res.attempts, "files", res.filesCopied)
	return res
}

func (o *Orchestrator) fail(ctx context.Context, logger *common.Logger, res unitResult, err error) unitResult {
	res.state = domain.StateFailed
	res.kind = domain.KindOf(err)
	if res.kind == "" {
		res.kind = domain.KindWriteFailed
	}
	res.reason = err.Error()

	logger.Warn("unit failed", "kind", res.kind, "attempts", res.attempts, "error", err)
	if markErr := o.progress.MarkFailed(ctx, res.legacyOwnerID, res.kind, res.reason, res.attempts); markErr != nil {
		logger.Error("could not record failed state", "error", markErr)
	}
	return res
}
