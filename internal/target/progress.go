package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/util"
)

// maxReasonLength bounds the stored failure reason.
const maxReasonLength = 2000

// Progress is one migration_progress row.
type Progress struct {
	LegacyOwnerID int64            `json:"legacy_owner_id" yaml:"legacy_owner_id"`
	State         domain.UnitState `json:"state" yaml:"state"`
	ErrorKind     domain.ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Reason        string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts      int              `json:"attempts" yaml:"attempts"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"updated_at"`
}

// ProgressStore records the state reached by each legacy owner.
type ProgressStore struct {
	db  *store.DB
	now func() time.Time
}

// NewProgressStore creates a ProgressStore on the target database.
func NewProgressStore(db *store.DB) *ProgressStore {
	return &ProgressStore{db: db, now: time.Now}
}

func (p *ProgressStore) upsert(ctx context.Context, q store.Querier, pr Progress) error {
	reason := util.TruncateUTF8(pr.Reason, maxReasonLength)
	stmt := p.db.Rebind(fmt.Sprintf(`INSERT INTO %s (legacy_owner_id, state, error_kind, reason, attempts, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (legacy_owner_id) DO UPDATE SET
	state = excluded.state,
	error_kind = excluded.error_kind,
	reason = excluded.reason,
	attempts = excluded.attempts,
	updated_at = excluded.updated_at`, constants.MigrationProgressTable))
	_, err := q.ExecContext(ctx, stmt, pr.LegacyOwnerID, string(pr.State), string(pr.ErrorKind), reason, pr.Attempts,
		p.db.Dialect.ConvertTimeToStorage(p.now()))
	return err
}

// MarkState moves a unit to a non-terminal state.
func (p *ProgressStore) MarkState(ctx context.Context, legacyOwnerID int64, state domain.UnitState, attempts int) error {
	return p.upsert(ctx, p.db, Progress{LegacyOwnerID: legacyOwnerID, State: state, Attempts: attempts})
}

// MarkCommitted records that a unit finished successfully.
func (p *ProgressStore) MarkCommitted(ctx context.Context, legacyOwnerID int64, attempts int) error {
	return p.upsert(ctx, p.db, Progress{LegacyOwnerID: legacyOwnerID, State: domain.StateCommitted, Attempts: attempts})
}

// MarkFailed records a terminal failure with its kind and reason.
func (p *ProgressStore) MarkFailed(ctx context.Context, legacyOwnerID int64, kind domain.ErrorKind, reason string, attempts int) error {
	return p.upsert(ctx, p.db, Progress{
		LegacyOwnerID: legacyOwnerID,
		State:         domain.StateFailed,
		ErrorKind:     kind,
		Reason:        reason,
		Attempts:      attempts,
	})
}

// IsCommitted reports whether the unit already reached the committed state.
func (p *ProgressStore) IsCommitted(ctx context.Context, legacyOwnerID int64) (bool, error) {
	pr, err := p.Get(ctx, legacyOwnerID)
	if err != nil {
		return false, err
	}
	return pr != nil && pr.State == domain.StateCommitted, nil
}

// Get returns the progress row for a unit, or nil when none exists.
func (p *ProgressStore) Get(ctx context.Context, legacyOwnerID int64) (*Progress, error) {
	q := p.db.Rebind(fmt.Sprintf(`SELECT legacy_owner_id, state, error_kind, reason, attempts, updated_at
FROM %s WHERE legacy_owner_id = ?`, constants.MigrationProgressTable))
	rows, err := p.db.QueryContext(ctx, q, legacyOwnerID)
	if err != nil {
		return nil, err
	}
	list, err := p.scan(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// List returns progress rows ordered by legacy owner id. An empty state lists
// every row; limit <= 0 means no limit.
func (p *ProgressStore) List(ctx context.Context, state domain.UnitState, limit int) ([]Progress, error) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, `SELECT legacy_owner_id, state, error_kind, reason, attempts, updated_at FROM %s`, constants.MigrationProgressTable)
	if state != "" {
		b.WriteString(` WHERE state = ?`)
		args = append(args, string(state))
	}
	b.WriteString(` ORDER BY legacy_owner_id ASC`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, p.db.Rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	return p.scan(rows)
}

// Counts returns the number of units per recorded state.
func (p *ProgressStore) Counts(ctx context.Context) (map[domain.UnitState]int64, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT state, COUNT(*) FROM %s GROUP BY state`, constants.MigrationProgressTable))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[domain.UnitState]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[domain.UnitState(state)] = n
	}
	return out, rows.Err()
}

func (p *ProgressStore) scan(rows *sql.Rows) ([]Progress, error) {
	defer func() { _ = rows.Close() }()

	var out []Progress
	for rows.Next() {
		var (
			pr        Progress
			state     string
			kind      string
			updatedAt any
		)
		if err := rows.Scan(&pr.LegacyOwnerID, &state, &kind, &pr.Reason, &pr.Attempts, &updatedAt); err != nil {
			return nil, err
		}
		pr.State = domain.UnitState(state)
		pr.ErrorKind = domain.ErrorKind(kind)
		pr.UpdatedAt = p.db.Dialect.ConvertTimeFromStorage(updatedAt)
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
