package target

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/store"
)

// MigratedDocument is one row of the migrated document ledger.
type MigratedDocument struct {
	LegacyDocumentID int64     `json:"legacy_document_id" yaml:"legacy_document_id"`
	LegacyOwnerID    int64     `json:"legacy_owner_id" yaml:"legacy_owner_id"`
	WoodlandOwnerID  string    `json:"woodland_owner_id" yaml:"woodland_owner_id"`
	BlobKey          string    `json:"blob_key" yaml:"blob_key"`
	Size             int64     `json:"size_bytes" yaml:"size_bytes"`
	ETag             string    `json:"etag,omitempty" yaml:"etag,omitempty"`
	MigratedAt       time.Time `json:"migrated_at" yaml:"migrated_at"`
}

// DocumentLedger records where each legacy document was copied to.
type DocumentLedger struct {
	db  *store.DB
	now func() time.Time
}

// NewDocumentLedger creates a ledger on the target database.
func NewDocumentLedger(db *store.DB) *DocumentLedger {
	return &DocumentLedger{db: db, now: time.Now}
}

// Record upserts the ledger row for a copied document.
func (l *DocumentLedger) Record(ctx context.Context, d MigratedDocument) error {
	q := l.db.Rebind(fmt.Sprintf(`INSERT INTO %s (legacy_document_id, legacy_owner_id, woodland_owner_id, blob_key, size_bytes, etag, migrated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (legacy_document_id) DO UPDATE SET
	woodland_owner_id = excluded.woodland_owner_id,
	blob_key = excluded.blob_key,
	size_bytes = excluded.size_bytes,
	etag = excluded.etag,
	migrated_at = excluded.migrated_at`, constants.MigratedDocumentsTable))
	_, err := l.db.ExecContext(ctx, q, d.LegacyDocumentID, d.LegacyOwnerID, d.WoodlandOwnerID, d.BlobKey, d.Size, d.ETag,
		l.db.Dialect.ConvertTimeToStorage(l.now()))
	if err != nil {
		return domain.WriteFailed(d.LegacyOwnerID, "record document", err)
	}
	return nil
}

// ListByOwner returns the ledger rows of one woodland owner ordered by legacy document id.
func (l *DocumentLedger) ListByOwner(ctx context.Context, woodlandOwnerID string) ([]MigratedDocument, error) {
	q := l.db.Rebind(fmt.Sprintf(`SELECT legacy_document_id, legacy_owner_id, woodland_owner_id, blob_key, size_bytes, etag, migrated_at
FROM %s WHERE woodland_owner_id = ? ORDER BY legacy_document_id ASC`, constants.MigratedDocumentsTable))
	rows, err := l.db.QueryContext(ctx, q, woodlandOwnerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MigratedDocument
	for rows.Next() {
		var (
			d  MigratedDocument
			at any
		)
		if err := rows.Scan(&d.LegacyDocumentID, &d.LegacyOwnerID, &d.WoodlandOwnerID, &d.BlobKey, &d.Size, &d.ETag, &at); err != nil {
			return nil, err
		}
		d.MigratedAt = l.db.Dialect.ConvertTimeFromStorage(at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of ledger rows.
func (l *DocumentLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, constants.MigratedDocumentsTable)).Scan(&n)
	return n, err
}
