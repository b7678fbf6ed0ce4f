// Package files copies legacy owner documents into the target blob store.
package files

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/loykin/woodlandmigrate/internal/blob/core"
	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/target"
)

// Ledger records copied documents.
type Ledger interface {
	Record(ctx context.Context, d target.MigratedDocument) error
}

// Result is the outcome of copying one document.
type Result struct {
	DocumentID int64  `json:"document_id" yaml:"document_id"`
	FileName   string `json:"file_name" yaml:"file_name"`
	Key        string `json:"key" yaml:"key"`
	Size       int64  `json:"size_bytes" yaml:"size_bytes"`
	Err        error  `json:"-" yaml:"-"`
	// Transient marks failures worth retrying (blob backend or ledger errors).
	Transient bool `json:"transient,omitempty" yaml:"transient,omitempty"`
}

// Report lists the per-file results of one unit.
type Report struct {
	Results []Result
}

// Copied returns the number of documents copied.
func (r Report) Copied() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the failed results.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err folds the failures into one taxonomy error: BlobTransient when any
// failure is transient, DataIntegrity when every failure is permanent.
func (r Report) Err(legacyOwnerID int64) error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	transient := false
	for _, res := range failed {
		errs = append(errs, fmt.Errorf("file %d (%s): %w", res.DocumentID, res.FileName, res.Err))
		transient = transient || res.Transient
	}
	joined := errors.Join(errs...)
	if transient {
		return domain.BlobTransient(legacyOwnerID, "migrate files", joined)
	}
	return domain.DataIntegrity(legacyOwnerID, "migrate files", joined)
}

// Migrator copies documents from a legacy source into the target store.
type Migrator struct {
	source core.Source
	dest   core.Store
	ledger Ledger
	prefix string
	logger *common.Logger
}

// NewMigrator creates a Migrator. ledger may be nil.
func NewMigrator(source core.Source, dest core.Store, ledger Ledger) *Migrator {
	return &Migrator{
		source: source,
		dest:   dest,
		ledger: ledger,
		prefix: constants.DefaultBlobKeyPrefix,
		logger: common.GetLogger().WithComponent("file-migrator").WithBlob(string(dest.Driver())),
	}
}

// Migrate copies every document of a unit. Every document is attempted
// regardless of earlier failures.
func (m *Migrator) Migrate(ctx context.Context, legacyOwnerID int64, ids domain.Identities, docs []domain.DocumentRef) Report {
	ordered := append([]domain.DocumentRef(nil), docs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	keys := Keys(m.prefix, ids.WoodlandOwnerID, ordered)
	report := Report{Results: make([]Result, 0, len(ordered))}
	for _, doc := range ordered {
		res := m.copyOne(ctx, legacyOwnerID, ids.WoodlandOwnerID, doc, keys[doc.ID])
		if res.Err != nil {
			m.logger.Warn("file copy failed",
				"legacy_owner_id", legacyOwnerID,
				"document_id", doc.ID,
				"transient", res.Transient,
				"error", res.Err)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (m *Migrator) copyOne(ctx context.Context, legacyOwnerID int64, ownerID string, doc domain.DocumentRef, key string) Result {
	res := Result{DocumentID: doc.ID, FileName: doc.FileName, Key: key}

	info, rc, err := m.source.Get(ctx, SourceKey(doc))
	if err != nil {
		res.Err = err
		res.Transient = !errors.Is(err, core.ErrNotFound)
		return res
	}
	defer func() { _ = rc.Close() }()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = info.ContentType
	}
	put, err := m.dest.Put(ctx, key, rc, core.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"legacy-document-id": strconv.FormatInt(doc.ID, 10),
			"legacy-owner-id":    strconv.FormatInt(legacyOwnerID, 10),
		},
	})
	if err != nil {
		res.Err = err
		res.Transient = true
		return res
	}
	res.Size = put.Size

	if m.ledger != nil {
		err := m.ledger.Record(ctx, target.MigratedDocument{
			LegacyDocumentID: doc.ID,
			LegacyOwnerID:    legacyOwnerID,
			WoodlandOwnerID:  ownerID,
			BlobKey:          key,
			Size:             put.Size,
			ETag:             put.ETag,
		})
		if err != nil {
			res.Err = err
			res.Transient = true
		}
	}
	return res
}

// SourceKey is the key a document is read from in the legacy source.
func SourceKey(doc domain.DocumentRef) string {
	if k := strings.TrimSpace(doc.StorageKey); k != "" {
		return k
	}
	return strconv.FormatInt(doc.ID, 10)
}

// Keys assigns target keys to docs, which must be ordered by id. A name
// already taken within the owner gets "-<doc id>" before its extension,
// repeated until the name is free.
func Keys(prefix, woodlandOwnerID string, docs []domain.DocumentRef) map[int64]string {
	out := make(map[int64]string, len(docs))
	used := make(map[string]bool, len(docs))
	for _, doc := range docs {
		name := SanitizeFileName(doc.FileName, doc.ID)
		suffix := "-" + strconv.FormatInt(doc.ID, 10)
		for used[strings.ToLower(name)] {
			ext := path.Ext(name)
			name = strings.TrimSuffix(name, ext) + suffix + ext
		}
		used[strings.ToLower(name)] = true
		out[doc.ID] = path.Join(prefix, woodlandOwnerID, name)
	}
	return out
}

// SanitizeFileName reduces a legacy file name to a safe key segment: the base
// name with anything outside [A-Za-z0-9._-] replaced by '_'.
func SanitizeFileName(name string, docID int64) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		ok := r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			r = '_'
		}
		if r == '_' && lastUnderscore {
			continue
		}
		lastUnderscore = r == '_'
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "document-" + strconv.FormatInt(docID, 10)
	}
	return out
}
