// Package legacytest creates and seeds a V1 store for tests and local demos.
package legacytest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/store/sqlite"
)

// Schema is the V1 layout using the default table names.
var Schema = []string{
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	title TEXT, first_name TEXT, last_name TEXT,
	email TEXT, role_name TEXT, company_name TEXT,
	telephone TEXT, mobile TEXT,
	address_line1 TEXT, address_line2 TEXT, address_line3 TEXT, address_line4 TEXT, postcode TEXT
)`, constants.DefaultLegacyUsersTable),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	is_self_managed BOOLEAN,
	user_id INTEGER NULL, agent_user_id INTEGER NULL, agent_role TEXT NULL,
	title TEXT, first_name TEXT, last_name TEXT,
	is_organisation BOOLEAN, organisation_name TEXT,
	email TEXT, telephone TEXT, mobile TEXT,
	address_line1 TEXT, address_line2 TEXT, address_line3 TEXT, address_line4 TEXT, postcode TEXT
)`, constants.DefaultLegacyOwnersTable),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	owner_id INTEGER NOT NULL,
	file_name TEXT NOT NULL, content_type TEXT, storage_key TEXT, size_bytes INTEGER
)`, constants.DefaultLegacyDocumentsTable),
}

// User is a V1 users row.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Role      string
	Company   string
	Postcode  string
}

// Owner is a V1 managed_owners row. AgentUserID is zero for self-managed owners.
type Owner struct {
	ID               int64
	SelfManaged      bool
	UserID           int64
	AgentUserID      int64
	AgentRole        string
	FirstName        string
	LastName         string
	IsOrganisation   bool
	OrganisationName string
	Email            string
	Postcode         string
}

// Document is a V1 owner_documents row.
type Document struct {
	ID          int64
	OwnerID     int64
	FileName    string
	ContentType string
	StorageKey  string
	Size        int64
}

// Create applies the V1 schema to db.
func Create(ctx context.Context, db *store.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create legacy schema: %w", err)
		}
	}
	return nil
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// InsertUser inserts a users row.
func InsertUser(ctx context.Context, db *store.DB, u User) error {
	q := db.Rebind(fmt.Sprintf(`INSERT INTO %s (id, title, first_name, last_name, email, role_name, company_name, postcode)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, constants.DefaultLegacyUsersTable))
	_, err := db.ExecContext(ctx, q, u.ID, "", u.FirstName, u.LastName, nullString(u.Email), u.Role, nullString(u.Company), u.Postcode)
	return err
}

// InsertOwner inserts a managed_owners row.
func InsertOwner(ctx context.Context, db *store.DB, o Owner) error {
	q := db.Rebind(fmt.Sprintf(`INSERT INTO %s (id, is_self_managed, user_id, agent_user_id, agent_role,
	title, first_name, last_name, is_organisation, organisation_name, email, postcode)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, constants.DefaultLegacyOwnersTable))
	_, err := db.ExecContext(ctx, q, o.ID, o.SelfManaged, nullInt(o.UserID), nullInt(o.AgentUserID), nullString(o.AgentRole),
		"", o.FirstName, o.LastName, o.IsOrganisation, nullString(o.OrganisationName), nullString(o.Email), o.Postcode)
	return err
}

// InsertDocument inserts an owner_documents row.
func InsertDocument(ctx context.Context, db *store.DB, d Document) error {
	q := db.Rebind(fmt.Sprintf(`INSERT INTO %s (id, owner_id, file_name, content_type, storage_key, size_bytes)
VALUES (?, ?, ?, ?, ?, ?)`, constants.DefaultLegacyDocumentsTable))
	_, err := db.ExecContext(ctx, q, d.ID, d.OwnerID, d.FileName, nullString(d.ContentType), nullString(d.StorageKey), d.Size)
	return err
}

// OpenSQLite opens a file-backed SQLite database in a temp dir, closed when
// the test ends.
func OpenSQLite(t testing.TB, name string) *store.DB {
	t.Helper()
	dialect := sqlite.NewDialect()
	raw, err := dialect.Connect(sqlite.PathDSN(filepath.Join(t.TempDir(), name)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := store.Wrap(raw, dialect)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// OpenSeeded opens a SQLite V1 store with the schema applied.
func OpenSeeded(t testing.TB) *store.DB {
	t.Helper()
	db := OpenSQLite(t, "legacy.db")
	if err := Create(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

// MustExec runs fn and fails the test on error.
func MustExec(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

