package target

import (
	"context"
	"fmt"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/store/connector"
)

const contactColumns = `email TEXT NOT NULL DEFAULT '',
	telephone TEXT NOT NULL DEFAULT '',
	mobile TEXT NOT NULL DEFAULT '',
	address_line1 TEXT NOT NULL DEFAULT '',
	address_line2 TEXT NOT NULL DEFAULT '',
	address_line3 TEXT NOT NULL DEFAULT '',
	address_line4 TEXT NOT NULL DEFAULT '',
	postcode TEXT NOT NULL DEFAULT ''`

// SchemaStatements returns the V2 DDL for the given column types.
func SchemaStatements(t connector.ColumnTypes) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	legacy_agent_user_id %s NOT NULL UNIQUE,
	is_organisation %s NOT NULL,
	organisation_name TEXT NOT NULL DEFAULT '',
	contact_name TEXT NOT NULL DEFAULT '',
	%s,
	created_at %s NOT NULL
)`, constants.AgenciesTable, t.BigInt, t.Bool, contactColumns, t.Timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	legacy_owner_id %s NOT NULL UNIQUE,
	agency_id TEXT NULL REFERENCES %s(id),
	is_organisation %s NOT NULL,
	organisation_name TEXT NOT NULL DEFAULT '',
	contact_name TEXT NOT NULL DEFAULT '',
	%s,
	created_at %s NOT NULL
)`, constants.WoodlandOwnersTable, t.BigInt, constants.AgenciesTable, t.Bool, contactColumns, t.Timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	normalized_email TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	account_type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	telephone TEXT NOT NULL DEFAULT '',
	mobile TEXT NOT NULL DEFAULT '',
	address_line1 TEXT NOT NULL DEFAULT '',
	address_line2 TEXT NOT NULL DEFAULT '',
	address_line3 TEXT NOT NULL DEFAULT '',
	address_line4 TEXT NOT NULL DEFAULT '',
	postcode TEXT NOT NULL DEFAULT '',
	legacy_user_id %s NOT NULL,
	woodland_owner_id TEXT NULL REFERENCES %s(id),
	agency_id TEXT NULL REFERENCES %s(id),
	created_at %s NOT NULL
)`, constants.UserAccountsTable, t.BigInt, constants.WoodlandOwnersTable, constants.AgenciesTable, t.Timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	normalized_email TEXT NOT NULL,
	account_type TEXT NOT NULL,
	legacy_owner_id %s NOT NULL,
	observed_at %s NOT NULL,
	PRIMARY KEY (normalized_email, account_type, legacy_owner_id)
)`, constants.UserAccountRolesTable, t.BigInt, t.Timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	legacy_document_id %s PRIMARY KEY,
	legacy_owner_id %s NOT NULL,
	woodland_owner_id TEXT NOT NULL,
	blob_key TEXT NOT NULL,
	size_bytes %s NOT NULL DEFAULT 0,
	etag TEXT NOT NULL DEFAULT '',
	migrated_at %s NOT NULL
)`, constants.MigratedDocumentsTable, t.BigInt, t.BigInt, t.BigInt, t.Timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	legacy_owner_id %s PRIMARY KEY,
	state TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	updated_at %s NOT NULL
)`, constants.MigrationProgressTable, t.BigInt, t.Timestamp),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_state ON %[1]s (state)`, constants.MigrationProgressTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_owner ON %[1]s (woodland_owner_id)`, constants.MigratedDocumentsTable),
	}
}

// EnsureSchema creates the V2 tables if they do not exist.
func EnsureSchema(ctx context.Context, db *store.DB) error {
	for _, stmt := range SchemaStatements(db.Dialect.Types()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure target schema: %w", err)
		}
	}
	return nil
}

// TargetTables lists the V2 entity tables in dependency order.
var TargetTables = []string{
	constants.AgenciesTable,
	constants.WoodlandOwnersTable,
	constants.UserAccountsTable,
	constants.UserAccountRolesTable,
	constants.MigratedDocumentsTable,
}

// TableCounts returns the row count of every V2 entity table.
func TableCounts(ctx context.Context, db *store.DB) (map[string]int64, error) {
	out := make(map[string]int64, len(TargetTables))
	for _, table := range TargetTables {
		var n int64
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}
