package constants

import "time"

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1
	DefaultSQLiteBusyTimeoutMS    = 5000

	// Driver names
	DriverPostgresql = "postgresql"
	DriverSqlite     = "sqlite"
)

// Legacy (V1) table names
const (
	DefaultLegacyUsersTable     = "users"
	DefaultLegacyOwnersTable    = "managed_owners"
	DefaultLegacyDocumentsTable = "owner_documents"
)

// Target (V2) table names
const (
	AgenciesTable          = "agencies"
	WoodlandOwnersTable    = "woodland_owners"
	UserAccountsTable      = "user_accounts"
	UserAccountRolesTable  = "user_account_roles"
	MigratedDocumentsTable = "migrated_documents"
	MigrationProgressTable = "migration_progress"
)

// Engine defaults
const (
	DefaultMaxDegreeOfParallelism = 16
	DefaultSourcePageSize         = 500
	DefaultBlobContainer          = "woodland-owner-files"
	DefaultBlobKeyPrefix          = "woodland-owners"
	DefaultMetricsNamespace       = "woodlandmigrate"
)

// Retry defaults
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = 200 * time.Millisecond
	DefaultMaxDelay      = 5 * time.Second
	DefaultBackoffFactor = 2.0
)

// Time and Duration Constants
const (
	// Connection pool lifetimes
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute

	DefaultHTTPSourceTimeout = 60 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
)

// DefaultAdminRoles are the legacy role names classified as administrative accounts.
var DefaultAdminRoles = []string{"administrator", "admin", "fc_admin", "fc_user"}
