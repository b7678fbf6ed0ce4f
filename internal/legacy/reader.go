// Package legacy reads migration units from the V1 store.
//
// V1 layout (table names configurable):
//
//	users(id, title, first_name, last_name, email, role_name, company_name,
//	      telephone, mobile, address_line1..address_line4, postcode)
//	managed_owners(id, is_self_managed, user_id, agent_user_id, agent_role, title,
//	      first_name, last_name, is_organisation, organisation_name, email,
//	      telephone, mobile, address_line1..address_line4, postcode)
//	owner_documents(id, owner_id, file_name, content_type, storage_key, size_bytes)
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/retry"
	"github.com/loykin/woodlandmigrate/internal/store"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Tables names the V1 tables.
type Tables struct {
	Users     string `mapstructure:"users" yaml:"users"`
	Owners    string `mapstructure:"owners" yaml:"owners"`
	Documents string `mapstructure:"documents" yaml:"documents"`
}

// DefaultTables returns the stock V1 table names.
func DefaultTables() Tables {
	return Tables{
		Users:     constants.DefaultLegacyUsersTable,
		Owners:    constants.DefaultLegacyOwnersTable,
		Documents: constants.DefaultLegacyDocumentsTable,
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if strings.TrimSpace(t.Users) != "" {
		d.Users = strings.TrimSpace(t.Users)
	}
	if strings.TrimSpace(t.Owners) != "" {
		d.Owners = strings.TrimSpace(t.Owners)
	}
	if strings.TrimSpace(t.Documents) != "" {
		d.Documents = strings.TrimSpace(t.Documents)
	}
	return d
}

// Validate rejects table names that are not plain (optionally schema-qualified) identifiers.
func (t Tables) Validate() error {
	for _, name := range []string{t.Users, t.Owners, t.Documents} {
		if name == "" {
			continue
		}
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("invalid legacy table name %q", name)
		}
	}
	return nil
}

// Options configures a Reader.
type Options struct {
	Tables   Tables
	PageSize int
	Retry    *retry.Config
}

// Reader streams legacy owner units ordered by owner id.
type Reader struct {
	db       *store.DB
	tables   Tables
	pageSize int
	retry    *retry.Config
	logger   *common.Logger

	ownersQuery string
}

// NewReader creates a Reader over db.
func NewReader(db *store.DB, opts Options) (*Reader, error) {
	if db == nil {
		return nil, fmt.Errorf("legacy reader: nil database")
	}
	tables := opts.Tables.withDefaults()
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = constants.DefaultSourcePageSize
	}
	rc := opts.Retry
	if rc == nil {
		rc = retry.DefaultRetryConfig()
	}
	r := &Reader{
		db:       db,
		tables:   tables,
		pageSize: pageSize,
		retry:    rc,
		logger:   common.GetLogger().WithComponent("legacy-reader").WithStore(db.Dialect.DriverName()),
	}
	r.ownersQuery = db.Rebind(fmt.Sprintf(`SELECT
	o.id, o.is_self_managed, o.user_id, o.agent_user_id, o.agent_role,
	o.title, o.first_name, o.last_name, o.is_organisation, o.organisation_name,
	o.email, o.telephone, o.mobile, o.address_line1, o.address_line2, o.address_line3, o.address_line4, o.postcode,
	u.id, u.title, u.first_name, u.last_name, u.email, u.role_name, u.company_name,
	u.telephone, u.mobile, u.address_line1, u.address_line2, u.address_line3, u.address_line4, u.postcode,
	a.id, a.title, a.first_name, a.last_name, a.email, a.role_name, a.company_name,
	a.telephone, a.mobile, a.address_line1, a.address_line2, a.address_line3, a.address_line4, a.postcode
FROM %[1]s o
LEFT JOIN %[2]s u ON u.id = o.user_id
LEFT JOIN %[2]s a ON a.id = o.agent_user_id
WHERE o.id > ?
ORDER BY o.id ASC
LIMIT ?`, tables.Owners, tables.Users))
	return r, nil
}

// PageSize returns the configured page size.
func (r *Reader) PageSize() int { return r.pageSize }

// Count returns the number of legacy owners with id greater than afterID.
func (r *Reader) Count(ctx context.Context, afterID int64) (int64, error) {
	q := r.db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id > ?`, r.tables.Owners))
	var n int64
	err := retry.WithRetry(ctx, r.retry, func() error {
		return r.db.QueryRowContext(ctx, q, afterID).Scan(&n)
	})
	if err != nil {
		return 0, domain.SourceUnavailable("count owners", err)
	}
	return n, nil
}

// ReadPage returns up to limit units with owner id greater than afterID.
func (r *Reader) ReadPage(ctx context.Context, afterID int64, limit int) ([]domain.Unit, error) {
	if limit <= 0 {
		limit = r.pageSize
	}
	rows, err := retry.WithRetryQuery(ctx, r.retry, func() (*sql.Rows, error) {
		return r.db.QueryContext(ctx, r.ownersQuery, afterID, limit)
	})
	if err != nil {
		return nil, domain.SourceUnavailable("read owners", err)
	}
	units, err := scanUnits(rows)
	if err != nil {
		return nil, domain.SourceUnavailable("scan owners", err)
	}
	if len(units) == 0 {
		return nil, nil
	}
	if err := r.attachDocuments(ctx, units); err != nil {
		return nil, domain.SourceUnavailable("read documents", err)
	}
	return units, nil
}

// Stream emits every unit after afterID in ascending owner id order. An error
// returned by emit stops the stream and is returned unchanged.
func (r *Reader) Stream(ctx context.Context, afterID int64, emit func(domain.Unit) error) error {
	cursor := afterID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		units, err := r.ReadPage(ctx, cursor, r.pageSize)
		if err != nil {
			return err
		}
		r.logger.Debug("read page", "after_id", cursor, "units", len(units))
		for _, u := range units {
			if err := emit(u); err != nil {
				return err
			}
			cursor = u.Owner.ID
		}
		if len(units) < r.pageSize {
			return nil
		}
	}
}

func (r *Reader) attachDocuments(ctx context.Context, units []domain.Unit) error {
	index := make(map[int64]int, len(units))
	args := make([]any, 0, len(units))
	marks := make([]string, 0, len(units))
	for i, u := range units {
		index[u.Owner.ID] = i
		args = append(args, u.Owner.ID)
		marks = append(marks, "?")
	}
	q := r.db.Rebind(fmt.Sprintf(`SELECT id, owner_id, file_name, content_type, storage_key, size_bytes
FROM %s WHERE owner_id IN (%s) ORDER BY owner_id ASC, id ASC`, r.tables.Documents, strings.Join(marks, ", ")))

	rows, err := retry.WithRetryQuery(ctx, r.retry, func() (*sql.Rows, error) {
		return r.db.QueryContext(ctx, q, args...)
	})
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			doc         domain.DocumentRef
			contentType sql.NullString
			storageKey  sql.NullString
			size        sql.NullInt64
		)
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.FileName, &contentType, &storageKey, &size); err != nil {
			return err
		}
		doc.ContentType = contentType.String
		doc.StorageKey = storageKey.String
		doc.Size = size.Int64
		if i, ok := index[doc.OwnerID]; ok {
			units[i].Documents = append(units[i].Documents, doc)
		}
	}
	return rows.Err()
}

type nullContact struct {
	email, telephone, mobile, line1, line2, line3, line4, postcode sql.NullString
}

func (c *nullContact) targets() []any {
	return []any{&c.email, &c.telephone, &c.mobile, &c.line1, &c.line2, &c.line3, &c.line4, &c.postcode}
}

func (c *nullContact) contact() domain.Contact {
	return domain.Contact{
		Email:     c.email.String,
		Telephone: c.telephone.String,
		Mobile:    c.mobile.String,
		Line1:     c.line1.String,
		Line2:     c.line2.String,
		Line3:     c.line3.String,
		Line4:     c.line4.String,
		Postcode:  c.postcode.String,
	}
}

type nullUser struct {
	id                                   sql.NullInt64
	title, first, last, email, role, org sql.NullString
	contact                              nullContact
}

func (u *nullUser) targets() []any {
	out := []any{&u.id, &u.title, &u.first, &u.last, &u.email, &u.role, &u.org}
	// users carry email once; the contact block starts at telephone
	c := u.contact.targets()
	return append(out, c[1:]...)
}

func (u *nullUser) user() *domain.LegacyUser {
	if !u.id.Valid {
		return nil
	}
	contact := u.contact.contact()
	contact.Email = u.email.String
	return &domain.LegacyUser{
		ID:          u.id.Int64,
		Title:       u.title.String,
		FirstName:   u.first.String,
		LastName:    u.last.String,
		Email:       u.email.String,
		RoleName:    u.role.String,
		CompanyName: u.org.String,
		Contact:     contact,
	}
}

func scanUnits(rows *sql.Rows) ([]domain.Unit, error) {
	defer func() { _ = rows.Close() }()

	var units []domain.Unit
	for rows.Next() {
		var (
			owner          domain.LegacyManagedOwner
			selfManaged    sql.NullBool
			userID         sql.NullInt64
			agentUserID    sql.NullInt64
			agentRole      sql.NullString
			title          sql.NullString
			first          sql.NullString
			last           sql.NullString
			isOrganisation sql.NullBool
			orgName        sql.NullString
			ownerContact   nullContact
			loginUser      nullUser
			agentUser      nullUser
		)
		dest := []any{&owner.ID, &selfManaged, &userID, &agentUserID, &agentRole,
			&title, &first, &last, &isOrganisation, &orgName}
		dest = append(dest, ownerContact.targets()...)
		dest = append(dest, loginUser.targets()...)
		dest = append(dest, agentUser.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		owner.Title = title.String
		owner.FirstName = first.String
		owner.LastName = last.String
		owner.IsOrganisation = isOrganisation.Bool
		owner.OrganisationName = orgName.String
		owner.Contact = ownerContact.contact()

		unit := domain.Unit{}
		if selfManaged.Valid && !selfManaged.Bool {
			agent := agentUser.user()
			switch {
			case !agentUserID.Valid:
				unit.Problem = "agent-managed owner has no agent user reference"
				owner.Management = domain.AgentManaged{AgentRole: agentRole.String}
			case agent == nil:
				unit.Problem = fmt.Sprintf("agent user %d not found", agentUserID.Int64)
				owner.Management = domain.AgentManaged{Agent: domain.LegacyUser{ID: agentUserID.Int64}, AgentRole: agentRole.String}
			default:
				owner.Management = domain.AgentManaged{Agent: *agent, AgentRole: agentRole.String}
			}
		} else {
			login := loginUser.user()
			if userID.Valid && login == nil {
				unit.Problem = fmt.Sprintf("owner login user %d not found", userID.Int64)
			}
			owner.Management = domain.SelfManaged{User: login}
		}
		unit.Owner = owner
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}
