// Package target persists mapped groups, the per-unit progress table and the
// migrated document ledger in the V2 store.
package target

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/store"
	"github.com/loykin/woodlandmigrate/internal/store/connector"
	"github.com/loykin/woodlandmigrate/internal/util"
)

// Writer commits one mapped group per transaction using check-or-insert keyed
// by legacy owner id, legacy agent-user id and normalized email.
type Writer struct {
	db       *store.DB
	progress *ProgressStore
	now      func() time.Time
	newID    func() string
	logger   *common.Logger
}

// NewWriter creates a Writer. Progress rows are moved to written inside the
// same transaction as the group.
func NewWriter(db *store.DB, progress *ProgressStore) *Writer {
	if progress == nil {
		progress = NewProgressStore(db)
	}
	return &Writer{
		db:       db,
		progress: progress,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   common.GetLogger().WithComponent("target-writer").WithStore(db.Dialect.DriverName()),
	}
}

// Write persists group atomically and returns the resolved identities.
func (w *Writer) Write(ctx context.Context, legacyOwnerID int64, group domain.Group, attempt int) (domain.Identities, error) {
	ids := domain.Identities{AccountIDs: make(map[string]string, len(group.Accounts))}

	err := w.db.InTx(ctx, func(tx *sql.Tx) error {
		if group.Agency != nil {
			id, err := w.ensureAgency(ctx, tx, *group.Agency)
			if err != nil {
				return w.classify(legacyOwnerID, "write agency", err)
			}
			ids.AgencyID = id
		}

		owner := group.WoodlandOwner
		owner.AgencyID = ids.AgencyID
		ownerID, err := w.ensureOwner(ctx, tx, owner)
		if err != nil {
			return w.classify(legacyOwnerID, "write woodland owner", err)
		}
		ids.WoodlandOwnerID = ownerID

		for _, acc := range group.Accounts {
			var link accountLink
			switch acc.AccountType {
			case domain.AccountTypeAgent:
				link.agencyID = ids.AgencyID
			case domain.AccountTypeOwner:
				link.ownerID = ids.WoodlandOwnerID
			default:
				link.agencyID = ids.AgencyID
				if link.agencyID == "" {
					link.ownerID = ids.WoodlandOwnerID
				}
			}
			id, err := w.ensureAccount(ctx, tx, legacyOwnerID, acc, link)
			if err != nil {
				return w.classify(legacyOwnerID, "write user account", err)
			}
			ids.AccountIDs[acc.NormalizedEmail] = id
		}

		if err := w.progress.upsert(ctx, tx, Progress{LegacyOwnerID: legacyOwnerID, State: domain.StateWritten, Attempts: attempt}); err != nil {
			return w.classify(legacyOwnerID, "write progress", err)
		}
		return nil
	})
	if err != nil {
		return domain.Identities{}, w.classify(legacyOwnerID, "write", err)
	}
	return ids, nil
}

// classify maps driver errors onto the taxonomy: constraint violations are
// data problems, everything else is a retryable write failure.
func (w *Writer) classify(legacyOwnerID int64, op string, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	if w.db.Classify(err) == connector.ClassConstraint {
		return domain.DataIntegrity(legacyOwnerID, op, err)
	}
	return domain.WriteFailed(legacyOwnerID, op, err)
}

func contactArgs(c domain.Contact) []any {
	return []any{c.Email, c.Telephone, c.Mobile, c.Line1, c.Line2, c.Line3, c.Line4, c.Postcode}
}

func (w *Writer) selectID(ctx context.Context, tx *sql.Tx, table, keyColumn string, key any) (string, error) {
	var id string
	q := w.db.Rebind(fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, table, keyColumn))
	if err := tx.QueryRowContext(ctx, q, key).Scan(&id); err != nil {
		return "", fmt.Errorf("select %s by %s: %w", table, keyColumn, err)
	}
	return id, nil
}

func (w *Writer) ensureAgency(ctx context.Context, tx *sql.Tx, a domain.Agency) (string, error) {
	q := w.db.Rebind(fmt.Sprintf(`INSERT INTO %s (id, legacy_agent_user_id, is_organisation, organisation_name, contact_name,
	email, telephone, mobile, address_line1, address_line2, address_line3, address_line4, postcode, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (legacy_agent_user_id) DO NOTHING`, constants.AgenciesTable))
	args := []any{w.newID(), a.LegacyAgentUserID, a.IsOrganisation, a.OrganisationName, a.ContactName}
	args = append(args, contactArgs(a.Contact)...)
	args = append(args, w.db.Dialect.ConvertTimeToStorage(w.now()))
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		w.logger.Debug("reusing agency", "legacy_agent_user_id", a.LegacyAgentUserID)
	}
	return w.selectID(ctx, tx, constants.AgenciesTable, "legacy_agent_user_id", a.LegacyAgentUserID)
}

func (w *Writer) ensureOwner(ctx context.Context, tx *sql.Tx, o domain.WoodlandOwner) (string, error) {
	q := w.db.Rebind(fmt.Sprintf(`INSERT INTO %s (id, legacy_owner_id, agency_id, is_organisation, organisation_name, contact_name,
	email, telephone, mobile, address_line1, address_line2, address_line3, address_line4, postcode, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (legacy_owner_id) DO NOTHING`, constants.WoodlandOwnersTable))
	var agencyID any
	if o.AgencyID != "" {
		agencyID = o.AgencyID
	}
	args := []any{w.newID(), o.LegacyOwnerID, agencyID, o.IsOrganisation, o.OrganisationName, o.ContactName}
	args = append(args, contactArgs(o.Contact)...)
	args = append(args, w.db.Dialect.ConvertTimeToStorage(w.now()))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return "", err
	}
	return w.selectID(ctx, tx, constants.WoodlandOwnersTable, "legacy_owner_id", o.LegacyOwnerID)
}

type accountLink struct {
	ownerID  string
	agencyID string
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (w *Writer) ensureAccount(ctx context.Context, tx *sql.Tx, legacyOwnerID int64, acc domain.UserAccount, link accountLink) (string, error) {
	normalized := acc.NormalizedEmail
	if normalized == "" {
		normalized = util.NormalizeEmail(acc.Email)
	}
	now := w.db.Dialect.ConvertTimeToStorage(w.now())

	q := w.db.Rebind(fmt.Sprintf(`INSERT INTO %s (id, normalized_email, email, account_type, title, first_name, last_name,
	telephone, mobile, address_line1, address_line2, address_line3, address_line4, postcode,
	legacy_user_id, woodland_owner_id, agency_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (normalized_email) DO NOTHING`, constants.UserAccountsTable))
	c := acc.Contact
	_, err := tx.ExecContext(ctx, q,
		w.newID(), normalized, acc.Email, string(acc.AccountType), acc.Title, acc.FirstName, acc.LastName,
		c.Telephone, c.Mobile, c.Line1, c.Line2, c.Line3, c.Line4, c.Postcode,
		acc.LegacyUserID, nullable(link.ownerID), nullable(link.agencyID), now)
	if err != nil {
		return "", err
	}

	var (
		id         string
		storedType string
	)
	sel := w.db.Rebind(fmt.Sprintf(`SELECT id, account_type FROM %s WHERE normalized_email = ?`, constants.UserAccountsTable))
	if err := tx.QueryRowContext(ctx, sel, normalized).Scan(&id, &storedType); err != nil {
		return "", fmt.Errorf("select user account: %w", err)
	}
	if storedType != string(acc.AccountType) {
		w.logger.Info("account already exists with a different role; keeping first observed",
			"legacy_owner_id", legacyOwnerID,
			"account_type", storedType,
			"observed_type", string(acc.AccountType))
	}

	role := w.db.Rebind(fmt.Sprintf(`INSERT INTO %s (normalized_email, account_type, legacy_owner_id, observed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (normalized_email, account_type, legacy_owner_id) DO NOTHING`, constants.UserAccountRolesTable))
	if _, err := tx.ExecContext(ctx, role, normalized, string(acc.AccountType), legacyOwnerID, now); err != nil {
		return "", err
	}
	return id, nil
}
