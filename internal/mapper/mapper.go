// Package mapper turns legacy owner units into target entity groups. It performs
// no I/O and generates no identities, so the same input always maps to the same output.
package mapper

import (
	"strings"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
	"github.com/loykin/woodlandmigrate/internal/util"
)

// organisationRoleMarkers flag a legacy agent role as an organisation rather than an individual.
var organisationRoleMarkers = []string{"organisation", "organization", "company", "agency"}

// Mapper classifies accounts using the configured administrative role names.
type Mapper struct {
	adminRoles map[string]struct{}
}

// New returns a Mapper. An empty adminRoles falls back to constants.DefaultAdminRoles.
func New(adminRoles []string) *Mapper {
	if len(adminRoles) == 0 {
		adminRoles = constants.DefaultAdminRoles
	}
	m := &Mapper{adminRoles: make(map[string]struct{}, len(adminRoles))}
	for _, r := range adminRoles {
		if r = util.TrimAndLower(r); r != "" {
			m.adminRoles[r] = struct{}{}
		}
	}
	return m
}

// MapUnit maps one unit, reporting reader-detected linkage problems as data integrity errors.
func (m *Mapper) MapUnit(u domain.Unit) (domain.Group, error) {
	if u.Problem != "" {
		return domain.Group{}, domain.DataIntegrityf(u.Owner.ID, "%s", u.Problem)
	}
	return m.Map(u.Owner)
}

// Map derives the WoodlandOwner, optional Agency and accounts for a legacy owner.
func (m *Mapper) Map(owner domain.LegacyManagedOwner) (domain.Group, error) {
	wo, err := mapWoodlandOwner(owner)
	if err != nil {
		return domain.Group{}, err
	}

	switch mg := owner.Management.(type) {
	case domain.SelfManaged:
		group := domain.Group{WoodlandOwner: wo}
		login, role, ok := selfLogin(owner, mg.User)
		if !ok {
			return group, nil
		}
		group.Accounts = []domain.UserAccount{m.account(login, role, domain.AccountTypeOwner)}
		return group, nil

	case domain.AgentManaged:
		agent := mg.Agent
		if agent.ID == 0 {
			return domain.Group{}, domain.DataIntegrityf(owner.ID, "agent-managed owner has no agent user")
		}
		if _, ok := util.TrimEmptyCheck(agent.Email); !ok {
			return domain.Group{}, domain.DataIntegrityf(owner.ID, "agent user %d has no email", agent.ID)
		}
		role := util.TrimWithDefault(mg.AgentRole, agent.RoleName)
		agency, err := mapAgency(owner.ID, agent, role)
		if err != nil {
			return domain.Group{}, err
		}
		return domain.Group{
			WoodlandOwner: wo,
			Agency:        &agency,
			Accounts:      []domain.UserAccount{m.account(agent, role, domain.AccountTypeAgent)},
		}, nil

	default:
		return domain.Group{}, domain.DataIntegrityf(owner.ID, "owner has no management information")
	}
}

// AccountType classifies a role: administrative roles win over the fallback.
func (m *Mapper) AccountType(role string, fallback domain.AccountType) domain.AccountType {
	if _, ok := m.adminRoles[util.TrimAndLower(role)]; ok {
		return domain.AccountTypeAdministrative
	}
	return fallback
}

func (m *Mapper) account(u domain.LegacyUser, role string, fallback domain.AccountType) domain.UserAccount {
	return domain.UserAccount{
		AccountType:     m.AccountType(role, fallback),
		Email:           strings.TrimSpace(u.Email),
		NormalizedEmail: util.NormalizeEmail(u.Email),
		Title:           strings.TrimSpace(u.Title),
		FirstName:       strings.TrimSpace(u.FirstName),
		LastName:        strings.TrimSpace(u.LastName),
		Contact:         withEmail(trimContact(u.Contact), u.Email),
		LegacyUserID:    u.ID,
	}
}

// selfLogin picks the identity an owner account is derived from: the linked
// login user when it has an email, otherwise the owner record itself. Owner
// derived accounts carry legacy user id 0.
func selfLogin(owner domain.LegacyManagedOwner, user *domain.LegacyUser) (domain.LegacyUser, string, bool) {
	if user != nil {
		if _, ok := util.TrimEmptyCheck(user.Email); ok {
			return *user, user.RoleName, true
		}
	}
	if _, ok := util.TrimEmptyCheck(owner.Contact.Email); !ok {
		return domain.LegacyUser{}, "", false
	}
	role := ""
	if user != nil {
		role = user.RoleName
	}
	return domain.LegacyUser{
		Title:     owner.Title,
		FirstName: owner.FirstName,
		LastName:  owner.LastName,
		Email:     owner.Contact.Email,
		Contact:   owner.Contact,
	}, role, true
}

func mapWoodlandOwner(o domain.LegacyManagedOwner) (domain.WoodlandOwner, error) {
	wo := domain.WoodlandOwner{
		LegacyOwnerID:  o.ID,
		IsOrganisation: o.IsOrganisation,
		ContactName:    util.JoinNonEmpty(" ", o.Title, o.FirstName, o.LastName),
		Contact:        trimContact(o.Contact),
	}
	if o.IsOrganisation {
		name, ok := util.TrimEmptyCheck(o.OrganisationName)
		if !ok {
			return domain.WoodlandOwner{}, domain.DataIntegrityf(o.ID, "organisation owner has no organisation name")
		}
		wo.OrganisationName = name
		return wo, nil
	}
	if wo.ContactName == "" {
		return domain.WoodlandOwner{}, domain.DataIntegrityf(o.ID, "owner has no contact name")
	}
	return wo, nil
}

func mapAgency(ownerID int64, agent domain.LegacyUser, role string) (domain.Agency, error) {
	company, hasCompany := util.TrimEmptyCheck(agent.CompanyName)
	a := domain.Agency{
		LegacyAgentUserID: agent.ID,
		IsOrganisation:    hasCompany || isOrganisationRole(role),
		ContactName:       util.JoinNonEmpty(" ", agent.Title, agent.FirstName, agent.LastName),
		Contact:           withEmail(trimContact(agent.Contact), agent.Email),
	}
	if a.IsOrganisation {
		a.OrganisationName = company
		if a.OrganisationName == "" {
			a.OrganisationName = a.ContactName
		}
	}
	if a.ContactName == "" && a.OrganisationName == "" {
		return domain.Agency{}, domain.DataIntegrityf(ownerID, "agent user %d has neither a name nor a company", agent.ID)
	}
	return a, nil
}

func isOrganisationRole(role string) bool {
	r := util.TrimAndLower(role)
	for _, marker := range organisationRoleMarkers {
		if strings.Contains(r, marker) {
			return true
		}
	}
	return false
}

func trimContact(c domain.Contact) domain.Contact {
	f := util.TrimSpaceFields(c.Email, c.Telephone, c.Mobile, c.Line1, c.Line2, c.Line3, c.Line4, c.Postcode)
	return domain.Contact{
		Email: f[0], Telephone: f[1], Mobile: f[2],
		Line1: f[3], Line2: f[4], Line3: f[5], Line4: f[6],
		Postcode: strings.ToUpper(f[7]),
	}
}

func withEmail(c domain.Contact, email string) domain.Contact {
	if c.Email == "" {
		c.Email = strings.TrimSpace(email)
	}
	return c
}
