package domain

// AccountType classifies a target user account.
type AccountType string

const (
	AccountTypeOwner          AccountType = "owner"
	AccountTypeAgent          AccountType = "agent"
	AccountTypeAdministrative AccountType = "administrative"
)

// Agency is an organisation or individual acting as agent for woodland owners.
type Agency struct {
	ID                string
	LegacyAgentUserID int64
	IsOrganisation    bool
	OrganisationName  string
	ContactName       string
	Contact           Contact
}

// WoodlandOwner is created for every legacy owner.
type WoodlandOwner struct {
	ID             string
	LegacyOwnerID  int64
	AgencyID       string
	IsOrganisation bool
	// OrganisationName is empty unless IsOrganisation is set.
	OrganisationName string
	ContactName      string
	Contact          Contact
}

// UserAccount is a login account in V2, deduplicated by NormalizedEmail.
type UserAccount struct {
	ID              string
	AccountType     AccountType
	Email           string
	NormalizedEmail string
	Title           string
	FirstName       string
	LastName        string
	Contact         Contact
	LegacyUserID    int64
}

// Group is the mapped output of one unit. Agency is nil for self-managed owners.
type Group struct {
	WoodlandOwner WoodlandOwner
	Agency        *Agency
	Accounts      []UserAccount
}

// Identities are the target ids resolved (created or reused) by a write.
type Identities struct {
	WoodlandOwnerID string
	AgencyID        string
	// AccountIDs is keyed by normalized email.
	AccountIDs map[string]string
}
