// Package domain holds the legacy (V1) and target (V2) entity shapes, the
// per-unit state machine and the engine's error taxonomy.
package domain

// Contact is the address and contact block shared by legacy and target records.
type Contact struct {
	Email     string
	Telephone string
	Mobile    string
	Line1     string
	Line2     string
	Line3     string
	Line4     string
	Postcode  string
}

// LegacyUser is a login-capable V1 user. Email is unique within V1, case-insensitively.
type LegacyUser struct {
	ID          int64
	Title       string
	FirstName   string
	LastName    string
	Email       string
	RoleName    string
	CompanyName string
	Contact     Contact
}

// Management says who manages a legacy owner. It is either SelfManaged or AgentManaged.
type Management interface {
	isManagement()
}

// SelfManaged owners log in as themselves. User is nil when the owner has no
// login user in V1.
type SelfManaged struct {
	User *LegacyUser
}

// AgentManaged owners are administered by another V1 user acting as agent.
type AgentManaged struct {
	Agent     LegacyUser
	AgentRole string
}

func (SelfManaged) isManagement()  {}
func (AgentManaged) isManagement() {}

// LegacyManagedOwner is a V1 woodland owner record.
type LegacyManagedOwner struct {
	ID               int64
	Management       Management
	Title            string
	FirstName        string
	LastName         string
	IsOrganisation   bool
	OrganisationName string
	Contact          Contact
}

// IsSelfManagedOwner reports whether the owner manages its own account.
func (o LegacyManagedOwner) IsSelfManagedOwner() bool {
	_, ok := o.Management.(SelfManaged)
	return ok
}

// DocumentRef points at one legacy file belonging to an owner.
type DocumentRef struct {
	ID          int64
	OwnerID     int64
	FileName    string
	ContentType string
	StorageKey  string
	Size        int64
}

// Unit is the atomic unit of work: one legacy owner, its linked user (inside
// Management) and its documents.
type Unit struct {
	Owner     LegacyManagedOwner
	Documents []DocumentRef
	// Problem is set by the reader when the V1 linkage is broken (for example an
	// agent-managed owner whose agent user row is missing).
	Problem string
}

// LinkedUser returns the user the unit is migrated with: the owner's own login
// user or the agent. ok is false for a self-managed owner without a login user.
func (u Unit) LinkedUser() (LegacyUser, bool) {
	switch m := u.Owner.Management.(type) {
	case SelfManaged:
		if m.User == nil {
			return LegacyUser{}, false
		}
		return *m.User, true
	case AgentManaged:
		return m.Agent, true
	default:
		return LegacyUser{}, false
	}
}
