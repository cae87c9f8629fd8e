package auth

import "time"

// Role segments the dashboard into its three operator populations.
type Role string

const (
	// RoleUser is an end user reporting suspicious activity.
	RoleUser Role = "User"
	// RoleAnalyst triages alerts across all organizations.
	RoleAnalyst Role = "Analyst"
	// RoleIT remediates tickets within its own organization.
	RoleIT Role = "IT"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAnalyst, RoleIT:
		return true
	}
	return false
}

// OrgScoped reports whether accounts with this role are bound to a single
// organization. Analysts operate across tenant boundaries.
func (r Role) OrgScoped() bool {
	return r == RoleUser || r == RoleIT
}

// HomePath is the role's own dashboard route. The guard redirects here when
// a principal reaches a view belonging to another role.
func (r Role) HomePath() string {
	switch r {
	case RoleUser:
		return "/user"
	case RoleAnalyst:
		return "/analyst"
	case RoleIT:
		return "/it"
	}
	return LoginPath
}

// Capability is a fine-grained privilege attached to a principal.
type Capability string

// CapCreateUsers permits provisioning of new accounts.
const CapCreateUsers Capability = "create_users"

// grantable lists which capabilities each role may hold. Combinations
// outside this table are rejected at provisioning time.
var grantable = map[Role][]Capability{
	RoleAnalyst: {CapCreateUsers},
}

// RoleMayHold reports whether the capability is grantable to the role.
func RoleMayHold(r Role, c Capability) bool {
	for _, g := range grantable[r] {
		if g == c {
			return true
		}
	}
	return false
}

// Organization is a tenant boundary scoping which users, alerts and tickets
// a non-analyst principal may see.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an account record. Immutable after provisioning except for the
// password hash; never deleted.
type User struct {
	ID             string       `json:"id"`
	Username       string       `json:"username"`
	PasswordHash   string       `json:"-"`
	Role           Role         `json:"role"`
	OrganizationID string       `json:"organization_id,omitempty"`
	Capabilities   []Capability `json:"capabilities,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// HasCapability reports whether the account holds the capability.
func (u *User) HasCapability(c Capability) bool {
	for _, have := range u.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Principal is the authenticated identity for the duration of a session.
// It is derived from a verified bearer credential and never persisted.
type Principal struct {
	UserID         string
	Username       string
	Role           Role
	OrganizationID string
	Capabilities   map[Capability]struct{}
	ExpiresAt      time.Time
}

// HasCapability reports whether the principal holds the capability.
func (p Principal) HasCapability(c Capability) bool {
	_, ok := p.Capabilities[c]
	return ok
}

// ExpiredAt reports whether the principal's credential has lapsed at the
// given instant.
func (p Principal) ExpiredAt(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Session is the issued bearer credential and its validity window.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
