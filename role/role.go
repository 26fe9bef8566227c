// Package role maps directory group membership onto the portal's access tiers.
package role

import "slices"

// Role is a coarse access tier. It is always derived, never stored.
type Role string

const (
	// Admin sees every service entry.
	Admin Role = "admin"
	// User sees entries open to everyone plus its allow-list.
	User Role = "user"
	// Unauthorized is an authenticated identity in neither configured group.
	Unauthorized Role = "unauthorized"
	// None means there is no usable session.
	None Role = "none"
)

// All lists the closed set of roles.
var All = []Role{Admin, User, Unauthorized, None}

// Parse converts a string into a Role. Unknown values report false.
func Parse(s string) (Role, bool) {
	r := Role(s)
	if slices.Contains(All, r) {
		return r, true
	}
	return None, false
}

func (r Role) String() string {
	return string(r)
}

// IsAuthorized reports whether the role may see any service entry at all.
func (r Role) IsAuthorized() bool {
	return r == Admin || r == User
}

// Groups holds the configured directory group ids.
type Groups struct {
	AdminGroupID string
	UserGroupID  string
}

// FromGroups maps a membership set to a role. The admin check always runs
// first, so membership in both groups yields Admin.
func FromGroups(memberships []string, groups Groups) Role {
	if groups.AdminGroupID != "" && slices.Contains(memberships, groups.AdminGroupID) {
		return Admin
	}
	if groups.UserGroupID != "" && slices.Contains(memberships, groups.UserGroupID) {
		return User
	}
	return Unauthorized
}
