package services

import "github.com/jrsteele09/helpdesk-portal/role"

// IsVisible is the visibility gate for a single entry: admins see
// everything, users see entries open to all plus their allow-list, and
// unauthorized or absent roles see nothing.
func IsVisible(r role.Role, e Entry, allowedNames map[string]struct{}) bool {
	if !r.IsAuthorized() {
		return false
	}
	if r == role.Admin || e.RequiredRole == RequireAll {
		return true
	}
	_, ok := allowedNames[e.Name]
	return ok
}

// Visibility returns one flag per catalog entry, in catalog order. It is
// recomputed from scratch on every call.
func (c *Catalog) Visibility(r role.Role) []bool {
	vis := make([]bool, len(c.entries))
	for i, e := range c.entries {
		vis[i] = IsVisible(r, e, c.allow[r])
	}
	return vis
}

// Visible returns the entries r may see, in catalog order.
func (c *Catalog) Visible(r role.Role) []Entry {
	var out []Entry
	for i, ok := range c.Visibility(r) {
		if ok {
			out = append(out, c.entries[i])
		}
	}
	return out
}
