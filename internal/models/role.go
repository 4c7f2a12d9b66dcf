package models

// Role is a server membership role. Roles are ordered: owner > admin > member.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r.level() > 0 }

// HasAtLeast reports whether r grants at least the privileges of required.
// Every authorization check in the service goes through this predicate.
func (r Role) HasAtLeast(required Role) bool { return r.level() >= required.level() }
