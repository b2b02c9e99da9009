package domain

// Role identifies what a bearer token may do.
type Role string

const (
	// RoleStaff is held by support staff operating tickets.
	RoleStaff Role = "staff"
	// RoleBridge is held by the chat bridge reporting channels and messages.
	RoleBridge Role = "bridge"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleBridge
}
