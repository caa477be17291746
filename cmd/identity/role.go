package identity

import "strings"

// Role is a flat authorization label carried in access tokens.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// DefaultRole is assigned to self-registered users.
const DefaultRole = RoleAgent

// ParseRole maps s to a known Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAgent, RoleAdmin, RoleCustomer:
		return r, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }
