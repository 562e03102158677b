package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleVendor   Role = "VENDOR"
	RoleAdmin    Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// CanViewAny reports whether the role may read records owned by other users.
func (r Role) CanViewAny() bool {
	switch r {
	case RoleAdmin, RoleVendor:
		return true
	case RoleCustomer:
		return false
	}
	return false
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Principal is the caller identity resolved by the access gate.
type Principal struct {
	Email string
	Role  Role
}

func (p Principal) RequireAdmin() error {
	if !p.Role.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrAccessDenied)
	}
	return nil
}

// CanView reports whether p may read a record owned by ownerEmail.
func (p Principal) CanView(ownerEmail string) bool {
	return p.Role.CanViewAny() || p.Email == ownerEmail
}
