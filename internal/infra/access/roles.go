// Package access implements the admin/oracle role policy handed to every
// ledger at construction.
package access

import (
	"fmt"
	"sync"

	"github.com/tutu-network/cityledger/internal/domain"
)

// Role names a singleton role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleOracle Role = "oracle"
)

// ParseRole accepts "admin" or "oracle".
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleOracle:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q: %w", s, domain.ErrInvalidArgument)
}

// Roles is a rotatable domain.AccessPolicy holding one identity per role.
type Roles struct {
	mu     sync.RWMutex
	admin  domain.Identity
	oracle domain.Identity
}

// NewRoles creates a policy with the given role holders.
func NewRoles(admin, oracle domain.Identity) *Roles {
	return &Roles{admin: admin, oracle: oracle}
}

func (r *Roles) IsAdmin(id domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != "" && id == r.admin
}

func (r *Roles) IsOracle(id domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != "" && id == r.oracle
}

// Holder returns the identity currently holding role.
func (r *Roles) Holder(role Role) domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role == RoleAdmin {
		return r.admin
	}
	return r.oracle
}

// Rotate hands role to next. Only the current admin may rotate.
func (r *Roles) Rotate(caller domain.Identity, role Role, next domain.Identity) error {
	if next == "" {
		return fmt.Errorf("rotate %s: empty identity: %w", role, domain.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if caller == "" || caller != r.admin {
		return fmt.Errorf("rotate %s: %w", role, domain.ErrUnauthorized)
	}
	switch role {
	case RoleAdmin:
		r.admin = next
	case RoleOracle:
		r.oracle = next
	default:
		return fmt.Errorf("unknown role %q: %w", role, domain.ErrInvalidArgument)
	}
	return nil
}
