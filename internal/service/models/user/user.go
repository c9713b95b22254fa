package user

import (
	"errors"

	"github.com/google/uuid"
)

// Role mirrors the roles issued by the auth backend.
type Role string

const (
	RoleStudent        Role = "student"
	RoleCafeteriaAdmin Role = "cafeteria_admin"
	RoleSuperAdmin     Role = "super_admin"
)

var ErrInvalidRole = errors.New("invalid role")

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleCafeteriaAdmin, RoleSuperAdmin:
		return Role(s), nil
	case "":
		return RoleStudent, nil
	default:
		return "", ErrInvalidRole
	}
}

// CanManageOrders reports whether the role may change order status.
func (r Role) CanManageOrders() bool {
	return r == RoleCafeteriaAdmin || r == RoleSuperAdmin
}

// User is the authenticated identity.
type User struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
	Role Role      `json:"role"`
}
