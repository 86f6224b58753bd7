package shared

import "strings"

// Role is the caller role supplied by the auth collaborator at the edge.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RolePharmacist Role = "PHARMACIST"
	RolePicker     Role = "PICKER"
)

// ParseRole normalises a raw role string; unknown values map to "".
func ParseRole(raw string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleManager:
		return RoleManager
	case RolePharmacist:
		return RolePharmacist
	case RolePicker:
		return RolePicker
	}
	return ""
}

// RoleAllowed reports whether the caller role is in the allowed set.
// ADMIN passes every check.
func RoleAllowed(caller Role, allowed ...Role) bool {
	if caller == RoleAdmin {
		return true
	}
	for _, role := range allowed {
		if caller == role {
			return true
		}
	}
	return false
}
