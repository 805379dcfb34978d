package rbac

import (
	"slices"

	"github.com/pilab-dev/exam-sso/domain"
)

// Session Management
const (
	PermSessionsReadSelf     = "sessions:read_self"
	PermSessionsRevokeSelf   = "sessions:revoke_self"
	PermSessionsRevokeOthers = "sessions:revoke_others"
)

// Audit
const (
	PermAuditReadAll = "audit:read_all"
)

// RoleToPermissionsMap maps roles to their granted permissions.
var RoleToPermissionsMap = map[string][]string{
	domain.RoleStudent: {
		PermSessionsReadSelf,
		PermSessionsRevokeSelf,
	},
	// Proctors end the sessions of candidates removed from an exam.
	domain.RoleProctor: {
		PermSessionsReadSelf,
		PermSessionsRevokeSelf,
		PermSessionsRevokeOthers,
	},
	domain.RoleAdmin: {
		PermSessionsReadSelf,
		PermSessionsRevokeSelf,
		PermSessionsRevokeOthers,
		PermAuditReadAll,
	},
}

// HasPermission checks if a list of roles grants a specific permission.
// Unknown roles grant nothing.
func HasPermission(roles []string, requiredPermission string) bool {
	for _, role := range roles {
		if slices.Contains(RoleToPermissionsMap[role], requiredPermission) {
			return true
		}
	}

	return false
}
