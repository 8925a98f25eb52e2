package security

import (
	"sort"
	"sync"
)

// Permission names understood by the default roles.
const (
	PermRead   = "read"
	PermWrite  = "write"
	PermDelete = "delete"
	PermAdmin  = "admin"
)

// AccessControl maps users to directly-granted permissions and role
// memberships, and roles to role-level permission grants. There is no
// expiry. Checks expand direct grants first, then roles.
type AccessControl struct {
	mu        sync.RWMutex
	userPerms map[string]map[string]bool
	userRoles map[string]map[string]bool
	rolePerms map[string]map[string]bool
}

// NewAccessControl creates an AccessControl with the default roles:
// admin (all permissions), user (read+write), readonly (read).
func NewAccessControl() *AccessControl {
	return &AccessControl{
		userPerms: make(map[string]map[string]bool),
		userRoles: make(map[string]map[string]bool),
		rolePerms: map[string]map[string]bool{
			"admin":    {PermRead: true, PermWrite: true, PermDelete: true, PermAdmin: true},
			"user":     {PermRead: true, PermWrite: true},
			"readonly": {PermRead: true},
		},
	}
}

// HasPermission reports whether user holds permission, directly or through
// any of its roles.
func (a *AccessControl) HasPermission(user, permission string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.userPerms[user][permission] {
		return true
	}
	for role := range a.userRoles[user] {
		if a.rolePerms[role][permission] {
			return true
		}
	}
	return false
}

// GrantPermission grants a permission directly to a user.
func (a *AccessControl) GrantPermission(user, permission string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.userPerms[user] == nil {
		a.userPerms[user] = make(map[string]bool)
	}
	a.userPerms[user][permission] = true
}

// RevokePermission removes a directly-granted permission. Role-level grants
// are unaffected.
func (a *AccessControl) RevokePermission(user, permission string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.userPerms[user], permission)
}

// GrantRole adds a user to a role.
func (a *AccessControl) GrantRole(user, role string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.userRoles[user] == nil {
		a.userRoles[user] = make(map[string]bool)
	}
	a.userRoles[user][role] = true
}

// RevokeRole removes a user from a role.
func (a *AccessControl) RevokeRole(user, role string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.userRoles[user], role)
}

// DefineRole sets the permission set for a role, replacing any previous
// definition.
func (a *AccessControl) DefineRole(role string, permissions ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		set[p] = true
	}
	a.rolePerms[role] = set
}

// Roles returns the sorted role names a user belongs to.
func (a *AccessControl) Roles(user string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	roles := make([]string, 0, len(a.userRoles[user]))
	for r := range a.userRoles[user] {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}
