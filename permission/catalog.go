package permission

import (
	"fmt"
	"slices"
	"strings"
)

// Actions a permission may name.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionUpload = "upload"
)

var actions = []string{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionUpload}

// Name joins resource and action into a permission name.
func Name(resource, action string) string {
	return resource + ":" + action
}

// Parse splits a permission name and validates its action.
func Parse(perm string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(perm, ":")
	if !ok || strings.TrimSpace(resource) == "" {
		return "", "", fmt.Errorf("invalid permission %q: want resource:action", perm)
	}
	if !slices.Contains(actions, action) {
		return "", "", fmt.Errorf("invalid permission %q: unknown action %q", perm, action)
	}
	return resource, action, nil
}

// Catalog maps role names (or BaseRole) to the permissions they grant.
type Catalog map[string][]string

// DefaultCatalog returns the back-office defaults: settlement files and
// invoices for every signed-in user, reporting and administration screens for
// managers.
func DefaultCatalog() Catalog {
	return Catalog{
		BaseRole: {
			"visa-invoices:view",
			"visa-invoices:create",
			"visa-invoices:edit",
			"visa-invoices:upload",
			"mastercard-invoices:view",
			"mastercard-invoices:create",
			"mastercard-invoices:upload",
			"csv-files:view",
			"csv-files:upload",
		},
		"ROLE_MANAGER": {
			"analytics:view",
			"actions-follow-up:view",
			"users-list:view",
			"bank-list:view",
			"bank-list:create",
			"bank-list:edit",
			"settings:view",
		},
	}
}

// Build registers every permission in c, then every role, and freezes the
// result. Roles are registered in sorted order so bit assignment is stable.
func (c Catalog) Build() (*RoleManager, error) {
	roles := make([]string, 0, len(c))
	for role := range c {
		roles = append(roles, role)
	}
	slices.Sort(roles)

	reg := NewRegistry()
	for _, role := range roles {
		for _, perm := range c[role] {
			if _, ok := reg.Bit(perm); ok {
				continue
			}
			if _, err := reg.Register(perm); err != nil {
				return nil, fmt.Errorf("register %s: %w", perm, err)
			}
		}
	}

	rm := NewRoleManager(reg)
	for _, role := range roles {
		if err := rm.RegisterRole(role, c[role]); err != nil {
			return nil, fmt.Errorf("register role %s: %w", role, err)
		}
	}
	rm.Freeze()
	return rm, nil
}
