package permission

import (
	"errors"
	"sync"
)

// BaseRole is the pseudo-role whose permissions every authenticated user holds.
const BaseRole = "*"

// RoleManager composes role masks over a Registry.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

// NewRoleManager returns an empty RoleManager over registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// Registry returns the underlying permission registry.
func (rm *RoleManager) Registry() *Registry {
	return rm.registry
}

// RegisterRole records the permissions granted by roleName. Every permission
// must already be registered.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the mask registered for roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Effective returns the union of the base role and every role in roles.
// Unknown roles contribute nothing.
func (rm *RoleManager) Effective(roles []string) Mask64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask := rm.roles[BaseRole]
	for _, r := range roles {
		mask = mask.Union(rm.roles[r])
	}
	return mask
}

// Allowed reports whether any of roles (or the base role) grants perm.
func (rm *RoleManager) Allowed(roles []string, perm string) bool {
	bit, ok := rm.registry.Bit(perm)
	if !ok {
		return false
	}
	mask := rm.Effective(roles)
	return mask.Has(bit)
}

// Freeze prevents further registrations on the manager and its registry.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
	rm.registry.Freeze()
}

// Count returns the number of registered roles, including the base role.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
