package jwt

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload issued by the back-office API.
type Claims struct {
	Username string   `json:"username,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Expiry returns the exp claim. ok is false when the token carries none.
func (c *Claims) Expiry() (time.Time, bool) {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// AllRoles merges the single role claim with the roles array, without
// duplicates and in first-seen order.
func (c *Claims) AllRoles() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Roles)+1)
	add := func(r string) {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			return
		}
		out = append(out, r)
	}
	add(c.Role)
	for _, r := range c.Roles {
		add(r)
	}
	return out
}

// InGroup reports whether group is listed in the groups claim.
func (c *Claims) InGroup(group string) bool {
	return c != nil && slices.Contains(c.Groups, group)
}

// InAnyGroup reports whether at least one of groups is listed in the groups claim.
func (c *Claims) InAnyGroup(groups ...string) bool {
	for _, g := range groups {
		if c.InGroup(g) {
			return true
		}
	}
	return false
}
