package middleware

import (
	"net/http"

	goSession "github.com/moneysab/goSession"
)

// RequireAuth admits any authenticated user.
func RequireAuth(s *goSession.Session) func(http.Handler) http.Handler {
	return Guard(s, func(*http.Request) goSession.Route { return goSession.Route{} })
}

// RequireRole admits users holding at least one of roles. Others are sent to
// the landing page.
func RequireRole(s *goSession.Session, roles ...string) func(http.Handler) http.Handler {
	return Guard(s, func(*http.Request) goSession.Route {
		return goSession.Route{RequiredRoles: roles}
	})
}

// RequirePermission admits users whose roles grant perm ("resource:action").
func RequirePermission(s *goSession.Session, perm string) func(http.Handler) http.Handler {
	return Guard(s, func(*http.Request) goSession.Route {
		return goSession.Route{RequiredPermission: perm}
	})
}

// GuestOnly keeps authenticated users away from pages like the login form.
func GuestOnly(s *goSession.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil {
				next.ServeHTTP(w, r)
				return
			}
			if d := s.Gate().CheckGuest(r.Context()); !d.Allowed {
				deny(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
