package middleware

import (
	"context"
	"net/http"

	goSession "github.com/moneysab/goSession"
)

type userContextKey struct{}

// UserFromContext returns the profile injected by a guard that allowed the
// request.
func UserFromContext(ctx context.Context) (*goSession.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*goSession.User)
	return u, ok && u != nil
}

// Guard runs the session gate for every request. route builds the gate input
// from the request; its Path defaults to the request URI so the login
// redirect can return the user where they were headed.
//
// Denied GET and HEAD requests are redirected with 303. Other methods get 401
// when the gate points to login and 403 otherwise, since a redirect would
// drop their body.
func Guard(s *goSession.Session, route func(*http.Request) goSession.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			rt := route(r)
			if rt.Path == "" {
				rt.Path = r.URL.RequestURI()
			}

			d := s.Gate().Check(r.Context(), rt)
			if !d.Allowed {
				deny(w, r, d)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, s.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, d goSession.Decision) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
		return
	}
	switch d.Reason {
	case goSession.DenyRole, goSession.DenyPermission, goSession.DenyAuthenticated:
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}
