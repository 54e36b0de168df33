package goSession

import (
	"context"
	"net/url"
)

// Gate decides whether navigation to a route may proceed.
type Gate struct {
	s *Session
}

// Gate returns the authorization gate bound to s.
func (s *Session) Gate() *Gate {
	return &Gate{s: s}
}

// Check evaluates route for the current session:
//
//  1. no valid token: redirect to login with the route as return URL
//  2. token about to expire: refresh, and on failure redirect to login
//  3. not Authenticated or no profile: redirect to login
//  4. in strict mode, a missing required role or permission redirects to
//     the landing page
//
// With StrictAuthMode off step 4 is skipped.
func (g *Gate) Check(ctx context.Context, route Route) Decision {
	s := g.s

	if !s.tokens.IsValid(ctx) {
		return g.deny(ctx, route, s.loginRedirect(route.Path), DenyNoToken)
	}
	if s.tokens.IsAboutToExpire(ctx) && !s.CheckAndRefresh(ctx) {
		return g.deny(ctx, route, s.loginRedirect(route.Path), DenyRefreshFailed)
	}
	if !s.IsAuthenticated(ctx) {
		return g.deny(ctx, route, s.loginRedirect(route.Path), DenyNotAuthenticated)
	}

	if s.cfg.StrictAuthMode {
		if len(route.RequiredRoles) > 0 && !s.HasRole(ctx, route.RequiredRoles...) {
			return g.deny(ctx, route, s.cfg.Routes.LandingPath, DenyRole)
		}
		if route.RequiredPermission != "" && !s.HasPermission(ctx, route.RequiredPermission) {
			return g.deny(ctx, route, s.cfg.Routes.LandingPath, DenyPermission)
		}
	}

	s.metrics.Inc(MetricGateAllowed)
	return Decision{Allowed: true}
}

// CheckGuest guards guest-only pages such as the login form: an
// authenticated user is sent to the landing page.
func (g *Gate) CheckGuest(ctx context.Context) Decision {
	s := g.s
	if s.IsAuthenticated(ctx) {
		return Decision{RedirectTo: s.cfg.Routes.LandingPath, Reason: DenyAuthenticated}
	}
	return Decision{Allowed: true}
}

func (g *Gate) deny(ctx context.Context, route Route, to string, reason DenyReason) Decision {
	s := g.s
	switch reason {
	case DenyRole, DenyPermission:
		s.metrics.Inc(MetricGateDeniedRole)
	default:
		s.metrics.Inc(MetricGateDeniedLogin)
	}
	s.log.Debug("navigation denied", "path", route.Path, "reason", string(reason))

	ev := s.auditEvent(ctx, AuditGateDenied, nil)
	ev.Success = false
	ev.Metadata = map[string]string{"path": route.Path, "reason": string(reason)}
	s.audit.Emit(ctx, ev)

	return Decision{RedirectTo: to, Reason: reason}
}

func (s *Session) loginRedirect(path string) string {
	if path == "" {
		return s.cfg.Routes.LoginPath
	}
	q := url.Values{}
	q.Set(s.cfg.Routes.ReturnURLParam, path)
	return s.cfg.Routes.LoginPath + "?" + q.Encode()
}
