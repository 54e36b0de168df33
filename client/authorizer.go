package client

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/internal/redact"
)

// DefaultDenylist holds the pre-authentication endpoints. Requests whose path
// ends with one of them never carry a bearer token; a base path in front of
// the endpoint is allowed.
var DefaultDenylist = []string{
	PathSignIn,
	PathSignUp,
	PathRequestResetPassword,
	PathResetPassword,
	PathVerifyEmail,
	PathRequestVerificationEmail,
}

// SessionSource is what the Authorizer needs from a session.
// *goSession.Session implements it.
type SessionSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// AuthorizerConfig tunes an Authorizer. The zero value uses DefaultDenylist.
type AuthorizerConfig struct {
	Denylist []string
	Metrics  *goSession.Metrics
	Logger   hclog.Logger
}

// Authorizer is an http.RoundTripper that attaches the session's bearer token
// and recovers from expired tokens: a 401 triggers one refresh and exactly one
// retry. A 403 is returned untouched.
type Authorizer struct {
	base     http.RoundTripper
	src      SessionSource
	denylist []string
	metrics  *goSession.Metrics
	log      hclog.Logger
}

// NewAuthorizer wraps base. A nil base means http.DefaultTransport.
func NewAuthorizer(src SessionSource, base http.RoundTripper, cfg AuthorizerConfig) *Authorizer {
	if base == nil {
		base = http.DefaultTransport
	}
	deny := cfg.Denylist
	if deny == nil {
		deny = DefaultDenylist
	}
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Authorizer{
		base:     base,
		src:      src,
		denylist: deny,
		metrics:  cfg.Metrics,
		log:      log.Named("authorizer"),
	}
}

// ForSession wires an Authorizer to s, sharing its counters and logger.
func ForSession(s *goSession.Session, base http.RoundTripper) *Authorizer {
	return NewAuthorizer(s, base, AuthorizerConfig{Metrics: s.Metrics(), Logger: s.Logger()})
}

// IsPreAuth reports whether path belongs to a pre-authentication endpoint.
func (a *Authorizer) IsPreAuth(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, endpoint := range a.denylist {
		if strings.HasSuffix(path, endpoint) {
			return true
		}
	}
	return false
}

func (a *Authorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if a.IsPreAuth(req.URL.Path) {
		if req.Header.Get("Authorization") == "" {
			return a.base.RoundTrip(req)
		}
		r := req.Clone(ctx)
		r.Header.Del("Authorization")
		return a.base.RoundTrip(r)
	}

	token, err := a.src.AccessToken(ctx)
	if err != nil {
		a.log.Warn("reading access token failed, sending unauthenticated", "error", err)
		token = ""
	}

	resp, err := a.base.RoundTrip(withBearer(req, token))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
	case http.StatusForbidden:
		a.metrics.Inc(goSession.MetricForbiddenResponse)
		a.log.Debug("request forbidden", "method", req.Method, "path", req.URL.Path)
		return resp, nil
	default:
		return resp, nil
	}

	a.metrics.Inc(goSession.MetricUnauthorizedResponse)
	a.log.Debug("request unauthorized, refreshing", "method", req.Method, "path", req.URL.Path, "token", redact.Fingerprint(token))

	fresh, rerr := a.src.Refresh(ctx)
	if rerr != nil {
		a.log.Warn("refresh after 401 failed", "path", req.URL.Path, "error", rerr)
		if lerr := a.src.Logout(ctx); lerr != nil {
			a.log.Warn("logout after failed refresh", "error", lerr)
		}
		return resp, nil
	}

	retry, ok := replay(req)
	if !ok {
		a.log.Warn("request body cannot be replayed, returning 401", "method", req.Method, "path", req.URL.Path)
		return resp, nil
	}
	drain(resp)

	a.metrics.Inc(goSession.MetricRetryAfterRefresh)
	resp2, err := a.base.RoundTrip(withBearer(retry, fresh))
	if err != nil {
		return nil, err
	}
	if resp2.StatusCode == http.StatusUnauthorized {
		a.metrics.Inc(goSession.MetricUnauthorizedResponse)
		a.log.Warn("retried request still unauthorized, logging out", "method", req.Method, "path", req.URL.Path)
		if lerr := a.src.Logout(ctx); lerr != nil {
			a.log.Warn("logout after repeated 401", "error", lerr)
		}
	}
	return resp2, nil
}

// withBearer returns a copy of req carrying token, or without Authorization
// when token is empty.
func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token == "" {
		r.Header.Del("Authorization")
		return r
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func replay(req *http.Request) (*http.Request, bool) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	r.Body = body
	return r, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
