package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	gjwt "github.com/golang-jwt/jwt/v5"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/jwt"
)

type stubAPI struct {
	goSession.AuthAPI
	token string
	role  string
}

func (a *stubAPI) SignIn(context.Context, goSession.Credentials) (string, error) {
	return a.token, nil
}

func (a *stubAPI) Me(context.Context, string) (*goSession.User, error) {
	return &goSession.User{Username: "alice", Role: a.role}, nil
}

func newGuardedRouter(t *testing.T, role string, login bool) http.Handler {
	t.Helper()
	signer, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte("settlement-test-secret-32-bytes!")})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	token, err := signer.Issue(jwt.Claims{RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour))}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cfg := goSession.DefaultConfig()
	cfg.Refresh.Periodic = false
	s, err := goSession.New().WithConfig(cfg).WithAuthAPI(&stubAPI{token: token, role: role}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(s.Close)
	if login {
		if _, err := s.Login(context.Background(), "alice", "pw"); err != nil {
			t.Fatalf("Login: %v", err)
		}
	}

	hello := func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "hello "+u.Username)
	}

	r := chi.NewRouter()
	r.With(GuestOnly(s)).Get("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "login form")
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s))
		r.Get("/dashboard/default", hello)
		r.Post("/dashboard/invoices", hello)
	})
	r.With(RequireRole(s, "ROLE_MANAGER")).Get("/dashboard/analytics", hello)
	r.With(RequirePermission(s, "bank-list:edit")).Post("/dashboard/banks", hello)
	return r
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestAnonymousRedirectedToLoginWithReturnURL(t *testing.T) {
	h := newGuardedRouter(t, "ROLE_USER", false)

	rec := serve(h, http.MethodGet, "/dashboard/default?tab=visa")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?returnUrl=%2Fdashboard%2Fdefault%3Ftab%3Dvisa" {
		t.Fatalf("unexpected Location %q", loc)
	}

	if rec := serve(h, http.MethodPost, "/dashboard/invoices"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for POST, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/login"); rec.Code != http.StatusOK {
		t.Fatalf("guest should reach login, got %d", rec.Code)
	}
}

func TestAuthenticatedUserPassesAndSeesProfile(t *testing.T) {
	h := newGuardedRouter(t, "ROLE_USER", true)

	rec := serve(h, http.MethodGet, "/dashboard/default")
	if rec.Code != http.StatusOK || rec.Body.String() != "hello alice" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	rec = serve(h, http.MethodGet, "/login")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard/default" {
		t.Fatalf("authenticated user should leave login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRoleGatedRouteRedirectsToLanding(t *testing.T) {
	h := newGuardedRouter(t, "ROLE_USER", true)

	rec := serve(h, http.MethodGet, "/dashboard/analytics")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard/default" {
		t.Fatalf("expected landing redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec := serve(h, http.MethodPost, "/dashboard/banks"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestManagerReachesGatedRoutes(t *testing.T) {
	h := newGuardedRouter(t, "ROLE_MANAGER", true)

	if rec := serve(h, http.MethodGet, "/dashboard/analytics"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/dashboard/banks"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
