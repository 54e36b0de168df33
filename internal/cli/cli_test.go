package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	gjwt "github.com/golang-jwt/jwt/v5"
	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/jwt"
)

type backend struct {
	t      *testing.T
	signer *jwt.Manager

	mu       sync.Mutex
	valid    map[string]bool
	uploads  []string
	signOuts int
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	signer, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte("settlement-test-secret-32-bytes!")})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	b := &backend{t: t, signer: signer, valid: map[string]bool{}}

	r := chi.NewRouter()
	r.Post("/api/auth/sign-in", func(w http.ResponseWriter, req *http.Request) {
		var creds goSession.Credentials
		_ = json.NewDecoder(req.Body).Decode(&creds)
		if creds.Password != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"accessToken": b.mint()})
	})
	r.Post("/api/auth/refresh", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if !b.isValid(body.RefreshToken) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"accessToken": b.mint()})
	})
	r.Post("/api/auth/sign-out", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		b.signOuts++
		b.valid = map[string]bool{}
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(b.requireBearer)
		r.Get("/api/user/me", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, goSession.User{ID: "u1", Username: "alice", Email: "alice@bank.example", FirstName: "Alice", Role: "ROLE_USER"})
		})
		r.Get("/api/banks", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []map[string]string{{"bin": "412345", "name": "First Bank"}})
		})
		r.Post("/api/invoices/upload/{network}/list-csv-files", func(w http.ResponseWriter, req *http.Request) {
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b.mu.Lock()
			for _, fh := range req.MultipartForm.File["files"] {
				b.uploads = append(b.uploads, chi.URLParam(req, "network")+"/"+fh.Filename)
			}
			b.mu.Unlock()
			writeJSON(w, map[string]bool{"ok": true})
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) mint() string {
	token, err := b.signer.Issue(jwt.Claims{
		Username: "alice",
		Role:     "ROLE_USER",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
			ID:        time.Now().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		b.t.Errorf("mint: %v", err)
	}
	b.mu.Lock()
	b.valid[token] = true
	b.mu.Unlock()
	return token
}

func (b *backend) isValid(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid[token]
}

func (b *backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !b.isValid(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	t     *testing.T
	api   string
	state string
}

func (h harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	app := App(&out)
	app.ErrWriter = io.Discard
	full := append([]string{"gosession", "--api", h.api, "--state-dir", h.state}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestSessionSurvivesInvocations(t *testing.T) {
	b, srv := newBackend(t)
	h := harness{t: t, api: srv.URL, state: t.TempDir()}

	out, err := h.run("login", "-u", "alice", "-p", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "logged in as alice") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, err = h.run("--json", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var who whoami
	if err := json.Unmarshal([]byte(out), &who); err != nil {
		t.Fatalf("decode whoami: %v\n%s", err, out)
	}
	if who.User == nil || who.User.Username != "alice" || who.State != goSession.StateAuthenticated.String() {
		t.Fatalf("unexpected whoami: %+v", who)
	}
	if who.ExpiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", who.ExpiresIn)
	}

	out, err = h.run("get", "/api/banks")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, "First Bank") {
		t.Fatalf("unexpected get output %q", out)
	}

	if _, err := h.run("refresh"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	out, err = h.run("logout")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !strings.Contains(out, "logged out") {
		t.Fatalf("unexpected logout output %q", out)
	}
	b.mu.Lock()
	signOuts := b.signOuts
	b.mu.Unlock()
	if signOuts != 1 {
		t.Fatalf("expected one server sign-out, got %d", signOuts)
	}

	if _, err := h.run("whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected errNotLoggedIn after logout, got %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	_, srv := newBackend(t)
	h := harness{t: t, api: srv.URL, state: t.TempDir()}

	_, err := h.run("login", "-u", "alice", "-p", "wrong")
	if !errors.Is(err, goSession.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := h.run("whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected errNotLoggedIn, got %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	_, srv := newBackend(t)
	h := harness{t: t, api: srv.URL, state: t.TempDir()}

	out, err := h.run("check", "/invoices")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "/login?returnUrl=%2Finvoices") {
		t.Fatalf("expected login redirect, got %q", out)
	}

	if _, err := h.run("login", "-u", "alice", "-p", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err = h.run("check", "--role", "ROLE_USER", "/invoices")
	if err != nil || strings.TrimSpace(out) != "allowed" {
		t.Fatalf("expected allowed, got %q %v", out, err)
	}
	out, err = h.run("check", "--role", "ROLE_ADMIN", "/admin/banks")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, string(goSession.DenyRole)) || !strings.Contains(out, "/dashboard/default") {
		t.Fatalf("expected role denial to landing page, got %q", out)
	}
}

func TestUploadCommand(t *testing.T) {
	b, srv := newBackend(t)
	h := harness{t: t, api: srv.URL, state: t.TempDir()}
	if _, err := h.run("login", "-u", "alice", "-p", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"visa-0301.csv", "visa-0302.csv"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("bin,amount\n412345,10.00\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		paths = append(paths, p)
	}

	out, err := h.run(append([]string{"upload", "--network", "visa"}, paths...)...)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, "using batch") {
		t.Fatalf("expected batch strategy, got %q", out)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.uploads) != 2 || b.uploads[0] != "visa/visa-0301.csv" {
		t.Fatalf("unexpected uploads %v", b.uploads)
	}
}

func TestArgumentErrors(t *testing.T) {
	_, srv := newBackend(t)
	h := harness{t: t, api: srv.URL, state: t.TempDir()}

	if _, err := h.run("get"); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := h.run("login", "-u", "alice"); err == nil {
		t.Fatalf("expected error for missing password")
	}
}
