package goSession

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/moneysab/goSession/jwt"
	"github.com/moneysab/goSession/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testSigner = func() *jwt.Manager {
	m, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte("settlement-test-secret-32-bytes!")})
	if err != nil {
		panic(err)
	}
	return m
}()

// mintToken returns a token for alice expiring ttl after clock's now.
func mintToken(t testing.TB, clock *testClock, ttl time.Duration, roles ...string) string {
	t.Helper()
	now := clock.Now()
	token, err := testSigner.Issue(jwt.Claims{
		Username: "alice",
		Roles:    roles,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "42",
			IssuedAt:  gjwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: gjwt.NewNumericDate(now.Add(ttl)),
			ID:        now.Add(ttl).String(),
		},
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

type fakeAPI struct {
	mu sync.Mutex

	signInToken string
	signInErr   error
	lastCreds   Credentials

	refreshToken string
	refreshErr   error
	refreshGate  chan struct{}
	refreshSeen  []string

	user  *User
	meErr error

	signOutErr   error
	updateErrs   []error
	updateTokens []string
	onUpdate     func()
	verifyToken  string

	signIns   atomic.Int32
	refreshes atomic.Int32
	mes       atomic.Int32
	signOuts  atomic.Int32
	resets    atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		user: &User{ID: "42", Username: "alice", Email: "alice@example.com", FirstName: "Alice", Role: "ROLE_USER"},
	}
}

func (f *fakeAPI) SignIn(_ context.Context, creds Credentials) (string, error) {
	f.signIns.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreds = creds
	return f.signInToken, f.signInErr
}

func (f *fakeAPI) Refresh(ctx context.Context, current string) (string, error) {
	f.refreshes.Add(1)
	f.mu.Lock()
	gate := f.refreshGate
	f.refreshSeen = append(f.refreshSeen, current)
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshToken, f.refreshErr
}

func (f *fakeAPI) SignOut(context.Context, string) error {
	f.signOuts.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeAPI) Me(context.Context, string) (*User, error) {
	f.mes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.user.Clone(), nil
}

func (f *fakeAPI) UpdateProfile(_ context.Context, token string, update ProfileUpdate) (*User, error) {
	f.mu.Lock()
	hook := f.onUpdate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateTokens = append(f.updateTokens, token)
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &User{Username: update.Username, Email: update.Email, Timezone: update.Timezone}, nil
}

func (f *fakeAPI) ChangePassword(context.Context, string, string, string) error {
	return nil
}

func (f *fakeAPI) SignUp(_ context.Context, reg Registration) (*RegistrationResult, error) {
	return &RegistrationResult{Username: reg.Username, Email: reg.Email}, nil
}

func (f *fakeAPI) VerifyEmail(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyToken, nil
}

func (f *fakeAPI) RequestPasswordReset(context.Context, string) error {
	return nil
}

func (f *fakeAPI) ResetPassword(context.Context, string, string) error {
	f.resets.Add(1)
	return nil
}

func (f *fakeAPI) RequestVerificationEmail(context.Context, string) error {
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Refresh.Periodic = false
	cfg.Metrics.Enabled = true
	return cfg
}

type sessionFixture struct {
	s       *Session
	api     *fakeAPI
	clock   *testClock
	backend *storage.Memory
}

func newSessionFixture(t testing.TB, cfg Config) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		api:     newFakeAPI(),
		clock:   newTestClock(),
		backend: storage.NewMemory(),
	}
	s, err := New().
		WithConfig(cfg).
		WithAuthAPI(f.api).
		WithStorage(f.backend).
		WithClock(f.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(s.Close)
	f.s = s
	return f
}

// login signs alice in with a token valid for ttl.
func (f *sessionFixture) login(t testing.TB, ttl time.Duration, roles ...string) string {
	t.Helper()
	token := mintToken(t, f.clock, ttl, roles...)
	f.api.mu.Lock()
	f.api.signInToken = token
	f.api.mu.Unlock()
	if _, err := f.s.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return token
}

func (f *sessionFixture) storedToken(t *testing.T) string {
	t.Helper()
	v, _, err := f.backend.Get(context.Background(), "accessToken")
	if err != nil {
		t.Fatalf("read token: %v", err)
	}
	return v
}

func recvChange(t *testing.T, sub *Subscription) StateChange {
	t.Helper()
	select {
	case c, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state change")
	}
	return StateChange{}
}
