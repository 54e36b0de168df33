package goSession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moneysab/goSession/internal/redact"
	"github.com/moneysab/goSession/permission"
	"github.com/moneysab/goSession/storage"
	"golang.org/x/sync/singleflight"
)

// errSuperseded is returned when a logout ran while an operation was waiting
// on the network; its result is discarded instead of reviving the session.
var errSuperseded = errors.New("session cleared during operation")

// Session is the client-side authentication session of one back-office user.
// Construct it with New().Build(); all methods are safe for concurrent use.
type Session struct {
	cfg     Config
	api     AuthAPI
	store   storage.Backend
	tokens  *TokenStore
	roles   *permission.RoleManager
	log     hclog.Logger
	metrics *Metrics
	audit   *auditDispatcher
	now     func() time.Time

	// mu guards state, user and gen, and serializes token commits against
	// clears so a late network answer never resurrects a cleared session.
	mu    sync.Mutex
	state State
	user  *User
	gen   uint64
	subs  *broadcaster

	flight singleflight.Group

	periodicMu   sync.Mutex
	periodicStop chan struct{}
	wg           sync.WaitGroup

	closed atomic.Bool
}

// Tokens exposes the token store.
func (s *Session) Tokens() *TokenStore {
	return s.tokens
}

// Config returns a copy of the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Logger returns the session logger.
func (s *Session) Logger() hclog.Logger {
	return s.log
}

// Metrics returns the session counters. The request authorizer records into them.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// MetricsSnapshot implements the exporters' metrics source.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (s *Session) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the cached profile, or nil.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// AccessToken returns the stored token, or "" when there is none.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	return s.tokens.Get(ctx)
}

// IsAuthenticated reports whether the session is Authenticated, holds a user
// and its token is still valid.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	s.mu.Lock()
	ok := s.state == StateAuthenticated && s.user != nil
	s.mu.Unlock()
	return ok && s.tokens.IsValid(ctx)
}

// Subscribe returns a Subscription whose channel first yields the current
// state and then every later transition in order. buffer sizes the delivery
// channel; 0 is fine.
func (s *Session) Subscribe(buffer int) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := StateChange{From: s.state, To: s.state, Reason: "current", At: s.now()}
	return s.subs.subscribe(current, buffer)
}

// Init restores the session from storage at startup. An expired or
// undecodable stored token is cleared without contacting the server. A valid
// token with a persisted profile becomes Authenticated without a profile call.
func (s *Session) Init(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	token, err := s.tokens.Get(ctx)
	if err != nil {
		s.transition(StateUnauthenticated, "storage unavailable")
		return err
	}
	if token == "" {
		s.transition(StateUnauthenticated, "no stored token")
		return nil
	}
	if s.tokens.IsExpired(token) {
		s.log.Info("stored access token expired, clearing session", "token", redact.Fingerprint(token))
		_, err := s.clear(ctx, "stored token expired")
		return err
	}

	s.transition(StateLoading, "restoring session")
	if user, ok := s.loadUser(ctx); ok {
		s.mu.Lock()
		s.user = user
		s.setStateLocked(StateAuthenticated, "session restored")
		s.mu.Unlock()
	} else if _, err := s.FetchProfile(ctx); err != nil {
		return err
	}

	s.StartPeriodicRefresh()
	if s.tokens.IsAboutToExpire(ctx) {
		s.CheckAndRefresh(ctx)
	}
	return nil
}

// Login signs in, stores the access token, starts periodic refresh and loads
// the profile. A 401 from sign-in yields ErrInvalidCredentials. Every failure
// leaves the session Unauthenticated with no stored token.
func (s *Session) Login(ctx context.Context, username, password string) (*User, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	s.transition(StateLoading, "login")
	gen := s.generation()

	token, err := s.api.SignIn(ctx, Credentials{Username: username, Password: password})
	if err == nil && token == "" {
		err = ErrTokenInvalid
	}
	if err == nil {
		err = s.commitToken(ctx, gen, token)
	}
	if err != nil {
		s.loginFailed(ctx, username, err)
		if errors.Is(err, ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, err
	}

	s.StartPeriodicRefresh()

	user, err := s.FetchProfile(ctx)
	if err != nil {
		s.loginFailed(ctx, username, err)
		return nil, err
	}

	s.metrics.Inc(MetricLoginSuccess)
	s.log.Info("login succeeded", "username", username, "token", redact.Fingerprint(token))
	ev := s.auditEvent(ctx, AuditLogin, nil)
	ev.Username = username
	s.audit.Emit(ctx, ev)
	return user, nil
}

func (s *Session) loginFailed(ctx context.Context, username string, err error) {
	s.metrics.Inc(MetricLoginFailure)
	s.log.Warn("login failed", "username", username, "status", StatusCode(err), "error", err)
	ev := s.auditEvent(ctx, AuditLogin, err)
	ev.Username = username
	s.audit.Emit(ctx, ev)
	if _, cerr := s.clear(ctx, "login failed"); cerr != nil {
		s.log.Warn("clearing session after failed login", "error", cerr)
	}
}

// FetchProfile loads the user profile with the stored token. Without a token
// it fails with ErrNoToken and makes no network call. A 401 clears the
// session; other failures leave the token in place.
func (s *Session) FetchProfile(ctx context.Context) (*User, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	token, err := s.tokens.Get(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoToken
	}

	prev := s.State()
	if prev != StateLoading && prev != StateAuthenticated {
		s.transition(StateLoading, "profile fetch")
	}
	gen := s.generation()

	user, err := s.api.Me(ctx, token)
	if err == nil && user == nil {
		err = errors.New("empty profile response")
	}
	if err != nil {
		s.metrics.Inc(MetricProfileFetchFailure)
		s.audit.Emit(ctx, s.auditEvent(ctx, AuditProfileFetch, err))
		if errors.Is(err, ErrUnauthorized) {
			s.log.Warn("profile fetch rejected, clearing session", "status", StatusCode(err), "token", redact.Fingerprint(token))
			if _, cerr := s.clear(ctx, "profile unauthorized"); cerr != nil {
				s.log.Warn("clearing session after rejected profile fetch", "error", cerr)
			}
			return nil, err
		}
		if prev != StateAuthenticated {
			s.transition(StateUnauthenticated, "profile fetch failed")
		}
		return nil, err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil, errSuperseded
	}
	s.user = user.Clone()
	s.saveUser(ctx, user)
	s.setStateLocked(StateAuthenticated, "profile loaded")
	s.mu.Unlock()

	return user.Clone(), nil
}

// UpdateProfile sends update and merges the server's answer into the cached
// profile. An answer that arrives after a logout is discarded.
func (s *Session) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	gen := s.generation()
	var updated *User
	err := s.withToken(ctx, func(token string) error {
		u, err := s.api.UpdateProfile(ctx, token, update)
		updated = u
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.gen != gen || s.user == nil {
		s.mu.Unlock()
		return nil, errSuperseded
	}
	merged := mergeUser(s.user, updated)
	s.user = merged
	s.saveUser(ctx, merged)
	s.mu.Unlock()

	return merged.Clone(), nil
}

// ChangePassword changes the signed-in user's password.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	err := s.withToken(ctx, func(token string) error {
		return s.api.ChangePassword(ctx, token, oldPassword, newPassword)
	})
	s.audit.Emit(ctx, s.auditEvent(ctx, AuditPasswordReset, err))
	return err
}

// withToken runs call with the stored token. A 401 triggers one refresh and
// one retry with the new token.
func (s *Session) withToken(ctx context.Context, call func(token string) error) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	token, err := s.tokens.Get(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNoToken
	}
	err = call(token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	fresh, rerr := s.Refresh(ctx)
	if rerr != nil {
		return rerr
	}
	s.metrics.Inc(MetricRetryAfterRefresh)
	return call(fresh)
}

// Logout clears the token and the persisted profile, stops periodic refresh
// and moves to Unauthenticated. It is idempotent and completes locally even
// when storage fails; the storage error is returned.
func (s *Session) Logout(ctx context.Context) error {
	changed, err := s.clear(ctx, "logout")
	if changed {
		s.metrics.Inc(MetricLogout)
		s.log.Info("logged out")
		s.audit.Emit(ctx, s.auditEvent(ctx, AuditLogout, err))
	}
	return err
}

// SignOut revokes the token server side, bounded by SignOutTimeout, then
// always logs out locally. The server error, if any, is returned.
func (s *Session) SignOut(ctx context.Context) error {
	token, err := s.tokens.Get(ctx)
	if err == nil && token != "" {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.Refresh.SignOutTimeout)
		err = s.api.SignOut(sctx, token)
		cancel()
		if err != nil {
			s.metrics.Inc(MetricSignOutFailure)
			s.log.Warn("server sign-out failed, logging out locally", "status", StatusCode(err), "error", err)
		}
	}
	s.audit.Emit(ctx, s.auditEvent(ctx, AuditSignOut, err))

	if lerr := s.Logout(ctx); lerr != nil && err == nil {
		err = lerr
	}
	return err
}

// Register creates an account. It does not sign in.
func (s *Session) Register(ctx context.Context, reg Registration) (*RegistrationResult, error) {
	res, err := s.api.SignUp(ctx, reg)
	ev := s.auditEvent(ctx, AuditRegistration, err)
	ev.Username = reg.Username
	s.audit.Emit(ctx, ev)
	return res, err
}

// VerifyEmail confirms an address with the emailed one-time code. When the
// server answers with an access token the user is signed in with it.
func (s *Session) VerifyEmail(ctx context.Context, email, otp string) (*User, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	token, err := s.api.VerifyEmail(ctx, email, otp)
	if err != nil || token == "" {
		return nil, err
	}

	s.transition(StateLoading, "email verified")
	if err := s.commitToken(ctx, s.generation(), token); err != nil {
		return nil, err
	}
	s.StartPeriodicRefresh()
	return s.FetchProfile(ctx)
}

// RequestPasswordReset asks the server to email a reset link.
func (s *Session) RequestPasswordReset(ctx context.Context, email string) error {
	return s.api.RequestPasswordReset(ctx, email)
}

// ResetPassword completes a reset with the emailed token.
func (s *Session) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	err := s.api.ResetPassword(ctx, resetToken, newPassword)
	s.audit.Emit(ctx, s.auditEvent(ctx, AuditPasswordReset, err))
	return err
}

// RequestVerificationEmail asks the server to resend the verification code.
func (s *Session) RequestVerificationEmail(ctx context.Context, email string) error {
	return s.api.RequestVerificationEmail(ctx, email)
}

// Roles returns the profile role together with the token role claims.
func (s *Session) Roles(ctx context.Context) []string {
	roles := s.tokens.Roles(ctx)
	if u := s.User(); u != nil && u.Role != "" && !slices.Contains(roles, u.Role) {
		roles = append([]string{u.Role}, roles...)
	}
	return roles
}

// HasRole reports whether the user holds any of roles.
func (s *Session) HasRole(ctx context.Context, roles ...string) bool {
	return hasAnyRole(s.Roles(ctx), roles)
}

// HasPermission reports whether the signed-in user holds perm
// ("resource:action"). Without a loaded profile it is always false.
func (s *Session) HasPermission(ctx context.Context, perm string) bool {
	if s.User() == nil {
		return false
	}
	return s.roles.Allowed(s.Roles(ctx), perm)
}

// HasAnyPermission reports whether the user holds at least one of perms.
func (s *Session) HasAnyPermission(ctx context.Context, perms ...string) bool {
	if s.User() == nil {
		return false
	}
	roles := s.Roles(ctx)
	for _, p := range perms {
		if s.roles.Allowed(roles, p) {
			return true
		}
	}
	return false
}

// Permissions lists the permissions the user holds.
func (s *Session) Permissions(ctx context.Context) []string {
	if s.User() == nil {
		return nil
	}
	return s.roles.Registry().Names(s.roles.Effective(s.Roles(ctx)))
}

// Close stops background work and closes subscriptions. The stored token is
// left in place so the next process can restore the session.
func (s *Session) Close() {
	s.periodicMu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.periodicMu.Unlock()
		return
	}
	if s.periodicStop != nil {
		close(s.periodicStop)
		s.periodicStop = nil
	}
	s.periodicMu.Unlock()

	s.wg.Wait()
	s.subs.closeAll()
	s.audit.Close()
}

/*
====================================
STATE HELPERS
====================================
*/

func (s *Session) transition(to State, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStateLocked(to, reason)
}

func (s *Session) setStateLocked(to State, reason string) bool {
	from := s.state
	if from == to {
		return false
	}
	s.state = to
	s.subs.publish(StateChange{From: from, To: to, Reason: reason, At: s.now()})
	s.log.Debug("session state changed", "from", from.String(), "to", to.String(), "reason", reason)
	return true
}

func (s *Session) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// commitToken stores token unless a clear happened after gen was read.
func (s *Session) commitToken(ctx context.Context, gen uint64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return errSuperseded
	}
	return s.tokens.Set(ctx, token)
}

// clear is the body of Logout. changed reports whether anything was cleared.
func (s *Session) clear(ctx context.Context, reason string) (changed bool, err error) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if derr := s.store.Delete(context.WithoutCancel(ctx), s.cfg.Storage.TokenKey, s.cfg.Storage.UserKey); derr != nil {
		err = fmt.Errorf("%w: %w", ErrStorage, derr)
		s.log.Warn("clearing stored session failed", "error", derr)
	}
	changed = s.user != nil || s.state != StateUnauthenticated
	s.user = nil
	s.setStateLocked(StateUnauthenticated, reason)
	return changed, err
}

// saveUser persists u. Callers hold s.mu so a concurrent clear cannot
// interleave with the write.
func (s *Session) saveUser(ctx context.Context, u *User) {
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, s.cfg.Storage.UserKey, string(data)); err != nil {
		s.log.Warn("persisting user profile failed", "error", err)
	}
}

func (s *Session) loadUser(ctx context.Context) (*User, bool) {
	raw, ok, err := s.store.Get(ctx, s.cfg.Storage.UserKey)
	if err != nil {
		s.log.Warn("reading persisted user failed", "error", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.log.Warn("persisted user is not valid JSON, ignoring", "error", err)
		return nil, false
	}
	return &u, true
}

func (s *Session) auditEvent(ctx context.Context, eventType string, err error) AuditEvent {
	ev := AuditEvent{
		EventType: eventType,
		RequestID: RequestIDFromContext(ctx),
		Success:   err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if u := s.User(); u != nil {
		ev.Username = u.Username
	}
	if claims, ok := s.tokens.Claims(ctx); ok {
		ev.Subject = claims.Subject
	}
	return ev
}

// mergeUser overlays the non-empty fields of src onto a copy of dst.
func mergeUser(dst, src *User) *User {
	if dst == nil {
		return src.Clone()
	}
	out := dst.Clone()
	if src == nil {
		return out
	}
	set := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}
	set(&out.ID, src.ID)
	set(&out.Username, src.Username)
	set(&out.Email, src.Email)
	set(&out.FirstName, src.FirstName)
	set(&out.LastName, src.LastName)
	set(&out.PhoneNumber, src.PhoneNumber)
	set(&out.Timezone, src.Timezone)
	set(&out.Locale, src.Locale)
	set(&out.Role, src.Role)
	set(&out.Status, src.Status)
	set(&out.UpdatedAt, src.UpdatedAt)
	if src.EmailVerified {
		out.EmailVerified = true
	}
	return out
}
