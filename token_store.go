package goSession

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/moneysab/goSession/internal/redact"
	"github.com/moneysab/goSession/jwt"
	"github.com/moneysab/goSession/storage"
)

// TokenDecoder turns a raw access token into claims. *jwt.Manager implements it.
type TokenDecoder interface {
	Decode(token string) (*jwt.Claims, error)
}

// TokenStore owns the persisted access token. It performs no network I/O.
type TokenStore struct {
	backend storage.Backend
	decoder TokenDecoder
	key     string
	strict  bool
	window  time.Duration
	now     func() time.Time
	log     hclog.Logger
}

func newTokenStore(cfg Config, backend storage.Backend, decoder TokenDecoder, now func() time.Time, log hclog.Logger) *TokenStore {
	return &TokenStore{
		backend: backend,
		decoder: decoder,
		key:     cfg.Storage.TokenKey,
		strict:  cfg.StrictAuthMode,
		window:  cfg.Token.ExpiryWindow,
		now:     now,
		log:     log,
	}
}

// Get returns the stored token, or "" when none is stored.
func (t *TokenStore) Get(ctx context.Context) (string, error) {
	v, ok, err := t.backend.Get(ctx, t.key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// Set stores token. An empty token is ignored.
func (t *TokenStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := t.backend.Set(ctx, t.key, token); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	t.log.Trace("access token stored", "token", redact.Fingerprint(token))
	return nil
}

// Remove deletes the stored token.
func (t *TokenStore) Remove(ctx context.Context) error {
	if err := t.backend.Delete(ctx, t.key); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Decode returns the claims of token, or ok=false for malformed input.
func (t *TokenStore) Decode(token string) (*jwt.Claims, bool) {
	if token == "" {
		return nil, false
	}
	claims, err := t.decoder.Decode(token)
	if err != nil {
		t.log.Debug("access token decode failed", "token", redact.Fingerprint(token), "error", err)
		return nil, false
	}
	return claims, true
}

// Claims decodes the stored token.
func (t *TokenStore) Claims(ctx context.Context) (*jwt.Claims, bool) {
	return t.Decode(t.current(ctx))
}

// IsExpired reports whether token is past its exp claim. Undecodable tokens
// and tokens without exp count as expired. In bypass mode it is always false.
func (t *TokenStore) IsExpired(token string) bool {
	if !t.strict {
		return false
	}
	claims, ok := t.Decode(token)
	if !ok {
		return true
	}
	exp, ok := claims.Expiry()
	if !ok {
		return true
	}
	return !t.now().Before(exp)
}

// RemainingSeconds returns whole seconds until the stored token expires, or 0.
func (t *TokenStore) RemainingSeconds(ctx context.Context) int64 {
	return t.remaining(t.current(ctx))
}

func (t *TokenStore) remaining(token string) int64 {
	claims, ok := t.Decode(token)
	if !ok {
		return 0
	}
	exp, ok := claims.Expiry()
	if !ok {
		return 0
	}
	secs := math.Floor(exp.Sub(t.now()).Seconds())
	if secs <= 0 {
		return 0
	}
	return int64(secs)
}

// IsAboutToExpire reports whether the stored token expires within the expiry
// window but has not expired yet. In bypass mode it is always false.
func (t *TokenStore) IsAboutToExpire(ctx context.Context) bool {
	if !t.strict {
		return false
	}
	r := t.RemainingSeconds(ctx)
	return r > 0 && float64(r) < t.window.Seconds()
}

// IsValid reports whether a token is stored and not expired.
func (t *TokenStore) IsValid(ctx context.Context) bool {
	token := t.current(ctx)
	return token != "" && !t.IsExpired(token)
}

// Roles returns the role claims of the stored token.
func (t *TokenStore) Roles(ctx context.Context) []string {
	claims, ok := t.Claims(ctx)
	if !ok {
		return nil
	}
	return claims.AllRoles()
}

// Groups returns the groups claim of the stored token.
func (t *TokenStore) Groups(ctx context.Context) []string {
	claims, ok := t.Claims(ctx)
	if !ok {
		return nil
	}
	return append([]string(nil), claims.Groups...)
}

// IsInGroup reports whether the stored token lists group.
func (t *TokenStore) IsInGroup(ctx context.Context, group string) bool {
	claims, ok := t.Claims(ctx)
	return ok && claims.InGroup(group)
}

// IsInAnyGroup reports whether the stored token lists any of groups.
func (t *TokenStore) IsInAnyGroup(ctx context.Context, groups ...string) bool {
	claims, ok := t.Claims(ctx)
	return ok && claims.InAnyGroup(groups...)
}

// current reads the token, treating storage failures as "no token".
func (t *TokenStore) current(ctx context.Context) string {
	token, err := t.Get(ctx)
	if err != nil {
		t.log.Warn("access token read failed", "error", err)
		return ""
	}
	return token
}
