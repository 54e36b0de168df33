package goSession

import (
	"context"
	"fmt"
	"time"

	"github.com/moneysab/goSession/internal/redact"
)

const refreshFlightKey = "refresh"

// Refresh exchanges the current token for a new one. Concurrent callers share
// a single network call and its result. Any failure logs the session out and
// is reported as ErrRefreshFailed. The network call is not cancelled when ctx
// is; ctx only bounds how long this caller waits.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}

	led := false
	ch := s.flight.DoChan(refreshFlightKey, func() (interface{}, error) {
		led = true
		return s.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if !led {
			s.metrics.Inc(MetricRefreshJoined)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) doRefresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Refresh.Timeout)
	defer cancel()

	start := time.Now()
	gen := s.generation()

	current, err := s.tokens.Get(ctx)
	if err == nil && current == "" {
		err = ErrNoToken
	}
	var next string
	if err == nil {
		next, err = s.api.Refresh(ctx, current)
		if err == nil && next == "" {
			err = ErrTokenInvalid
		}
	}
	if err == nil {
		err = s.commitToken(ctx, gen, next)
	}
	s.metrics.Observe(MetricRefreshLatency, time.Since(start))

	if err != nil {
		s.metrics.Inc(MetricRefreshFailure)
		s.log.Warn("token refresh failed, logging out",
			"token", redact.Fingerprint(current),
			"status", StatusCode(err),
			"error", err,
		)
		s.audit.Emit(ctx, s.auditEvent(ctx, AuditRefresh, err))
		if lerr := s.Logout(ctx); lerr != nil {
			s.log.Warn("logout after failed refresh", "error", lerr)
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	s.metrics.Inc(MetricRefreshSuccess)
	s.log.Debug("token refreshed", "token", redact.Fingerprint(next))
	s.audit.Emit(ctx, s.auditEvent(ctx, AuditRefresh, nil))
	return next, nil
}

// CheckAndRefresh refreshes when the token is about to expire and reports
// whether that refresh succeeded. Outside the window it returns true without
// looking further; callers that need a valid token check IsValid first.
func (s *Session) CheckAndRefresh(ctx context.Context) bool {
	if !s.tokens.IsAboutToExpire(ctx) {
		return true
	}
	if _, err := s.Refresh(ctx); err != nil {
		return false
	}
	return true
}

// StartPeriodicRefresh (re)starts the background loop that refreshes every
// Refresh.Interval. It is a no-op when periodic refresh is disabled or the
// session is closed.
func (s *Session) StartPeriodicRefresh() {
	if !s.cfg.Refresh.Periodic {
		return
	}

	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()
	if s.closed.Load() {
		return
	}
	if s.periodicStop != nil {
		close(s.periodicStop)
	}
	stop := make(chan struct{})
	s.periodicStop = stop

	s.wg.Add(1)
	go s.periodicLoop(stop)
}

// StopPeriodicRefresh signals the loop to exit without waiting for it, so it
// is safe to call from a refresh the loop itself triggered.
func (s *Session) StopPeriodicRefresh() {
	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()
	if s.periodicStop != nil {
		close(s.periodicStop)
		s.periodicStop = nil
	}
}

// PeriodicRefreshRunning reports whether the loop is scheduled.
func (s *Session) PeriodicRefreshRunning() bool {
	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()
	return s.periodicStop != nil
}

func (s *Session) periodicLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Refresh.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a stop may race the tick
			select {
			case <-stop:
				return
			default:
			}
			if _, err := s.Refresh(context.Background()); err != nil {
				s.metrics.Inc(MetricPeriodicRefreshFailure)
				s.log.Warn("periodic token refresh failed", "error", err)
			}
		}
	}
}
