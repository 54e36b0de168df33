package goSession

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Audit event types emitted by a Session.
const (
	AuditLogin         = "login"
	AuditProfileFetch  = "profile_fetch"
	AuditRefresh       = "refresh"
	AuditLogout        = "logout"
	AuditSignOut       = "sign_out"
	AuditGateDenied    = "gate_denied"
	AuditPasswordReset = "password_reset"
	AuditRegistration  = "registration"
)

// AuditEvent is one security-relevant session event. It never carries the
// access token.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LoggerSink writes events to a structured logger at info level, or warn
// level for failures.
type LoggerSink struct {
	log hclog.Logger
}

func NewLoggerSink(log hclog.Logger) *LoggerSink {
	return &LoggerSink{log: log.Named("audit")}
}

func (s *LoggerSink) Emit(_ context.Context, event AuditEvent) {
	args := []interface{}{
		"id", event.ID,
		"event", event.EventType,
		"success", event.Success,
	}
	if event.Username != "" {
		args = append(args, "username", event.Username)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}
	if event.Success {
		s.log.Info("audit", args...)
		return
	}
	s.log.Warn("audit", append(args, "error", event.Error)...)
}
