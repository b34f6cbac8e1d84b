// Package audit records security-relevant actions such as signups, logins
// and code verifications.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Actions emitted by the auth and visitor flows.
const (
	ActionSignup        = "SIGNUP"
	ActionVerifyOTP     = "VERIFY_OTP"
	ActionResendOTP     = "RESEND_OTP"
	ActionLogin         = "LOGIN"
	ActionLoginOTP      = "LOGIN_OTP_REQUEST"
	ActionVisitorDelete = "VISITOR_DELETE"
)

// Event is one audit record. Details never carry passwords or codes.
type Event struct {
	Action    string         `json:"action"`
	Email     string         `json:"email,omitempty"`
	Success   bool           `json:"success"`
	IP        string         `json:"ip,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives audit events. Emit must not block the request path and
// never fails the calling operation.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// LoggerSink writes events as structured log lines.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink builds a sink over logger.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"action", event.Action,
		"email", event.Email,
		"success", event.Success,
		"ip", event.IP,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "audit", attrs...)
}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// Discard drops every event.
func Discard() Sink { return discard{} }

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

type ipKey struct{}

// WithIP stores the client address for events emitted further down the call
// chain.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// IPFrom returns the client address stored by WithIP.
func IPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// Record fills the IP and timestamp of event from ctx and emits it.
func Record(ctx context.Context, sink Sink, event Event) {
	if sink == nil {
		return
	}
	if event.IP == "" {
		event.IP = IPFrom(ctx)
	}
	if event.Email == "" {
		event.Email = "unknown"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	sink.Emit(ctx, event)
}
