package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Event identifies an account action worth recording.
type Event string

const (
	EventRegister            Event = "register"
	EventActivate            Event = "activate"
	EventLoginSuccess        Event = "login_success"
	EventLoginFailure        Event = "login_failure"
	EventSessionConfirmed    Event = "session_confirmed"
	EventSessionDisabled     Event = "session_disabled"
	EventTwoFactorSetup      Event = "2fa_setup"
	EventTwoFactorEnabled    Event = "2fa_enabled"
	EventTwoFactorDisabled   Event = "2fa_disabled"
	EventTokenCreated        Event = "token_created"
	EventTokenActivated      Event = "token_activated"
	EventTokenDeactivated    Event = "token_deactivated"
	EventUnauthorized        Event = "unauthorized"
	EventSecondFactorFailure Event = "second_factor_failure"
)

// eventLogger wraps slog.Logger for structured account event logging.
type eventLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newEventLogger(logger *slog.Logger) *eventLogger {
	return &eventLogger{
		logger: logger.With("component", "events"),
	}
}

// log writes one event entry. Session keys, passwords and codes never
// appear in attrs.
func (el *eventLogger) log(event Event, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	el.logger.LogAttrs(r.Context(), slog.LevelInfo, "event", baseAttrs...)
	if el.metrics != nil {
		el.metrics.recordEvent(event)
	}
}

// logEvent is a convenience for events tied to a client.
func (el *eventLogger) logEvent(event Event, r *http.Request, clientID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("client_id", clientID),
	}
	attrs = append(attrs, extra...)
	el.log(event, r, attrs...)
}

// logFailure logs a rejected attempt.
func (el *eventLogger) logFailure(event Event, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	el.log(event, r, attrs...)
}
