package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey int

const callerKey contextKey = iota

// Caller identifies the authenticated client and the session it presented.
type Caller struct {
	ClientID  string
	SessionID string
}

// WithCaller returns a context carrying c. Requests that arrive with a
// Caller already present skip session-key authentication.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext returns the Caller stored by the authorization gate.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}

const (
	msgEmptyAuthorization = "authorization header is empty"
	msgUnauthorized       = "unauthorized"
	msgSessionExpired     = "session expired"
	msgSessionNotUsable   = "session must be confirmed and enabled"
)

// SessionAuth admits requests bearing the key of an unexpired, enabled and
// confirmed session. Expiry is checked before the confirmed and enabled
// flags.
func (a *API) SessionAuth(next http.Handler) http.Handler {
	return a.gate(next, true)
}

// PendingSessionAuth is SessionAuth without the confirmed requirement. It
// guards the endpoints used to confirm a session.
func (a *API) PendingSessionAuth(next http.Handler) http.Handler {
	return a.gate(next, false)
}

func (a *API) gate(next http.Handler, requireConfirmed bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		key := bearerToken(r.Header.Get("Authorization"))
		if key == "" {
			a.reject(w, r, msgEmptyAuthorization)
			return
		}

		sess, err := a.sessions.GetSessionByKey(r.Context(), key)
		if err != nil {
			a.writeInternalError(w, r, "looking up session", err)
			return
		}
		if sess == nil {
			a.reject(w, r, msgUnauthorized)
			return
		}
		if sess.Expired(a.sessions.Now()) {
			a.reject(w, r, msgSessionExpired, slog.String("session_id", sess.ID))
			return
		}
		if !sess.Enabled || (requireConfirmed && !sess.Confirmed) {
			a.reject(w, r, msgSessionNotUsable, slog.String("session_id", sess.ID))
			return
		}

		ctx := WithCaller(r.Context(), Caller{ClientID: sess.ClientID, SessionID: sess.ID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) reject(w http.ResponseWriter, r *http.Request, reason string, attrs ...slog.Attr) {
	a.events.logFailure(EventUnauthorized, r, reason, attrs...)
	writeError(w, http.StatusUnauthorized, reason)
}

// bearerToken strips an optional, case-insensitive "Bearer" scheme.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer"
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) &&
		(len(header) == len(scheme) || header[len(scheme)] == ' ') {
		header = header[len(scheme):]
	}
	return strings.TrimSpace(header)
}

// caller returns the gate's Caller. Handlers behind the gate always have one.
func caller(r *http.Request) Caller {
	c, _ := CallerFromContext(r.Context())
	return c
}
