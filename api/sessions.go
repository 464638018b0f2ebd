package api

import (
	"log/slog"
	"net/http"

	"github.com/jmcleod/customersvc/account"
	"github.com/jmcleod/customersvc/storage"
)

const (
	msgSessionNotFound = "session not found"
	msgBadCredentials  = "name or password is incorrect"
)

// CreateSession handles POST /sessions. The response is the only place the
// session key is ever returned.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateSessionRequest](w, r)
	if !ok {
		return
	}
	if err := account.ValidateIPv4(req.IP); err != nil {
		a.mapError(w, r, err)
		return
	}

	sess, err := a.sessions.CreateSession(r.Context(), req.Name, req.Password, req.IP, 0)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if sess == nil {
		a.events.logFailure(EventLoginFailure, r, "invalid credentials", slog.String("name", req.Name))
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	a.events.logEvent(EventLoginSuccess, r, sess.ClientID,
		slog.String("session_id", sess.ID),
		slog.Bool("confirmed", sess.Confirmed),
	)
	resp := sessionResponse(*sess)
	resp.Key = sess.Key
	writeJSON(w, http.StatusCreated, resp)
}

// ListSessions handles GET /sessions?onlyActive=&pageNumber=&pageSize=.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	onlyActive, ok := parseOnlyActive(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "onlyActive must be a boolean")
		return
	}
	page, pageSize, ok := parsePaging(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "pageNumber and pageSize must be positive integers")
		return
	}

	sessions, err := a.sessions.ListSessions(r.Context(), caller(r).ClientID, onlyActive, page, pageSize)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storage.MapPage(sessions, sessionResponse))
}

// GetSession handles GET /sessions/{id}.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, msgSessionNotFound)
	if !ok {
		return
	}
	sess, err := a.sessions.GetSession(r.Context(), caller(r).ClientID, id)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, msgSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(*sess))
}

// IsConfirmationRequired handles GET /sessions/{id}/confirm/required.
func (a *API) IsConfirmationRequired(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, msgSessionNotFound)
	if !ok {
		return
	}
	required, err := a.sessions.IsConfirmationRequired(r.Context(), caller(r).ClientID, id)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmationRequiredResponse{Required: required})
}

// ConfirmSession handles PUT /sessions/{id}/confirm.
func (a *API) ConfirmSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, msgSessionNotFound)
	if !ok {
		return
	}
	req, ok := decodeJSON[CodeRequest](w, r)
	if !ok {
		return
	}
	c := caller(r)
	confirmed, err := a.sessions.ConfirmSession(r.Context(), c.ClientID, id, req.Code)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if !confirmed {
		writeError(w, http.StatusNotFound, msgSessionNotFound)
		return
	}
	a.events.logEvent(EventSessionConfirmed, r, c.ClientID, slog.String("session_id", id))
	writeJSON(w, http.StatusOK, ResultResponse{Success: true})
}

// DisableSession handles PUT /sessions/{id}/disable. Disabling is permanent.
func (a *API) DisableSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, msgSessionNotFound)
	if !ok {
		return
	}
	c := caller(r)
	disabled, err := a.sessions.DisableSession(r.Context(), c.ClientID, id)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if !disabled {
		writeError(w, http.StatusNotFound, msgSessionNotFound)
		return
	}
	a.events.logEvent(EventSessionDisabled, r, c.ClientID, slog.String("session_id", id))
	writeJSON(w, http.StatusOK, ResultResponse{Success: true})
}
