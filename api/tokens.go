package api

import (
	"log/slog"
	"net/http"

	"github.com/jmcleod/customersvc/account"
)

const msgTokenNotFound = "token not found"

// ListTokens handles GET /tokens?onlyActive=.
func (a *API) ListTokens(w http.ResponseWriter, r *http.Request) {
	onlyActive, ok := parseOnlyActive(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "onlyActive must be a boolean")
		return
	}
	tokens, err := a.tokens.ListTokens(r.Context(), caller(r).ClientID, onlyActive)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	out := make([]TokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = tokenResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateToken handles POST /tokens. New tokens start inactive.
func (a *API) CreateToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateTokenRequest](w, r)
	if !ok {
		return
	}
	if err := account.ValidateIPv4(req.IP); err != nil {
		a.mapError(w, r, err)
		return
	}
	method, err := account.ParseAuthMethod(req.AuthMethod)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	clientID := caller(r).ClientID
	tok, err := a.tokens.CreateToken(r.Context(), clientID, req.IP, method)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.events.logEvent(EventTokenCreated, r, clientID, slog.String("token_id", tok.ID))
	writeJSON(w, http.StatusCreated, tokenResponse(*tok))
}

// ActivateToken handles PUT /tokens/{id}/activate.
func (a *API) ActivateToken(w http.ResponseWriter, r *http.Request) {
	a.setTokenActive(w, r, true, EventTokenActivated)
}

// DeactivateToken handles PUT /tokens/{id}/deactivate.
func (a *API) DeactivateToken(w http.ResponseWriter, r *http.Request) {
	a.setTokenActive(w, r, false, EventTokenDeactivated)
}

func (a *API) setTokenActive(w http.ResponseWriter, r *http.Request, active bool, event Event) {
	id, ok := pathID(w, r, msgTokenNotFound)
	if !ok {
		return
	}
	clientID := caller(r).ClientID
	tok, err := a.tokens.SetTokenActive(r.Context(), clientID, id, active)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if tok == nil {
		writeError(w, http.StatusNotFound, msgTokenNotFound)
		return
	}
	a.events.logEvent(event, r, clientID, slog.String("token_id", id))
	writeJSON(w, http.StatusOK, tokenResponse(*tok))
}
