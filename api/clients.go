package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const msgClientNotFound = "client not found"

// Ping handles GET /ping.
func (a *API) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PingResponse{Status: "ok"})
}

// CheckAvailability handles GET /clients/check?name=|email=. A name takes
// precedence when both are given.
func (a *API) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, email := q.Get("name"), q.Get("email")

	var (
		available bool
		err       error
	)
	switch {
	case name != "":
		available, err = a.clients.CheckNameAvailable(r.Context(), name)
	case email != "":
		available, err = a.clients.CheckEmailAvailable(r.Context(), email)
	default:
		writeError(w, http.StatusBadRequest, "name or email is required")
		return
	}
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Available: available})
}

// RegisterClient handles POST /clients.
func (a *API) RegisterClient(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterClientRequest](w, r)
	if !ok {
		return
	}
	c, err := a.clients.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.events.logEvent(EventRegister, r, c.ID)
	writeJSON(w, http.StatusCreated, clientResponse(c))
}

// ActivateClient handles PUT /clients/activate.
func (a *API) ActivateClient(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ActivateClientRequest](w, r)
	if !ok {
		return
	}
	activated, err := a.clients.Activate(r.Context(), req.Code)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if !activated {
		writeError(w, http.StatusNotFound, "activation code not found")
		return
	}
	a.events.log(EventActivate, r)
	writeJSON(w, http.StatusOK, ResultResponse{Success: true})
}

// ResendActivation handles POST /clients/activate/resend.
func (a *API) ResendActivation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResendActivationRequest](w, r)
	if !ok {
		return
	}
	sent, err := a.clients.ResendActivation(r.Context(), req.Email)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if !sent {
		writeError(w, http.StatusNotFound, msgClientNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Success: true})
}

// ownClientID returns the {id} path parameter when it names the caller.
// Other ids are answered with 404 so their existence is not revealed.
func ownClientID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id != caller(r).ClientID {
		writeError(w, http.StatusNotFound, msgClientNotFound)
		return "", false
	}
	return id, true
}

// GetClient handles GET /clients/{id}.
func (a *API) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := ownClientID(w, r)
	if !ok {
		return
	}
	c, err := a.clients.GetClient(r.Context(), id)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, msgClientNotFound)
		return
	}
	writeJSON(w, http.StatusOK, clientResponse(c))
}

// UpdateClient handles PUT /clients/{id}.
func (a *API) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := ownClientID(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[UpdateClientRequest](w, r)
	if !ok {
		return
	}
	c, err := a.clients.UpdateClient(r.Context(), id, req.Email, req.Name)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, msgClientNotFound)
		return
	}
	writeJSON(w, http.StatusOK, clientResponse(c))
}

// EnableTwoFactor handles PUT /clients/{id}/two-factor. Calling it again
// before confirmation replaces the pending secret.
func (a *API) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	id, ok := ownClientID(w, r)
	if !ok {
		return
	}
	setup, err := a.clients.EnableTwoFactor(r.Context(), id)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if setup == nil {
		writeError(w, http.StatusNotFound, msgClientNotFound)
		return
	}
	a.events.logEvent(EventTwoFactorSetup, r, id)
	writeJSON(w, http.StatusOK, TwoFactorSetupResponse{
		QRCodeURL:       setup.QRCodeURL,
		ManualEntryKey:  setup.ManualEntryKey,
		ProvisioningURI: setup.ProvisioningURI,
	})
}

// ConfirmTwoFactor handles PUT /clients/{id}/two-factor/activate.
func (a *API) ConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	a.changeTwoFactor(w, r, a.clients.ConfirmTwoFactorSetup, EventTwoFactorEnabled)
}

// DisableTwoFactor handles PUT /clients/{id}/two-factor/deactivate.
func (a *API) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	a.changeTwoFactor(w, r, a.clients.DisableTwoFactor, EventTwoFactorDisabled)
}

type twoFactorChange func(ctx context.Context, id, code string) (bool, error)

// changeTwoFactor runs a code-checked state change. A false result means
// the client was not in the required state and is reported as
// success=false.
func (a *API) changeTwoFactor(w http.ResponseWriter, r *http.Request, change twoFactorChange, event Event) {
	id, ok := ownClientID(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[CodeRequest](w, r)
	if !ok {
		return
	}
	changed, err := change(r.Context(), id, req.Code)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if changed {
		a.events.logEvent(event, r, id)
	}
	writeJSON(w, http.StatusOK, ResultResponse{Success: changed})
}
