package api

import (
	"time"

	"github.com/jmcleod/customersvc/account"
	"github.com/jmcleod/customersvc/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PingResponse is returned from GET /ping.
type PingResponse struct {
	Status string `json:"status"`
}

// AvailabilityResponse is returned from GET /clients/check.
type AvailabilityResponse struct {
	Available bool `json:"available"`
}

// RegisterClientRequest is the JSON body for POST /clients.
type RegisterClientRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// UpdateClientRequest is the JSON body for PUT /clients/{id}.
type UpdateClientRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ActivateClientRequest is the JSON body for PUT /clients/activate.
type ActivateClientRequest struct {
	Code string `json:"code"`
}

// ResendActivationRequest is the JSON body for POST /clients/activate/resend.
type ResendActivationRequest struct {
	Email string `json:"email"`
}

// ResultResponse reports the outcome of an operation that may be a no-op.
type ResultResponse struct {
	Success bool `json:"success"`
}

// ClientResponse describes a client. Credentials and secrets are never
// included.
type ClientResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	TwoFactor string    `json:"two_factor"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func clientResponse(c *account.Client) ClientResponse {
	return ClientResponse{
		ID:        c.ID,
		Email:     c.Email,
		Name:      c.Name,
		IsActive:  c.IsActive,
		TwoFactor: c.TwoFactor.String(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// TwoFactorSetupResponse is returned from PUT /clients/{id}/two-factor.
type TwoFactorSetupResponse struct {
	QRCodeURL       string `json:"qr_code_url"`
	ManualEntryKey  string `json:"manual_entry_key"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// CodeRequest carries a one-time code from an authenticator app.
type CodeRequest struct {
	Code string `json:"code"`
}

// CreateSessionRequest is the JSON body for POST /sessions.
type CreateSessionRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	IP       string `json:"ip"`
}

// SessionResponse describes a session. Key is only set on creation.
type SessionResponse struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Key       string    `json:"session_key,omitempty"`
	IP        string    `json:"ip"`
	Confirmed bool      `json:"confirmed"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sessionResponse(s account.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		ClientID:  s.ClientID,
		IP:        s.IP,
		Confirmed: s.Confirmed,
		Enabled:   s.Enabled,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// SessionListResponse is one page of GET /sessions.
type SessionListResponse = storage.Page[SessionResponse]

// ConfirmationRequiredResponse is returned from GET /sessions/{id}/confirm/required.
type ConfirmationRequiredResponse struct {
	Required bool `json:"required"`
}

// CreateTokenRequest is the JSON body for POST /tokens.
type CreateTokenRequest struct {
	IP         string `json:"ip"`
	AuthMethod string `json:"auth_method"`
}

// TokenResponse describes an issued token.
type TokenResponse struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Value      string    `json:"value"`
	AuthMethod string    `json:"auth_method"`
	IP         string    `json:"ip"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func tokenResponse(t account.Token) TokenResponse {
	return TokenResponse{
		ID:         t.ID,
		ClientID:   t.ClientID,
		Value:      t.Value,
		AuthMethod: string(t.AuthMethod),
		IP:         t.IP,
		IsActive:   t.IsActive,
		CreatedAt:  t.CreatedAt,
	}
}
