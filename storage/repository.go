// Package storage defines the persistence contract for clients, sessions and
// tokens. Backends live in the memory, bbolt and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique field (client name, e-mail,
	// session key) is already taken.
	ErrConflict = errors.New("already exists")
)

// ClientRecord is the stored form of a client account. TwoFactorSecret is
// opaque to storage (the account layer seals it before it gets here).
type ClientRecord struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	PasswordHash    string    `json:"password_hash"`
	ActivationCode  string    `json:"activation_code"`
	IsActive        bool      `json:"is_active"`
	TwoFactorSecret string    `json:"two_factor_secret,omitempty"`
	TwoFactorActive bool      `json:"two_factor_active,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionRecord is the stored form of a login session.
type SessionRecord struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Key       string    `json:"key"`
	IP        string    `json:"ip"`
	Confirmed bool      `json:"confirmed"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActiveAt reports whether the session is enabled and not yet expired at t.
func (s *SessionRecord) ActiveAt(t time.Time) bool {
	return s.Enabled && s.ExpiresAt.After(t)
}

// TokenRecord is the stored form of an issued bearer token.
type TokenRecord struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Value      string    `json:"value"`
	AuthMethod string    `json:"auth_method"`
	IP         string    `json:"ip"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionFilter narrows ListSessions. A zero ActiveAt lists every session;
// otherwise only sessions active at that instant are returned.
type SessionFilter struct {
	ActiveAt time.Time
	Page     int
	PageSize int
}

type ClientRepository interface {
	GetClient(ctx context.Context, id string) (*ClientRecord, error)
	GetClientByName(ctx context.Context, name string) (*ClientRecord, error)
	GetClientByEmail(ctx context.Context, email string) (*ClientRecord, error)
	CreateClient(ctx context.Context, client *ClientRecord) error
	// ActivateClient marks the client holding code as active.
	ActivateClient(ctx context.Context, code string) error
	UpdateClient(ctx context.Context, id, email, name string) (*ClientRecord, error)
	// SetTwoFactorSecret stores secret and clears the active flag.
	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	SetTwoFactorActive(ctx context.Context, id string, active bool) error
}

type SessionRepository interface {
	GetSession(ctx context.Context, clientID, id string) (*SessionRecord, error)
	GetSessionByKey(ctx context.Context, key string) (*SessionRecord, error)
	CreateSession(ctx context.Context, session *SessionRecord) error
	ConfirmSession(ctx context.Context, clientID, id string) error
	DisableSession(ctx context.Context, clientID, id string) error
	// ListSessions returns the client's sessions, newest first.
	ListSessions(ctx context.Context, clientID string, filter SessionFilter) (Page[SessionRecord], error)
}

type TokenRepository interface {
	GetToken(ctx context.Context, id string) (*TokenRecord, error)
	ListTokens(ctx context.Context, clientID string, onlyActive bool) ([]TokenRecord, error)
	CreateToken(ctx context.Context, token *TokenRecord) error
	SetTokenActive(ctx context.Context, id string, active bool) (*TokenRecord, error)
}

// Repository is the full persistence surface a backend provides.
type Repository interface {
	ClientRepository
	SessionRepository
	TokenRepository
}
