package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/customersvc/storage"
)

// TwoFactorState is the lifecycle of a client's second factor.
type TwoFactorState int

const (
	// TwoFactorUnset means no secret has been generated.
	TwoFactorUnset TwoFactorState = iota
	// TwoFactorPending means a secret exists but has not been confirmed.
	TwoFactorPending
	// TwoFactorActive means the secret is confirmed and enforced.
	TwoFactorActive
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorUnset:
		return "unset"
	case TwoFactorPending:
		return "pending"
	case TwoFactorActive:
		return "active"
	default:
		return fmt.Sprintf("TwoFactorState(%d)", int(s))
	}
}

func (s TwoFactorState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func twoFactorStateOf(secret string, active bool) TwoFactorState {
	switch {
	case secret == "":
		return TwoFactorUnset
	case active:
		return TwoFactorActive
	default:
		return TwoFactorPending
	}
}

// Client is a registered customer account.
type Client struct {
	ID        string
	Email     string
	Name      string
	IsActive  bool
	TwoFactor TwoFactorState
	CreatedAt time.Time
	UpdatedAt time.Time

	passwordHash   string
	activationCode string
	sealedSecret   string
}

func clientFromRecord(rec *storage.ClientRecord) *Client {
	return &Client{
		ID:             rec.ID,
		Email:          rec.Email,
		Name:           rec.Name,
		IsActive:       rec.IsActive,
		TwoFactor:      twoFactorStateOf(rec.TwoFactorSecret, rec.TwoFactorActive),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		passwordHash:   rec.PasswordHash,
		activationCode: rec.ActivationCode,
		sealedSecret:   rec.TwoFactorSecret,
	}
}

// TwoFactorSetup carries what an authenticator app needs to enrol a secret.
type TwoFactorSetup struct {
	QRCodeURL       string
	ManualEntryKey  string
	ProvisioningURI string
}

// Session is a login session identified by an opaque bearer key.
type Session struct {
	ID        string
	ClientID  string
	Key       string
	IP        string
	Confirmed bool
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session's lifetime has elapsed at now. The
// instant ExpiresAt itself counts as expired, the same boundary the active
// session listing uses.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Active reports whether the session is enabled and unexpired at now.
func (s *Session) Active(now time.Time) bool {
	return s.Enabled && !s.Expired(now)
}

func sessionFromRecord(rec storage.SessionRecord) Session {
	return Session{
		ID:        rec.ID,
		ClientID:  rec.ClientID,
		Key:       rec.Key,
		IP:        rec.IP,
		Confirmed: rec.Confirmed,
		Enabled:   rec.Enabled,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}

// AuthMethod is how a token's bearer proves possession.
type AuthMethod string

const (
	AuthMethodNone           AuthMethod = "none"
	AuthMethodSessionKey     AuthMethod = "session_key"
	AuthMethodHMACSHA256     AuthMethod = "hmac_sha256"
	AuthMethodRSASignature   AuthMethod = "rsa_signature"
	AuthMethodECDSASignature AuthMethod = "ecdsa_signature"
)

var authMethods = []AuthMethod{
	AuthMethodNone,
	AuthMethodSessionKey,
	AuthMethodHMACSHA256,
	AuthMethodRSASignature,
	AuthMethodECDSASignature,
}

// ParseAuthMethod accepts the snake_case names, ignoring case. An empty
// string yields AuthMethodNone.
func ParseAuthMethod(s string) (AuthMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AuthMethodNone, nil
	}
	for _, m := range authMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", validationErrorf("auth_method", "unknown auth method %q", s)
}

// Token is an issued bearer token.
type Token struct {
	ID         string
	ClientID   string
	Value      string
	AuthMethod AuthMethod
	IP         string
	IsActive   bool
	CreatedAt  time.Time
}

func tokenFromRecord(rec storage.TokenRecord) Token {
	return Token{
		ID:         rec.ID,
		ClientID:   rec.ClientID,
		Value:      rec.Value,
		AuthMethod: AuthMethod(rec.AuthMethod),
		IP:         rec.IP,
		IsActive:   rec.IsActive,
		CreatedAt:  rec.CreatedAt,
	}
}
