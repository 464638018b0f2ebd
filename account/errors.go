package account

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotFound indicates the referenced client does not exist.
	ErrClientNotFound = errors.New("client not found")
	// ErrSessionNotFound indicates the session does not exist or belongs to another client.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidCode indicates a one-time code did not validate.
	ErrInvalidCode = errors.New("invalid one-time code")
	// ErrInvalidToken indicates a token value failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTwoFactorAlreadyActive is returned when enabling two-factor for a
	// client whose secret is already active.
	ErrTwoFactorAlreadyActive = errors.New("Client already has active GoogleAuthCode.") //nolint:staticcheck // wording is part of the API
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func validationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
