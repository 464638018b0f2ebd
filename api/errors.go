package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/customersvc/account"
	"github.com/jmcleod/customersvc/storage"
)

const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON reads a size-limited JSON body into a T, writing a 400 on failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "request is empty or has invalid format")
		return v, false
	}
	return v, true
}

// innermostMessage returns the message of the deepest wrapped error. For
// joined errors the first branch is followed.
func innermostMessage(err error) string {
	for {
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next := u.Unwrap()
			if next == nil {
				return err.Error()
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return err.Error()
			}
			err = errs[0]
		default:
			return err.Error()
		}
	}
}

func (a *API) writeInternalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	a.logger.ErrorContext(r.Context(), op,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, innermostMessage(err))
}

func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *account.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrClientNotFound),
		errors.Is(err, account.ErrSessionNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, account.ErrInvalidCode):
		a.events.logFailure(EventSecondFactorFailure, r, "invalid one-time code",
			slog.String("client_id", caller(r).ClientID))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrTwoFactorAlreadyActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.writeInternalError(w, r, "request failed", err)
	}
}
