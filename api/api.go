// Package api exposes the account services over HTTP.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/customersvc/account"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	clients  *account.ClientService
	sessions *account.SessionService
	tokens   *account.TokenService
	logger   *slog.Logger
	events   *eventLogger
	alertFn  AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for events and server errors.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAlertFunc installs a callback for login and second-factor failure
// spikes. Without it, alerts are logged as warnings.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(clients *account.ClientService, sessions *account.SessionService, tokens *account.TokenService, opts ...Option) *API {
	a := &API{
		clients:  clients,
		sessions: sessions,
		tokens:   tokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.alertFn == nil {
		logger := a.logger
		a.alertFn = func(e AlertEvent) {
			logger.Warn("alert",
				slog.String("type", string(e.Type)),
				slog.String("message", e.Message),
				slog.Int("count", e.Count),
				slog.Int("threshold", e.Threshold),
			)
		}
	}
	a.events = newEventLogger(a.logger)
	a.events.metrics = newMetricsCollector(a.alertFn)
	return a
}

// Router returns a chi.Router with all API routes mounted. Callers mount it
// under /api/v1.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/ping", a.Ping)

	r.Get("/clients/check", a.CheckAvailability)
	r.Post("/clients", a.RegisterClient)
	r.Put("/clients/activate", a.ActivateClient)
	r.Post("/clients/activate/resend", a.ResendActivation)

	r.Route("/clients/{id}", func(r chi.Router) {
		r.Use(a.SessionAuth)
		r.Get("/", a.GetClient)
		r.Put("/", a.UpdateClient)
		r.Put("/two-factor", a.EnableTwoFactor)
		r.Put("/two-factor/activate", a.ConfirmTwoFactor)
		r.Put("/two-factor/deactivate", a.DisableTwoFactor)
	})

	r.Post("/sessions", a.CreateSession)
	r.With(a.SessionAuth).Get("/sessions", a.ListSessions)
	r.With(a.SessionAuth).Get("/sessions/{id}", a.GetSession)
	r.With(a.PendingSessionAuth).Get("/sessions/{id}/confirm/required", a.IsConfirmationRequired)
	r.With(a.PendingSessionAuth).Put("/sessions/{id}/confirm", a.ConfirmSession)
	r.With(a.SessionAuth).Put("/sessions/{id}/disable", a.DisableSession)

	r.Route("/tokens", func(r chi.Router) {
		r.Use(a.SessionAuth)
		r.Get("/", a.ListTokens)
		r.Post("/", a.CreateToken)
		r.Put("/{id}/activate", a.ActivateToken)
		r.Put("/{id}/deactivate", a.DeactivateToken)
	})

	return r
}
