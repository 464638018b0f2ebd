package account

import (
	"log/slog"
	"time"
)

// DefaultSessionTTL is used when neither the caller nor WithSessionTTL set one.
const DefaultSessionTTL = 900 * time.Second

// Option configures the account services.
type Option func(*options)

type options struct {
	now           func() time.Time
	logger        *slog.Logger
	sessionTTL    time.Duration
	activationURL string
}

func newOptions(opts []Option) options {
	o := options{
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for failures that do not abort an operation.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSessionTTL sets the default session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.sessionTTL = ttl
		}
	}
}

// WithActivationURL sets the page linked from activation e-mails. The code is
// appended as the "code" query parameter.
func WithActivationURL(u string) Option {
	return func(o *options) { o.activationURL = u }
}
