// Package totp issues and checks RFC 6238 time-based one-time codes
// (SHA1, 6 digits, 30 second period) for authenticator apps.
package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	secretBytes = 20
	period      = 30
	skew        = 1
	qrSize      = 200
)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Skew:      skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Setup is what a client needs to register a new secret with an
// authenticator app.
type Setup struct {
	Secret          string
	ProvisioningURI string
	// QRCodeURL is a data: URL holding a PNG of the provisioning URI.
	QRCodeURL string
	// ManualEntryKey is Secret split into groups of four for typing.
	ManualEntryKey string
}

// Provider generates and validates codes for a single issuer.
type Provider struct {
	issuer string
	now    func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock overrides the time source used for validation.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider returns a Provider that labels secrets with issuer.
func NewProvider(issuer string, opts ...Option) *Provider {
	p := &Provider{issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Issuer returns the issuer label used in provisioning URIs.
func (p *Provider) Issuer() string {
	return p.issuer
}

// Generate creates a new random secret for account.
func (p *Provider) Generate(account string) (*Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: account,
		Period:      period,
		SecretSize:  secretBytes,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}
	qr, err := qrDataURL(key)
	if err != nil {
		return nil, err
	}
	return &Setup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeURL:       qr,
		ManualEntryKey:  manualEntryKey(key.Secret()),
	}, nil
}

// Validate reports whether code is valid for secret at the current time,
// allowing one period of clock drift either way.
func (p *Provider) Validate(secret, code string) bool {
	code = normalizeCode(code)
	if len(code) != int(otp.DigitsSix) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, p.now().UTC(), validateOpts)
	return err == nil && ok
}

// Code returns the code for secret at t.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts)
}

func normalizeCode(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("rendering qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func manualEntryKey(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
