// Package account implements client registration and authentication, the
// session lifecycle, two-factor enrolment and token issuance on top of the
// storage repositories.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmcleod/customersvc/internal/util"
	"github.com/jmcleod/customersvc/internal/uuid"
	"github.com/jmcleod/customersvc/storage"
	"github.com/jmcleod/customersvc/totp"
)

const activationCodeLength = 24

// ClientService registers and authenticates clients and manages their
// second factor.
type ClientService struct {
	repo   storage.ClientRepository
	hasher *PasswordHasher
	sealer *SecretSealer
	totp   *totp.Provider
	mailer Mailer
	opts   options
}

func NewClientService(repo storage.ClientRepository, hasher *PasswordHasher, sealer *SecretSealer, provider *totp.Provider, mailer Mailer, opts ...Option) *ClientService {
	return &ClientService{
		repo:   repo,
		hasher: hasher,
		sealer: sealer,
		totp:   provider,
		mailer: mailer,
		opts:   newOptions(opts),
	}
}

// lookup converts storage.ErrNotFound into a nil client.
func lookup(rec *storage.ClientRecord, err error) (*Client, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return clientFromRecord(rec), nil
}

// Authenticate returns the client when name and password match an active
// account, and nil otherwise.
func (s *ClientService) Authenticate(ctx context.Context, name, password string) (*Client, error) {
	c, err := lookup(s.repo.GetClientByName(ctx, name))
	if err != nil || c == nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, nil
	}
	ok, err := s.hasher.Verify(password, c.passwordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (s *ClientService) CheckNameAvailable(ctx context.Context, name string) (bool, error) {
	c, err := lookup(s.repo.GetClientByName(ctx, name))
	return c == nil, err
}

func (s *ClientService) CheckEmailAvailable(ctx context.Context, email string) (bool, error) {
	c, err := lookup(s.repo.GetClientByEmail(ctx, email))
	return c == nil, err
}

// Register creates an inactive client and e-mails its activation code. A
// failure to send is logged and does not undo the registration.
func (s *ClientService) Register(ctx context.Context, email, name, password string) (*Client, error) {
	if err := errors.Join(ValidateEmail(email), ValidateName(name), ValidatePassword(password)); err != nil {
		return nil, err
	}
	code, err := util.RandomChars(activationCodeLength)
	if err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	now := s.opts.now()
	rec := &storage.ClientRecord{
		ID:             uuid.New(),
		Email:          email,
		Name:           name,
		PasswordHash:   digest,
		ActivationCode: code,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateClient(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	c := clientFromRecord(rec)
	s.sendActivation(ctx, c)
	return c, nil
}

func (s *ClientService) sendActivation(ctx context.Context, c *Client) {
	body, err := renderActivationEmail(c.Name, c.activationCode, s.opts.activationURL)
	if err == nil {
		err = s.mailer.SendEmail(ctx, c.Email, activationSubject, body)
	}
	if err != nil {
		s.opts.logger.ErrorContext(ctx, "sending activation e-mail",
			slog.String("client_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Activate consumes an activation code. It reports false when no client
// holds the code.
func (s *ClientService) Activate(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	err := s.repo.ActivateClient(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResendActivation e-mails the stored activation code again.
func (s *ClientService) ResendActivation(ctx context.Context, email string) (bool, error) {
	c, err := lookup(s.repo.GetClientByEmail(ctx, email))
	if err != nil || c == nil {
		return false, err
	}
	s.sendActivation(ctx, c)
	return true, nil
}

// GetClient returns nil when the client does not exist.
func (s *ClientService) GetClient(ctx context.Context, id string) (*Client, error) {
	return lookup(s.repo.GetClient(ctx, id))
}

// UpdateClient changes a client's e-mail and name. It returns nil when the
// client does not exist.
func (s *ClientService) UpdateClient(ctx context.Context, id, email, name string) (*Client, error) {
	if err := errors.Join(ValidateEmail(email), ValidateName(name)); err != nil {
		return nil, err
	}
	return lookup(s.repo.UpdateClient(ctx, id, email, name))
}

// EnableTwoFactor generates a new secret, replacing any unconfirmed one.
func (s *ClientService) EnableTwoFactor(ctx context.Context, id string) (*TwoFactorSetup, error) {
	c, err := s.GetClient(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	if c.TwoFactor == TwoFactorActive {
		return nil, ErrTwoFactorAlreadyActive
	}
	setup, err := s.totp.Generate(c.Name)
	if err != nil {
		return nil, err
	}
	sealed, err := s.sealer.Seal(c.ID, setup.Secret)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetTwoFactorSecret(ctx, c.ID, sealed); err != nil {
		return nil, fmt.Errorf("storing two-factor secret: %w", err)
	}
	return &TwoFactorSetup{
		QRCodeURL:       setup.QRCodeURL,
		ManualEntryKey:  setup.ManualEntryKey,
		ProvisioningURI: setup.ProvisioningURI,
	}, nil
}

func (s *ClientService) mustGet(ctx context.Context, id string) (*Client, error) {
	c, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func (s *ClientService) checkCode(c *Client, code string) (bool, error) {
	secret, err := s.sealer.Open(c.ID, c.sealedSecret)
	if err != nil {
		return false, err
	}
	return s.totp.Validate(secret, code), nil
}

// ConfirmTwoFactorSetup activates a pending secret after checking code
// against it. It reports false when there is nothing to confirm.
func (s *ClientService) ConfirmTwoFactorSetup(ctx context.Context, id, code string) (bool, error) {
	c, err := s.mustGet(ctx, id)
	if err != nil {
		return false, err
	}
	if c.TwoFactor != TwoFactorPending {
		return false, nil
	}
	ok, err := s.checkCode(c, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidCode
	}
	if err := s.repo.SetTwoFactorActive(ctx, c.ID, true); err != nil {
		return false, err
	}
	return true, nil
}

// DisableTwoFactor deactivates an active secret after checking code against
// it. The secret is kept, so the client returns to the pending state.
func (s *ClientService) DisableTwoFactor(ctx context.Context, id, code string) (bool, error) {
	c, err := s.mustGet(ctx, id)
	if err != nil {
		return false, err
	}
	if c.TwoFactor != TwoFactorActive {
		return false, nil
	}
	ok, err := s.checkCode(c, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidCode
	}
	if err := s.repo.SetTwoFactorActive(ctx, c.ID, false); err != nil {
		return false, err
	}
	return true, nil
}

// ValidateSecondFactor checks code against the client's active secret.
// Clients without an active secret pass unconditionally; unknown clients fail.
func (s *ClientService) ValidateSecondFactor(ctx context.Context, id, code string) (bool, error) {
	c, err := s.GetClient(ctx, id)
	if err != nil || c == nil {
		return false, err
	}
	if c.TwoFactor != TwoFactorActive {
		return true, nil
	}
	return s.checkCode(c, code)
}
