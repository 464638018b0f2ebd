package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/customersvc/internal/uuid"
	"github.com/jmcleod/customersvc/storage"
)

// TokenService issues bearer tokens and toggles their active flag.
type TokenService struct {
	repo   storage.TokenRepository
	signer *TokenSigner
	opts   options
}

func NewTokenService(repo storage.TokenRepository, signer *TokenSigner, opts ...Option) *TokenService {
	return &TokenService{repo: repo, signer: signer, opts: newOptions(opts)}
}

// CreateToken issues an inactive token for clientID.
func (s *TokenService) CreateToken(ctx context.Context, clientID, ip string, method AuthMethod) (*Token, error) {
	now := s.opts.now()
	id := uuid.New()
	value, err := s.signer.Sign(clientID, id, method, now)
	if err != nil {
		return nil, err
	}
	rec := storage.TokenRecord{
		ID:         id,
		ClientID:   clientID,
		Value:      value,
		AuthMethod: string(method),
		IP:         ip,
		CreatedAt:  now,
	}
	if err := s.repo.CreateToken(ctx, &rec); err != nil {
		return nil, fmt.Errorf("creating token: %w", err)
	}
	tok := tokenFromRecord(rec)
	return &tok, nil
}

func (s *TokenService) ListTokens(ctx context.Context, clientID string, onlyActive bool) ([]Token, error) {
	recs, err := s.repo.ListTokens(ctx, clientID, onlyActive)
	if err != nil {
		return nil, err
	}
	out := make([]Token, len(recs))
	for i, rec := range recs {
		out[i] = tokenFromRecord(rec)
	}
	return out, nil
}

func (s *TokenService) owned(ctx context.Context, clientID, tokenID string) (*storage.TokenRecord, error) {
	rec, err := s.repo.GetToken(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.ClientID != clientID {
		return nil, nil
	}
	return rec, nil
}

// SetTokenActive returns nil when the token does not exist or belongs to
// another client.
func (s *TokenService) SetTokenActive(ctx context.Context, clientID, tokenID string, active bool) (*Token, error) {
	rec, err := s.owned(ctx, clientID, tokenID)
	if err != nil || rec == nil {
		return nil, err
	}
	rec, err = s.repo.SetTokenActive(ctx, tokenID, active)
	if err != nil {
		return nil, err
	}
	tok := tokenFromRecord(*rec)
	return &tok, nil
}

// Verify checks value's signature and returns the stored token it names.
// Unknown, mismatched and inactive tokens yield ErrInvalidToken.
func (s *TokenService) Verify(ctx context.Context, value string) (*Token, error) {
	claims, err := s.signer.Parse(value)
	if err != nil {
		return nil, err
	}
	rec, err := s.owned(ctx, claims.Subject, claims.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Value != value || !rec.IsActive {
		return nil, ErrInvalidToken
	}
	tok := tokenFromRecord(*rec)
	return &tok, nil
}
