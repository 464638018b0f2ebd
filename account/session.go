package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/customersvc/internal/util"
	"github.com/jmcleod/customersvc/internal/uuid"
	"github.com/jmcleod/customersvc/storage"
)

const sessionKeyBytes = 32

// SessionService runs the session lifecycle: created, optionally confirmed
// by a second factor, and finally disabled. Expiry is derived from ExpiresAt
// whenever a session is read.
type SessionService struct {
	repo    storage.SessionRepository
	clients *ClientService
	opts    options
}

func NewSessionService(repo storage.SessionRepository, clients *ClientService, opts ...Option) *SessionService {
	return &SessionService{repo: repo, clients: clients, opts: newOptions(opts)}
}

// Now returns the service clock's current time.
func (s *SessionService) Now() time.Time {
	return s.opts.now()
}

// CreateSession authenticates name and password and opens a session. It
// returns nil when authentication fails. A non-positive ttl selects the
// configured default. Sessions of clients holding any two-factor secret
// start unconfirmed.
func (s *SessionService) CreateSession(ctx context.Context, name, password, ip string, ttl time.Duration) (*Session, error) {
	c, err := s.clients.Authenticate(ctx, name, password)
	if err != nil || c == nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.opts.sessionTTL
	}
	key, err := util.RandomToken(sessionKeyBytes)
	if err != nil {
		return nil, err
	}
	now := s.opts.now()
	rec := storage.SessionRecord{
		ID:        uuid.New(),
		ClientID:  c.ID,
		Key:       key,
		IP:        ip,
		Confirmed: c.TwoFactor == TwoFactorUnset,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.CreateSession(ctx, &rec); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	sess := sessionFromRecord(rec)
	return &sess, nil
}

func lookupSession(rec *storage.SessionRecord, err error) (*Session, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess := sessionFromRecord(*rec)
	return &sess, nil
}

// GetSession returns nil when the session does not exist for clientID.
func (s *SessionService) GetSession(ctx context.Context, clientID, sessionID string) (*Session, error) {
	return lookupSession(s.repo.GetSession(ctx, clientID, sessionID))
}

// GetSessionByKey returns nil when no session has key.
func (s *SessionService) GetSessionByKey(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, nil
	}
	return lookupSession(s.repo.GetSessionByKey(ctx, key))
}

// ListSessions pages through a client's sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, clientID string, onlyActive bool, page, pageSize int) (storage.Page[Session], error) {
	filter := storage.SessionFilter{Page: page, PageSize: pageSize}
	if onlyActive {
		filter.ActiveAt = s.opts.now()
	}
	recs, err := s.repo.ListSessions(ctx, clientID, filter)
	if err != nil {
		return storage.Page[Session]{}, err
	}
	return storage.MapPage(recs, sessionFromRecord), nil
}

// IsConfirmationRequired reports whether the session still awaits its
// second factor.
func (s *SessionService) IsConfirmationRequired(ctx context.Context, clientID, sessionID string) (bool, error) {
	sess, err := s.GetSession(ctx, clientID, sessionID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, ErrSessionNotFound
	}
	return !sess.Confirmed, nil
}

// ConfirmSession validates code as the owner's second factor and marks the
// session confirmed. Confirming twice is harmless. It reports false when the
// session does not exist for clientID.
func (s *SessionService) ConfirmSession(ctx context.Context, clientID, sessionID, code string) (bool, error) {
	ok, err := s.clients.ValidateSecondFactor(ctx, clientID, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidCode
	}
	return notFoundAsFalse(s.repo.ConfirmSession(ctx, clientID, sessionID))
}

// DisableSession permanently disables the session.
func (s *SessionService) DisableSession(ctx context.Context, clientID, sessionID string) (bool, error) {
	return notFoundAsFalse(s.repo.DisableSession(ctx, clientID, sessionID))
}

func notFoundAsFalse(err error) (bool, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
