// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmcleod/customersvc/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu       sync.RWMutex
	clients  map[string]*storage.ClientRecord
	sessions map[string]*storage.SessionRecord
	tokens   map[string]*storage.TokenRecord

	// secondary indexes
	clientByName  map[string]string
	clientByEmail map[string]string
	sessionByKey  map[string]string

	now func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the time source used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a new empty in-memory Repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		clients:       make(map[string]*storage.ClientRecord),
		sessions:      make(map[string]*storage.SessionRecord),
		tokens:        make(map[string]*storage.TokenRecord),
		clientByName:  make(map[string]string),
		clientByEmail: make(map[string]string),
		sessionByKey:  make(map[string]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cloneClient(c *storage.ClientRecord) *storage.ClientRecord {
	cp := *c
	return &cp
}

func cloneSession(s *storage.SessionRecord) *storage.SessionRecord {
	cp := *s
	return &cp
}

func cloneToken(t *storage.TokenRecord) *storage.TokenRecord {
	cp := *t
	return &cp
}

func (r *Repository) GetClient(_ context.Context, id string) (*storage.ClientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return cloneClient(c), nil
}

func (r *Repository) GetClientByName(ctx context.Context, name string) (*storage.ClientRecord, error) {
	r.mu.RLock()
	id, ok := r.clientByName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("client name %q: %w", name, storage.ErrNotFound)
	}
	return r.GetClient(ctx, id)
}

func (r *Repository) GetClientByEmail(ctx context.Context, email string) (*storage.ClientRecord, error) {
	r.mu.RLock()
	id, ok := r.clientByEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("client email %q: %w", email, storage.ErrNotFound)
	}
	return r.GetClient(ctx, id)
}

func (r *Repository) CreateClient(_ context.Context, client *storage.ClientRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client.ID]; ok {
		return fmt.Errorf("client %s: %w", client.ID, storage.ErrConflict)
	}
	if _, ok := r.clientByName[client.Name]; ok {
		return fmt.Errorf("client name %q: %w", client.Name, storage.ErrConflict)
	}
	if _, ok := r.clientByEmail[client.Email]; ok {
		return fmt.Errorf("client email %q: %w", client.Email, storage.ErrConflict)
	}
	r.clients[client.ID] = cloneClient(client)
	r.clientByName[client.Name] = client.ID
	r.clientByEmail[client.Email] = client.ID
	return nil
}

func (r *Repository) ActivateClient(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if code != "" && c.ActivationCode == code {
			c.IsActive = true
			c.UpdatedAt = r.now()
			return nil
		}
	}
	return fmt.Errorf("activation code: %w", storage.ErrNotFound)
}

func (r *Repository) UpdateClient(_ context.Context, id, email, name string) (*storage.ClientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	if owner, ok := r.clientByName[name]; ok && owner != id {
		return nil, fmt.Errorf("client name %q: %w", name, storage.ErrConflict)
	}
	if owner, ok := r.clientByEmail[email]; ok && owner != id {
		return nil, fmt.Errorf("client email %q: %w", email, storage.ErrConflict)
	}
	delete(r.clientByName, c.Name)
	delete(r.clientByEmail, c.Email)
	c.Name = name
	c.Email = email
	c.UpdatedAt = r.now()
	r.clientByName[name] = id
	r.clientByEmail[email] = id
	return cloneClient(c), nil
}

func (r *Repository) SetTwoFactorSecret(_ context.Context, id, secret string) error {
	return r.updateClient(id, func(c *storage.ClientRecord) {
		c.TwoFactorSecret = secret
		c.TwoFactorActive = false
	})
}

func (r *Repository) SetTwoFactorActive(_ context.Context, id string, active bool) error {
	return r.updateClient(id, func(c *storage.ClientRecord) {
		c.TwoFactorActive = active
	})
}

func (r *Repository) updateClient(id string, fn func(*storage.ClientRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	fn(c)
	c.UpdatedAt = r.now()
	return nil
}

func (r *Repository) GetSession(_ context.Context, clientID, id string) (*storage.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || s.ClientID != clientID {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return cloneSession(s), nil
}

func (r *Repository) GetSessionByKey(_ context.Context, key string) (*storage.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessionByKey[key]
	if !ok {
		return nil, fmt.Errorf("session key: %w", storage.ErrNotFound)
	}
	return cloneSession(r.sessions[id]), nil
}

func (r *Repository) CreateSession(_ context.Context, session *storage.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, storage.ErrConflict)
	}
	if _, ok := r.sessionByKey[session.Key]; ok {
		return fmt.Errorf("session key: %w", storage.ErrConflict)
	}
	r.sessions[session.ID] = cloneSession(session)
	r.sessionByKey[session.Key] = session.ID
	return nil
}

func (r *Repository) ConfirmSession(_ context.Context, clientID, id string) error {
	return r.updateSession(clientID, id, func(s *storage.SessionRecord) { s.Confirmed = true })
}

func (r *Repository) DisableSession(_ context.Context, clientID, id string) error {
	return r.updateSession(clientID, id, func(s *storage.SessionRecord) { s.Enabled = false })
}

func (r *Repository) updateSession(clientID, id string, fn func(*storage.SessionRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.ClientID != clientID {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	fn(s)
	s.UpdatedAt = r.now()
	return nil
}

func (r *Repository) ListSessions(_ context.Context, clientID string, filter storage.SessionFilter) (storage.Page[storage.SessionRecord], error) {
	page, size := storage.NormalizePaging(filter.Page, filter.PageSize)
	r.mu.RLock()
	var matched []storage.SessionRecord
	for _, s := range r.sessions {
		if s.ClientID != clientID {
			continue
		}
		if !filter.ActiveAt.IsZero() && !s.ActiveAt(filter.ActiveAt) {
			continue
		}
		matched = append(matched, *s)
	}
	r.mu.RUnlock()
	storage.SortSessionsNewestFirst(matched)
	return storage.Paginate(matched, page, size), nil
}

func (r *Repository) GetToken(_ context.Context, id string) (*storage.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	return cloneToken(t), nil
}

func (r *Repository) ListTokens(_ context.Context, clientID string, onlyActive bool) ([]storage.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []storage.TokenRecord{}
	for _, t := range r.tokens {
		if t.ClientID != clientID || (onlyActive && !t.IsActive) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repository) CreateToken(_ context.Context, token *storage.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.ID]; ok {
		return fmt.Errorf("token %s: %w", token.ID, storage.ErrConflict)
	}
	r.tokens[token.ID] = cloneToken(token)
	return nil
}

func (r *Repository) SetTokenActive(_ context.Context, id string, active bool) (*storage.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	t.IsActive = active
	return cloneToken(t), nil
}
