// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/customersvc/storage"
)

var (
	bucketClients         = []byte("clients")
	bucketClientNames     = []byte("client_names")
	bucketClientEmails    = []byte("client_emails")
	bucketActivationCodes = []byte("activation_codes")
	bucketSessions        = []byte("sessions")
	bucketSessionKeys     = []byte("session_keys")
	bucketTokens          = []byte("tokens")

	allBuckets = [][]byte{
		bucketClients, bucketClientNames, bucketClientEmails, bucketActivationCodes,
		bucketSessions, bucketSessionKeys, bucketTokens,
	}
)

// Store implements storage.Repository backed by a BBolt database.
//
// Sessions are keyed "<clientID>:<sessionID>" so a client's sessions can be
// listed with a cursor prefix scan.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewRepository returns a Repository backed by the given BBolt database,
// creating the buckets it needs.
func NewRepository(db *bbolt.DB, opts ...Option) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sessionKey(clientID, id string) []byte {
	return []byte(clientID + ":" + id)
}

func getJSON(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func loadClient(tx *bbolt.Tx, id string) (*storage.ClientRecord, error) {
	var c storage.ClientRecord
	ok, err := getJSON(tx.Bucket(bucketClients), []byte(id), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*storage.ClientRecord, error) {
	var c *storage.ClientRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, err = loadClient(tx, id)
		return err
	})
	return c, err
}

func (s *Store) getClientByIndex(bucket []byte, value, field string) (*storage.ClientRecord, error) {
	var c *storage.ClientRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucket).Get([]byte(value))
		if id == nil {
			return fmt.Errorf("client %s %q: %w", field, value, storage.ErrNotFound)
		}
		var err error
		c, err = loadClient(tx, string(id))
		return err
	})
	return c, err
}

func (s *Store) GetClientByName(_ context.Context, name string) (*storage.ClientRecord, error) {
	return s.getClientByIndex(bucketClientNames, name, "name")
}

func (s *Store) GetClientByEmail(_ context.Context, email string) (*storage.ClientRecord, error) {
	return s.getClientByIndex(bucketClientEmails, email, "email")
}

func (s *Store) CreateClient(_ context.Context, client *storage.ClientRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		clients := tx.Bucket(bucketClients)
		names := tx.Bucket(bucketClientNames)
		emails := tx.Bucket(bucketClientEmails)
		if clients.Get([]byte(client.ID)) != nil {
			return fmt.Errorf("client %s: %w", client.ID, storage.ErrConflict)
		}
		if names.Get([]byte(client.Name)) != nil {
			return fmt.Errorf("client name %q: %w", client.Name, storage.ErrConflict)
		}
		if emails.Get([]byte(client.Email)) != nil {
			return fmt.Errorf("client email %q: %w", client.Email, storage.ErrConflict)
		}
		if err := putJSON(clients, []byte(client.ID), client); err != nil {
			return err
		}
		if err := names.Put([]byte(client.Name), []byte(client.ID)); err != nil {
			return err
		}
		if err := emails.Put([]byte(client.Email), []byte(client.ID)); err != nil {
			return err
		}
		if client.ActivationCode != "" {
			return tx.Bucket(bucketActivationCodes).Put([]byte(client.ActivationCode), []byte(client.ID))
		}
		return nil
	})
}

func (s *Store) ActivateClient(_ context.Context, code string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketActivationCodes).Get([]byte(code))
		if id == nil {
			return fmt.Errorf("activation code: %w", storage.ErrNotFound)
		}
		return s.mutateClient(tx, string(id), func(c *storage.ClientRecord) { c.IsActive = true })
	})
}

func (s *Store) UpdateClient(_ context.Context, id, email, name string) (*storage.ClientRecord, error) {
	var out *storage.ClientRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		c, err := loadClient(tx, id)
		if err != nil {
			return err
		}
		names := tx.Bucket(bucketClientNames)
		emails := tx.Bucket(bucketClientEmails)
		if owner := names.Get([]byte(name)); owner != nil && string(owner) != id {
			return fmt.Errorf("client name %q: %w", name, storage.ErrConflict)
		}
		if owner := emails.Get([]byte(email)); owner != nil && string(owner) != id {
			return fmt.Errorf("client email %q: %w", email, storage.ErrConflict)
		}
		if err := names.Delete([]byte(c.Name)); err != nil {
			return err
		}
		if err := emails.Delete([]byte(c.Email)); err != nil {
			return err
		}
		c.Name = name
		c.Email = email
		c.UpdatedAt = s.now()
		if err := names.Put([]byte(name), []byte(id)); err != nil {
			return err
		}
		if err := emails.Put([]byte(email), []byte(id)); err != nil {
			return err
		}
		out = c
		return putJSON(tx.Bucket(bucketClients), []byte(id), c)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SetTwoFactorSecret(_ context.Context, id, secret string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.mutateClient(tx, id, func(c *storage.ClientRecord) {
			c.TwoFactorSecret = secret
			c.TwoFactorActive = false
		})
	})
}

func (s *Store) SetTwoFactorActive(_ context.Context, id string, active bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.mutateClient(tx, id, func(c *storage.ClientRecord) { c.TwoFactorActive = active })
	})
}

func (s *Store) mutateClient(tx *bbolt.Tx, id string, fn func(*storage.ClientRecord)) error {
	c, err := loadClient(tx, id)
	if err != nil {
		return err
	}
	fn(c)
	c.UpdatedAt = s.now()
	return putJSON(tx.Bucket(bucketClients), []byte(id), c)
}

func loadSession(tx *bbolt.Tx, key []byte) (*storage.SessionRecord, error) {
	var rec storage.SessionRecord
	ok, err := getJSON(tx.Bucket(bucketSessions), key, &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, storage.ErrNotFound)
	}
	return &rec, nil
}

func (s *Store) GetSession(_ context.Context, clientID, id string) (*storage.SessionRecord, error) {
	var rec *storage.SessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = loadSession(tx, sessionKey(clientID, id))
		return err
	})
	return rec, err
}

func (s *Store) GetSessionByKey(_ context.Context, key string) (*storage.SessionRecord, error) {
	var rec *storage.SessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		ref := tx.Bucket(bucketSessionKeys).Get([]byte(key))
		if ref == nil {
			return fmt.Errorf("session key: %w", storage.ErrNotFound)
		}
		var err error
		rec, err = loadSession(tx, ref)
		return err
	})
	return rec, err
}

func (s *Store) CreateSession(_ context.Context, session *storage.SessionRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		keys := tx.Bucket(bucketSessionKeys)
		k := sessionKey(session.ClientID, session.ID)
		if sessions.Get(k) != nil {
			return fmt.Errorf("session %s: %w", session.ID, storage.ErrConflict)
		}
		if keys.Get([]byte(session.Key)) != nil {
			return fmt.Errorf("session key: %w", storage.ErrConflict)
		}
		if err := putJSON(sessions, k, session); err != nil {
			return err
		}
		return keys.Put([]byte(session.Key), k)
	})
}

func (s *Store) ConfirmSession(_ context.Context, clientID, id string) error {
	return s.mutateSession(clientID, id, func(rec *storage.SessionRecord) { rec.Confirmed = true })
}

func (s *Store) DisableSession(_ context.Context, clientID, id string) error {
	return s.mutateSession(clientID, id, func(rec *storage.SessionRecord) { rec.Enabled = false })
}

func (s *Store) mutateSession(clientID, id string, fn func(*storage.SessionRecord)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		k := sessionKey(clientID, id)
		rec, err := loadSession(tx, k)
		if err != nil {
			return err
		}
		fn(rec)
		rec.UpdatedAt = s.now()
		return putJSON(tx.Bucket(bucketSessions), k, rec)
	})
}

func (s *Store) ListSessions(_ context.Context, clientID string, filter storage.SessionFilter) (storage.Page[storage.SessionRecord], error) {
	page, size := storage.NormalizePaging(filter.Page, filter.PageSize)
	var matched []storage.SessionRecord
	prefix := []byte(clientID + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSessions).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec storage.SessionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding session %s: %w", k, err)
			}
			if !filter.ActiveAt.IsZero() && !rec.ActiveAt(filter.ActiveAt) {
				continue
			}
			matched = append(matched, rec)
		}
		return nil
	})
	if err != nil {
		return storage.Page[storage.SessionRecord]{}, err
	}
	storage.SortSessionsNewestFirst(matched)
	return storage.Paginate(matched, page, size), nil
}

func (s *Store) GetToken(_ context.Context, id string) (*storage.TokenRecord, error) {
	var rec storage.TokenRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketTokens), []byte(id), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListTokens(_ context.Context, clientID string, onlyActive bool) ([]storage.TokenRecord, error) {
	out := []storage.TokenRecord{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(k, v []byte) error {
			var rec storage.TokenRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding token %s: %w", k, err)
			}
			if rec.ClientID != clientID || (onlyActive && !rec.IsActive) {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateToken(_ context.Context, token *storage.TokenRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		if b.Get([]byte(token.ID)) != nil {
			return fmt.Errorf("token %s: %w", token.ID, storage.ErrConflict)
		}
		return putJSON(b, []byte(token.ID), token)
	})
}

func (s *Store) SetTokenActive(_ context.Context, id string, active bool) (*storage.TokenRecord, error) {
	var rec storage.TokenRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		ok, err := getJSON(b, []byte(id), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
		}
		rec.IsActive = active
		return putJSON(b, []byte(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
