// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Each record type has its own table (see schema.sql). Uniqueness of client
// names, e-mails and session keys is enforced by the database; unique
// violations surface as storage.ErrConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/customersvc/storage"
)

const uniqueViolation = "23505"

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to stamp updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool, opts...), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func mapErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s (%s): %w", what, pgErr.ConstraintName, storage.ErrConflict)
	}
	return err
}

func notFoundUnlessAffected(tag pgconn.CommandTag, err error, what string) error {
	if err != nil {
		return mapErr(err, what)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Clients
// ---------------------------------------------------------------------------

const clientColumns = `id, email, name, password_hash, activation_code, is_active,
	two_factor_secret, two_factor_active, created_at, updated_at`

func scanClient(row pgx.Row) (*storage.ClientRecord, error) {
	var c storage.ClientRecord
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.ActivationCode, &c.IsActive,
		&c.TwoFactorSecret, &c.TwoFactorActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) getClientWhere(ctx context.Context, column, value string) (*storage.ClientRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE `+column+` = $1`, value)
	c, err := scanClient(row)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("client %s %q", column, value))
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*storage.ClientRecord, error) {
	return s.getClientWhere(ctx, "id", id)
}

func (s *Store) GetClientByName(ctx context.Context, name string) (*storage.ClientRecord, error) {
	return s.getClientWhere(ctx, "name", name)
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*storage.ClientRecord, error) {
	return s.getClientWhere(ctx, "email", email)
}

func (s *Store) CreateClient(ctx context.Context, c *storage.ClientRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clients (`+clientColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Email, c.Name, c.PasswordHash, c.ActivationCode, c.IsActive,
		c.TwoFactorSecret, c.TwoFactorActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return mapErr(err, "client "+c.ID)
	}
	return nil
}

func (s *Store) ActivateClient(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clients SET is_active = TRUE, updated_at = $2
		 WHERE activation_code = $1 AND activation_code <> ''`, code, s.now())
	return notFoundUnlessAffected(tag, err, "activation code")
}

func (s *Store) UpdateClient(ctx context.Context, id, email, name string) (*storage.ClientRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE clients SET email = $2, name = $3, updated_at = $4
		 WHERE id = $1 RETURNING `+clientColumns, id, email, name, s.now())
	c, err := scanClient(row)
	if err != nil {
		return nil, mapErr(err, "client "+id)
	}
	return c, nil
}

func (s *Store) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clients SET two_factor_secret = $2, two_factor_active = FALSE, updated_at = $3
		 WHERE id = $1`, id, secret, s.now())
	return notFoundUnlessAffected(tag, err, "client "+id)
}

func (s *Store) SetTwoFactorActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clients SET two_factor_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, s.now())
	return notFoundUnlessAffected(tag, err, "client "+id)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

const sessionColumns = `id, client_id, key, ip, confirmed, enabled, created_at, updated_at, expires_at`

func scanSession(row pgx.Row) (*storage.SessionRecord, error) {
	var rec storage.SessionRecord
	err := row.Scan(&rec.ID, &rec.ClientID, &rec.Key, &rec.IP, &rec.Confirmed, &rec.Enabled,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetSession(ctx context.Context, clientID, id string) (*storage.SessionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE client_id = $1 AND id = $2`, clientID, id)
	rec, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err, "session "+id)
	}
	return rec, nil
}

func (s *Store) GetSessionByKey(ctx context.Context, key string) (*storage.SessionRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE key = $1`, key)
	rec, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err, "session key")
	}
	return rec, nil
}

func (s *Store) CreateSession(ctx context.Context, rec *storage.SessionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ClientID, rec.Key, rec.IP, rec.Confirmed, rec.Enabled,
		rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt)
	if err != nil {
		return mapErr(err, "session "+rec.ID)
	}
	return nil
}

func (s *Store) ConfirmSession(ctx context.Context, clientID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET confirmed = TRUE, updated_at = $3 WHERE client_id = $1 AND id = $2`,
		clientID, id, s.now())
	return notFoundUnlessAffected(tag, err, "session "+id)
}

func (s *Store) DisableSession(ctx context.Context, clientID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET enabled = FALSE, updated_at = $3 WHERE client_id = $1 AND id = $2`,
		clientID, id, s.now())
	return notFoundUnlessAffected(tag, err, "session "+id)
}

func (s *Store) ListSessions(ctx context.Context, clientID string, filter storage.SessionFilter) (storage.Page[storage.SessionRecord], error) {
	page, size := storage.NormalizePaging(filter.Page, filter.PageSize)
	var activeAt *time.Time
	if !filter.ActiveAt.IsZero() {
		activeAt = &filter.ActiveAt
	}
	const where = `WHERE client_id = $1 AND ($2::timestamptz IS NULL OR (enabled AND expires_at > $2))`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions `+where, clientID, activeAt).Scan(&total); err != nil {
		return storage.Page[storage.SessionRecord]{}, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions `+where+`
		 ORDER BY created_at DESC, id ASC LIMIT $3 OFFSET $4`,
		clientID, activeAt, size, (page-1)*size)
	if err != nil {
		return storage.Page[storage.SessionRecord]{}, err
	}
	defer rows.Close()

	var items []storage.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return storage.Page[storage.SessionRecord]{}, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return storage.Page[storage.SessionRecord]{}, err
	}
	return storage.NewPage(items, page, size, total), nil
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

const tokenColumns = `id, client_id, value, auth_method, ip, is_active, created_at`

func scanToken(row pgx.Row) (*storage.TokenRecord, error) {
	var rec storage.TokenRecord
	err := row.Scan(&rec.ID, &rec.ClientID, &rec.Value, &rec.AuthMethod, &rec.IP, &rec.IsActive, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetToken(ctx context.Context, id string) (*storage.TokenRecord, error) {
	rec, err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "token "+id)
	}
	return rec, nil
}

func (s *Store) ListTokens(ctx context.Context, clientID string, onlyActive bool) ([]storage.TokenRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM tokens
		 WHERE client_id = $1 AND (NOT $2 OR is_active)
		 ORDER BY created_at, id`, clientID, onlyActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []storage.TokenRecord{}
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Store) CreateToken(ctx context.Context, rec *storage.TokenRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tokens (`+tokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ClientID, rec.Value, rec.AuthMethod, rec.IP, rec.IsActive, rec.CreatedAt)
	if err != nil {
		return mapErr(err, "token "+rec.ID)
	}
	return nil
}

func (s *Store) SetTokenActive(ctx context.Context, id string, active bool) (*storage.TokenRecord, error) {
	rec, err := scanToken(s.pool.QueryRow(ctx,
		`UPDATE tokens SET is_active = $2 WHERE id = $1 RETURNING `+tokenColumns, id, active))
	if err != nil {
		return nil, mapErr(err, "token "+id)
	}
	return rec, nil
}
