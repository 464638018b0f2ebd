// Package storagetest holds the behavioural suite every storage backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/customersvc/storage"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) storage.Repository

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// Run executes the full contract against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Clients", func(t *testing.T) { testClients(t, newRepo(t)) })
	t.Run("ClientUniqueness", func(t *testing.T) { testClientUniqueness(t, newRepo(t)) })
	t.Run("ClientTwoFactor", func(t *testing.T) { testClientTwoFactor(t, newRepo(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newRepo(t)) })
	t.Run("SessionPaging", func(t *testing.T) { testSessionPaging(t, newRepo(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newRepo(t)) })
}

// NewClient returns a populated client record for tests.
func NewClient(id, name string) *storage.ClientRecord {
	return &storage.ClientRecord{
		ID:             id,
		Email:          name + "@example.com",
		Name:           name,
		PasswordHash:   "hash-" + name,
		ActivationCode: "code-" + name,
		CreatedAt:      epoch,
		UpdatedAt:      epoch,
	}
}

// NewSession returns an enabled, unconfirmed session expiring ttl after created.
func NewSession(id, clientID string, created time.Time, ttl time.Duration) *storage.SessionRecord {
	return &storage.SessionRecord{
		ID:        id,
		ClientID:  clientID,
		Key:       "key-" + id,
		IP:        "10.0.0.1",
		Enabled:   true,
		CreatedAt: created,
		UpdatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
}

func testClients(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := NewClient("c1", "alice")
	require.NoError(t, repo.CreateClient(ctx, c))

	got, err := repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "hash-alice", got.PasswordHash)
	assert.False(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(epoch))

	byName, err := repo.GetClientByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "c1", byName.ID)

	byEmail, err := repo.GetClientByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c1", byEmail.ID)

	_, err = repo.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetClientByName(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetClientByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, repo.ActivateClient(ctx, "code-alice"))
	got, err = repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.ErrorIs(t, repo.ActivateClient(ctx, "bogus"), storage.ErrNotFound)

	updated, err := repo.UpdateClient(ctx, "c1", "alice2@example.com", "alice2")
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Name)
	assert.Equal(t, "alice2@example.com", updated.Email)
	assert.True(t, updated.IsActive)

	_, err = repo.GetClientByName(ctx, "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	byName, err = repo.GetClientByName(ctx, "alice2")
	require.NoError(t, err)
	assert.Equal(t, "c1", byName.ID)

	_, err = repo.UpdateClient(ctx, "missing", "x@example.com", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Returned records are copies.
	got.Name = "mutated"
	again, err := repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice2", again.Name)
}

func testClientUniqueness(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateClient(ctx, NewClient("c1", "alice")))
	require.NoError(t, repo.CreateClient(ctx, NewClient("c2", "bob")))

	dupName := NewClient("c3", "alice")
	dupName.Email = "other@example.com"
	assert.ErrorIs(t, repo.CreateClient(ctx, dupName), storage.ErrConflict)

	dupEmail := NewClient("c4", "carol")
	dupEmail.Email = "bob@example.com"
	assert.ErrorIs(t, repo.CreateClient(ctx, dupEmail), storage.ErrConflict)

	_, err := repo.UpdateClient(ctx, "c2", "bob@example.com", "alice")
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Keeping one's own name and e-mail is fine.
	_, err = repo.UpdateClient(ctx, "c2", "bob@example.com", "bob")
	assert.NoError(t, err)
}

func testClientTwoFactor(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateClient(ctx, NewClient("c1", "alice")))

	require.NoError(t, repo.SetTwoFactorSecret(ctx, "c1", "sealed-1"))
	got, err := repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "sealed-1", got.TwoFactorSecret)
	assert.False(t, got.TwoFactorActive)

	require.NoError(t, repo.SetTwoFactorActive(ctx, "c1", true))
	got, err = repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.TwoFactorActive)

	// Replacing the secret resets activation.
	require.NoError(t, repo.SetTwoFactorSecret(ctx, "c1", "sealed-2"))
	got, err = repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "sealed-2", got.TwoFactorSecret)
	assert.False(t, got.TwoFactorActive)

	assert.ErrorIs(t, repo.SetTwoFactorSecret(ctx, "missing", "x"), storage.ErrNotFound)
	assert.ErrorIs(t, repo.SetTwoFactorActive(ctx, "missing", true), storage.ErrNotFound)
}

func testSessions(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateClient(ctx, NewClient("c1", "alice")))
	require.NoError(t, repo.CreateClient(ctx, NewClient("c2", "bob")))

	s := NewSession("s1", "c1", epoch, 15*time.Minute)
	require.NoError(t, repo.CreateSession(ctx, s))
	assert.ErrorIs(t, repo.CreateSession(ctx, s), storage.ErrConflict)

	got, err := repo.GetSession(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "key-s1", got.Key)
	assert.True(t, got.Enabled)
	assert.False(t, got.Confirmed)
	assert.True(t, got.ExpiresAt.Equal(epoch.Add(15*time.Minute)))

	byKey, err := repo.GetSessionByKey(ctx, "key-s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", byKey.ID)
	_, err = repo.GetSessionByKey(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Sessions are scoped to their owner.
	_, err = repo.GetSession(ctx, "c2", "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, repo.ConfirmSession(ctx, "c2", "s1"), storage.ErrNotFound)
	assert.ErrorIs(t, repo.DisableSession(ctx, "c2", "s1"), storage.ErrNotFound)

	require.NoError(t, repo.ConfirmSession(ctx, "c1", "s1"))
	got, err = repo.GetSession(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
	assert.True(t, got.Enabled)

	require.NoError(t, repo.DisableSession(ctx, "c1", "s1"))
	got, err = repo.GetSession(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.True(t, got.Confirmed)
}

func testSessionPaging(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateClient(ctx, NewClient("c1", "alice")))
	require.NoError(t, repo.CreateClient(ctx, NewClient("c2", "bob")))

	for i := 0; i < 5; i++ {
		s := NewSession(fmt.Sprintf("s%d", i), "c1", epoch.Add(time.Duration(i)*time.Minute), 10*time.Minute)
		require.NoError(t, repo.CreateSession(ctx, s))
	}
	require.NoError(t, repo.CreateSession(ctx, NewSession("other", "c2", epoch, time.Hour)))
	require.NoError(t, repo.DisableSession(ctx, "c1", "s4"))

	page, err := repo.ListSessions(ctx, "c1", storage.SessionFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Equal(t, 3, page.PageCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "s4", page.Items[0].ID)
	assert.Equal(t, "s3", page.Items[1].ID)

	last, err := repo.ListSessions(ctx, "c1", storage.SessionFilter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, "s0", last.Items[0].ID)

	beyond, err := repo.ListSessions(ctx, "c1", storage.SessionFilter{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 5, beyond.TotalCount)

	// At epoch+11m: s0 (expires +10m) and s1 (+11m) are expired, s4 disabled.
	active, err := repo.ListSessions(ctx, "c1", storage.SessionFilter{
		ActiveAt: epoch.Add(11 * time.Minute),
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, active.TotalCount)
	require.Len(t, active.Items, 2)
	assert.Equal(t, "s3", active.Items[0].ID)
	assert.Equal(t, "s2", active.Items[1].ID)

	none, err := repo.ListSessions(ctx, "nobody", storage.SessionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, none.TotalCount)
	assert.NotNil(t, none.Items)
}

func testTokens(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateClient(ctx, NewClient("c1", "alice")))
	require.NoError(t, repo.CreateClient(ctx, NewClient("c2", "bob")))

	mk := func(id, clientID string, offset time.Duration) *storage.TokenRecord {
		return &storage.TokenRecord{
			ID:         id,
			ClientID:   clientID,
			Value:      "value-" + id,
			AuthMethod: "session_key",
			IP:         "10.0.0.2",
			CreatedAt:  epoch.Add(offset),
		}
	}
	require.NoError(t, repo.CreateToken(ctx, mk("t1", "c1", 0)))
	require.NoError(t, repo.CreateToken(ctx, mk("t2", "c1", time.Second)))
	require.NoError(t, repo.CreateToken(ctx, mk("t3", "c2", 0)))
	assert.ErrorIs(t, repo.CreateToken(ctx, mk("t1", "c1", 0)), storage.ErrConflict)

	got, err := repo.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "value-t1", got.Value)
	assert.False(t, got.IsActive)
	_, err = repo.GetToken(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := repo.ListTokens(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t1", all[0].ID)
	assert.Equal(t, "t2", all[1].ID)

	active, err := repo.ListTokens(ctx, "c1", true)
	require.NoError(t, err)
	assert.Empty(t, active)

	tok, err := repo.SetTokenActive(ctx, "t2", true)
	require.NoError(t, err)
	assert.True(t, tok.IsActive)

	active, err = repo.ListTokens(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "t2", active[0].ID)

	tok, err = repo.SetTokenActive(ctx, "t2", false)
	require.NoError(t, err)
	assert.False(t, tok.IsActive)

	_, err = repo.SetTokenActive(ctx, "missing", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
