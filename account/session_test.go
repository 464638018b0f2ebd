package account

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionConfirmationGating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	plain := h.registerActive(t, "alice", "Passw0rd")
	s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, plain.ID, s.ClientID)
	assert.True(t, s.Confirmed, "no secret: confirmed immediately")
	assert.True(t, s.Enabled)
	assert.NotEmpty(t, s.Key)
	assert.Equal(t, h.clock.Now().Add(DefaultSessionTTL), s.ExpiresAt)

	pending := h.registerActive(t, "bob", "Passw0rd")
	_, err = h.clients.EnableTwoFactor(ctx, pending.ID)
	require.NoError(t, err)
	s, err = h.sessions.CreateSession(ctx, "bob", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)
	assert.False(t, s.Confirmed, "pending secret: unconfirmed")

	active := h.registerActive(t, "carol", "Passw0rd")
	h.enableTwoFactor(t, active.ID)
	s, err = h.sessions.CreateSession(ctx, "carol", "Passw0rd", "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.False(t, s.Confirmed, "active secret: unconfirmed")
	assert.Equal(t, h.clock.Now().Add(time.Minute), s.ExpiresAt)
}

func TestCreateSessionBadCredentials(t *testing.T) {
	h := newHarness(t)
	h.registerActive(t, "alice", "Passw0rd")

	s, err := h.sessions.CreateSession(context.Background(), "alice", "nope", "10.0.0.1", 0)
	require.NoError(t, err)
	assert.Nil(t, s)
	s, err = h.sessions.CreateSession(context.Background(), "ghost", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSessionKeysAreUnique(t *testing.T) {
	h := newHarness(t)
	h.registerActive(t, "alice", "Passw0rd")
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s, err := h.sessions.CreateSession(context.Background(), "alice", "Passw0rd", "10.0.0.1", 0)
		require.NoError(t, err)
		assert.False(t, seen[s.Key])
		seen[s.Key] = true
	}
}

func TestConfirmSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.registerActive(t, "alice", "Passw0rd")
	secret := h.enableTwoFactor(t, c.ID)

	s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)

	required, err := h.sessions.IsConfirmationRequired(ctx, c.ID, s.ID)
	require.NoError(t, err)
	assert.True(t, required)

	_, err = h.sessions.ConfirmSession(ctx, c.ID, s.ID, h.wrongCode(t, secret))
	assert.ErrorIs(t, err, ErrInvalidCode)

	ok, err := h.sessions.ConfirmSession(ctx, c.ID, s.ID, h.code(t, secret))
	require.NoError(t, err)
	assert.True(t, ok)

	required, err = h.sessions.IsConfirmationRequired(ctx, c.ID, s.ID)
	require.NoError(t, err)
	assert.False(t, required)

	// Idempotent.
	ok, err = h.sessions.ConfirmSession(ctx, c.ID, s.ID, h.code(t, secret))
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := h.sessions.GetSession(ctx, c.ID, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)

	ok, err = h.sessions.ConfirmSession(ctx, c.ID, "missing", h.code(t, secret))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerActive(t, "alice", "Passw0rd")
	bob := h.registerActive(t, "bob", "Passw0rd")

	s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)

	got, err := h.sessions.GetSession(ctx, bob.ID, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = h.sessions.IsConfirmationRequired(ctx, bob.ID, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ok, err := h.sessions.DisableSession(ctx, bob.ID, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisableSessionIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.registerActive(t, "alice", "Passw0rd")

	s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)

	ok, err := h.sessions.DisableSession(ctx, c.ID, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := h.sessions.GetSessionByKey(ctx, s.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Enabled)
	assert.True(t, got.Confirmed)
	assert.False(t, got.Active(h.clock.Now()))

	// Confirming again does not revive it.
	ok, err = h.sessions.ConfirmSession(ctx, c.ID, s.ID, "")
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = h.sessions.GetSessionByKey(ctx, s.Key)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestListSessionsExpiryAndPaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.registerActive(t, "alice", "Passw0rd")

	var ids []string
	for i := 0; i < 5; i++ {
		s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", fmt.Sprintf("10.0.0.%d", i), time.Duration(10+i)*time.Minute)
		require.NoError(t, err)
		ids = append(ids, s.ID)
		h.clock.Advance(time.Minute)
	}
	// Session i expires 10+2i minutes after the start.
	h.clock.Advance(7 * time.Minute) // +12m: session 0 (10m) and 1 (12m) expired.

	all, err := h.sessions.ListSessions(ctx, c.ID, false, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, all.TotalCount)
	assert.Equal(t, ids[4], all.Items[0].ID)

	active, err := h.sessions.ListSessions(ctx, c.ID, true, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, active.TotalCount)
	for _, s := range active.Items {
		assert.NotEqual(t, ids[0], s.ID)
		assert.NotEqual(t, ids[1], s.ID)
		assert.True(t, s.Active(h.clock.Now()))
	}

	page2, err := h.sessions.ListSessions(ctx, c.ID, false, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page2.PageIndex)
	assert.Equal(t, 3, page2.PageCount)
	require.Len(t, page2.Items, 2)
	assert.Equal(t, ids[2], page2.Items[0].ID)
	assert.Equal(t, ids[1], page2.Items[1].ID)

	defaults, err := h.sessions.ListSessions(ctx, c.ID, false, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.PageIndex)
	assert.Equal(t, 20, defaults.PageSize)
}

func TestSessionExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerActive(t, "alice", "Passw0rd")

	s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.True(t, s.Active(h.clock.Now()))

	h.clock.Advance(59 * time.Second)
	assert.False(t, s.Expired(h.clock.Now()))

	// A session is already expired at the instant ExpiresAt is reached.
	h.clock.Advance(time.Second)
	assert.True(t, s.ExpiresAt.Equal(h.clock.Now()))
	assert.True(t, s.Expired(h.clock.Now()))
	assert.False(t, s.Active(h.clock.Now()))
}

func TestSessionUpdatedAtFollowsServiceClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.registerActive(t, "alice", "Passw0rd")

	s, err := h.sessions.CreateSession(ctx, "alice", "Passw0rd", "10.0.0.1", 0)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	ok, err := h.sessions.DisableSession(ctx, c.ID, s.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := h.sessions.GetSession(ctx, c.ID, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.UpdatedAt.Equal(s.CreatedAt.Add(time.Minute)),
		"UpdatedAt %v, CreatedAt %v", got.UpdatedAt, got.CreatedAt)

	client, err := h.clients.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, client.UpdatedAt.Before(client.CreatedAt))
}
