package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/customersvc/account"
	"github.com/jmcleod/customersvc/api"
	"github.com/jmcleod/customersvc/internal/util"
	"github.com/jmcleod/customersvc/storage"
	"github.com/jmcleod/customersvc/storage/memory"
	"github.com/jmcleod/customersvc/totp"
)

const (
	testPassword = "Passw0rd"
	testIP       = "10.0.0.1"
)

type captureMailer struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (m *captureMailer) SendEmail(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[to] = body
	return nil
}

var activationCodePattern = regexp.MustCompile(`<strong>([0-9A-Za-z]{24})</strong>`)

func (m *captureMailer) activationCode(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	match := activationCodePattern.FindStringSubmatch(m.bodies[to])
	require.Len(t, match, 2, "no activation code mailed to %s", to)
	return match[1]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	srv    *httptest.Server
	clock  *fakeClock
	mailer *captureMailer

	mu     sync.Mutex
	alerts []api.AlertEvent
}

func (env *testEnv) recordedAlerts() []api.AlertEvent {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]api.AlertEvent(nil), env.alerts...)
}

// newAPI wires the account services over repo with cheap crypto parameters.
func newAPI(t *testing.T, repo storage.Repository, clock *fakeClock, mailer account.Mailer, opts ...api.Option) *api.API {
	t.Helper()
	hasher, err := account.NewPasswordHasher([]byte("0123456789abcdef"),
		util.Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32})
	require.NoError(t, err)
	sealKey, err := util.NewAESKey()
	require.NoError(t, err)
	sealer, err := account.NewSecretSealer(sealKey)
	require.NoError(t, err)
	signer, err := account.NewTokenSigner([]byte(strings.Repeat("s", 32)), "customersvc-test")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := totp.NewProvider("customersvc-test", totp.WithClock(clock.Now))
	accountOpts := []account.Option{account.WithClock(clock.Now), account.WithLogger(logger)}
	clients := account.NewClientService(repo, hasher, sealer, provider, mailer, accountOpts...)
	sessions := account.NewSessionService(repo, clients, accountOpts...)
	tokens := account.NewTokenService(repo, signer, accountOpts...)

	return api.New(clients, sessions, tokens, append([]api.Option{api.WithLogger(logger)}, opts...)...)
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:  &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		mailer: &captureMailer{bodies: make(map[string]string)},
	}
	repo := memory.NewRepository(memory.WithClock(env.clock.Now))
	a := newAPI(t, repo, env.clock, env.mailer,
		api.WithAlertFunc(func(e api.AlertEvent) {
			env.mu.Lock()
			env.alerts = append(env.alerts, e)
			env.mu.Unlock()
		}),
	)
	r := chi.NewRouter()
	r.Use(api.SecurityHeaders)
	r.Mount("/api/v1", a.Router())
	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, env.srv.URL+"/api/v1"+path, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func requireError(t *testing.T, resp *http.Response, status int, msg string) {
	t.Helper()
	requireStatus(t, resp, status)
	assert.Equal(t, msg, decode[api.ErrorResponse](t, resp).Error)
}

// register creates and activates a client named name.
func (env *testEnv) register(t *testing.T, name string) api.ClientResponse {
	t.Helper()
	email := name + "@example.com"
	resp := env.do(t, http.MethodPost, "/clients", "", api.RegisterClientRequest{
		Email: email, Name: name, Password: testPassword,
	})
	requireStatus(t, resp, http.StatusCreated)
	c := decode[api.ClientResponse](t, resp)
	require.False(t, c.IsActive)

	resp = env.do(t, http.MethodPut, "/clients/activate", "", api.ActivateClientRequest{
		Code: env.mailer.activationCode(t, email),
	})
	requireStatus(t, resp, http.StatusOK)
	return c
}

func (env *testEnv) login(t *testing.T, name string) api.SessionResponse {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/sessions", "", api.CreateSessionRequest{
		Name: name, Password: testPassword, IP: testIP,
	})
	requireStatus(t, resp, http.StatusCreated)
	sess := decode[api.SessionResponse](t, resp)
	require.NotEmpty(t, sess.Key)
	return sess
}

// enableTwoFactor enrols and confirms a secret using a confirmed session.
func (env *testEnv) enableTwoFactor(t *testing.T, clientID, key string) string {
	t.Helper()
	resp := env.do(t, http.MethodPut, "/clients/"+clientID+"/two-factor", key, nil)
	requireStatus(t, resp, http.StatusOK)
	setup := decode[api.TwoFactorSetupResponse](t, resp)
	require.True(t, strings.HasPrefix(setup.QRCodeURL, "data:image/png;base64,"))
	secret := strings.ReplaceAll(setup.ManualEntryKey, " ", "")

	resp = env.do(t, http.MethodPut, "/clients/"+clientID+"/two-factor/activate", key,
		api.CodeRequest{Code: env.code(t, secret)})
	requireStatus(t, resp, http.StatusOK)
	require.True(t, decode[api.ResultResponse](t, resp).Success)
	return secret
}

func (env *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.Code(secret, env.clock.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code outside the accepted window.
func (env *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := env.clock.Now()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.Code(secret, now.Add(d))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("no wrong code candidate")
	return ""
}

func TestPing(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/ping", "", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, "ok", decode[api.PingResponse](t, resp).Status)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestRegisterActivateAndLogin(t *testing.T) {
	env := setupServer(t)
	c := env.register(t, "alice")

	sess := env.login(t, "alice")
	assert.Equal(t, c.ID, sess.ClientID)
	assert.True(t, sess.Confirmed, "no second factor means born confirmed")
	assert.True(t, sess.Enabled)
	assert.True(t, env.clock.Now().Add(account.DefaultSessionTTL).Equal(sess.ExpiresAt))

	resp := env.do(t, http.MethodGet, "/clients/"+c.ID, sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	got := decode[api.ClientResponse](t, resp)
	assert.True(t, got.IsActive)
	assert.Equal(t, "unset", got.TwoFactor)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestRegisterValidation(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPost, "/clients", "", api.RegisterClientRequest{
		Email: "Alice <alice@example.com>", Name: "alice", Password: testPassword,
	})
	requireStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/clients", "", api.RegisterClientRequest{
		Email: "alice@example.com", Name: "alice", Password: "password",
	})
	requireStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/clients", "", "not an object")
	requireError(t, resp, http.StatusBadRequest, "request is empty or has invalid format")

	env.register(t, "alice")
	resp = env.do(t, http.MethodPost, "/clients", "", api.RegisterClientRequest{
		Email: "other@example.com", Name: "alice", Password: testPassword,
	})
	requireStatus(t, resp, http.StatusConflict)
}

func TestCheckAvailability(t *testing.T) {
	env := setupServer(t)
	env.register(t, "alice")

	resp := env.do(t, http.MethodGet, "/clients/check", "", nil)
	requireError(t, resp, http.StatusBadRequest, "name or email is required")

	resp = env.do(t, http.MethodGet, "/clients/check?name=alice", "", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.False(t, decode[api.AvailabilityResponse](t, resp).Available)

	resp = env.do(t, http.MethodGet, "/clients/check?email=bob@example.com", "", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.True(t, decode[api.AvailabilityResponse](t, resp).Available)

	resp = env.do(t, http.MethodGet, "/clients/check?name=bob&email=alice@example.com", "", nil)
	requireStatus(t, resp, http.StatusOK)
	assert.True(t, decode[api.AvailabilityResponse](t, resp).Available, "name takes precedence")
}

func TestActivationErrors(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPut, "/clients/activate", "", api.ActivateClientRequest{Code: "nope"})
	requireError(t, resp, http.StatusNotFound, "activation code not found")

	resp = env.do(t, http.MethodPost, "/clients/activate/resend", "", api.ResendActivationRequest{Email: "ghost@example.com"})
	requireError(t, resp, http.StatusNotFound, "client not found")

	resp = env.do(t, http.MethodPost, "/clients", "", api.RegisterClientRequest{
		Email: "carol@example.com", Name: "carol", Password: testPassword,
	})
	requireStatus(t, resp, http.StatusCreated)

	resp = env.do(t, http.MethodPost, "/sessions", "", api.CreateSessionRequest{
		Name: "carol", Password: testPassword, IP: testIP,
	})
	requireError(t, resp, http.StatusUnauthorized, "name or password is incorrect")

	resp = env.do(t, http.MethodPost, "/clients/activate/resend", "", api.ResendActivationRequest{Email: "carol@example.com"})
	requireStatus(t, resp, http.StatusOK)
	assert.True(t, decode[api.ResultResponse](t, resp).Success)
	assert.Len(t, env.mailer.activationCode(t, "carol@example.com"), 24)
}

func TestCreateSessionErrors(t *testing.T) {
	env := setupServer(t)
	env.register(t, "alice")

	resp := env.do(t, http.MethodPost, "/sessions", "", api.CreateSessionRequest{
		Name: "alice", Password: "Wr0ngpass", IP: testIP,
	})
	requireError(t, resp, http.StatusUnauthorized, "name or password is incorrect")

	resp = env.do(t, http.MethodPost, "/sessions", "", api.CreateSessionRequest{
		Name: "nobody", Password: testPassword, IP: testIP,
	})
	requireError(t, resp, http.StatusUnauthorized, "name or password is incorrect")

	for _, ip := range []string{"", "::1", "10.0.0", "10.0.0.256"} {
		resp = env.do(t, http.MethodPost, "/sessions", "", api.CreateSessionRequest{
			Name: "alice", Password: testPassword, IP: ip,
		})
		requireStatus(t, resp, http.StatusBadRequest)
	}
}

func TestGateMessages(t *testing.T) {
	env := setupServer(t)
	env.register(t, "alice")
	sess := env.login(t, "alice")

	resp := env.do(t, http.MethodGet, "/sessions", "", nil)
	requireError(t, resp, http.StatusUnauthorized, "authorization header is empty")

	resp = env.do(t, http.MethodGet, "/sessions", "unknown-key", nil)
	requireError(t, resp, http.StatusUnauthorized, "unauthorized")

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, env.srv.URL+"/api/v1/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", sess.Key)
	raw, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode, "bare key without scheme")
}

func TestTwoFactorSessionConfirmation(t *testing.T) {
	env := setupServer(t)
	c := env.register(t, "alice")
	first := env.login(t, "alice")
	secret := env.enableTwoFactor(t, c.ID, first.Key)

	second := env.login(t, "alice")
	assert.False(t, second.Confirmed)

	resp := env.do(t, http.MethodGet, "/sessions", second.Key, nil)
	requireError(t, resp, http.StatusUnauthorized, "session must be confirmed and enabled")

	resp = env.do(t, http.MethodGet, "/sessions/"+second.ID+"/confirm/required", second.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.True(t, decode[api.ConfirmationRequiredResponse](t, resp).Required)

	resp = env.do(t, http.MethodPut, "/sessions/"+second.ID+"/confirm", second.Key,
		api.CodeRequest{Code: env.wrongCode(t, secret)})
	requireError(t, resp, http.StatusUnauthorized, "invalid one-time code")

	resp = env.do(t, http.MethodPut, "/sessions/"+second.ID+"/confirm", second.Key,
		api.CodeRequest{Code: env.code(t, secret)})
	requireStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/sessions", second.Key, nil)
	requireStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/sessions/"+second.ID+"/confirm/required", second.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.False(t, decode[api.ConfirmationRequiredResponse](t, resp).Required)

	resp = env.do(t, http.MethodPut, "/sessions/"+second.ID+"/confirm", second.Key,
		api.CodeRequest{Code: env.code(t, secret)})
	requireStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/sessions/"+second.ID, second.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	got := decode[api.SessionResponse](t, resp)
	assert.True(t, got.Confirmed)
	assert.Empty(t, got.Key, "session key is only returned on creation")
}

func TestTwoFactorLifecycle(t *testing.T) {
	env := setupServer(t)
	c := env.register(t, "alice")
	sess := env.login(t, "alice")
	secret := env.enableTwoFactor(t, c.ID, sess.Key)

	resp := env.do(t, http.MethodPut, "/clients/"+c.ID+"/two-factor", sess.Key, nil)
	requireError(t, resp, http.StatusConflict, "Client already has active GoogleAuthCode.")

	resp = env.do(t, http.MethodPut, "/clients/"+c.ID+"/two-factor/activate", sess.Key,
		api.CodeRequest{Code: env.code(t, secret)})
	requireStatus(t, resp, http.StatusOK)
	assert.False(t, decode[api.ResultResponse](t, resp).Success, "already active")

	resp = env.do(t, http.MethodPut, "/clients/"+c.ID+"/two-factor/deactivate", sess.Key,
		api.CodeRequest{Code: env.wrongCode(t, secret)})
	requireError(t, resp, http.StatusUnauthorized, "invalid one-time code")

	resp = env.do(t, http.MethodPut, "/clients/"+c.ID+"/two-factor/deactivate", sess.Key,
		api.CodeRequest{Code: env.code(t, secret)})
	requireStatus(t, resp, http.StatusOK)
	assert.True(t, decode[api.ResultResponse](t, resp).Success)

	resp = env.do(t, http.MethodGet, "/clients/"+c.ID, sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, "pending", decode[api.ClientResponse](t, resp).TwoFactor)

	// A pending secret still makes new sessions start unconfirmed, but any
	// code confirms them.
	pending := env.login(t, "alice")
	assert.False(t, pending.Confirmed)
	resp = env.do(t, http.MethodPut, "/sessions/"+pending.ID+"/confirm", pending.Key,
		api.CodeRequest{Code: "000000"})
	requireStatus(t, resp, http.StatusOK)
}

func TestSecondFactorFailureSpikeAlerts(t *testing.T) {
	env := setupServer(t)
	c := env.register(t, "alice")
	sess := env.login(t, "alice")
	secret := env.enableTwoFactor(t, c.ID, sess.Key)
	wrong := env.wrongCode(t, secret)

	for i := 0; i < 20; i++ {
		resp := env.do(t, http.MethodPut, "/clients/"+c.ID+"/two-factor/deactivate", sess.Key,
			api.CodeRequest{Code: wrong})
		requireStatus(t, resp, http.StatusUnauthorized)
	}
	alerts := env.recordedAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, api.AlertSecondFactorFailureSpike, alerts[0].Type)
}

func TestDisabledSessionIsRejected(t *testing.T) {
	env := setupServer(t)
	env.register(t, "alice")
	sess := env.login(t, "alice")

	resp := env.do(t, http.MethodPut, "/sessions/"+sess.ID+"/disable", sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/sessions", sess.Key, nil)
	requireError(t, resp, http.StatusUnauthorized, "session must be confirmed and enabled")

	resp = env.do(t, http.MethodGet, "/sessions/"+sess.ID+"/confirm/required", sess.Key, nil)
	requireError(t, resp, http.StatusUnauthorized, "session must be confirmed and enabled")

	other := env.login(t, "alice")
	resp = env.do(t, http.MethodPut, "/sessions/"+sess.ID+"/disable", other.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	resp = env.do(t, http.MethodGet, "/sessions/"+sess.ID, other.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.False(t, decode[api.SessionResponse](t, resp).Enabled)
}

func TestExpiredSessions(t *testing.T) {
	env := setupServer(t)
	c := env.register(t, "alice")
	old := env.login(t, "alice")
	env.enableTwoFactor(t, c.ID, old.Key)
	unconfirmed := env.login(t, "alice")

	env.clock.Advance(account.DefaultSessionTTL + time.Second)

	resp := env.do(t, http.MethodGet, "/sessions", old.Key, nil)
	requireError(t, resp, http.StatusUnauthorized, "session expired")

	// Expiry is checked before the confirmation flags.
	resp = env.do(t, http.MethodGet, "/sessions", unconfirmed.Key, nil)
	requireError(t, resp, http.StatusUnauthorized, "session expired")
	resp = env.do(t, http.MethodGet, "/sessions/"+unconfirmed.ID+"/confirm/required", unconfirmed.Key, nil)
	requireError(t, resp, http.StatusUnauthorized, "session expired")

	resp = env.do(t, http.MethodPut, "/clients/"+c.ID+"/two-factor/deactivate", "", nil)
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestListSessions(t *testing.T) {
	env := setupServer(t)
	env.register(t, "alice")
	expired := env.login(t, "alice")
	env.clock.Advance(account.DefaultSessionTTL + time.Second)

	var keys []string
	for i := 0; i < 3; i++ {
		env.clock.Advance(time.Second)
		keys = append(keys, env.login(t, "alice").Key)
	}
	key := keys[len(keys)-1]

	resp := env.do(t, http.MethodGet, "/sessions", key, nil)
	requireStatus(t, resp, http.StatusOK)
	all := decode[api.SessionListResponse](t, resp)
	assert.Equal(t, 4, all.TotalCount)
	require.Len(t, all.Items, 4)
	assert.Equal(t, expired.ID, all.Items[3].ID, "newest first")
	for _, s := range all.Items {
		assert.Empty(t, s.Key)
	}

	resp = env.do(t, http.MethodGet, "/sessions?onlyActive=true", key, nil)
	requireStatus(t, resp, http.StatusOK)
	active := decode[api.SessionListResponse](t, resp)
	assert.Equal(t, 3, active.TotalCount)
	for _, s := range active.Items {
		assert.NotEqual(t, expired.ID, s.ID)
	}

	resp = env.do(t, http.MethodGet, "/sessions?pageNumber=2&pageSize=3", key, nil)
	requireStatus(t, resp, http.StatusOK)
	page := decode[api.SessionListResponse](t, resp)
	assert.Equal(t, 2, page.PageIndex)
	assert.Equal(t, 2, page.PageCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, expired.ID, page.Items[0].ID)

	resp = env.do(t, http.MethodGet, "/sessions?pageNumber=0", key, nil)
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestClientOwnership(t *testing.T) {
	env := setupServer(t)
	alice := env.register(t, "alice")
	env.register(t, "bob")
	aliceSess := env.login(t, "alice")
	bobSess := env.login(t, "bob")

	resp := env.do(t, http.MethodGet, "/clients/"+alice.ID, bobSess.Key, nil)
	requireError(t, resp, http.StatusNotFound, "client not found")

	resp = env.do(t, http.MethodPut, "/clients/"+alice.ID+"/two-factor", bobSess.Key, nil)
	requireStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodGet, "/sessions/"+aliceSess.ID, bobSess.Key, nil)
	requireError(t, resp, http.StatusNotFound, "session not found")

	resp = env.do(t, http.MethodPut, "/sessions/"+aliceSess.ID+"/disable", bobSess.Key, nil)
	requireStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodGet, "/sessions", aliceSess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Equal(t, 1, decode[api.SessionListResponse](t, resp).TotalCount)

	resp = env.do(t, http.MethodGet, "/sessions/not-a-uuid", aliceSess.Key, nil)
	requireError(t, resp, http.StatusNotFound, "session not found")

	resp = env.do(t, http.MethodPut, "/tokens/not-a-uuid/activate", aliceSess.Key, nil)
	requireError(t, resp, http.StatusNotFound, "token not found")
}

func TestUpdateClient(t *testing.T) {
	env := setupServer(t)
	c := env.register(t, "alice")
	env.register(t, "bob")
	sess := env.login(t, "alice")

	resp := env.do(t, http.MethodPut, "/clients/"+c.ID, sess.Key, api.UpdateClientRequest{
		Email: "alice@example.org", Name: "alicia",
	})
	requireStatus(t, resp, http.StatusOK)
	got := decode[api.ClientResponse](t, resp)
	assert.Equal(t, "alicia", got.Name)
	assert.Equal(t, "alice@example.org", got.Email)

	resp = env.do(t, http.MethodPut, "/clients/"+c.ID, sess.Key, api.UpdateClientRequest{
		Email: "bob@example.com", Name: "alicia",
	})
	requireStatus(t, resp, http.StatusConflict)

	resp = env.do(t, http.MethodPut, "/clients/"+c.ID, sess.Key, api.UpdateClientRequest{
		Email: "alice@example.org", Name: strings.Repeat("a", 33),
	})
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestTokens(t *testing.T) {
	env := setupServer(t)
	env.register(t, "alice")
	env.register(t, "bob")
	sess := env.login(t, "alice")
	bob := env.login(t, "bob")

	resp := env.do(t, http.MethodPost, "/tokens", sess.Key, api.CreateTokenRequest{
		IP: testIP, AuthMethod: "HMAC_SHA256",
	})
	requireStatus(t, resp, http.StatusCreated)
	tok := decode[api.TokenResponse](t, resp)
	assert.False(t, tok.IsActive)
	assert.Equal(t, "hmac_sha256", tok.AuthMethod)
	assert.Equal(t, sess.ClientID, tok.ClientID)
	assert.Equal(t, 2, strings.Count(tok.Value, "."), "value is a JWT")

	resp = env.do(t, http.MethodGet, "/tokens?onlyActive=true", sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Empty(t, decode[[]api.TokenResponse](t, resp))

	resp = env.do(t, http.MethodPut, "/tokens/"+tok.ID+"/activate", bob.Key, nil)
	requireError(t, resp, http.StatusNotFound, "token not found")

	resp = env.do(t, http.MethodPut, "/tokens/"+tok.ID+"/activate", sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.True(t, decode[api.TokenResponse](t, resp).IsActive)

	resp = env.do(t, http.MethodGet, "/tokens?onlyActive=true", sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	require.Len(t, decode[[]api.TokenResponse](t, resp), 1)

	resp = env.do(t, http.MethodPut, "/tokens/"+tok.ID+"/deactivate", sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.False(t, decode[api.TokenResponse](t, resp).IsActive)

	resp = env.do(t, http.MethodGet, "/tokens", sess.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Len(t, decode[[]api.TokenResponse](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/tokens", bob.Key, nil)
	requireStatus(t, resp, http.StatusOK)
	assert.Empty(t, decode[[]api.TokenResponse](t, resp))

	resp = env.do(t, http.MethodPost, "/tokens", sess.Key, api.CreateTokenRequest{IP: testIP, AuthMethod: "kerberos"})
	requireStatus(t, resp, http.StatusBadRequest)
	resp = env.do(t, http.MethodPost, "/tokens", sess.Key, api.CreateTokenRequest{IP: "localhost"})
	requireStatus(t, resp, http.StatusBadRequest)
	resp = env.do(t, http.MethodGet, "/tokens?onlyActive=maybe", sess.Key, nil)
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestDocsServed(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/openapi.yaml", "", nil)
	requireStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/sessions/{id}/confirm/required")
}

// brokenSessionStore fails every session key lookup.
type brokenSessionStore struct {
	*memory.Repository
	err error
}

func (b brokenSessionStore) GetSessionByKey(context.Context, string) (*storage.SessionRecord, error) {
	return nil, b.err
}

func TestSessionAuthGate(t *testing.T) {
	preset := api.Caller{ClientID: "client-1", SessionID: "session-1"}
	tests := []struct {
		name       string
		repo       storage.Repository
		caller     *api.Caller
		wantStatus int
		wantBody   string
		wantNext   bool
	}{
		{
			name:       "storage error is a server error",
			repo:       brokenSessionStore{Repository: memory.NewRepository(), err: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"db down"}`,
		},
		{
			name:       "caller already in context passes through",
			repo:       memory.NewRepository(),
			caller:     &preset,
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
			a := newAPI(t, tt.repo, clock, &captureMailer{bodies: make(map[string]string)})

			var (
				nextCalled bool
				got        api.Caller
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				got, _ = api.CallerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			if tt.caller != nil {
				req = req.WithContext(api.WithCaller(req.Context(), *tt.caller))
			} else {
				req.Header.Set("Authorization", "Bearer some-session-key")
			}
			rec := httptest.NewRecorder()
			a.SessionAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			assert.Equal(t, tt.wantNext, nextCalled)
			if tt.caller != nil {
				assert.Equal(t, *tt.caller, got)
			}
		})
	}
}
