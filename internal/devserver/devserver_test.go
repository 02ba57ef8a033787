package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/api"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/notify"
	"github.com/matheus3301/chatline/internal/store"
)

type testService struct {
	*httptest.Server
	svc    *Service
	hub    *Hub
	db     *store.DB
	issuer *identity.Issuer
}

func newTestService(t *testing.T, mutate ...func(*Config)) *testService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "chatd.db")
	cfg.JWTSecret = "test-secret"
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := zap.NewNop()
	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	for _, u := range cfg.Users {
		require.NoError(t, db.UpsertUser(context.Background(), &store.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}))
	}

	issuer, err := identity.NewIssuer(cfg.JWTSecret, time.Hour)
	require.NoError(t, err)
	hub := NewHub(cfg.AllowedOrigins, logger)
	svc := NewService(db, hub, issuer, cfg, logger)
	srv := httptest.NewServer(NewRouter(cfg, svc, logger))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testService{Server: srv, svc: svc, hub: hub, db: db, issuer: issuer}
}

func (ts *testService) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := ts.issuer.Mint(userID)
	require.NoError(t, err)
	return tok
}

func (ts *testService) identity(t *testing.T, userID string) identity.Provider {
	t.Helper()
	return identity.New(userID, ts.token(t, userID))
}

func (ts *testService) client(t *testing.T, userID string) *api.Client {
	t.Helper()
	c, err := api.New(api.Options{BaseURL: ts.URL, Timeout: 2 * time.Second, BreakerFailures: 5, BreakerCooldown: time.Minute},
		ts.identity(t, userID), zap.NewNop())
	require.NoError(t, err)
	return c
}

func (ts *testService) pushURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (ts *testService) subscribe(t *testing.T, userID string) *notify.Subscription {
	t.Helper()
	sub, err := notify.NewDialer(ts.pushURL(), ts.identity(t, userID), zap.NewNop()).Subscribe(testContext(t))
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	// Notifications only reach connections whose SUBSCRIBE frame was read.
	waitSubscribed(t, ts.hub, userID)
	return sub
}

func waitSubscribed(t *testing.T, h *Hub, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for c := range h.clients[userID] {
			if c.subscribed.Load() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func next(t *testing.T, sub *notify.Subscription) chat.Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C():
		require.True(t, ok, "push stream closed: %v", sub.Err())
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
		return chat.Notification{}
	}
}

func request(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAuthentication(t *testing.T) {
	ts := newTestService(t)

	resp := request(t, http.MethodGet, ts.URL+"/api/v1/chats", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, ts.URL+"/api/v1/chats", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other, err := identity.NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.Mint("alice")
	require.NoError(t, err)
	resp = request(t, http.MethodGet, ts.URL+"/api/v1/chats", forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, ts.URL+"/api/v1/chats", ts.token(t, "mallory"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unknown user", body.Error)

	resp = request(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateChatIsSymmetric(t *testing.T) {
	ts := newTestService(t)
	ctx := testContext(t)

	id, err := ts.client(t, "alice").CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := ts.client(t, "bob").CreateConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = ts.client(t, "alice").CreateConversation(ctx, "alice", "alice")
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)

	_, err = ts.client(t, "alice").CreateConversation(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, api.ErrNotFound)

	_, err = ts.client(t, "carol").CreateConversation(ctx, "alice", "bob")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestSendListAndUnread(t *testing.T) {
	ts := newTestService(t)
	ctx := testContext(t)
	alice, bob := ts.client(t, "alice"), ts.client(t, "bob")

	id, err := alice.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, alice.SendMessage(ctx, chat.SendRequest{ChatID: id, SenderID: "alice", ReceiverID: "bob", Content: "hello there bob, long text", Type: chat.TypeText}))
	require.NoError(t, alice.SendMessage(ctx, chat.SendRequest{ChatID: id, SenderID: "alice", ReceiverID: "bob", Content: "second", Type: chat.TypeText}))

	msgs, err := bob.ListMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello there bob, long text", msgs[0].Content)
	assert.Equal(t, chat.StateSent, msgs[1].State)

	convs, err := bob.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Alice Smith", convs[0].DisplayName)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "second", convs[0].LastMessagePreview)
	assert.True(t, convs[0].OtherPartyOnline, "alice was just active")

	convs, err = alice.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Bob Stone", convs[0].DisplayName)
	assert.Zero(t, convs[0].UnreadCount)

	require.NoError(t, bob.MarkSeen(ctx, id))
	convs, err = bob.ListConversations(ctx)
	require.NoError(t, err)
	assert.Zero(t, convs[0].UnreadCount)
}

func TestSendValidation(t *testing.T) {
	ts := newTestService(t)
	ctx := testContext(t)
	alice := ts.client(t, "alice")
	id, err := alice.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	tests := []struct {
		name   string
		client *api.Client
		req    chat.SendRequest
		status int
	}{
		{"empty text", alice, chat.SendRequest{ChatID: id, SenderID: "alice", ReceiverID: "bob", Type: chat.TypeText}, http.StatusBadRequest},
		{"wrong receiver", alice, chat.SendRequest{ChatID: id, SenderID: "alice", ReceiverID: "carol", Content: "x", Type: chat.TypeText}, http.StatusBadRequest},
		{"impersonation", alice, chat.SendRequest{ChatID: id, SenderID: "bob", ReceiverID: "alice", Content: "x", Type: chat.TypeText}, http.StatusForbidden},
		{"outsider", ts.client(t, "carol"), chat.SendRequest{ChatID: id, SenderID: "carol", ReceiverID: "alice", Content: "x", Type: chat.TypeText}, http.StatusForbidden},
		{"unknown chat", alice, chat.SendRequest{ChatID: "nope", SenderID: "alice", ReceiverID: "bob", Content: "x", Type: chat.TypeText}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.client.SendMessage(ctx, tt.req)
			var se *api.StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
		})
	}
}

func TestContactsExcludeCaller(t *testing.T) {
	ts := newTestService(t)

	contacts, err := ts.client(t, "alice").ListContacts(testContext(t))
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	for _, c := range contacts {
		assert.NotEqual(t, "alice", c.ID)
	}
	assert.Equal(t, "Bob Stone", contacts[0].DisplayName())
	assert.False(t, contacts[0].Online, "bob never connected")
}

func TestPushMessageAndSeen(t *testing.T) {
	ts := newTestService(t)
	ctx := testContext(t)
	alice, bob := ts.client(t, "alice"), ts.client(t, "bob")
	id, err := alice.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	bobSub := ts.subscribe(t, "bob")
	aliceSub := ts.subscribe(t, "alice")

	require.NoError(t, alice.SendMessage(ctx, chat.SendRequest{ChatID: id, SenderID: "alice", ReceiverID: "bob", Content: "ping", Type: chat.TypeText}))
	n := next(t, bobSub)
	assert.Equal(t, chat.NotifyMessage, n.Type)
	assert.Equal(t, id, n.ChatID)
	assert.Equal(t, "ping", n.Content)
	assert.Equal(t, "Alice Smith", n.ChatName)
	assert.Equal(t, "alice", n.SenderID)

	require.NoError(t, alice.SendMessage(ctx, chat.SendRequest{ChatID: id, SenderID: "alice", ReceiverID: "bob", Type: chat.TypeImage}))
	n = next(t, bobSub)
	assert.Equal(t, chat.NotifyImage, n.Type)
	assert.Equal(t, chat.AttachmentPreview, n.Preview())

	require.NoError(t, bob.MarkSeen(ctx, id))
	n = next(t, aliceSub)
	assert.Equal(t, chat.NotifySeen, n.Type)
	assert.Equal(t, id, n.ChatID)

	convs, err := bob.ListConversations(ctx)
	require.NoError(t, err)
	assert.True(t, convs[0].OtherPartyOnline)
}

func TestPushRefusesForeignDestination(t *testing.T) {
	ts := newTestService(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+ts.token(t, "carol"))
	conn, _, err := websocket.DefaultDialer.Dial(ts.pushURL(), header)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(notify.SubscribeFrame{Action: notify.ActionSubscribe, Destination: notify.Destination("alice")}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestPushRequiresToken(t *testing.T) {
	ts := newTestService(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.pushURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPushRejectsUnlistedOrigin(t *testing.T) {
	ts := newTestService(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+ts.token(t, "alice"))
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(ts.pushURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts := newTestService(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	tok := ts.token(t, "alice")

	assert.Equal(t, http.StatusOK, request(t, http.MethodGet, ts.URL+"/api/v1/users", tok).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, request(t, http.MethodGet, ts.URL+"/api/v1/users", tok).StatusCode)
	// Buckets are per user.
	assert.Equal(t, http.StatusOK, request(t, http.MethodGet, ts.URL+"/api/v1/users", ts.token(t, "bob")).StatusCode)
}

func TestHubCloseEndsStreams(t *testing.T) {
	ts := newTestService(t)
	sub := ts.subscribe(t, "alice")

	ts.hub.Close()
	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after hub shutdown")
	}
	assert.Error(t, sub.Err())
	assert.False(t, ts.hub.Online("alice"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad listen", func(c *Config) { c.Listen = "nohost" }},
		{"no secret", func(c *Config) { c.JWTSecret = "" }},
		{"no db", func(c *Config) { c.DBPath = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero rate", func(c *Config) { c.RateLimit = 0 }},
		{"duplicate user", func(c *Config) { c.Users = append(c.Users, SeedUser{ID: "alice"}) }},
		{"user without id", func(c *Config) { c.Users = append(c.Users, SeedUser{FirstName: "X"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen = "127.0.0.1:9999"
rate_limit = 5.0

[[users]]
id = "dave"
first_name = "Dave"
`), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Listen)
	assert.Equal(t, 5.0, cfg.RateLimit)
	assert.Equal(t, 40, cfg.RateBurst)
	require.Len(t, cfg.Users, 1)
	assert.Equal(t, "dave", cfg.Users[0].ID)

	missing, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, missing.Listen)
}
