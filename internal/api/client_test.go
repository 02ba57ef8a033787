package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
)

func newTestClient(t *testing.T, h http.Handler, mutate ...func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL:         srv.URL,
		Timeout:         2 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(opts, identity.New("alice", "tok-alice"), zap.NewNop())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListConversations(t *testing.T) {
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/chats", r.URL.Path)
		assert.Equal(t, "Bearer tok-alice", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, []ChatResponse{
			{ID: "B", Name: "Bob Stone", UnreadCount: 2, LastMessage: "hello", LastMessageTime: &when, RecipientOnline: true, SenderID: "alice", ReceiverID: "bob"},
			{ID: "C", Name: "Carol", SenderID: "carol", ReceiverID: "alice"},
		})
	}))

	convs, err := c.ListConversations(testContext(t))
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "B", convs[0].ID)
	assert.Equal(t, "Bob Stone", convs[0].DisplayName)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.True(t, convs[0].OtherPartyOnline)
	assert.True(t, convs[0].LastMessageAt.Equal(when))
	assert.True(t, convs[1].LastMessageAt.IsZero())
}

func TestCreateConversation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "alice", r.URL.Query().Get("sender-id"))
		assert.Equal(t, "bob", r.URL.Query().Get("receiver-id"))
		writeJSON(w, http.StatusOK, StringResponse{Response: "chat-1"})
	}))

	id, err := c.CreateConversation(testContext(t), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", id)
}

func TestListMessages(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages/chat/A", r.URL.Path)
		writeJSON(w, http.StatusOK, []MessageResponse{
			{ID: "1", Content: "hi", Type: "TEXT", State: "SEEN", SenderID: "bob", ReceiverID: "alice"},
			{ID: "2", Type: "IMAGE", State: "SENT", SenderID: "alice", ReceiverID: "bob", Media: []byte{1, 2}},
		})
	}))

	msgs, err := c.ListMessages(testContext(t), "A")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.StateSeen, msgs[0].State)
	assert.Equal(t, "A", msgs[0].ConversationID)
	assert.Equal(t, chat.TypeImage, msgs[1].Type)
	assert.Equal(t, []byte{1, 2}, msgs[1].Media)
}

func TestSendMessageBody(t *testing.T) {
	var got MessageRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := c.SendMessage(testContext(t), chat.SendRequest{
		ChatID: "A", SenderID: "alice", ReceiverID: "bob", Content: "Hi", Type: chat.TypeText,
	})
	require.NoError(t, err)
	assert.Equal(t, MessageRequest{ChatID: "A", SenderID: "alice", ReceiverID: "bob", Content: "Hi", Type: "TEXT"}, got)
}

func TestMarkSeen(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "A", r.URL.Query().Get("chat-id"))
		w.WriteHeader(http.StatusAccepted)
	}))

	require.NoError(t, c.MarkSeen(testContext(t), "A"))
}

func TestListContactsExcludesSelf(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []UserResponse{
			{ID: "alice", FirstName: "Alice"},
			{ID: "bob", FirstName: "Bob", LastName: "Stone", Online: true},
		})
	}))

	contacts, err := c.ListContacts(testContext(t))
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Bob Stone", contacts[0].DisplayName())
	assert.True(t, contacts[0].Online)
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, ErrorResponse{Error: "nope"})
			}))

			_, err := c.ListConversations(testContext(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "nope", se.Body)
		})
	}
}

func TestReadsRetryWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, []ChatResponse{})
	}), func(o *Options) { o.RetryMaxElapsed = 5 * time.Second })

	_, err := c.ListConversations(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.ListConversations(testContext(t))
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), func(o *Options) { o.RetryMaxElapsed = 5 * time.Second })

	err := c.SendMessage(testContext(t), chat.SendRequest{ChatID: "A", SenderID: "alice", ReceiverID: "bob", Content: "x", Type: chat.TypeText})
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}), func(o *Options) { o.RetryMaxElapsed = 5 * time.Second })

	_, err := c.ListMessages(testContext(t), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), func(o *Options) { o.BreakerFailures = 2 })

	for i := 0; i < 2; i++ {
		_, err := c.ListConversations(testContext(t))
		assert.ErrorIs(t, err, ErrServer)
	}
	_, err := c.ListConversations(testContext(t))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), func(o *Options) { o.BreakerFailures = 1 })

	for i := 0; i < 3; i++ {
		_, err := c.ListMessages(testContext(t), "x")
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestMalformedResponseIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not": "a list"`))
	}), func(o *Options) {
		o.RetryMaxElapsed = 5 * time.Second
		o.BreakerFailures = 1
	})

	for i := 0; i < 3; i++ {
		_, err := c.ListConversations(testContext(t))
		assert.ErrorIs(t, err, ErrMalformed)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	// One request per call: no retries, and the breaker stayed closed.
	assert.Equal(t, int32(3), calls.Load())
}

func TestTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}), func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.ListConversations(testContext(t))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"}, identity.New("a", "t"), zap.NewNop())
	assert.Error(t, err)
}
