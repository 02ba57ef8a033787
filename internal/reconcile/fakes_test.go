package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
)

var errBoom = errors.New("boom")

type fakeDirectory struct {
	mu        sync.Mutex
	convs     []chat.Conversation
	listErr   error
	createID  string
	createErr error
	listCalls int
	creates   [][2]string
}

func (d *fakeDirectory) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]chat.Conversation(nil), d.convs...), nil
}

func (d *fakeDirectory) CreateConversation(ctx context.Context, senderID, receiverID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates = append(d.creates, [2]string{senderID, receiverID})
	if d.createErr != nil {
		return "", d.createErr
	}
	return d.createID, nil
}

type fakeStore struct {
	mu       sync.Mutex
	history  map[string][]chat.Message
	listErr  error
	sendErr  error
	seenErr  error
	sent     []chat.SendRequest
	listed   []string
	seen     []string
	seenDone chan string

	// When set, ListMessages or SendMessage for the given chat waits on the channel.
	listGate    map[string]chan struct{}
	sendGate    chan struct{}
	sendEntered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		history:     map[string][]chat.Message{},
		listGate:    map[string]chan struct{}{},
		seenDone:    make(chan string, 16),
		sendEntered: make(chan struct{}, 16),
	}
}

func (s *fakeStore) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	s.mu.Lock()
	gate := s.listGate[chatID]
	s.listed = append(s.listed, chatID)
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]chat.Message(nil), s.history[chatID]...), nil
}

func (s *fakeStore) SendMessage(ctx context.Context, req chat.SendRequest) error {
	s.mu.Lock()
	gate := s.sendGate
	s.mu.Unlock()
	s.sendEntered <- struct{}{}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeStore) MarkSeen(ctx context.Context, chatID string) error {
	s.mu.Lock()
	s.seen = append(s.seen, chatID)
	err := s.seenErr
	s.mu.Unlock()
	s.seenDone <- chatID
	return err
}

func (s *fakeStore) sentRequests() []chat.SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.SendRequest(nil), s.sent...)
}

func (s *fakeStore) listedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listed)
}

type fakeSubscription struct {
	ch    chan chat.Notification
	err   error
	once  sync.Once
	calls int
	mu    sync.Mutex
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan chat.Notification)}
}

func (s *fakeSubscription) C() <-chan chat.Notification { return s.ch }
func (s *fakeSubscription) Err() error                  { return s.err }

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

func (s *fakeSubscription) unsubscribeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// drop ends the stream as if the connection was lost.
func (s *fakeSubscription) drop() {
	s.err = errors.New("connection reset")
	s.once.Do(func() { close(s.ch) })
}

type fakeSubscriber struct {
	sub *fakeSubscription
	err error
}

func (f *fakeSubscriber) Subscribe(ctx context.Context) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type harness struct {
	engine *Engine
	dir    *fakeDirectory
	store  *fakeStore
	bus    *bus.Bus
	now    time.Time
}

func newHarness(t *testing.T, userID string, channel Subscriber) *harness {
	t.Helper()
	h := &harness{
		dir:   &fakeDirectory{},
		store: newFakeStore(),
		bus:   bus.New(),
		now:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	var ident identity.Provider
	if userID != "" {
		ident = identity.New(userID, "tok-"+userID)
	}
	e, err := New(Deps{
		Identity:  ident,
		Directory: h.dir,
		Messages:  h.store,
		Channel:   channel,
		Bus:       h.bus,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatal(err)
	}
	h.engine = e
	t.Cleanup(e.Close)
	return h
}

// seed loads convs through the directory.
func (h *harness) seed(t *testing.T, convs ...chat.Conversation) {
	t.Helper()
	h.dir.convs = convs
	if err := h.engine.LoadConversations(context.Background()); err != nil {
		t.Fatalf("LoadConversations() error = %v", err)
	}
}

// open selects id and waits for its history.
func (h *harness) open(t *testing.T, id string) {
	t.Helper()
	conv, ok := h.engine.Snapshot().Conversation(id)
	if !ok {
		t.Fatalf("conversation %s not listed", id)
	}
	if err := h.engine.SelectConversation(context.Background(), conv); err != nil {
		t.Fatalf("SelectConversation(%s) error = %v", id, err)
	}
	h.waitSeen(t, id)
}

func (h *harness) waitSeen(t *testing.T, id string) {
	t.Helper()
	select {
	case got := <-h.store.seenDone:
		if got != id {
			t.Fatalf("mark seen for %s, want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for mark seen of %s", id)
	}
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("bus closed while waiting for %s", kind)
			}
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}
