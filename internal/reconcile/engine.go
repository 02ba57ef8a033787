package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/status"
)

// Directory lists and creates conversations of the current user.
type Directory interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	CreateConversation(ctx context.Context, senderID, receiverID string) (string, error)
}

// MessageStore reads and writes the messages of a conversation.
type MessageStore interface {
	ListMessages(ctx context.Context, chatID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, req chat.SendRequest) error
	MarkSeen(ctx context.Context, chatID string) error
}

// Subscriber opens the push notification stream of the current user.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a cancellable notification stream. C is closed when the stream ends.
type Subscription interface {
	C() <-chan chat.Notification
	Err() error
	Unsubscribe()
}

// Deps are the collaborators of an Engine. Channel may be nil, in which case the
// engine runs on REST results alone.
type Deps struct {
	Identity  identity.Provider
	Directory Directory
	Messages  MessageStore
	Channel   Subscriber
	Bus       *bus.Bus
	Status    *status.Machine
	Logger    *zap.Logger
	Now       func() time.Time
}

// Engine owns the conversation list, the open conversation and its messages, and
// merges REST results and pushed notifications into them. All state is owned by a
// single loop goroutine; network calls run outside it and their results are applied
// as loop events in arrival order.
type Engine struct {
	ident   identity.Provider
	dir     Directory
	store   MessageStore
	channel Subscriber
	bus     *bus.Bus
	status  *status.Machine
	logger  *zap.Logger
	now     func() time.Time

	ops      chan func()
	quit     chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	started   atomic.Bool
	closeOnce sync.Once
	subMu     sync.Mutex
	sub       Subscription
	last      atomic.Pointer[State]

	// Owned by the loop goroutine.
	convs     []*chat.Conversation
	open      *chat.Conversation
	openSeq   uint64
	messages  []chat.Message
	compose   string
	searching bool
}

// New creates an engine and starts its mutation loop. Call Close to release it.
func New(d Deps) (*Engine, error) {
	if d.Directory == nil || d.Messages == nil {
		return nil, errors.New("reconcile: directory and message store are required")
	}
	if d.Bus == nil {
		d.Bus = bus.New()
	}
	if d.Status == nil {
		d.Status = status.NewMachine(d.Bus)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ident:    d.Identity,
		dir:      d.Directory,
		store:    d.Messages,
		channel:  d.Channel,
		bus:      d.Bus,
		status:   d.Status,
		logger:   d.Logger,
		now:      d.Now,
		ops:      make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	initial := State{Channel: e.status.Current()}
	e.last.Store(&initial)

	go e.run()
	return e, nil
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case op := <-e.ops:
			op()
		case <-e.quit:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case e.ops <- func() { fn(); close(done) }:
	case <-e.quit:
		return chat.ErrClosed
	}
	<-done
	return nil
}

func (e *Engine) closed() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

// userID returns the current user, or ErrNoIdentity until the identity provider
// can supply one.
func (e *Engine) userID() (string, error) {
	if e.ident == nil {
		return "", chat.ErrNoIdentity
	}
	id := e.ident.UserID()
	if id == "" {
		return "", chat.ErrNoIdentity
	}
	return id, nil
}

// Start loads the conversation list and opens the notification subscription.
// The subscription is attempted even when the load fails; the load error is returned.
// A subscription failure leaves the engine in REST-only mode and is not returned.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.userID(); err != nil {
		return err
	}
	if e.closed() {
		return chat.ErrClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("reconcile: engine already started")
	}

	loadErr := e.LoadConversations(ctx)
	if loadErr != nil && errors.Is(loadErr, chat.ErrClosed) {
		return loadErr
	}
	e.connect(ctx)
	return loadErr
}

// Reconnect opens a fresh subscription after the previous one was lost and reloads
// the conversation list, which may have gone stale meanwhile.
func (e *Engine) Reconnect(ctx context.Context) error {
	if e.closed() {
		return chat.ErrClosed
	}
	if cur := e.status.Current(); cur != status.Degraded {
		return fmt.Errorf("reconnect: channel is %s", cur)
	}
	e.subMu.Lock()
	old := e.sub
	e.sub = nil
	e.subMu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}

	e.connect(ctx)
	return e.LoadConversations(ctx)
}

func (e *Engine) connect(ctx context.Context) {
	if e.channel == nil {
		e.logger.Info("no push channel configured, running REST-only")
		e.transition(status.Degraded)
		return
	}

	e.transition(status.Connecting)
	sub, err := e.channel.Subscribe(ctx)
	if err != nil {
		e.logger.Error("push channel unavailable, running REST-only", zap.Error(err))
		e.transition(status.Degraded)
		return
	}

	e.subMu.Lock()
	if e.closed() {
		e.subMu.Unlock()
		sub.Unsubscribe()
		return
	}
	e.sub = sub
	e.wg.Add(1)
	e.subMu.Unlock()

	e.transition(status.Subscribed)
	go e.pump(sub)
}

// pump forwards every notification of sub into the loop.
func (e *Engine) pump(sub Subscription) {
	defer e.wg.Done()
	for n := range sub.C() {
		if err := e.Apply(n); err != nil {
			return
		}
	}

	e.subMu.Lock()
	current := e.sub == sub
	e.subMu.Unlock()
	if e.closed() || !current {
		return
	}
	e.logger.Warn("push channel lost, running REST-only", zap.Error(sub.Err()))
	e.transition(status.Degraded)
}

func (e *Engine) transition(to status.State) {
	if err := e.status.Transition(to); err != nil {
		e.logger.Debug("channel status unchanged", zap.Error(err))
	}
}

// Close cancels the subscription, stops the loop and closes every bus subscription.
// It is safe to call more than once; later operations return chat.ErrClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.subMu.Lock()
		close(e.quit)
		sub := e.sub
		e.sub = nil
		e.subMu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		e.cancel()
		<-e.loopDone
		e.wg.Wait()

		e.transition(status.Closed)
		e.bus.Close()
		e.logger.Info("engine closed")
	})
}

// Subscribe exposes state events to the rendering layer. See the bus package for
// the event kinds; every payload is the State after the change.
func (e *Engine) Subscribe(namespace string, bufSize int) (<-chan bus.Event, func()) {
	return e.bus.Subscribe(namespace, bufSize)
}

// Status returns the notification channel state machine.
func (e *Engine) Status() *status.Machine {
	return e.status
}
