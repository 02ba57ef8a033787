package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
)

const (
	// ActionSubscribe is the only frame a client sends.
	ActionSubscribe = "SUBSCRIBE"

	readLimit    = 8 << 20
	pongWait     = 90 * time.Second
	writeTimeout = 10 * time.Second
	handshake    = 10 * time.Second
	bufferSize   = 64
)

// SubscribeFrame routes the pushed notifications of one user to this connection.
type SubscribeFrame struct {
	Action      string `json:"action"`
	Destination string `json:"destination"`
}

// Destination returns the routing key of a user's notifications.
func Destination(userID string) string {
	return "/user/" + userID + "/chat"
}

// Dialer opens authenticated notification subscriptions.
type Dialer struct {
	url    string
	ident  identity.Provider
	logger *zap.Logger
	ws     *websocket.Dialer
}

// NewDialer creates a dialer for the push endpoint at pushURL.
func NewDialer(pushURL string, ident identity.Provider, logger *zap.Logger) *Dialer {
	return &Dialer{
		url:    pushURL,
		ident:  ident,
		logger: logger,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		},
	}
}

// Subscribe connects, sends the bearer token once in the handshake and subscribes to
// the current user's destination.
func (d *Dialer) Subscribe(ctx context.Context) (*Subscription, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.ident.Token())

	conn, resp, err := d.ws.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial push channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}

	frame := SubscribeFrame{Action: ActionSubscribe, Destination: Destination(d.ident.UserID())}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	s := &Subscription{
		conn:   conn,
		ch:     make(chan chat.Notification, bufferSize),
		done:   make(chan struct{}),
		logger: d.logger.With(zap.String("destination", frame.Destination)),
	}
	go s.readLoop()
	d.logger.Info("push channel subscribed", zap.String("url", d.url))
	return s, nil
}

// Subscription is a live stream of decoded notifications. C is closed when the
// stream ends, either through Unsubscribe or because the connection dropped.
type Subscription struct {
	conn   *websocket.Conn
	ch     chan chat.Notification
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger

	mu  sync.Mutex
	err error
}

// C returns the notification stream.
func (s *Subscription) C() <-chan chat.Notification {
	return s.ch
}

// Err returns why the stream ended. It is nil while running and after Unsubscribe.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe closes the connection. Only the first call has any effect.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *Subscription) readLoop() {
	defer close(s.ch)

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				s.logger.Warn("push channel closed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}

		n, err := chat.DecodeNotification(data)
		if err != nil {
			s.logger.Warn("dropping notification", zap.Error(err))
			continue
		}
		select {
		case s.ch <- n:
		case <-s.done:
			return
		}
	}
}
