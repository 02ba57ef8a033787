package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
)

const maxErrorBody = 4 << 10

// Options configures the REST client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// HTTPClient overrides the default transport, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the conversation directory, message store and contact directory
// of the message service. Every request carries the caller's bearer token.
type Client struct {
	base     *url.URL
	http     *http.Client
	ident    identity.Provider
	timeout  time.Duration
	retryMax time.Duration
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// New creates a REST client for the service at opts.BaseURL.
func New(opts Options, ident identity.Provider, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		base:     base,
		http:     hc,
		ident:    ident,
		timeout:  timeout,
		retryMax: opts.RetryMaxElapsed,
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "chat-api",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c, nil
}

// call describes one REST operation.
type call struct {
	op         string
	method     string
	path       string
	query      url.Values
	body       any
	out        any
	want       []int
	idempotent bool
}

// ListConversations returns the caller's conversations in server order.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var resp []ChatResponse
	err := c.do(ctx, call{
		op: "list conversations", method: http.MethodGet, path: "/api/v1/chats",
		out: &resp, want: []int{http.StatusOK}, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	convs := make([]chat.Conversation, 0, len(resp))
	for _, r := range resp {
		convs = append(convs, r.Conversation())
	}
	return convs, nil
}

// CreateConversation creates a conversation between two users and returns its id.
func (c *Client) CreateConversation(ctx context.Context, senderID, receiverID string) (string, error) {
	var resp StringResponse
	err := c.do(ctx, call{
		op: "create conversation", method: http.MethodPost, path: "/api/v1/chats",
		query: url.Values{"sender-id": {senderID}, "receiver-id": {receiverID}},
		out:   &resp, want: []int{http.StatusOK, http.StatusCreated},
	})
	if err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", errors.New("create conversation: empty id in response")
	}
	return resp.Response, nil
}

// ListMessages returns the history of one conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var resp []MessageResponse
	err := c.do(ctx, call{
		op: "list messages", method: http.MethodGet,
		path: "/api/v1/messages/chat/" + url.PathEscape(chatID),
		out:  &resp, want: []int{http.StatusOK}, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(resp))
	for _, r := range resp {
		msgs = append(msgs, r.Message(chatID))
	}
	return msgs, nil
}

// SendMessage persists an outgoing message. It is never retried.
func (c *Client) SendMessage(ctx context.Context, req chat.SendRequest) error {
	return c.do(ctx, call{
		op: "send message", method: http.MethodPost, path: "/api/v1/messages",
		body: MessageRequest{
			ChatID:     req.ChatID,
			SenderID:   req.SenderID,
			ReceiverID: req.ReceiverID,
			Content:    req.Content,
			Type:       string(req.Type),
		},
		want: []int{http.StatusOK, http.StatusCreated},
	})
}

// MarkSeen marks every message of a conversation addressed to the caller as seen.
func (c *Client) MarkSeen(ctx context.Context, chatID string) error {
	return c.do(ctx, call{
		op: "mark seen", method: http.MethodPatch, path: "/api/v1/messages",
		query: url.Values{"chat-id": {chatID}},
		want:  []int{http.StatusOK, http.StatusAccepted, http.StatusNoContent}, idempotent: true,
	})
}

// ListContacts returns every user of the directory except the caller.
func (c *Client) ListContacts(ctx context.Context) ([]chat.Contact, error) {
	var resp []UserResponse
	err := c.do(ctx, call{
		op: "list contacts", method: http.MethodGet, path: "/api/v1/users",
		out: &resp, want: []int{http.StatusOK}, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	contacts := make([]chat.Contact, 0, len(resp))
	for _, r := range resp {
		if r.ID == c.ident.UserID() {
			continue
		}
		contacts = append(contacts, r.Contact())
	}
	return contacts, nil
}

// do runs one call through the breaker, retrying idempotent calls with exponential
// backoff while retry_max_elapsed allows.
func (c *Client) do(ctx context.Context, cl call) error {
	requestID := uuid.NewString()

	attempt := func() error {
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.roundTrip(ctx, cl, requestID)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%s: %w", cl.op, ErrUnavailable))
		case !retryable(err):
			return backoff.Permanent(err)
		}
		return err
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if cl.idempotent && c.retryMax > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = c.retryMax
		policy = eb
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying request",
			zap.String("op", cl.op),
			zap.String("request_id", requestID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), notify)
}

func (c *Client) roundTrip(ctx context.Context, cl call, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath(cl.path)
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: encode body: %w: %w", cl.op, ErrMalformed, err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%s: build request: %w", cl.op, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.ident.Token())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", cl.op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		zap.String("op", cl.op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if !slices.Contains(cl.want, resp.StatusCode) {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: cl.op, StatusCode: resp.StatusCode, Body: errorText(raw)}
	}
	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return backoff.Permanent(fmt.Errorf("%s: decode response: %w: %w", cl.op, ErrMalformed, err))
	}
	return nil
}

// errorText prefers the "error" field of a JSON error body.
func errorText(raw []byte) string {
	var er ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		return er.Error
	}
	return strings.TrimSpace(string(raw))
}
