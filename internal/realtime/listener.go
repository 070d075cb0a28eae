// Package realtime keeps a websocket open to the chat endpoint and hands every
// pushed message to the message store.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/logging"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	defaultPongWait   = 60 * time.Second
	writeWait         = 10 * time.Second
	maxMessageSize    = 1 << 20
)

var (
	// ErrUnauthorized is returned by Run when the server rejects the credential.
	ErrUnauthorized = errors.New("realtime: credential rejected")
	// ErrNoCredential is returned by Run when there is nothing to authenticate with.
	ErrNoCredential = errors.New("realtime: not signed in")
)

// Receiver accepts pushed messages. It reports whether the message was new.
type Receiver interface {
	Receive(msg models.Message) bool
}

// TokenSource yields the current credential, or "" when signed out.
type TokenSource interface {
	Get(ctx context.Context) string
}

// Event is the envelope of every frame the chat socket pushes.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Option customizes a Listener.
type Option func(*Listener)

// WithBackoff bounds the delay between reconnect attempts.
func WithBackoff(lo, hi time.Duration) Option {
	return func(l *Listener) {
		if lo > 0 {
			l.minBackoff = lo
		}
		if hi >= l.minBackoff {
			l.maxBackoff = hi
		}
	}
}

// WithPongWait sets how long the connection may stay silent. Pings are sent
// at 9/10 of this interval.
func WithPongWait(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.pongWait = d
		}
	}
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(l *Listener) {
		if d != nil {
			l.dialer = d
		}
	}
}

// Listener maintains the chat socket.
type Listener struct {
	endpoint string
	tokens   TokenSource
	receiver Receiver
	dialer   *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration
	pongWait   time.Duration
}

// New builds a listener for endpoint, a ws:// or wss:// URL.
func New(endpoint string, tokens TokenSource, receiver Receiver, opts ...Option) (*Listener, error) {
	if tokens == nil || receiver == nil {
		return nil, errors.New("realtime: token source and receiver are required")
	}
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("realtime: parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("realtime: endpoint must use ws or wss, got %q", u.Scheme)
	}

	l := &Listener{
		endpoint:   u.String(),
		tokens:     tokens,
		receiver:   receiver,
		dialer:     &websocket.Dialer{HandshakeTimeout: writeWait},
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		pongWait:   defaultPongWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// EndpointFromBase derives the chat socket URL from the REST base URL.
func EndpointFromBase(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("realtime: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("realtime: unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat"
	u.RawQuery = ""
	return u.String(), nil
}

// Run connects and reads until ctx is done, reconnecting with capped
// exponential backoff. It returns nil on cancellation and ErrUnauthorized or
// ErrNoCredential when reconnecting cannot help.
func (l *Listener) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).With(slog.String("component", "realtime"))

	attempt := 0
	for {
		token := l.tokens.Get(ctx)
		if token == "" {
			return ErrNoCredential
		}

		connected, err := l.session(ctx, logger, token)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			logger.Warn("chat socket rejected credential")
			return err
		}
		if connected {
			attempt = 0
		}
		attempt++

		delay := l.backoff(attempt)
		logger.Warn("chat socket disconnected", "error", err, "retry_in", delay, "attempt", attempt)
		if err := sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded, which resets the backoff.
func (l *Listener) session(ctx context.Context, logger *slog.Logger, token string) (connected bool, err error) {
	conn, resp, err := l.dialer.DialContext(ctx, l.urlWithToken(token), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("dial chat socket: %w", err)
	}
	defer conn.Close()
	logger.Info("chat socket connected")

	done := make(chan struct{})
	defer close(done)
	go l.keepalive(ctx, conn, done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(l.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(l.pongWait))
		l.handle(logger, payload)
	}
}

// keepalive pings the server and closes the connection once ctx is done so
// the blocked read returns.
func (l *Listener) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(l.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (l *Listener) handle(logger *slog.Logger, payload []byte) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		logger.Warn("dropping malformed chat frame", "error", err)
		return
	}
	if evt.Type != "message" {
		logger.Debug("ignoring chat event", "type", evt.Type)
		return
	}
	msg, err := api.DecodeMessage(evt.Data)
	if err != nil {
		logger.Warn("dropping malformed chat message", "error", err)
		return
	}
	if l.receiver.Receive(msg) {
		logger.Debug("chat message delivered", "message_id", msg.ID, "sender_id", msg.SenderID)
	}
}

func (l *Listener) urlWithToken(token string) string {
	u, _ := url.Parse(l.endpoint)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (l *Listener) backoff(attempt int) time.Duration {
	d := l.minBackoff
	for i := 1; i < attempt && d < l.maxBackoff; i++ {
		d *= 2
	}
	return min(d, l.maxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
