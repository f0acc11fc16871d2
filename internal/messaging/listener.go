// Package messaging receives push messages from an external relay over a
// WebSocket and hands them to a handler. It is the second producer of user
// notifications next to machine completions.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"laundryonline/internal/apperr"
)

// ErrUnsupported is returned by New when no relay is configured.
var ErrUnsupported = apperr.Unsupported("messaging.new", "push messaging is not available")

// TokenHeader carries the registration token on every dial.
const TokenHeader = "X-Registration-Token"

// Payload is the display part of a push message.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Message is one inbound push message.
type Message struct {
	Notification *Payload         `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// Handler is called for every decoded message on the listener goroutine.
type Handler func(ctx context.Context, msg Message)

// Options configures a Listener.
type Options struct {
	URL          string
	Headers      map[string]string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Dialer       *websocket.Dialer
}

// Listener holds one relay session.
type Listener struct {
	url    string
	header http.Header
	opts   Options

	mu    sync.Mutex
	token string
}

// New validates opts. An empty URL yields ErrUnsupported.
func New(opts Options) (*Listener, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, ErrUnsupported
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, apperr.InvalidInput("messaging.new", fmt.Sprintf("invalid relay url: %v", err))
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, apperr.InvalidInput("messaging.new", fmt.Sprintf("unsupported relay scheme %q", u.Scheme))
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = time.Minute
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	for k, v := range opts.Headers {
		header.Set(k, v)
	}
	return &Listener{url: u.String(), header: header, opts: opts}, nil
}

// RequestToken returns the registration token of this session, creating it
// on first use. The relay addresses messages to the token.
func (l *Listener) RequestToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Network("messaging.token", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		l.token = uuid.NewString()
	}
	return l.token, nil
}

// Listen connects to the relay and delivers messages to h until ctx is
// cancelled, reconnecting with exponential backoff. It returns ctx.Err().
func (l *Listener) Listen(ctx context.Context, h Handler) error {
	log.Println("Starting messaging listener...")
	backoff := l.opts.ReconnectMin

	for {
		err := l.listenOnce(ctx, h, func() { backoff = l.opts.ReconnectMin })
		if ctx.Err() != nil {
			log.Println("Messaging listener shutting down.")
			return ctx.Err()
		}
		log.Printf("Messaging connection lost: %v; retrying in %s", err, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Messaging listener shutting down.")
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > l.opts.ReconnectMax {
			backoff = l.opts.ReconnectMax
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, h Handler, onConnect func()) error {
	token, err := l.RequestToken(ctx)
	if err != nil {
		return err
	}
	header := l.header.Clone()
	header.Set(TokenHeader, token)

	conn, _, err := l.opts.Dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return apperr.Network("messaging.dial", err)
	}
	onConnect()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return apperr.Network("messaging.read", err)
		}
		msg, err := Decode(data)
		if err != nil {
			log.Printf("Dropping malformed push message: %v", err)
			continue
		}
		h(ctx, msg)
	}
}

// Decode parses one relay frame.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode push message: %w", err)
	}
	if msg.Notification == nil && len(msg.Data) == 0 {
		return Message{}, errors.New("decode push message: empty message")
	}
	return msg, nil
}
