package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	cidpkg "github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/cid"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// StateSource subscribes to the server's push channel and fans every
// state event out to the registered observers. It is the single source
// of channel truth on the client; all components reconcile against it.
type StateSource struct {
	url       string
	token     string
	userAgent string

	mu        sync.Mutex
	conn      *websocket.Conn
	observers []func(types.StateEvent)
}

// NewStateSource builds a subscriber for the given panel config. The
// websocket URL is derived from the server base URL.
func NewStateSource(cfg Config) *StateSource {
	ua := cfg.UserAgent
	if ua == "" {
		ua = "pa-panel/1.0.0"
	}
	url := strings.Replace(cfg.ServerURL, "http", "ws", 1) + "/ws"
	return &StateSource{url: url, token: cfg.Token, userAgent: ua}
}

// Subscribe registers an observer called for every pushed event.
// Observers must be registered before Run starts.
func (s *StateSource) Subscribe(fn func(types.StateEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Connect dials the push channel.
func (s *StateSource) Connect(ctx context.Context) error {
	headers := map[string][]string{"User-Agent": {s.userAgent}}
	cidpkg.AddHeaderFromContext(headers, ctx)

	// Token rides in the query string: browsers cannot set headers on
	// websocket upgrades and the server accepts both forms.
	conn, _, err := websocket.Dial(ctx, s.url+"?token="+s.token, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to push channel: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Run reads pushed events until ctx is canceled or the connection
// drops, dispatching each event to every observer in order.
func (s *StateSource) Run(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	for {
		var ev types.StateEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return fmt.Errorf("push channel read: %w", err)
		}
		s.Dispatch(ev)
	}
}

// Dispatch delivers an event to all observers. Exposed so that local
// components (and tests) can inject synthetic observations.
func (s *StateSource) Dispatch(ev types.StateEvent) {
	s.mu.Lock()
	observers := make([]func(types.StateEvent), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}

// Close shuts the connection down.
func (s *StateSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	s.conn = nil
	return err
}
