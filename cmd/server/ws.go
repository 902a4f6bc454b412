package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/metrics"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
)

// Liveness tunables. Package vars so tests can shrink them.
var (
	PingInterval     = 20 * time.Second
	PingWriteTimeout = 5 * time.Second
	SendBufferSize   = 32
)

// subscriber is one connected panel client.
type subscriber struct {
	id   string
	send chan []byte
}

// hub fans manager state events out to every subscriber. A slow
// subscriber drops events rather than blocking the rest; the client
// reconciles against GET /api/state.
type hub struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[string]*subscriber
}

func newHub(logger *zap.Logger, m *metrics.Metrics) *hub {
	return &hub{logger: logger, metrics: m, clients: make(map[string]*subscriber)}
}

func (h *hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sub.id] = sub
	h.metrics.Subscribers.Set(float64(len(h.clients)))
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(sub.send)
	}
	h.metrics.Subscribers.Set(float64(len(h.clients)))
}

// run consumes the manager's event stream until ctx is done.
func (h *hub) run(ctx context.Context, events <-chan types.StateEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *hub) broadcast(ev types.StateEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal state event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.clients {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("subscriber send buffer full, dropping event", zap.String("client", id))
		}
	}
}

// handleWebSocket upgrades a panel connection and streams state pushes.
// The current snapshot is sent first so a reconnecting client converges
// immediately.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	sub := &subscriber{
		id:   uuid.New().String(),
		send: make(chan []byte, SendBufferSize),
	}
	s.hub.add(sub)
	defer s.hub.remove(sub.id)

	snapshot := types.StateEvent{
		Type:      "state",
		State:     s.manager.Snapshot(),
		Timestamp: time.Now(),
	}
	if data, err := json.Marshal(snapshot); err == nil {
		sub.send <- data
	}

	s.logger.Info("subscriber connected", zap.String("client", sub.id))

	ctx := c.Request.Context()
	go s.writeLoop(ctx, conn, sub)

	// Read loop: the client sends nothing meaningful, but reading keeps
	// control frames flowing and detects disconnects.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			s.logger.Info("subscriber disconnected", zap.String("client", sub.id))
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Warn("write failed", zap.String("client", sub.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, PingWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Info("ping failed, dropping subscriber", zap.String("client", sub.id))
				return
			}
		}
	}
}
