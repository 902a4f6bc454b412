package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cidpkg "github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/cid"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/pkg/protocol"
)

// LockGateway is the HTTP client for the channel arbitration API.
type LockGateway struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
}

// NewLockGateway creates a gateway client for the given server.
func NewLockGateway(cfg Config) *LockGateway {
	ua := cfg.UserAgent
	if ua == "" {
		ua = "pa-panel/1.0.0"
	}
	return &LockGateway{
		baseURL:   cfg.ServerURL,
		token:     cfg.Token,
		userAgent: ua,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Acquire requests the broadcast channel for a task of the given kind.
func (g *LockGateway) Acquire(ctx context.Context, kind types.TaskKind, zones []string, payload types.Payload) (*types.ChannelTask, error) {
	req := protocol.AcquireRequest{Kind: kind, Zones: zones, Payload: payload}
	var resp protocol.AcquireResponse
	if err := g.do(ctx, http.MethodPost, "/api/tasks", req, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// Release gives the channel back. Idempotent on the server side.
func (g *LockGateway) Release(ctx context.Context, taskID string) error {
	return g.do(ctx, http.MethodDelete, "/api/tasks/"+taskID, nil, nil)
}

// Complete reports natural end of content playback.
func (g *LockGateway) Complete(ctx context.Context, taskID string) error {
	return g.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/complete", nil, nil)
}

// Heartbeat signals the owner is still alive.
func (g *LockGateway) Heartbeat(ctx context.Context, taskID string) error {
	return g.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/heartbeat", nil, nil)
}

// ToggleEmergency activates or deactivates campus emergency mode.
func (g *LockGateway) ToggleEmergency(ctx context.Context, action string) (*types.EmergencyStatus, error) {
	req := protocol.EmergencyRequest{Action: action}
	var status types.EmergencyStatus
	if err := g.do(ctx, http.MethodPost, "/api/emergency", req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// State fetches the current system state snapshot.
func (g *LockGateway) State(ctx context.Context) (*types.SystemState, error) {
	var state types.SystemState
	if err := g.do(ctx, http.MethodGet, "/api/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Logs fetches the most recent session log entries.
func (g *LockGateway) Logs(ctx context.Context, limit int) ([]types.SessionLogEntry, error) {
	var entries []types.SessionLogEntry
	path := fmt.Sprintf("/api/logs?limit=%d", limit)
	if err := g.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (g *LockGateway) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Authorization", "Bearer "+g.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cidpkg.AddHeaderFromContext(req.Header, ctx)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var e protocol.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return mapError(e)
}

// mapError translates wire rejection codes into the client taxonomy.
func mapError(e protocol.ErrorResponse) error {
	switch e.Code {
	case protocol.CodeConflict:
		return fmt.Errorf("%w: %s", ErrConflict, e.Message)
	case protocol.CodeEmergencyActive:
		return ErrEmergencyActive
	case protocol.CodeBusy:
		return ErrBusy
	case protocol.CodeForbidden:
		return ErrForbidden
	case protocol.CodeNoZones:
		return ErrNoZones
	case protocol.CodeTaskNotFound:
		return ErrTaskNotFound
	default:
		return fmt.Errorf("server error [%s]: %s", e.Code, e.Message)
	}
}
