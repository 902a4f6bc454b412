package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/auth"
	cidpkg "github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/cid"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/config"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/metrics"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/schedule"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/sessionlog"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/state"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/internal/types"
	"github.com/ZACCALI/CICS-PA-SYSTEM-FINAL/pkg/protocol"
)

// Server owns the arbitration manager, the stores and the HTTP surface.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	router  *gin.Engine
	manager *state.Manager
	logs    *sessionlog.Store
	store   *schedule.Store
	runner  *schedule.Runner
	auth    *auth.Manager
	metrics *metrics.Metrics

	hub *hub
}

// metricsJournal feeds task lifecycle transitions into Prometheus.
type metricsJournal struct{ m *metrics.Metrics }

func (j metricsJournal) TaskGranted(t *types.ChannelTask) {
	j.m.Acquires.WithLabelValues(string(t.Kind)).Inc()
}

func (j metricsJournal) TaskFinished(t *types.ChannelTask, reason types.FinishReason) {
	j.m.Releases.WithLabelValues(string(reason)).Inc()
	switch reason {
	case types.FinishPreempted:
		j.m.Preemptions.WithLabelValues(string(t.Kind)).Inc()
	case types.FinishReclaimed:
		j.m.Reclaimed.Inc()
	}
}

// NewServer wires the full service from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	logs, err := sessionlog.Open(cfg.SessionLogPath, cfg.Zones, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log store: %w", err)
	}
	store, err := schedule.Open(cfg.SchedulePath)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("failed to open schedule store: %w", err)
	}

	m := metrics.New()
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		logs:    logs,
		store:   store,
		auth:    auth.New(cfg.AuthSecret, cfg.TokenTTL),
		metrics: m,
		hub:     newHub(logger, m),
	}

	s.manager = state.NewManager(logger,
		state.WithZones(cfg.Zones),
		state.WithReclaimAfter(cfg.ReclaimAfter),
		state.WithJournal(logs),
		state.WithJournal(metricsJournal{m}),
	)

	// The runner journals its own tasks so preempted announcements are
	// requeued and time-shifted.
	s.runner = schedule.NewRunner(store, s.manager, logger)
	s.runner.SetTick(cfg.ScheduleTick)
	s.manager.AddJournal(s.runner)

	s.router = s.buildRouter()
	return s, nil
}

// Start launches the background loops: the push hub, the reclamation
// sweeper and the schedule runner.
func (s *Server) Start(ctx context.Context) {
	go s.hub.run(ctx, s.manager.Events())
	s.manager.StartSweeper(ctx)
	go s.runner.Run(ctx)
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting PA server", zap.String("addr", s.cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// Close releases the stores.
func (s *Server) Close() {
	if err := s.logs.Close(); err != nil {
		s.logger.Warn("failed to close session log store", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close schedule store", zap.Error(err))
	}
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.cidMiddleware(), s.otelMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pa-server"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.POST("/api/token", s.handleToken)

	api := r.Group("/", s.auth.Middleware())
	api.POST("/api/tasks", s.handleAcquire)
	api.DELETE("/api/tasks/:id", s.handleRelease)
	api.POST("/api/tasks/:id/complete", s.handleComplete)
	api.POST("/api/tasks/:id/heartbeat", s.handleHeartbeat)
	api.POST("/api/emergency", s.handleEmergency)
	api.GET("/api/state", s.handleState)
	api.GET("/api/logs", s.handleLogs)
	api.DELETE("/api/logs/:id", s.handleDeleteLog)
	api.GET("/api/schedules", s.handleListSchedules)
	api.POST("/api/schedules", s.handleAddSchedule)
	api.DELETE("/api/schedules/:id", s.handleRemoveSchedule)
	api.GET("/ws", s.handleWebSocket)
	return r
}

// cidMiddleware attaches a correlation id to every request, preserving
// one supplied by the caller.
func (s *Server) cidMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(cidpkg.HeaderName)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Request = c.Request.WithContext(cidpkg.WithCID(c.Request.Context(), id))
		c.Header(cidpkg.HeaderName, id)
		c.Next()
	}
}

func (s *Server) handleToken(c *gin.Context) {
	var req protocol.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, "user_id is required")
		return
	}
	token, err := s.auth.Issue(req.UserID, req.Name, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, protocol.ErrorResponse{Code: "internal", Message: "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, protocol.TokenResponse{Token: token})
}

func (s *Server) handleAcquire(c *gin.Context) {
	claims := auth.From(c)
	var req protocol.AcquireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, "malformed request body")
		return
	}

	task, created, err := s.manager.Acquire(claims.Subject, req.Kind, req.Zones, req.Payload)
	if err != nil {
		s.rejectAcquire(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, protocol.AcquireResponse{Task: task, Created: created})
}

func (s *Server) handleRelease(c *gin.Context) {
	claims := auth.From(c)
	if err := s.manager.Release(c.Param("id"), claims.Subject); err != nil {
		if errors.Is(err, state.ErrForbidden) {
			s.reject(c, http.StatusForbidden, protocol.CodeForbidden, "not the task owner")
			return
		}
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}

func (s *Server) handleComplete(c *gin.Context) {
	if err := s.manager.Complete(c.Param("id")); err != nil {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": true})
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	if err := s.manager.Heartbeat(c.Param("id")); err != nil {
		s.reject(c, http.StatusNotFound, protocol.CodeTaskNotFound, "no such active task")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleEmergency(c *gin.Context) {
	claims := auth.From(c)
	var req protocol.EmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, "malformed request body")
		return
	}

	status, err := s.manager.ToggleEmergency(claims.Subject, req.Action)
	if err != nil {
		if errors.Is(err, state.ErrForbidden) {
			s.reject(c, http.StatusForbidden, protocol.CodeForbidden, "only the activator may deactivate")
			return
		}
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
		return
	}
	s.metrics.EmergencyToggles.WithLabelValues(req.Action).Inc()
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Snapshot())
}

func (s *Server) handleLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.logs.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, protocol.ErrorResponse{Code: "internal", Message: "failed to list logs"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleDeleteLog(c *gin.Context) {
	if err := s.logs.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, protocol.ErrorResponse{Code: protocol.CodeTaskNotFound, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleListSchedules(c *gin.Context) {
	items, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, protocol.ErrorResponse{Code: "internal", Message: "failed to list schedules"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleAddSchedule(c *gin.Context) {
	claims := auth.From(c)
	var req protocol.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, "malformed request body")
		return
	}
	at, err := time.Parse(time.RFC3339, req.At)
	if err != nil {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, "at must be RFC3339")
		return
	}

	id, err := s.store.Add(schedule.Announcement{
		Message:   req.Message,
		AudioRef:  req.AudioRef,
		Zones:     req.Zones,
		At:        at,
		CreatedBy: claims.Subject,
	})
	if err != nil {
		s.reject(c, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleRemoveSchedule(c *gin.Context) {
	if err := s.store.Remove(c.Param("id")); err != nil {
		s.reject(c, http.StatusNotFound, protocol.CodeBadRequest, "no such announcement")
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// rejectAcquire maps arbitration errors onto the HTTP contract: 409 for
// owner conflicts and busy channels, 423 while emergency mode locks the
// campus out, 400 for malformed requests.
func (s *Server) rejectAcquire(c *gin.Context, err error) {
	switch {
	case errors.Is(err, state.ErrConflict):
		s.reject(c, http.StatusConflict, protocol.CodeConflict, err.Error())
	case errors.Is(err, state.ErrBusy):
		s.reject(c, http.StatusConflict, protocol.CodeBusy, "channel busy")
	case errors.Is(err, state.ErrEmergencyActive):
		s.reject(c, http.StatusLocked, protocol.CodeEmergencyActive, "emergency mode active")
	case errors.Is(err, state.ErrNoZones):
		s.reject(c, http.StatusBadRequest, protocol.CodeNoZones, "at least one zone is required")
	case errors.Is(err, state.ErrInvalidKind):
		s.reject(c, http.StatusBadRequest, protocol.CodeInvalidKind, "invalid task kind")
	default:
		c.JSON(http.StatusInternalServerError, protocol.ErrorResponse{Code: "internal", Message: err.Error()})
	}
}

func (s *Server) reject(c *gin.Context, status int, code, message string) {
	if status == http.StatusConflict || status == http.StatusLocked {
		s.metrics.Rejections.WithLabelValues(code).Inc()
	}
	c.JSON(status, protocol.ErrorResponse{Code: code, Message: message})
}
