package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/superdisco-agents/moai-flow-sub005/internal/application/coordinator"
	"github.com/superdisco-agents/moai-flow-sub005/internal/infrastructure/store"
	"github.com/superdisco-agents/moai-flow-sub005/internal/shared"
)

// Server is the HTTP boundary over the engine's five operations and the
// two task lifecycle hooks.
type Server struct {
	echo   *echo.Echo
	coord  *coordinator.Coordinator
	store  *store.Store
	hub    *Hub
	logger *slog.Logger
}

// NewServer creates the HTTP server and registers routes.
func NewServer(coord *coordinator.Coordinator, st *store.Store, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		coord:  coord,
		store:  st,
		hub:    hub,
		logger: logger.With("component", "web"),
	}

	e.GET("/health", s.handleHealth)
	e.POST("/api/sessions", s.handleInitSession)
	e.GET("/api/sessions/:id", s.handleGetStatus)
	e.POST("/api/sessions/:id/topology", s.handleSwitchTopology)
	e.POST("/api/sessions/:id/consensus", s.handleRequestConsensus)
	e.DELETE("/api/sessions/:id", s.handleCloseSession)
	e.POST("/api/sessions/:id/tasks/start", s.handleTaskStart)
	e.POST("/api/sessions/:id/tasks/end", s.handleTaskEnd)
	e.GET("/api/sessions/:id/healing", s.handleHealingActions)
	e.GET("/api/sessions/:id/route", s.handleRoute)
	e.GET("/ws", s.handleWebSocket)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	return s.echo.Start(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.ConnectionCount(),
	})
}

// AgentSpecRequest describes one agent in a session creation request.
// Endpoint is the base URL of the agent's HTTP worker.
type AgentSpecRequest struct {
	ID             string   `json:"id"`
	Endpoint       string   `json:"endpoint"`
	CapabilityTags []string `json:"capability_tags,omitempty"`
	Weight         float64  `json:"weight,omitempty"`
	LeaderEligible bool     `json:"leader_eligible,omitempty"`
}

// InitSessionRequest is the body for POST /api/sessions.
type InitSessionRequest struct {
	Topology  shared.TopologyKind           `json:"topology"`
	Algorithm shared.ConsensusAlgorithmType `json:"algorithm"`
	Agents    []AgentSpecRequest            `json:"agents"`
}

func (s *Server) handleInitSession(c echo.Context) error {
	var req InitSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	specs := make([]shared.AgentSpec, 0, len(req.Agents))
	for _, a := range req.Agents {
		if a.Endpoint == "" {
			return c.JSON(http.StatusBadRequest, errBody(fmt.Sprintf("agent %s has no endpoint", a.ID)))
		}
		specs = append(specs, shared.AgentSpec{
			ID:             a.ID,
			CapabilityTags: a.CapabilityTags,
			Weight:         a.Weight,
			LeaderEligible: a.LeaderEligible,
			Handle:         NewRemoteAgent(a.Endpoint),
		})
	}

	id, err := s.coord.InitSession(c.Request().Context(), req.Topology, req.Algorithm, specs)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleGetStatus(c echo.Context) error {
	status, err := s.coord.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// SwitchTopologyRequest is the body for POST /api/sessions/:id/topology.
type SwitchTopologyRequest struct {
	Kind shared.TopologyKind `json:"kind"`
}

func (s *Server) handleSwitchTopology(c echo.Context) error {
	var req SwitchTopologyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	if err := s.coord.SwitchTopology(c.Request().Context(), c.Param("id"), req.Kind); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"topology": string(req.Kind)})
}

// ConsensusRequest is the body for POST /api/sessions/:id/consensus.
type ConsensusRequest struct {
	Text      string `json:"text"`
	TimeoutMs int64  `json:"timeout_ms"`
}

func (s *Server) handleRequestConsensus(c echo.Context) error {
	var req ConsensusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = 5000
	}

	proposal, err := s.coord.RequestConsensus(c.Request().Context(), c.Param("id"), req.Text,
		time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, proposal)
}

func (s *Server) handleCloseSession(c echo.Context) error {
	if err := s.coord.CloseSession(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TaskStartRequest is the body for POST /api/sessions/:id/tasks/start.
type TaskStartRequest struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

func (s *Server) handleTaskStart(c echo.Context) error {
	var req TaskStartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	if err := s.coord.OnTaskStart(c.Param("id"), req.AgentID, req.TaskID); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// TaskEndRequest is the body for POST /api/sessions/:id/tasks/end.
type TaskEndRequest struct {
	AgentID    string                `json:"agent_id"`
	TaskID     string                `json:"task_id"`
	DurationMs int64                 `json:"duration_ms"`
	Result     shared.TaskResultKind `json:"result"`
}

func (s *Server) handleTaskEnd(c echo.Context) error {
	var req TaskEndRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.Result == "" {
		req.Result = shared.TaskSuccess
	}

	if err := s.coord.OnTaskEnd(c.Request().Context(), c.Param("id"), req.AgentID, req.TaskID, req.DurationMs, req.Result); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleHealingActions(c echo.Context) error {
	actions, err := s.store.QueryHealingActions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, actions)
}

func (s *Server) handleRoute(c echo.Context) error {
	route, err := s.coord.Route(c.Request().Context(), c.Param("id"), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, route)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	return s.hub.Serve(c.Response(), c.Request(), c.QueryParam("session_id"))
}

// mapError translates engine errors to HTTP status codes.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, shared.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errBody(err.Error()))
	case errors.Is(err, shared.ErrInvalidConfig):
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	case errors.Is(err, shared.ErrTopologyTransition),
		errors.Is(err, shared.ErrNoLeaderAvailable),
		errors.Is(err, shared.ErrProposalAlreadyDecided):
		return c.JSON(http.StatusConflict, errBody(err.Error()))
	default:
		s.logger.Error("request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errBody("internal error"))
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
