package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/db"
	httpx "github.com/agora-hq/agora/syncer/http"
	"github.com/agora-hq/agora/syncer/services"
)

const defaultFeedLimit = 50
const maxFeedLimit = 200

// Server exposes the read-only status surface: health, sync cursors, the
// activity feed and Prometheus metrics. It never writes; all state comes
// from the sync engine.
type Server struct {
	db      db.Database
	metrics *services.Metrics
	logger  zerolog.Logger
}

// NewServer creates the handler set.
func NewServer(database db.Database, metrics *services.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		db:      database,
		metrics: metrics,
		logger:  logger,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpx.Zerolog(s.logger))
	router.Use(httpx.CORS(""))

	router.GET("/health", s.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cursors", s.ListCursors)
		v1.GET("/cursors/:contract", s.GetCursor)
		v1.GET("/feed", s.ListFeed)
		v1.GET("/agents/:id", s.GetAgent)
	}

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	return router
}

// Health reports liveness and database reachability.
func (s *Server) Health(c *gin.Context) {
	if err := s.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListCursors returns every contract cursor with its sync state.
func (s *Server) ListCursors(c *gin.Context) {
	cursors, err := s.db.ListSyncCursors(c.Request.Context())
	if err != nil {
		httpx.ErrInternalServerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursors": cursors})
}

// GetCursor returns one contract cursor by name.
func (s *Server) GetCursor(c *gin.Context) {
	cursor, err := s.db.GetSyncCursor(c.Request.Context(), c.Param("contract"))
	if errors.Is(err, db.ErrNotFound) {
		httpx.ErrNotFound(c, errors.New("unknown contract cursor"))
		return
	}
	if err != nil {
		httpx.ErrInternalServerError(c, err)
		return
	}
	c.JSON(http.StatusOK, cursor)
}

// ListFeed returns the most recent activity feed entries.
func (s *Server) ListFeed(c *gin.Context) {
	limit := defaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.ErrBadRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	events, err := s.db.ListEconomyEvents(c.Request.Context(), limit)
	if err != nil {
		httpx.ErrInternalServerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetAgent returns one agent by its ledger-assigned identifier.
func (s *Server) GetAgent(c *gin.Context) {
	agentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		httpx.ErrBadRequest(c, errors.New("agent id must be an unsigned integer"))
		return
	}

	agent, err := s.db.GetAgentByAgentID(c.Request.Context(), agentID)
	if errors.Is(err, db.ErrNotFound) {
		httpx.ErrNotFound(c, errors.New("unknown agent"))
		return
	}
	if err != nil {
		httpx.ErrInternalServerError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}
