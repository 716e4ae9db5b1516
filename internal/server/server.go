// Package server exposes the session engine to the visualization front end:
// REST endpoints for chat, graph snapshots, expansion, schema, and
// suggestions, plus a websocket push channel for live updates.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"graphlens/internal/agent"
	"graphlens/internal/graph"
	"graphlens/internal/session"
	apperrors "graphlens/pkg/errors"
)

// SchemaSource is the slice of the graph reader the server needs for the
// schema endpoints.
type SchemaSource interface {
	Schema(ctx context.Context) (*graph.Schema, error)
	RefreshSchema(ctx context.Context) (*graph.Schema, error)
}

// Suggester provides starter questions for the chat input.
type Suggester interface {
	Suggestions(ctx context.Context) []string
}

// Server wires the session engine into a gin router.
type Server struct {
	session *session.Session
	schema  SchemaSource
	suggest Suggester
	hub     *Hub
	logger  *zap.Logger
	engine  *gin.Engine
}

// New creates the HTTP server around an existing session.
func New(sess *session.Session, schema SchemaSource, suggest Suggester, logger *zap.Logger, production bool) *Server {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		session: sess,
		schema:  schema,
		suggest: suggest,
		hub:     NewHub(logger),
		logger:  logger,
	}

	router := gin.New()
	router.Use(requestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", s.handleWebSocket)

	api := router.Group("/api")
	{
		api.POST("/chat", s.handleChat)
		api.GET("/graph", s.handleGraph)
		api.POST("/graph/expand", s.handleExpand)
		api.GET("/graph/insight", s.handleInsight)
		api.GET("/schema", s.handleSchema)
		api.POST("/schema/refresh", s.handleSchemaRefresh)
		api.GET("/suggestions", s.handleSuggestions)
	}

	s.engine = router
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub so session listeners can broadcast through it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listeners returns session callbacks that push updates to websocket clients.
func (s *Server) Listeners() session.Listeners {
	return session.Listeners{
		GraphChanged: func(g *graph.Graph) {
			s.hub.Broadcast(gin.H{
				"type":          "graph_changed",
				"nodes":         len(g.Nodes),
				"relationships": len(g.Relationships),
			})
		},
		TurnState: func(state agent.TurnState) {
			s.hub.Broadcast(gin.H{"type": "turn_state", "state": state})
		},
		Expansion: func(nodeID string, inFlight bool) {
			s.hub.Broadcast(gin.H{
				"type":     "expansion",
				"node_id":  nodeID,
				"inFlight": inFlight,
			})
		},
	}
}

func (s *Server) handleChat(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.session.Submit(c.Request.Context(), req.Message)
	if err != nil {
		if err == apperrors.ErrTurnInFlight {
			c.JSON(http.StatusConflict, gin.H{"error": "a turn is already streaming"})
			return
		}
		if entry == nil {
			s.logger.Error("Failed to run turn", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to reach the agent"})
			return
		}
		// Failed turn: the entry carries the user-visible message.
	}

	c.JSON(http.StatusOK, gin.H{
		"entry":        entry,
		"graphChanged": entry.Fragment != nil,
		"transcript":   s.session.History(),
	})
}

func (s *Server) handleGraph(c *gin.Context) {
	selected := c.Query("selected")
	snapshot := s.session.Snapshot()
	c.JSON(http.StatusOK, Render(snapshot, s.session.ExpandedIDs(), selected))
}

func (s *Server) handleExpand(c *gin.Context) {
	var req struct {
		NodeID string `json:"node_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.session.Expand(c.Request.Context(), req.NodeID); err != nil {
		s.logger.Warn("Expansion failed", zap.String("node_id", req.NodeID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "expansion failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"expanded": s.session.Expanded(req.NodeID),
		"graph":    Render(s.session.Snapshot(), s.session.ExpandedIDs(), ""),
	})
}

func (s *Server) handleInsight(c *gin.Context) {
	insight := s.session.Insight()
	if insight == nil {
		c.JSON(http.StatusOK, gin.H{"insight": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight": insight})
}

func (s *Server) handleSchema(c *gin.Context) {
	schema, err := s.schema.Schema(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to fetch schema", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch schema"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schema": schema, "summary": schema.Summary()})
}

func (s *Server) handleSchemaRefresh(c *gin.Context) {
	schema, err := s.schema.RefreshSchema(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to refresh schema", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to refresh schema"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schema": schema, "summary": schema.Summary()})
}

func (s *Server) handleSuggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suggestions": s.suggest.Suggestions(c.Request.Context())})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	s.hub.add(conn)
	s.logger.Info("Websocket client connected")

	// Reader loop only detects disconnects; clients do not send frames.
	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// requestLogger is the zap request logging middleware.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
