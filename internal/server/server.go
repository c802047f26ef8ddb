// Package server exposes the engine over HTTP: workflow definition,
// execution start, status polling, and a websocket stream of lifecycle
// events for the admin UI
package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/flume/internal/engine"
	"github.com/kode4food/flume/pkg/util"
)

// Server implements the HTTP API server for the engine
type Server struct {
	coordinator *engine.Coordinator
	registry    Registry
	hub         *engine.Hub
	pinger      Pinger
	sockets     util.Set[*Client]
	mu          sync.Mutex
}

// NewServer creates a new HTTP API server
func NewServer(
	coord *engine.Coordinator, reg Registry, hub *engine.Hub, pinger Pinger,
) *Server {
	return &Server{
		coordinator: coord,
		registry:    reg,
		hub:         hub,
		pinger:      pinger,
		sockets:     util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API
// endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	// Workflow endpoints
	wf := router.Group("/api/workflow")
	{
		wf.POST("/defineworkflow", s.defineWorkflow)
		wf.POST("/start", s.startWorkflow)
		wf.GET("/status/:executionID", s.executionStatus)
		wf.GET("/list", s.listWorkflows)

		// WebSocket
		wf.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
