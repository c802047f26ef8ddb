package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	app "github.com/kode4food/flume"
)

type (
	// Pinger checks reachability of the backing store
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// PingerFunc adapts a plain function to the Pinger interface
	PingerFunc func(ctx context.Context) error

	// HealthResponse reports liveness and store reachability
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
		Store   string `json:"store"`
	}
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	res := HealthResponse{
		Service: app.Name,
		Version: app.Version,
		Status:  healthOK,
		Store:   healthOK,
	}

	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			res.Status = healthDegraded
			res.Store = err.Error()
			c.JSON(http.StatusServiceUnavailable, res)
			return
		}
	}

	c.JSON(http.StatusOK, res)
}
