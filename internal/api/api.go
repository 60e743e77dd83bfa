// Package api serves the hashboard controller's status and health
// endpoints over HTTP, adapted from the teacher's gin usage in
// cmd/driver/hasher-host/main.go (there a full cgminer-compatible RPC
// façade; here a narrow read-only surface, since spec.md's Non-goals
// exclude authenticated RPC).
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rrybarczyk/braiins/internal/hashchain"
	"github.com/rrybarczyk/braiins/internal/monitor"
)

// StatusSource is whatever the server reads a live snapshot from.
type StatusSource interface {
	Status() monitor.Status
	Counters() map[int]hashchain.Counters
}

// Server wraps a gin.Engine exposing the status surface.
type Server struct {
	engine *gin.Engine
	source StatusSource
}

// New builds a Server in gin's release mode, matching the teacher's
// production wiring (no debug middleware chatter in a headless daemon).
func New(source StatusSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, source: source}
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/status", s.handleStatus)
	return s
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"chains":   s.source.Status().Chains,
		"counters": s.source.Counters(),
	})
}

// Run starts serving on addr, blocking until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the underlying http.Handler for embedding in tests
// or an httptest.Server.
func (s *Server) Handler() http.Handler { return s.engine }
