// Package api is the HTTP/WebSocket front door (§6.1, §6.4): the Caller
// API surface (execute/pause/resume/cancel/isRunning/getState/subscribe),
// checkpoint/pause decision endpoints, and a streaming update feed.
// Grounded on the teacher's pkg/api/handlers.go (gin.Engine + Server
// struct shape, ShouldBindJSON request validation) and pkg/api/websocket.go
// (hub-style connection registry), with the hub's delivery loop adapted
// from gorilla/websocket to coder/websocket per pkg/events/manager.go's
// Accept/Read/Write idiom and this module's already-committed go.mod.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbwo/engine/pkg/engine"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/updatestream"
)

// Server wires the Execution Engine and Update Stream to an HTTP API.
type Server struct {
	router  *gin.Engine
	engine  *engine.Engine
	store   *tbworder.Store
	updates *updatestream.Stream
	log     *slog.Logger
}

// NewServer builds a Server and registers its routes.
func NewServer(e *engine.Engine, store *tbworder.Store, updates *updatestream.Stream) *Server {
	s := &Server{
		router:  gin.New(),
		engine:  e,
		store:   store,
		updates: updates,
		log:     slog.With("component", "api"),
	}
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Router exposes the underlying gin.Engine, e.g. for http.Server wiring.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/workorders", s.CreateWorkOrder)
		v1.GET("/workorders", s.ListWorkOrders)
		v1.GET("/workorders/:id", s.GetState)
		v1.GET("/workorders/:id/running", s.IsRunning)

		v1.POST("/workorders/:id/execute", s.Execute)
		v1.POST("/workorders/:id/pause", s.Pause)
		v1.POST("/workorders/:id/resume", s.Resume)
		v1.POST("/workorders/:id/cancel", s.Cancel)

		v1.POST("/workorders/:id/checkpoints/:checkpointId/decision", s.DecideCheckpoint)
		v1.POST("/workorders/:id/pauses/:pauseId/answer", s.AnswerPause)

		v1.GET("/workorders/:id/updates", s.Subscribe)
	}
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
}

// RunOptions configures the http.Server wrapping the Server's router.
type RunOptions struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run starts an HTTP server bound to opts.Addr and blocks until ctx is
// cancelled, then shuts down gracefully within opts.ShutdownTimeout.
// Grounded on the teacher's cmd/tarsy/main.go graceful-shutdown pattern.
func (s *Server) Run(ctx context.Context, opts RunOptions) error {
	httpServer := &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", opts.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
