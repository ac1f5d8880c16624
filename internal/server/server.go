package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/store"
)

// Server wires the coordinator, hub and HTTP surface together.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	coord      *Coordinator
	hub        *Hub
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New builds a server for cfg persisting messages to st.
func New(cfg config.Config, st store.MessageStore, logger *slog.Logger) *Server {
	cfg = config.Sanitize(cfg)
	if logger == nil {
		logger = slog.Default()
	}

	coord := NewCoordinator(cfg, st, logger)
	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "server"),
		coord:  coord,
		hub:    NewHub(coord, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginPolicy(cfg, s.logger).checkOrigin,
	}
	s.httpServer = CreateServer(cfg.Port, s.Handler())
	return s
}

// Coordinator returns the server's coordinator.
func (s *Server) Coordinator() *Coordinator {
	return s.coord
}

// Hub returns the server's connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}

// StartHub runs the hub loop in its own goroutine. It must be called before
// accepting WebSocket connections.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("hub started and ready to manage websocket connections")
}

// ListenAndServe starts the hub and serves HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.StartHub()
	if err := StartServer(s.httpServer, s.logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, then disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := ShutdownServer(ctx, s.httpServer, s.logger)

	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = timeUntil(deadline)
	}
	hubErr := s.hub.Shutdown(timeout)

	return errors.Join(httpErr, hubErr)
}
