package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type Option func(*Server)

func WithMigrateDown(m func() error) Option {
	return func(s *Server) {
		s.migrateDown = m
	}
}

type Server struct {
	router      *http.ServeMux
	registry    *SessionRegistry
	migrateDown func() error
}

func NewServer(registry *SessionRegistry, jwtSecret string, opts ...Option) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		registry: registry,
	}

	for _, opt := range opts {
		opt(s)
	}

	h := NewHandler(registry)
	s.setupRoutes(h, jwtSecret)

	return s
}

func (s *Server) setupRoutes(h *Handler, jwtSecret string) {
	auth := AuthMiddleware(jwtSecret)

	route := func(pattern string, fn http.HandlerFunc) {
		s.router.Handle(pattern, auth(fn))
	}

	route("GET /ws", h.handleWS)
	route("GET /state", h.handleGetState)
	route("GET /presence", h.handleGetPresence)
	route("GET /unread", h.handleGetUnread)
	route("POST /activity", h.handleActivity)

	route("POST /channels", h.handleCreateChannel)
	route("DELETE /channels/{channel_id}", h.handleDeleteChannel)
	route("POST /channels/{channel_id}/join", h.handleJoinChannel)
	route("POST /channels/{channel_id}/leave", h.handleLeaveChannel)
	route("POST /channels/{channel_id}/open", h.handleOpenChannel)
	route("GET /channels/{channel_id}/messages", h.handleGetMessages)
	route("POST /channels/{channel_id}/messages", h.handleSendMessage)
	route("POST /channels/{channel_id}/ask", h.handleAsk)

	route("POST /dm/{user_id}", h.handleOpenDM)
}

func (s *Server) Run(addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			return
		}
	}()
	slog.Info("Server is running", "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit

	ctx, shutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdown()

	s.registry.CloseAll()

	if s.migrateDown != nil {
		if err := s.migrateDown(); err != nil {
			slog.Warn("Failed to migrate down", "error", err)
		}
	}

	slog.Info("Server exited")
	return server.Shutdown(ctx)
}
