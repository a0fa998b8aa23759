package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"handleprobe/internal/platform/timeouts"
	"handleprobe/internal/service"
)

type Server struct {
	router  *http.ServeMux
	service *service.ProbeService
	logger  *log.Logger
	now     func() time.Time

	mu  sync.Mutex
	srv *http.Server
}

func NewServer(svc *service.ProbeService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	server := &Server{
		router:  http.NewServeMux(),
		service: svc,
		logger:  logger,
		now:     time.Now,
	}
	server.router.HandleFunc("POST /sessions", server.handleCreateSession)
	server.router.HandleFunc("GET /sessions/{id}", server.handleGetSession)
	server.router.HandleFunc("DELETE /sessions/{id}", server.handleDeleteSession)
	server.router.HandleFunc("POST /sessions/{id}/search", server.handleSearch)
	server.router.HandleFunc("GET /sessions/{id}/events", server.handleEvents)
	server.router.HandleFunc("POST /sessions/{id}/retry/{site}", server.handleRetry)
	server.router.HandleFunc("GET /sessions/{id}/export", server.handleExport)
	server.router.HandleFunc("GET /sites", server.handleSites)
	server.router.HandleFunc("GET /categories", server.handleCategories)
	server.router.HandleFunc("GET /check", server.handleCheck)
	return server
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called, then returns nil.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Printf("[http] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests for at most timeouts.Shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Shutdown)
	defer cancel()
	return srv.Shutdown(ctx)
}

// ReapIdleSessions closes sessions idle for longer than idle, checking every
// interval until ctx is done.
func (s *Server) ReapIdleSessions(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.service.ReapIdle(s.now().Add(-idle)); n > 0 {
				s.logger.Printf("[http] closed %d idle sessions", n)
			}
		}
	}
}
