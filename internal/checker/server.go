package checker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// DefaultMaxUploadSize bounds photo uploads unless SetMaxUploadSize is called
const DefaultMaxUploadSize = int64(20 * units.MB)

// Server exposes the Service over HTTP
type Server struct {
	service       *Service
	basicAuth     BasicAuth
	mux           *http.ServeMux
	http          *http.Server
	maxUploadSize int64
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:       service,
		basicAuth:     basicAuth,
		mux:           mux,
		maxUploadSize: DefaultMaxUploadSize,
	}
	s.http = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}
	s.registerRoutes()
	return s
}

// SetMaxUploadSize sets the largest accepted photo upload in bytes
func (s *Server) SetMaxUploadSize(size int64) {
	if size > 0 {
		s.maxUploadSize = size
	}
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return user == s.basicAuth.Username && pass == s.basicAuth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Freshcheck"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/conversations/{id}/photos", s.requireAuth(s.handlePhoto))
	s.mux.HandleFunc("POST /api/conversations/{id}/messages", s.requireAuth(s.handleMessage))
	s.mux.HandleFunc("PUT /api/conversations/{id}/subscription", s.requireAuth(s.handleSubscribe))
	s.mux.HandleFunc("DELETE /api/conversations/{id}/subscription", s.requireAuth(s.handleUnsubscribe))
	s.mux.HandleFunc("GET /api/conversations/{id}/subscription", s.requireAuth(s.handleStatus))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	slog.Info("Starting server", "address", ln.Addr().String())
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
