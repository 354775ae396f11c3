package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"poolgate.io/pgw/internal/dispatcher"
	"poolgate.io/pgw/internal/docs"
	"poolgate.io/pgw/internal/events"
	"poolgate.io/pgw/internal/ledger"
)

// Service handles API requests
type Service struct {
	ledger     *ledger.Ledger
	dispatcher *dispatcher.Dispatcher
	hub        *events.Hub
	docs       *docs.Service
	logger     *zap.Logger
}

// NewService creates a new API service
func NewService(led *ledger.Ledger, disp *dispatcher.Dispatcher, hub *events.Hub, docSvc *docs.Service, logger *zap.Logger) *Service {
	return &Service{
		ledger:     led,
		dispatcher: disp,
		hub:        hub,
		docs:       docSvc,
		logger:     logger,
	}
}

// Router builds the full route table for the gateway.
func (s *Service) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.HandleHealth)
	mux.HandleFunc("/api/version", s.HandleVersion)
	mux.HandleFunc("/api/deposit", s.HandleDeposit)
	mux.HandleFunc("/api/ready", s.HandleReady)
	mux.HandleFunc("/api/settle", s.HandleSettle)
	mux.HandleFunc("/api/snapshot", s.HandleSnapshot)
	mux.HandleFunc("/api/settlements", s.HandleSettlements)
	mux.HandleFunc("/api/inbound", s.HandleInbound)

	// Live settlement feed
	mux.HandleFunc("/ws/settlements", s.hub.ServeWS)

	// Rendered asciidoc documentation
	mux.HandleFunc("/docs", s.HandleDocs)
	mux.HandleFunc("/docs/", s.HandleDocs)

	return mux
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// Server wraps the HTTP listener around a Service.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates an HTTP server for the API on the given port.
func NewServer(svc *Service, port int, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           svc.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start launches the server and returns a channel for listener errors.
func (s *Server) Start() chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
