package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/services/worker"
)

// Provider exposes the worker snapshot
type Provider interface {
	Status() worker.Status
}

// Server serves health and progress endpoints for the scan worker
type Server struct {
	server *http.Server
	log    *logger.Logger
}

// NewRouter registers the endpoints
func NewRouter(p Provider) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthCheckHandler).Methods(http.MethodGet)
	router.HandleFunc("/status", statusHandler(p)).Methods(http.MethodGet)
	return router
}

// NewServer creates a server listening on addr
func NewServer(addr string, p Provider) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(p),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: logger.ForWorker().WithField("endpoint", addr),
	}
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		s.log.Info().Msg("Status server starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Status server failed")
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func statusHandler(p Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Status())
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
