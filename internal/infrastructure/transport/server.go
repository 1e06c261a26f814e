package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/doeshing/extscan-go/internal/domain"
	"github.com/doeshing/extscan-go/internal/pkg/logger"
	"github.com/doeshing/extscan-go/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// MonitorService is the monitor surface exposed over HTTP.
type MonitorService interface {
	ports.BehaviorMonitor
	Sessions() []string
}

// Server exposes the monitor over HTTP and mounts the host WebSocket endpoint.
type Server struct {
	monitor MonitorService
	hub     *Hub
	logger  ports.Logger
	stats   func() interface{}
	mux     *http.ServeMux
}

// NewServer builds the HTTP routes. hub may be nil when no WebSocket host is served.
func NewServer(monitor MonitorService, hub *Hub, stats func() interface{}, log ports.Logger) *Server {
	if log == nil {
		log = logger.Nop{}
	}
	s := &Server{monitor: monitor, hub: hub, logger: log, stats: stats, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /analysis", s.handleAnalysis)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("PUT /sessions/{id}", s.handleStart)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleStop)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleResults)
	if hub != nil {
		s.mux.Handle("GET /ws", hub)
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("monitor server listening", map[string]interface{}{"addr": addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		if s.hub != nil {
			s.hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
	Hosts     int    `json:"hosts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Available: s.monitor.IsRuntimeMonitoringAvailable()}
	if s.hub != nil {
		resp.Hosts = s.hub.Connections()
	}
	writeJSON(w, http.StatusOK, resp)
}

type analysisResponse struct {
	Snapshot domain.BehavioralSnapshot `json:"snapshot"`
	Stats    interface{}               `json:"stats,omitempty"`
}

func (s *Server) handleAnalysis(w http.ResponseWriter, _ *http.Request) {
	resp := analysisResponse{Snapshot: s.monitor.GetBehavioralAnalysis()}
	if s.stats != nil {
		resp.Stats = s.stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.monitor.Sessions()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.monitor.StartMonitoringExtension(id)
	writeJSON(w, http.StatusOK, s.monitor.GetExtensionMonitoringResults(id))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.monitor.StopMonitoringExtension(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results := s.monitor.GetExtensionMonitoringResults(r.PathValue("id"))
	if results == nil {
		writeJSON(w, http.StatusNotFound, ErrorPayload{Message: "extension is not monitored", Code: "not_monitored"})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
