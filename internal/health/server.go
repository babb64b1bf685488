// Package health serves liveness and readiness probes for the backtesting
// service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StorePinger reports whether the job store backing the service is reachable.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// check probes one dependency. A nil error means healthy.
type check func(ctx context.Context) error

// Config holds the configuration for the health server.
type Config struct {
	ServiceName string
	Version     string
	Commit      string
	Port        string
	Logger      *logrus.Logger
	Store       StorePinger
}

// Server answers /live, /ready and /health. Readiness combines an explicit
// gate, flipped by the process during startup and shutdown, with named
// dependency checks.
type Server struct {
	cfg       Config
	checks    map[string]check
	startedAt time.Time
	server    *http.Server

	mu    sync.RWMutex
	ready bool
}

// statusPayload is the response body for every endpoint.
type statusPayload struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version,omitempty"`
	Commit  string            `json:"commit,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// NewServer creates a health server. Nothing listens until Start is called.
func NewServer(cfg Config) *Server {
	if cfg.Port == "" {
		cfg.Port = "8081"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	checks := make(map[string]check)
	if cfg.Store != nil {
		checks["store"] = func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return cfg.Store.Ping(pingCtx)
		}
	}

	return &Server{
		cfg:       cfg,
		checks:    checks,
		startedAt: time.Now().UTC(),
	}
}

// SetReady flips the readiness gate. The gate stays authoritative: a closed
// gate fails /ready even when every dependency check passes.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// IsReady reports the current gate state.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Handler returns the probe mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start listens in the background and shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.cfg.Logger.WithFields(logrus.Fields{
			"port":    s.cfg.Port,
			"service": s.cfg.ServiceName,
		}).Info("Health server starting")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cfg.Logger.WithError(err).Error("Health server error")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	return nil
}

// Shutdown stops the listener, waiting briefly for in-flight probes.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	s.cfg.Logger.Info("Health server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleLive reports process liveness only. It must stay dependency-free so
// a broken store never gets the process restarted.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, http.StatusOK, statusPayload{
		Status:  "ok",
		Service: s.cfg.ServiceName,
	})
}

// handleReady runs every dependency check behind the readiness gate.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(s.checks)+1)
	healthy := true

	if s.IsReady() {
		results["service"] = "ok"
	} else {
		results["service"] = "not_ready"
		healthy = false
	}

	for name, probe := range s.checks {
		if err := probe(r.Context()); err != nil {
			results[name] = "error: " + err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	payload := statusPayload{
		Status:  "ok",
		Service: s.cfg.ServiceName,
		Checks:  results,
	}
	code := http.StatusOK
	if !healthy {
		payload.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	s.writeStatus(w, code, payload)
}

// handleHealth reports build and uptime information for humans and dashboards.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, http.StatusOK, statusPayload{
		Status:  "ok",
		Service: s.cfg.ServiceName,
		Version: s.cfg.Version,
		Commit:  s.cfg.Commit,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, payload statusPayload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
