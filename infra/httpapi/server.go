// Package httpapi serves the local diagnostics API of a device: liveness,
// the last scheduler snapshot, the command journal and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/farmbridge/core/journal"
	"github.com/kilianp07/farmbridge/infra/logger"
)

const shutdownTimeout = 5 * time.Second

// Config defines the listener.
type Config struct {
	// Address is host:port. Empty disables the API.
	Address string `json:"address"`
	// Token, when set, is required as a bearer token on /journal.
	Token string `json:"token"`
}

// Deps are the read-only views the API exposes.
type Deps struct {
	// State returns the value served on /state.
	State func() any
	// Ready reports whether the device is connected to its broker.
	Ready   func() bool
	Journal journal.Store
	// Metrics defaults to the Prometheus default gatherer.
	Metrics http.Handler
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg  Config
	deps Deps
	log  logger.Logger
	srv  *http.Server
}

// New builds a server. Call Start to listen.
func New(cfg Config, deps Deps) *Server {
	if deps.State == nil {
		deps.State = func() any { return struct{}{} }
	}
	if deps.Ready == nil {
		deps.Ready = func() bool { return true }
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	s := &Server{cfg: cfg, deps: deps, log: logger.New("httpapi")}
	s.srv = &http.Server{Addr: cfg.Address, Handler: s.Routes(), ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Routes returns the HTTP routes of the API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/state", s.handleState)
	r.Get("/journal", s.handleJournal)
	r.Handle("/metrics", s.deps.Metrics)
	return r
}

// Start listens on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.log.Infof("diagnostics API listening on %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("diagnostics API: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return nil
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.deps.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State())
}

// handleJournal serves GET /journal?start=&end=&request_id=&command=&limit=.
// Times are RFC 3339.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	params := r.URL.Query()
	q := journal.Query{
		RequestID: params.Get("request_id"),
		Command:   params.Get("command"),
	}
	for key, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		if v := params.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid "+key+": "+err.Error(), http.StatusBadRequest)
				return
			}
			*dst = t
		}
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = n
	}
	entries, err := s.deps.Journal.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
