package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/session"
)

// Options configures a Server. Any of the collaborators may be nil; the
// corresponding routes and events are then absent.
type Options struct {
	Addr    string
	Catalog *session.Catalog
	Radio   *radio.Engine
	Network *network.Engine
	Clock   clock.Clock
	// Location is used for ?date= filters. Defaults to time.Local.
	Location *time.Location
}

// Server is the live feed HTTP server.
type Server struct {
	opts Options
	hub  *Hub
	mux  *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	unsubs   []func()
}

// New creates a server and subscribes it to the configured engines and
// catalog. Call Close to unsubscribe.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.hub = NewHub(s.greeting)
	s.registerRoutes()
	s.subscribe()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.Handle("GET /ws", s.hub)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.opts.Catalog != nil {
		s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
		s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
		s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	}
}

func (s *Server) subscribe() {
	if e := s.opts.Radio; e != nil {
		s.unsubs = append(s.unsubs, e.Subscribe(func(ev radio.Event) {
			s.hub.Broadcast(radioMessage(ev, s.opts.Clock.Now()))
		}))
	}
	if e := s.opts.Network; e != nil {
		s.unsubs = append(s.unsubs, e.Subscribe(func(ev network.Event) {
			s.hub.Broadcast(networkMessage(ev, s.opts.Clock.Now()))
		}))
	}
	if c := s.opts.Catalog; c != nil {
		s.unsubs = append(s.unsubs, c.Subscribe(func(sessions []session.ScanSession, err error) {
			s.hub.Broadcast(sessionsMessage(sessions, err, s.opts.Clock.Now()))
		}))
	}
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Start listens on the configured address and serves until ctx is cancelled
// or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	logging.Info("Live feed listening", zap.String("addr", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listening address, once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown closes every feed client and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down live feed...")
	s.hub.Close()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return srv.Close()
	}
	return nil
}

// Close unsubscribes from the engines and catalog and disconnects clients.
func (s *Server) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.hub.Close()
}

// greeting is sent to each new WebSocket client.
func (s *Server) greeting() []Message {
	now := s.opts.Clock.Now()
	msgs := []Message{{Type: TypeStatus, Time: now, Status: s.status()}}
	if c := s.opts.Catalog; c != nil {
		msgs = append(msgs, sessionsMessage(c.Sessions(), nil, now))
	}
	return msgs
}

func (s *Server) status() *Status {
	st := &Status{Clients: s.hub.Clients()}
	if e := s.opts.Radio; e != nil {
		st.Radio = &ChannelStatus{
			Run:          runView(e.Snapshot()),
			RunID:        e.RunID(),
			Power:        e.PowerState().String(),
			LastError:    errString(e.LastError()),
			RadioDevices: e.Devices(),
		}
	}
	if e := s.opts.Network; e != nil {
		st.Network = &ChannelStatus{
			Run:            runView(e.Snapshot()),
			RunID:          e.RunID(),
			LastError:      errString(e.LastError()),
			NetworkDevices: e.Devices(),
		}
	}
	return st
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleListSessions handles GET /api/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := session.ParseFilter(q.Get("type"), q.Get("date"), q.Get("search"), s.opts.Location)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}

	sessions := s.opts.Catalog.Filter(f)
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid limit", raw)
			return
		}
		if limit < len(sessions) {
			sessions = sessions[:limit]
		}
	}
	if sessions == nil {
		sessions = []session.ScanSession{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.opts.Catalog.Session(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Session not found", id)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.opts.Catalog.Session(id); !ok {
		writeJSONError(w, http.StatusNotFound, "Session not found", id)
		return
	}
	if err := s.opts.Catalog.Delete(r.Context(), id); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to delete session", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write JSON response", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, map[string]string{
		"error":   message,
		"details": details,
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for WebSocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}
