// Package server exposes editor sessions over HTTP. Each session holds one
// photo; pointer gestures arrive as JSON, either one request per event or
// streamed over a websocket.
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/menta2k/headshot/pkg/editor"
	"github.com/menta2k/headshot/pkg/processing"
)

// SessionFactory creates a fresh editor session.
type SessionFactory func() *editor.Session

// Options configures a Server
type Options struct {
	Addr           string
	MaxUploadBytes int64
	UploadsPerSec  float64
	UploadBurst    int
	SessionTTL     time.Duration
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{
		Addr:           ":8080",
		MaxUploadBytes: 20 << 20,
		UploadsPerSec:  2,
		UploadBurst:    5,
		SessionTTL:     30 * time.Minute,
	}
}

type entry struct {
	session  *editor.Session
	lastUsed time.Time
}

// Server represents the editor REST/WebSocket server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	processor  *processing.Processor
	limiter    *rate.Limiter
	logger     *slog.Logger
	opts       Options
	factory    SessionFactory

	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

// New creates a new server. Sessions are created with factory.
func New(factory SessionFactory, opts Options) *Server {
	def := DefaultOptions()
	if opts.Addr == "" {
		opts.Addr = def.Addr
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = def.MaxUploadBytes
	}
	if opts.UploadsPerSec <= 0 {
		opts.UploadsPerSec = def.UploadsPerSec
	}
	if opts.UploadBurst <= 0 {
		opts.UploadBurst = def.UploadBurst
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		mux:       http.NewServeMux(),
		processor: processing.NewProcessor(),
		limiter:   rate.NewLimiter(rate.Limit(opts.UploadsPerSec), opts.UploadBurst),
		logger:    opts.Logger,
		opts:      opts,
		factory:   factory,
		sessions:  make(map[string]*entry),
		now:       time.Now,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreate)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleView))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	s.mux.HandleFunc("PUT /api/sessions/{id}/image", s.withSession(s.handleUpload))
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	s.mux.HandleFunc("PUT /api/sessions/{id}/display", s.withSession(s.handleDisplay))
	s.mux.HandleFunc("POST /api/sessions/{id}/pointer", s.withSession(s.handlePointer))
	s.mux.HandleFunc("GET /api/sessions/{id}/preview.png", s.withSession(s.handlePreview))
	s.mux.HandleFunc("GET /api/sessions/{id}/export", s.withSession(s.handleExport))
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.withSession(s.handleWebSocket))
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.enableCORS(s.mux))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweep(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("editor server listening", "addr", s.opts.Addr)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Create registers a new session and returns its id.
func (s *Server) Create() (string, *editor.Session) {
	id := uuid.NewString()
	sess := s.factory()

	s.mu.Lock()
	s.sessions[id] = &entry{session: sess, lastUsed: s.now()}
	s.mu.Unlock()

	s.logger.Debug("session created", "session", id)
	return id, sess
}

// Lookup returns the session with the given id and marks it used.
func (s *Server) Lookup(id string) (*editor.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.session, true
}

// Remove drops a session. It reports whether the session existed.
func (s *Server) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		e.session.Reset()
	}
	return ok
}

// Len returns the number of live sessions.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expire removes sessions idle for longer than the configured TTL and
// returns how many were removed.
func (s *Server) Expire() int {
	if s.opts.SessionTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.opts.SessionTTL)

	s.mu.Lock()
	var expired []*editor.Session
	for id, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e.session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Reset()
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

func (s *Server) sweep(ctx context.Context) {
	if s.opts.SessionTTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.SessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Expire()
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.opts.AllowedOrigins) > 0 {
			origin = r.Header.Get("Origin")
			if !s.checkOrigin(r) {
				origin = ""
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
