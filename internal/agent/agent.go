package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/dispatch"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/logsink"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/telemetry"
	"github.com/Ryuchen/Panda-Sandbox-Agent/pkg/api"
)

// Terminable is implemented by whatever hosts the server and can stop its
// serving loop. Terminate must return promptly; the stop happens after the
// in-flight response is delivered.
type Terminable interface {
	Terminate() error
}

// Options wires the server's collaborators.
type Options struct {
	Version    string
	State      *core.State
	Dispatcher *dispatch.Dispatcher
	Sink       *logsink.Sink
	Journal    *core.Journal
	Metrics    *telemetry.Collector
	EnforcePin bool
}

// Server exposes the agent directives over HTTP.
type Server struct {
	Version    string
	state      *core.State
	dispatcher *dispatch.Dispatcher
	sink       *logsink.Sink
	journal    *core.Journal
	metrics    *telemetry.Collector
	enforcePin bool
	handler    http.Handler

	mu         sync.Mutex
	srv        *http.Server
	terminator Terminable
	stopped    chan struct{}
}

func New(opts Options) *Server {
	if opts.State == nil {
		opts.State = core.NewState()
	}
	if opts.Sink == nil {
		opts.Sink = logsink.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.GetGlobal()
	}
	s := &Server{
		Version:    opts.Version,
		state:      opts.State,
		dispatcher: opts.Dispatcher,
		sink:       opts.Sink,
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		enforcePin: opts.EnforcePin,
		stopped:    make(chan struct{}),
	}
	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = s.withRequestID(s.withPinCheck(mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Routes for the server
func (s *Server) routes(mux *http.ServeMux) {
	s.handle(mux, "GET /{$}", "index", s.handleIndex)
	s.handle(mux, "GET /status", "get_status", s.handleGetStatus)
	s.handle(mux, "POST /status", "set_status", s.handleSetStatus)
	s.handle(mux, "POST /pinning", "pin", s.handlePin)
	s.handle(mux, "POST /execute", "execute", s.handleExecute)
	s.handle(mux, "POST /execpy", "execpy", s.handleExecPy)
	s.handle(mux, "POST /kill", "kill", s.handleKill)
	s.handle(mux, "GET /logging", "logs", s.handleLogs)
	s.handle(mux, "GET /logs", "logs", s.handleLogs)
	s.handle(mux, "GET /system", "system", s.handleSystem)
	s.handle(mux, "GET /environ", "environ", s.handleEnviron)
	s.handle(mux, "GET /path", "path", s.handlePath)
	s.handle(mux, "POST /mkdir", "mkdir", s.handleMkdir)
	s.handle(mux, "POST /mktemp", "mktemp", s.handleMktemp)
	s.handle(mux, "POST /mkdtemp", "mkdtemp", s.handleMkdtemp)
	s.handle(mux, "POST /store", "store", s.handleStore)
	s.handle(mux, "POST /retrieve", "retrieve", s.handleRetrieve)
	s.handle(mux, "POST /extract", "extract", s.handleExtract)
	s.handle(mux, "POST /remove", "remove", s.handleRemove)
	s.handle(mux, "GET /journal", "journal", s.handleJournal)
	mux.Handle("GET /metrics", telemetry.Handler(s.metrics))
}

// handle registers h and records request count and latency per directive.
func (s *Server) handle(mux *http.ServeMux, pattern, directive string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		h(rec, r)
		labels := map[string]string{
			"component": "agent",
			"directive": directive,
			"status":    strconv.Itoa(rec.status),
		}
		s.metrics.Counter("panda_agent_requests", 1, labels)
		s.metrics.Timer("panda_agent_request_duration", time.Since(start), labels)
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(api.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(api.RequestIDHeader, id)
		log.Debug().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).Str("remote", remoteIP(r)).Msg("directive received")
		next.ServeHTTP(w, r)
	})
}

// withPinCheck rejects other controllers once the agent is pinned, when
// enforcement is enabled. Pin requests always reach the state so a repeat
// pin reports the conflict and the recorded address.
func (s *Server) withPinCheck(next http.Handler) http.Handler {
	if !s.enforcePin {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pinning" {
			next.ServeHTTP(w, r)
			return
		}
		if pinned, ok := s.state.Pinned(); ok && remoteIP(r) != pinned {
			writeError(w, r, core.Errorf(core.KindForbidden, "pin check", "agent is pinned to another controller"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetTerminator installs the shutdown capability. Passing nil removes it.
func (s *Server) SetTerminator(t Terminable) {
	s.mu.Lock()
	s.terminator = t
	s.mu.Unlock()
}

func (s *Server) getTerminator() Terminable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminator
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts directives on l until the server is shut down, either by
// Shutdown or by a kill directive. It returns http.ErrServerClosed then.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 30 * time.Second}
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.srv = srv
	if s.terminator == nil {
		s.terminator = &serverTerminator{s: s}
	}
	s.mu.Unlock()
	log.Info().Str("addr", l.Addr().String()).Msg("agent listening")
	return srv.Serve(l)
}

// Shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return fmt.Errorf("server not running")
	}
	err := srv.Shutdown(ctx)
	s.markStopped()
	return err
}

// Stopped is closed once a shutdown has finished draining connections.
func (s *Server) Stopped() <-chan struct{} { return s.stopped }

func (s *Server) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}

// serverTerminator stops the server's own serving loop. Shutdown waits for
// active connections to go idle, so the kill response is still delivered
// and blocking executions elsewhere are left to finish.
type serverTerminator struct {
	s    *Server
	once sync.Once
}

func (t *serverTerminator) Terminate() error {
	t.once.Do(func() {
		go func() {
			if err := t.s.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("agent shutdown")
			}
		}()
	})
	return nil
}
