// Package httpapi implements the HTTP surface (spec §6): health and tool
// introspection, memory inspection/reset, the authorization rendezvous
// endpoints, and the SSE streaming endpoint. Grounded on the teacher's
// pkg/server/http.go for the route table, CORS, and error-shape idioms and
// pkg/transport/http_metrics_middleware.go for chi-router wiring,
// generalized from net/http's ServeMux and the A2A JSON-RPC surface to
// chi.Router and the spec's REST+SSE surface.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/oversight/internal/agent"
	"github.com/kadirpekel/oversight/internal/authn"
	"github.com/kadirpekel/oversight/internal/authz"
	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/observability"
	"github.com/kadirpekel/oversight/internal/stream"
	"github.com/kadirpekel/oversight/internal/tool"
)

// Version is the build-time version string surfaced by /health; overridden
// by cmd/oversightd's main via a linker flag or Config.Version.
var Version = "dev"

// Config tunes the HTTP surface.
type Config struct {
	Version          string
	IceBreakerPrompt string
	KeepAlive        time.Duration
	AllowedOrigins   []string
	MaxHistorySteps  int
}

// Server wires the runtime's collaborators to chi routes. The engine,
// registry, and coordinator are shared with whatever drives the process
// (e.g. a CLI run loop); Server only ever uses them through their already
//-synchronized public methods.
type Server struct {
	cfg      Config
	engine   *agent.Engine
	registry *tool.Registry
	authz    *authz.Coordinator
	mem      *memory.AgentMemory
	bridge   *stream.Bridge
	started  time.Time

	authn  *authn.Validator // nil disables bearer-token auth (spec §6 server.auth.enabled=false)
	obs    *observability.Manager
	router chi.Router
}

// New builds a Server and its chi router. mem must be the same AgentMemory
// instance the engine was constructed with, since the engine does not
// expose its memory directly (spec §5's single-owner-mutex boundary).
// authnValidator and obsManager may be nil to disable bearer-token auth and
// tracing/metrics respectively.
func New(cfg Config, engine *agent.Engine, registry *tool.Registry, coordinator *authz.Coordinator, mem *memory.AgentMemory, authnValidator *authn.Validator, obsManager *observability.Manager) *Server {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		registry: registry,
		authz:    coordinator,
		mem:      mem,
		bridge:   stream.NewBridge(engine, cfg.IceBreakerPrompt, cfg.KeepAlive),
		started:  time.Now(),
		authn:    authnValidator,
		obs:      obsManager,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler for the server, suitable for
// http.Server.Handler or httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics()))
		r.Handle(s.obs.MetricsEndpoint(), s.obs.Metrics().Handler())
	}

	// /health stays unauthenticated so orchestrators can probe liveness
	// without provisioning credentials.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.authn != nil {
			r.Use(s.authn.Middleware)
		}

		r.Get("/tools", s.handleListTools)

		r.Get("/memory/stats", s.handleMemoryStats)
		r.Delete("/memory/clear", s.handleMemoryClear)
		r.Post("/agents/clear-memory", s.handleMemoryClear)

		r.Get("/authorization/config", s.handleGetAuthConfig)
		r.Post("/authorization/config", s.handleSetAuthConfig)
		r.Post("/authorization", s.handleAuthorizationResponse)
		r.Get("/authorization/pending", s.handleAuthorizationPending)
		r.Post("/authorization/cancel", s.handleAuthorizationCancel)

		r.Post("/stream", s.handleStream)
		r.Post("/agents/stream", s.handleStream)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// corsMiddleware mirrors the teacher's permissive-by-default CORS, scoped
// to an allow-list when AllowedOrigins is set.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(s.cfg.AllowedOrigins) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range s.cfg.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
