package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
	"github.com/seantiz/modloader/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Inspector is the view of a running loader the server needs. Its methods
// must be safe to call from request goroutines.
type Inspector interface {
	Dump(threshold model.State) []loader.ModuleInfo
	Module(id string) (loader.ModuleInfo, bool)
	Evict(id string) bool
	EvictBundle(bundle string) int
	Reset(id string) error
	Preload(p model.Preload, group string) int
	Subscribe() (<-chan loader.Event, func())
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router    *chi.Mux
	modules   Inspector
	store     store.Store
	resources string
	logger    *slog.Logger
	addr      string
}

// NewServer creates and configures a new HTTP server. When resources is not
// empty, the files below it are served under /resources/.
func NewServer(addr string, modules Inspector, s store.Store, resources string, logger *slog.Logger) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		modules:   modules,
		store:     s,
		resources: resources,
		logger:    logger,
		addr:      addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Get("/v1/fetches", s.handleListFetches)

	s.router.Route("/v1/modules", func(r chi.Router) {
		r.Get("/", s.handleListModules)
		r.Get("/events", s.handleStreamEvents)
		r.Get("/*", s.handleGetModule)
		r.Delete("/*", s.handleEvictModule)
	})
	s.router.Post("/v1/reset/*", s.handleResetModule)

	s.router.Route("/v1/bundles", func(r chi.Router) {
		r.Get("/", s.handleListBundles)
		r.Post("/*", s.handlePreloadBundle)
		r.Delete("/*", s.handleEvictBundle)
	})

	if s.resources != "" {
		s.router.Handle("/resources/*", resourceHandler(s.resources))
	}
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
