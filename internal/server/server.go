// Package server assembles the chi router and HTTP listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/internal/apierr"
	"github.com/pursuelabs/segmentd/internal/server/handlers"
	"github.com/pursuelabs/segmentd/internal/server/middleware"
)

// Options tunes the listener beyond host and port.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxRequestBody caps any request body; zero disables the cap.
	MaxRequestBody int64

	Version handlers.VersionInfo
	Health  *handlers.HealthManager
	Log     *zap.Logger
}

// Server owns the router and the net/http server.
type Server struct {
	host string
	port int
	opts Options
	mux  *chi.Mux
	http *http.Server
}

// New builds the full route tree over the supplied API handlers.
func New(host string, port int, api *handlers.API, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(opts.Version.Version)
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(middleware.Recovery)
	mux.Use(middleware.RequestLogger(opts.Log))
	if opts.MaxRequestBody > 0 {
		mux.Use(bodyLimit(opts.MaxRequestBody))
	}

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierr.Respond(w, r, http.StatusNotFound, apierr.CodeNotFound,
			fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierr.Respond(w, r, http.StatusMethodNotAllowed, apierr.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path))
	})

	mux.Get("/health", opts.Health.HealthHandler)
	mux.Get("/health/live", opts.Health.LiveHandler)
	mux.Get("/health/ready", opts.Health.ReadyHandler)
	mux.Get("/version", handlers.VersionHandler(opts.Version))

	mux.Route("/jobs", func(r chi.Router) {
		r.Post("/", api.CreateJob)
		r.Get("/", api.ListJobs)
		r.Get("/{jobID}", api.GetJob)
		r.Get("/{jobID}/export", api.ExportJob)
		r.Post("/{jobID}/clips/{clipIndex}", api.AdjustClip)
		r.Post("/{jobID}/cancel", api.CancelJob)
	})

	mux.Route("/uploads", func(r chi.Router) {
		r.Post("/", api.InitiateUpload)
		r.Post("/{uploadID}/chunks", api.PutChunk)
		r.Get("/{uploadID}", api.UploadStatus)
		r.Post("/{uploadID}/complete", api.CompleteUpload)
		r.Post("/{uploadID}/abort", api.AbortUpload)
	})

	mux.Route("/profiles", func(r chi.Router) {
		r.Post("/", api.GenerateProfile)
		r.Get("/", api.ListProfiles)
		r.Post("/questionnaires", api.SaveQuestionnaire)
		r.Get("/questionnaires/{questionnaireID}", api.GetQuestionnaire)
		r.Get("/{profileID}", api.GetProfile)
	})

	return &Server{
		host: host,
		port: port,
		opts: opts,
		mux:  mux,
	}
}

func bodyLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

// Addr returns the host:port the server binds.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.host, s.port) }

// Start runs the listener until Shutdown or a listener error.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.mux,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	s.opts.Log.Info("http server listening", zap.String("addr", s.Addr()))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
