package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"teledrive/internal/api/handlers"
	"teledrive/internal/api/middleware"
	"teledrive/internal/config"
	"teledrive/internal/drive"
	"teledrive/internal/stream"
)

func NewRouter(cfg *config.Config, log zerolog.Logger, client stream.BlobClient, streamer *stream.Streamer, store *drive.Store) (*chi.Mux, error) {
	r := chi.NewRouter()

	tracer, err := middleware.InitTracer("teledrive")
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)

	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.RateLimiter(cfg))
	r.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Range", "Accept-Ranges", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.SecurityHeadersMiddleware)
	r.Use(middleware.TracingMiddleware(tracer))
	r.Use(middleware.CircuitBreakerMiddleware(cfg))

	r.Get("/healthz", handlers.Health(client))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/stream/{fileID}", handlers.StreamFile(streamer, store, cfg, log))
	r.Post("/upload", handlers.Upload(client, store, log))

	r.Route("/files", func(r chi.Router) {
		r.Get("/", handlers.ListFiles(store))
		r.Post("/", handlers.CreateFile(store))
		r.Get("/{id}", handlers.GetFile(store))
		r.Patch("/{id}", handlers.PatchFile(store))
		r.Delete("/{id}", handlers.DeleteFile(store))
	})

	r.Route("/folders", func(r chi.Router) {
		r.Get("/", handlers.ListFolders(store))
		r.Post("/", handlers.CreateFolder(store))
		r.Delete("/{id}", handlers.DeleteFolder(store))
	})

	return r, nil
}

func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}
}

// RunServer serves until ctx is canceled, then shuts down within the
// given timeout.
func RunServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	return g.Wait()
}
