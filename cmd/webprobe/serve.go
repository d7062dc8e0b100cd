package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/config"
	"github.com/webprobe/webprobe/internal/repository/postgres"
	"github.com/webprobe/webprobe/pkg/httputil"
)

// runServe exposes reports, run history, coverage, and Prometheus metrics
// over HTTP. Runs can also be triggered remotely; one at a time.
func runServe(ctx context.Context, app *application, cfg *config.Config, logger *zap.Logger) error {
	router := newRouter(app, cfg, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		bold.Printf("Serving on http://%s\n", cfg.Server.Addr())
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr()))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return err
		}
		return nil
	}
}

func newRouter(app *application, cfg *config.Config, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(app.metrics.HTTPMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "webprobe",
			"target":  cfg.TargetURL,
		})
	})

	r.Handle("/metrics", app.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/coverage", handleCoverage(app))
		r.Get("/gaps", handleGaps(app))
		r.Get("/runs", handleRunList(app, cfg))
		r.Post("/runs", handleRunTrigger(app, logger))
		r.Get("/runs/{id}", handleRunGet(app))
	})

	// Reports and raw run evidence are served straight off disk.
	r.Handle("/reports/*", http.StripPrefix("/reports/", http.FileServer(http.Dir(cfg.Report.OutputDir))))
	r.Handle("/runs/*", http.StripPrefix("/runs/", http.FileServer(http.Dir(cfg.RunsDir))))

	return r
}

func handleCoverage(app *application) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		registry, err := app.orch.Registry()
		if err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, registry)
	}
}

func handleGaps(app *application) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report, err := app.orch.Gaps()
		if err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, report)
	}
}

func handleRunList(app *application, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.runs == nil {
			httputil.JSONError(w, http.StatusServiceUnavailable, "NO_DATABASE",
				"run history requires DATABASE_DSN", nil)
			return
		}
		limit := httputil.Limit(r, 10, 100)
		runs, err := app.runs.Recent(r.Context(), cfg.TargetURL, limit)
		if err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, runs)
	}
}

func handleRunGet(app *application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.runs == nil {
			httputil.JSONError(w, http.StatusServiceUnavailable, "NO_DATABASE",
				"run history requires DATABASE_DSN", nil)
			return
		}
		run, err := app.runs.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, postgres.ErrRunNotFound) {
				httputil.JSONError(w, http.StatusNotFound, "RUN_NOT_FOUND", "run not found", nil)
				return
			}
			httputil.ErrorFromDomain(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, run)
	}
}

// handleRunTrigger starts the full pipeline in the background. The browser
// pool can only serve one run per process, so concurrent triggers get a 409.
func handleRunTrigger(app *application, logger *zap.Logger) http.HandlerFunc {
	var busy atomic.Bool
	return func(w http.ResponseWriter, r *http.Request) {
		if !busy.CompareAndSwap(false, true) {
			httputil.JSONError(w, http.StatusConflict, "RUN_IN_PROGRESS",
				"a run is already in progress", nil)
			return
		}

		go func() {
			defer busy.Store(false)
			// The request context dies with the response; the run should not.
			run, err := app.orch.Run(context.Background())
			if err != nil {
				logger.Error("triggered run failed", zap.Error(err))
				return
			}
			logger.Info("triggered run completed",
				zap.String("run_id", run.RunID),
				zap.Int("passed", run.Totals.Passed),
				zap.Int("failed", run.Totals.Failed),
			)
		}()

		httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}
