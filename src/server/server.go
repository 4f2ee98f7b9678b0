package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"agentengine/src/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

type JobScheduler interface {
	Schedule(job scheduler.Job) (bool, error)
	Status() []scheduler.JobStatus
}

// Deps are the optional collaborators behind the ops routes. A route whose dependency is
// nil is not mounted.
type Deps struct {
	Positions      http.HandlerFunc
	Jobs           JobScheduler
	ManualSnapshot *scheduler.Job
}

type snapshotResponse struct {
	Job    string `json:"job"`
	Queued bool   `json:"queued"`
	Status string `json:"status"`
}

func NewRouter(deps Deps) http.Handler {
	// Router with middleware
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	if deps.Positions != nil {
		r.Get("/ws/positions", deps.Positions)
	}

	if deps.Jobs != nil {
		r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, deps.Jobs.Status())
		})
		if deps.ManualSnapshot != nil {
			r.Post("/snapshots", snapshotHandler(deps.Jobs, *deps.ManualSnapshot))
		}
	}
	return r
}

// snapshotHandler queues the manual snapshot. A trigger while one is already queued or
// running is answered with 200 and leaves the existing run alone.
func snapshotHandler(jobs JobScheduler, job scheduler.Job) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		added, err := jobs.Schedule(job)
		if err != nil {
			logger.WithError(err).WithField("job", job.ID).Error("Failed to schedule snapshot")
			writeJSON(w, http.StatusServiceUnavailable, snapshotResponse{Job: job.ID, Status: "unavailable"})
			return
		}
		if !added {
			writeJSON(w, http.StatusOK, snapshotResponse{Job: job.ID, Status: "already_scheduled"})
			return
		}
		writeJSON(w, http.StatusAccepted, snapshotResponse{Job: job.ID, Queued: true, Status: "queued"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("Failed to write response")
	}
}

// StartServer serves handler on config.Port until ctx ends, then shuts down gracefully.
func StartServer(ctx context.Context, config *Config, handler http.Handler) error {
	// Server setup
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
