// Package runtime assembles the worker's services and owns their lifecycle:
// the Redis bus, the transcript archive, the agent worker, the platform
// listener, and the HTTP surface for health and metrics.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/agent"
	"github.com/scribelabs/scribe-core/internal/archive"
	"github.com/scribelabs/scribe-core/internal/bus"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/metrics"
	"github.com/scribelabs/scribe-core/internal/platform"
)

type Runtime struct {
	cfg            config.Config
	log            zerolog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup

	bus      *bus.Client
	archive  *archive.Store
	worker   *agent.Worker
	listener *platform.Listener
}

func New(cfg config.Config, log zerolog.Logger) *Runtime {
	return &Runtime{
		cfg: cfg,
		log: log.With().Str("component", "runtime").Logger(),
	}
}

// Start brings every service up, then blocks until ctx is canceled and the
// shutdown sequence has finished. Services come up in dependency order and
// go down in reverse; a failure partway through tears down whatever already
// started.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	telemetryClose, metricsHandler, err := setupTelemetry(r.cfg, r.log)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	r.telemetryClose = telemetryClose

	busClient, err := bus.Connect(ctx, r.cfg.Redis, r.log)
	if err != nil {
		return fmt.Errorf("connect platform bus: %w", err)
	}
	r.bus = busClient

	store, err := archive.Open(ctx, r.cfg.Archive, r.log)
	if err != nil {
		busClient.Close()
		return fmt.Errorf("open transcript archive: %w", err)
	}
	r.archive = store

	r.worker = agent.NewWorker(ctx, r.cfg, busClient, store, metrics.Default(), r.log, agent.Options{})
	r.listener = platform.NewListener(ctx, busClient, r.worker, r.log)
	if err := r.listener.Start(); err != nil {
		r.worker.Close()
		_ = store.Close()
		busClient.Close()
		return fmt.Errorf("start platform listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error().Err(err).Msg("http server failed")
		}
	}()

	r.ready.Store(true)
	r.log.Info().
		Str("addr", addr).
		Str("agent", r.cfg.AgentName).
		Str("environment", r.cfg.Environment).
		Msg("worker started")

	<-ctx.Done()
	r.ready.Store(false)
	r.log.Info().Msg("worker stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Listener first so no new jobs start, then the worker drains its jobs
	// while the bus and archive are still available to them.
	r.listener.Close()
	r.worker.Close()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.log.Error().Err(err).Msg("http shutdown error")
	}
	if err := r.archive.Close(); err != nil {
		r.log.Warn().Err(err).Msg("archive close error")
	}
	r.bus.Close()
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.log.Error().Err(err).Msg("telemetry shutdown error")
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.listener.Healthy() && r.worker.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
