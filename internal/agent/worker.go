// Package agent runs meeting jobs. A job is born when the platform enables
// transcription for a user in a meeting we are not yet serving, joins that
// meeting's media room, and pumps subscribed audio through the vendor until
// the room ends or the worker shuts down. One meeting, one job.
package agent

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scribelabs/scribe-core/internal/archive"
	"github.com/scribelabs/scribe-core/internal/bus"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/metrics"
	"github.com/scribelabs/scribe-core/internal/platform"
)

// Options tunes worker behavior.
type Options struct {
	// Entrypoint runs one meeting job. Defaults to Entrypoint.
	Entrypoint func(*JobContext) error
}

// Worker owns the set of running meeting jobs and routes platform control
// events into them. It implements platform.Handler.
type Worker struct {
	cfg       config.Config
	publisher *platform.Publisher
	archive   *archive.Store
	settings  *Registry
	metrics   *metrics.Metrics
	log       zerolog.Logger
	entry     func(*JobContext) error

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	jobs   map[string]*JobContext
	wg     sync.WaitGroup
	closed bool
}

func NewWorker(parent context.Context, cfg config.Config, busClient *bus.Client, store *archive.Store, m *metrics.Metrics, log zerolog.Logger, opts Options) *Worker {
	entry := opts.Entrypoint
	if entry == nil {
		entry = Entrypoint
	}
	ctx, cancel := context.WithCancel(parent)
	w := &Worker{
		cfg:       cfg,
		publisher: platform.NewPublisher(busClient, cfg.STT.LocaleMap(), log),
		archive:   store,
		settings:  NewRegistry(cfg.STT),
		metrics:   m,
		log:       log.With().Str("component", "agent").Logger(),
		entry:     entry,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*JobContext),
	}
	if err := w.initMeters(); err != nil {
		w.log.Warn().Err(err).Msg("failed to initialize meters")
	}
	return w
}

// initMeters registers otel observable gauges over the worker's live state.
// They ride the runtime's meter provider out to /metrics next to the
// counters in the metrics package.
func (w *Worker) initMeters() error {
	meter := otel.Meter("github.com/scribelabs/scribe-core/agent")
	jobs, err := meter.Int64ObservableGauge("scribe.agent.jobs",
		metric.WithDescription("Running meeting jobs"))
	if err != nil {
		return err
	}
	users, err := meter.Int64ObservableGauge("scribe.agent.transcribing_users",
		metric.WithDescription("Users with transcription enabled"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(jobs, int64(w.ActiveJobs()))
		obs.ObserveInt64(users, int64(w.settings.ActiveUsers()))
		return nil
	}, jobs, users)
	return err
}

// HandleLocaleChanged implements platform.Handler. An empty locale or
// provider disables the user; anything else enables or retargets them,
// starting the meeting's job on first use.
func (w *Worker) HandleLocaleChanged(meetingID, userID, locale, provider string) {
	log := w.log.With().Str("meetingId", meetingID).Str("userId", userID).Logger()

	if locale == "" || provider == "" {
		log.Info().Msg("transcription disabled for user")
		w.settings.Clear(meetingID, userID)
		if job := w.job(meetingID); job != nil {
			job.syncUser(userID)
			if !w.settings.MeetingActive(meetingID) {
				log.Info().Msg("no transcribing users left, ending job")
				job.Shutdown()
			}
		}
		return
	}

	log.Info().Str("locale", locale).Str("provider", provider).Msg("transcription enabled for user")
	w.settings.SetLocale(meetingID, userID, locale, provider)
	if job := w.ensureJob(meetingID); job != nil {
		job.syncUser(userID)
	}
}

// HandleSpeechOptions implements platform.Handler. Gates read the registry
// per event, so running pipelines pick the change up immediately.
func (w *Worker) HandleSpeechOptions(meetingID, userID string, opts platform.SpeechOptionsBody) {
	w.log.Debug().
		Str("meetingId", meetingID).
		Str("userId", userID).
		Bool("partialUtterances", opts.PartialUtterances).
		Float64("minUtteranceLength", opts.MinUtteranceLength).
		Msg("speech options updated")
	w.settings.SetOptions(meetingID, userID, opts.PartialUtterances, opts.MinUtteranceLength)
}

func (w *Worker) job(meetingID string) *JobContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobs[meetingID]
}

func (w *Worker) ensureJob(meetingID string) *JobContext {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if job, ok := w.jobs[meetingID]; ok {
		return job
	}

	ctx, cancel := context.WithCancel(w.ctx)
	job := &JobContext{
		JobID:     uuid.NewString(),
		MeetingID: meetingID,
		worker:    w,
		ctx:       ctx,
		cancel:    cancel,
	}
	job.Log = w.log.With().Str("jobId", job.JobID).Str("meetingId", meetingID).Logger()

	w.jobs[meetingID] = job
	w.wg.Add(1)
	w.metrics.RecordJobStart()
	go w.runJob(job)
	return job
}

func (w *Worker) runJob(job *JobContext) {
	defer w.wg.Done()
	defer w.finishJob(job)

	ctx, span := otel.Tracer("scribe/agent").Start(job.ctx, "agent.job",
		trace.WithAttributes(attribute.String("meeting.id", job.MeetingID)))
	defer span.End()
	job.ctx = ctx

	// A panicking job must not take the worker down.
	defer func() {
		if r := recover(); r != nil {
			job.failed = true
			job.Log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("job panicked")
		}
	}()

	job.Log.Info().Msg("job started")
	err := w.entry(job)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		job.Log.Info().Msg("job finished")
	default:
		job.failed = true
		span.RecordError(err)
		job.Log.Error().Err(err).Msg("job failed")
	}
}

func (w *Worker) finishJob(job *JobContext) {
	w.mu.Lock()
	delete(w.jobs, job.MeetingID)
	w.mu.Unlock()

	w.settings.DropMeeting(job.MeetingID)
	w.metrics.RecordJobEnd(job.failed)
	job.cancel()
}

// ActiveJobs reports how many meeting jobs are running.
func (w *Worker) ActiveJobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}

// Healthy reports whether the worker is accepting jobs.
func (w *Worker) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

// Close stops accepting jobs, cancels the running ones, and waits for them
// to drain.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	w.log.Info().Msg("agent worker stopped")
}

// UserHandler receives user-level control changes routed into a running job.
// SyncUser must converge the user's pipeline to the settings registry, so
// call order does not matter.
type UserHandler interface {
	SyncUser(userID string)
}

// JobContext carries everything one meeting job needs. The worker cancels
// its context on shutdown; the entrypoint must return when that happens.
type JobContext struct {
	JobID     string
	MeetingID string
	Log       zerolog.Logger

	worker *Worker
	ctx    context.Context
	cancel context.CancelFunc
	failed bool

	mu    sync.Mutex
	users UserHandler
}

func (j *JobContext) Context() context.Context { return j.ctx }

func (j *JobContext) Config() config.Config { return j.worker.cfg }

func (j *JobContext) Publisher() *platform.Publisher { return j.worker.publisher }

func (j *JobContext) Archive() *archive.Store { return j.worker.archive }

func (j *JobContext) Settings() *Registry { return j.worker.settings }

func (j *JobContext) Metrics() *metrics.Metrics { return j.worker.metrics }

// Shutdown ends the job early, for example when the media room disconnects.
func (j *JobContext) Shutdown() { j.cancel() }

// AttachUserHandler registers the session receiving user control changes.
// Settings that arrived before attachment are picked up when tracks
// subscribe, so no replay is needed.
func (j *JobContext) AttachUserHandler(h UserHandler) {
	j.mu.Lock()
	j.users = h
	j.mu.Unlock()
}

// syncUser forwards a control change without blocking the caller; pipeline
// restarts dial the vendor and can take a while.
func (j *JobContext) syncUser(userID string) {
	j.mu.Lock()
	h := j.users
	j.mu.Unlock()
	if h != nil {
		go h.SyncUser(userID)
	}
}
