// Package scheduler decides when ingestion runs happen. It guards every run
// with an in-process flag and an optional distributed lock, records run
// metrics, publishes the run report, and offers three trigger modes: a
// single run, a cron schedule, and a Kafka trigger topic.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/metrics"
	"github.com/google/uuid"
	"github.com/robfig/cron"
)

const unlockTimeout = 5 * time.Second

// Runner performs one ingestion pass.
type Runner interface {
	Run(ctx context.Context) (*ingestion.Report, error)
}

// Locker is a distributed mutex; *redis.Client satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// ReportPublisher is satisfied by *publisher.Publisher.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *ingestion.Report) error
}

type Scheduler struct {
	runner    Runner
	cfg       config.ScheduleConfig
	locker    Locker
	publisher ReportPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *ingestion.Report
}

type Option func(*Scheduler)

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithPublisher(p ReportPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(runner Runner, cfg config.ScheduleConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce executes a single guarded run. It returns an error wrapping
// ErrRunInProgress when another run holds this process or the distributed
// lock; otherwise it returns whatever the runner returned.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (*ingestion.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s trigger: %w", trigger, apperrors.ErrRunInProgress)
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "scheduler", "trigger", trigger)

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, runID, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		if !ok {
			log.Info("run lock held elsewhere, skipping", "lock_key", s.cfg.LockKey)
			return nil, fmt.Errorf("lock %s: %w", s.cfg.LockKey, apperrors.ErrRunInProgress)
		}
		defer s.unlock(ctx, runID, log)
	}

	report, err := s.runner.Run(ctx)
	if report != nil {
		s.record(report)
		if s.publisher != nil {
			// Publish failures are logged by the publisher.
			_ = s.publisher.PublishReport(ctx, report)
		}
	}
	return report, err
}

func (s *Scheduler) unlock(ctx context.Context, token string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer cancel()
	if err := s.locker.Unlock(ctx, s.cfg.LockKey, token); err != nil {
		log.Warn("releasing run lock failed", "lock_key", s.cfg.LockKey, "error", err)
	}
}

func (s *Scheduler) record(report *ingestion.Report) {
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if s.metrics == nil {
		return
	}
	s.metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
	s.metrics.RunDuration.Observe(report.Duration.Seconds())
	if report.Status == ingestion.StatusCompleted {
		s.metrics.LastSuccessfulRun.SetToCurrentTime()
	}
}

// LastReport returns the report of the most recent run, or nil.
func (s *Scheduler) LastReport() *ingestion.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Check reports the outcome of the last run for the readiness probe. A
// partial or aborted run is degraded, never down.
func (s *Scheduler) Check(ctx context.Context) health.ComponentHealth {
	last := s.LastReport()
	switch {
	case last == nil:
		return health.ComponentHealth{Status: health.StatusUp, Message: "no run yet"}
	case last.Status == ingestion.StatusPartial, last.Status == ingestion.StatusAborted:
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("last run %s: %d makes failed, %d upserts failed", last.Status, last.MakesFailed, last.UpsertFailures),
		}
	default:
		return health.ComponentHealth{Status: health.StatusUp, Message: "last run " + string(last.Status)}
	}
}

// RunCron runs on the given schedule until ctx is cancelled, then waits for
// an in-flight run to finish. Schedules use the robfig/cron syntax, for
// example "0 0 3 * * *" or "@every 24h".
func (s *Scheduler) RunCron(ctx context.Context, schedule string) error {
	c := cron.New()
	var jobs jobTracker
	err := c.AddFunc(schedule, func() {
		if !jobs.start() {
			return
		}
		defer jobs.done()
		s.runAndLog(ctx, "cron")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.logger.Info("cron schedule started", "schedule", schedule)
	c.Start()
	<-ctx.Done()
	c.Stop()
	jobs.stopAndWait()
	s.logger.Info("cron schedule stopped")
	return nil
}

// HandleTrigger is a kafka.MessageHandler that starts a run per message.
// Triggers arriving while a run is active are dropped, not queued.
func (s *Scheduler) HandleTrigger(ctx context.Context, key []byte, value []byte) error {
	var trig ingestion.Trigger
	if len(value) > 0 {
		decoded, err := kafka.DecodeJSON[ingestion.Trigger](value)
		if err != nil {
			s.logger.Warn("ignoring malformed trigger", "key", string(key), "error", err)
			return nil
		}
		trig = decoded
	}
	s.logger.Info("run triggered", "requested_by", trig.RequestedBy, "requested_at", trig.RequestedAt)

	_, err := s.RunOnce(ctx, "kafka")
	switch {
	case errors.Is(err, apperrors.ErrRunInProgress):
		s.logger.Info("run already in progress, trigger dropped")
		return nil
	case errors.Is(err, apperrors.ErrRunAborted):
		return err
	case err != nil:
		s.logger.Error("triggered run failed to start", "error", err)
		return nil
	}
	return nil
}

// jobTracker counts running cron jobs. Once stopAndWait has begun, start
// refuses new jobs, so no job can slip past the wait.
type jobTracker struct {
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func (t *jobTracker) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *jobTracker) done() { t.wg.Done() }

func (t *jobTracker) stopAndWait() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.wg.Wait()
}

func (s *Scheduler) runAndLog(ctx context.Context, trigger string) {
	report, err := s.RunOnce(ctx, trigger)
	switch {
	case errors.Is(err, apperrors.ErrRunInProgress):
		s.logger.Info("run skipped, another run is in progress", "trigger", trigger)
	case err != nil:
		s.logger.Warn("run ended with error", "trigger", trigger, "error", err)
	case report != nil:
		s.logger.Info("run finished", "trigger", trigger, "run_id", report.RunID, "status", report.Status)
	}
}
