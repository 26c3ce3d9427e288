package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeRunner struct {
	mu     sync.Mutex
	runIDs []string
	status ingestion.Status
	err    error
	block  chan struct{}
	ran    chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context) (*ingestion.Report, error) {
	runID := logger.RunIDFromContext(ctx)
	r.mu.Lock()
	r.runIDs = append(r.runIDs, runID)
	r.mu.Unlock()
	if r.ran != nil {
		select {
		case r.ran <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		<-r.block
	}
	status := r.status
	if status == "" {
		status = ingestion.StatusCompleted
	}
	return &ingestion.Report{RunID: runID, Status: status, Duration: time.Second}, r.err
}

func (r *fakeRunner) runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runIDs)
}

type fakeLocker struct {
	held     bool
	token    string
	unlocked []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held, l.token = true, token
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocked = append(l.unlocked, token)
	l.held = false
	return nil
}

type fakePublisher struct {
	reports []*ingestion.Report
}

func (p *fakePublisher) PublishReport(ctx context.Context, report *ingestion.Report) error {
	p.reports = append(p.reports, report)
	return nil
}

func testScheduleConfig() config.ScheduleConfig {
	return config.ScheduleConfig{LockKey: "catalog:test:lock", LockTTL: time.Minute}
}

func TestRunOnceLocksRunsAndPublishes(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{}
	pub := &fakePublisher{}
	m := metrics.New(prometheus.NewRegistry())
	s := New(runner, testScheduleConfig(), WithLocker(locker), WithPublisher(pub), WithMetrics(m))

	report, err := s.RunOnce(context.Background(), "test")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.RunID == "" || locker.token != report.RunID {
		t.Errorf("lock token %q, run id %q", locker.token, report.RunID)
	}
	if len(locker.unlocked) != 1 || locker.unlocked[0] != report.RunID {
		t.Errorf("unlocked = %v", locker.unlocked)
	}
	if len(pub.reports) != 1 || pub.reports[0] != report {
		t.Errorf("published = %v", pub.reports)
	}
	if s.LastReport() != report {
		t.Error("LastReport not recorded")
	}

	var runs dto.Metric
	if err := m.RunsTotal.WithLabelValues("completed").Write(&runs); err != nil {
		t.Fatal(err)
	}
	if runs.GetCounter().GetValue() != 1 {
		t.Errorf("completed runs = %v", runs.GetCounter().GetValue())
	}
	var last dto.Metric
	if err := m.LastSuccessfulRun.Write(&last); err != nil {
		t.Fatal(err)
	}
	if last.GetGauge().GetValue() == 0 {
		t.Error("last successful run timestamp not set")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testScheduleConfig(), WithLocker(&fakeLocker{held: true}))

	_, err := s.RunOnce(context.Background(), "test")
	if !errors.Is(err, apperrors.ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
	if runner.runs() != 0 {
		t.Error("runner called without the lock")
	}
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), ran: make(chan struct{}, 1)}
	s := New(runner, testScheduleConfig())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background(), "first")
		done <- err
	}()
	<-runner.ran

	if _, err := s.RunOnce(context.Background(), "second"); !errors.Is(err, apperrors.ErrRunInProgress) {
		t.Errorf("overlapping run err = %v, want ErrRunInProgress", err)
	}
	close(runner.block)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestCheckReflectsLastRun(t *testing.T) {
	runner := &fakeRunner{status: ingestion.StatusPartial}
	s := New(runner, testScheduleConfig())
	if got := s.Check(context.Background()).Status; got != health.StatusUp {
		t.Errorf("before any run: %s", got)
	}
	if _, err := s.RunOnce(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	if got := s.Check(context.Background()).Status; got != health.StatusDegraded {
		t.Errorf("after partial run: %s, want degraded", got)
	}
}

func TestHandleTrigger(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, testScheduleConfig())
	ctx := context.Background()

	if err := s.HandleTrigger(ctx, []byte("k"), []byte("not json")); err != nil {
		t.Errorf("malformed trigger err = %v, want nil", err)
	}
	if runner.runs() != 0 {
		t.Error("malformed trigger started a run")
	}

	if err := s.HandleTrigger(ctx, []byte("k"), []byte(`{"requested_by":"ops"}`)); err != nil {
		t.Errorf("HandleTrigger: %v", err)
	}
	if err := s.HandleTrigger(ctx, nil, nil); err != nil {
		t.Errorf("empty trigger: %v", err)
	}
	if runner.runs() != 2 {
		t.Errorf("runs = %d, want 2", runner.runs())
	}

	runner.err = apperrors.ErrRunAborted
	if err := s.HandleTrigger(ctx, nil, nil); !errors.Is(err, apperrors.ErrRunAborted) {
		t.Errorf("aborted run err = %v, want ErrRunAborted so the message is not committed", err)
	}
}

func TestRunCron(t *testing.T) {
	s := New(&fakeRunner{}, testScheduleConfig())
	if err := s.RunCron(context.Background(), "not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}

	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	s = New(runner, testScheduleConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunCron(ctx, "@every 1s") }()

	select {
	case <-runner.ran:
	case <-time.After(3 * time.Second):
		t.Error("no scheduled run within 3s")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunCron: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("RunCron did not stop after cancel")
	}
}

func TestJobTrackerWaitsForStartedJobs(t *testing.T) {
	var jobs jobTracker
	if !jobs.start() {
		t.Fatal("start refused before shutdown")
	}

	stopped := make(chan struct{})
	go func() {
		jobs.stopAndWait()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stopAndWait returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}
	jobs.done()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stopAndWait did not return after the job finished")
	}

	if jobs.start() {
		t.Error("job started after shutdown")
	}
}
