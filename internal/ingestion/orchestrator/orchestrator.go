// Package orchestrator runs one full catalog ingestion pass: fetch the make
// list, fan out one vehicle-types fetch per make under a global concurrency
// cap, then upsert everything sequentially. Failures are contained per make
// and per record and reported in the returned ingestion.Report.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog/parser"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion/fetcher"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/store"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// progressEvery is how many completed makes pass between progress lines.
const progressEvery = 100

// Orchestrator owns no state between runs; Run may be called repeatedly but
// not concurrently with itself (see scheduler for the cross-process lock).
type Orchestrator struct {
	cfg     config.IngestionConfig
	fetcher fetcher.Fetcher
	store   store.Writer
	metrics *metrics.Metrics
}

// New builds an Orchestrator. cfg is copied; m may be nil.
func New(cfg config.IngestionConfig, f fetcher.Fetcher, s store.Writer, m *metrics.Metrics) *Orchestrator {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 1
	}
	return &Orchestrator{cfg: cfg, fetcher: f, store: s, metrics: m}
}

// makeResult is the outcome of one make's vehicle-types fetch. Exactly one
// of types and err is meaningful.
type makeResult struct {
	types []catalog.VehicleType
	err   error
}

// Run performs one ingestion pass. The returned error is non-nil only when
// ctx is cancelled, in which case it wraps ErrRunAborted and nothing further
// is persisted. All other failures are recorded in the report.
func (o *Orchestrator) Run(ctx context.Context) (*ingestion.Report, error) {
	runID := logger.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx).With("component", "orchestrator")
	ctx, span := tracing.StartSpan(ctx, "ingestion-run", runID)

	report := &ingestion.Report{RunID: runID, StartedAt: time.Now().UTC()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		span.SetAttr("status", string(report.Status))
		span.End()
		span.Log(log)
	}()

	if o.cfg.MakesURL == "" {
		log.Info("makes url not configured, skipping ingestion")
		report.Status = ingestion.StatusSkipped
		report.Reason = "makes url not configured"
		return report, nil
	}

	log.Info("ingestion run started", "makes_url", o.cfg.MakesURL, "max_concurrent_fetches", o.cfg.MaxConcurrentFetches)
	makes, err := o.fetchMakes(ctx)
	if ctx.Err() != nil {
		return o.abort(ctx, report, log)
	}
	if err != nil {
		log.Error("fetching make list failed, continuing with zero makes", "kind", apperrors.Kind(err), "error", err)
		report.Reason = err.Error()
		report.Failures = append(report.Failures, ingestion.Failure{
			Stage:   "fetch",
			Key:     "makes",
			Kind:    apperrors.Kind(err),
			Message: err.Error(),
		})
	}
	report.MakesFetched = len(makes)

	if limit := o.cfg.MaxMakes; limit > 0 && len(makes) > limit {
		log.Info("truncating make list", "fetched", len(makes), "limit", limit)
		report.MakesTruncated = len(makes) - limit
		makes = makes[:limit]
	}
	report.MakesProcessed = len(makes)

	if len(makes) == 0 {
		log.Warn("no makes to ingest")
		report.Status = ingestion.StatusEmpty
		return report, nil
	}
	if o.cfg.VehicleTypesURL == "" {
		log.Info("vehicle types url not configured, skipping vehicle types and persistence", "makes", len(makes))
		report.Status = ingestion.StatusSkipped
		report.Reason = "vehicle types url not configured"
		return report, nil
	}

	results := o.fetchVehicleTypes(ctx, makes, log)
	for i, res := range results {
		if res.err != nil {
			report.MakesFailed++
			report.Failures = append(report.Failures, ingestion.Failure{
				Stage:   "fetch",
				Key:     makes[i].MakeID,
				Kind:    apperrors.Kind(res.err),
				Message: res.err.Error(),
			})
			continue
		}
		report.MakesSucceeded++
		report.VehicleTypesFetched += len(res.types)
		makes[i].VehicleTypes = res.types
	}
	if ctx.Err() != nil {
		return o.abort(ctx, report, log)
	}

	if err := o.persist(ctx, makes, report, log); err != nil {
		return o.abort(ctx, report, log)
	}

	report.Status = ingestion.StatusCompleted
	if report.Failed() {
		report.Status = ingestion.StatusPartial
	}
	log.Info("ingestion run finished",
		"status", report.Status,
		"makes", report.MakesProcessed,
		"makes_failed", report.MakesFailed,
		"vehicle_types", report.VehicleTypesFetched,
		"makes_upserted", report.MakesUpserted,
		"vehicle_types_upserted", report.VehicleTypesUpserted,
		"upsert_failures", report.UpsertFailures,
		"duration", time.Since(report.StartedAt).Round(time.Millisecond),
	)
	return report, nil
}

func (o *Orchestrator) abort(ctx context.Context, report *ingestion.Report, log *slog.Logger) (*ingestion.Report, error) {
	report.Status = ingestion.StatusAborted
	report.Reason = ctx.Err().Error()
	log.Warn("ingestion run aborted", "reason", report.Reason, "makes_failed", report.MakesFailed)
	return report, fmt.Errorf("run %s: %w: %w", report.RunID, apperrors.ErrRunAborted, ctx.Err())
}

func (o *Orchestrator) fetchMakes(ctx context.Context) ([]catalog.Make, error) {
	ctx, span := tracing.StartChildSpan(ctx, "fetch-makes")
	defer span.End()

	body, err := o.fetcher.Fetch(fetcher.WithEndpoint(ctx, "makes"), o.cfg.MakesURL)
	if err != nil {
		return nil, fmt.Errorf("fetching makes: %w", err)
	}
	makes, err := parser.DecodeMakes(body)
	if err != nil {
		return nil, fmt.Errorf("parsing makes: %w", err)
	}
	span.SetAttr("makes", len(makes))
	return makes, nil
}

// fetchVehicleTypes runs one fetch per make, never more than
// MaxConcurrentFetches at a time. results[i] belongs to makes[i].
func (o *Orchestrator) fetchVehicleTypes(ctx context.Context, makes []catalog.Make, log *slog.Logger) []makeResult {
	ctx, span := tracing.StartChildSpan(ctx, "fetch-vehicle-types")
	defer span.End()
	ctx = fetcher.WithEndpoint(ctx, "vehicle_types")

	results := make([]makeResult, len(makes))
	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrentFetches))
	total := len(makes)
	var completed atomic.Int64
	var g errgroup.Group

	for i, m := range makes {
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			for j := i; j < total; j++ {
				results[j] = makeResult{err: err}
			}
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res := o.fetchMake(ctx, m)
			if res.err != nil {
				log.Warn("fetching vehicle types failed",
					"make_id", m.MakeID,
					"kind", apperrors.Kind(res.err),
					"error", res.err,
				)
			}
			o.observeMake(res.err)
			results[i] = res
			if n := completed.Add(1); n%progressEvery == 0 {
				log.Info("vehicle types progress",
					"completed", n,
					"total", total,
					"percent", fmt.Sprintf("%.1f", float64(n)*100/float64(total)),
				)
			}
			return nil
		})
	}
	g.Wait()
	span.SetAttr("makes", total)
	return results
}

func (o *Orchestrator) fetchMake(ctx context.Context, m catalog.Make) makeResult {
	if err := ctx.Err(); err != nil {
		return makeResult{err: err}
	}
	target := strings.ReplaceAll(o.cfg.VehicleTypesURL, config.MakeIDPlaceholder, url.PathEscape(m.MakeID))
	body, err := o.fetcher.Fetch(ctx, target)
	if err != nil {
		return makeResult{err: err}
	}
	types, err := parser.DecodeVehicleTypes(body)
	if err != nil {
		return makeResult{err: fmt.Errorf("make %s: %w", m.MakeID, err)}
	}
	for i := range types {
		types[i].MakeID = m.MakeID
	}
	return makeResult{types: types}
}

// persist upserts each make followed by its vehicle types. A failed make
// upsert skips that make's vehicle types; other failures are counted and
// the loop continues. Only cancellation stops it early.
func (o *Orchestrator) persist(ctx context.Context, makes []catalog.Make, report *ingestion.Report, log *slog.Logger) error {
	ctx, span := tracing.StartChildSpan(ctx, "persist")
	defer span.End()

	for _, m := range makes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := o.store.UpsertMake(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.upsertFailed(report, log, "make", m.MakeID, err)
			if len(m.VehicleTypes) > 0 {
				log.Warn("skipping vehicle types of unsaved make", "make_id", m.MakeID, "vehicle_types", len(m.VehicleTypes))
			}
			continue
		}
		report.MakesUpserted++
		o.observeUpsert("make", nil)

		for _, vt := range m.VehicleTypes {
			if _, err := o.store.UpsertVehicleType(ctx, vt); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.upsertFailed(report, log, "vehicle_type", vt.Key(), err)
				continue
			}
			report.VehicleTypesUpserted++
			o.observeUpsert("vehicle_type", nil)
		}
	}
	span.SetAttr("makes_upserted", report.MakesUpserted)
	span.SetAttr("vehicle_types_upserted", report.VehicleTypesUpserted)
	return nil
}

func (o *Orchestrator) upsertFailed(report *ingestion.Report, log *slog.Logger, entity, key string, err error) {
	kind := apperrors.Kind(err)
	log.Error("upsert failed", "entity", entity, "key", key, "kind", kind, "error", err)
	report.UpsertFailures++
	report.Failures = append(report.Failures, ingestion.Failure{
		Stage:   "persist",
		Key:     key,
		Kind:    kind,
		Message: err.Error(),
	})
	o.observeUpsert(entity, err)
}

func (o *Orchestrator) observeMake(err error) {
	if o.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	o.metrics.MakesProcessed.WithLabelValues(result).Inc()
}

func (o *Orchestrator) observeUpsert(entity string, err error) {
	if o.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperrors.Kind(err)
	}
	o.metrics.UpsertsTotal.WithLabelValues(entity, result).Inc()
}
