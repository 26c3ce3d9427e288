// Package publisher announces finished ingestion runs on Kafka so downstream
// consumers (search indexers, reconciliation jobs) can react to a refreshed
// catalog. Publishing is best-effort: a failed publish is logged and never
// changes the outcome of the run.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/kafka"
)

// publishTimeout bounds a publish that outlives the run's own context.
const publishTimeout = 10 * time.Second

// EventType is carried in the event-type header of every run report.
const EventType = "catalog.run.finished"

// Sender is satisfied by *kafka.Producer.
type Sender interface {
	Send(ctx context.Context, msg kafka.Message) error
}

// Publisher writes run reports to the run-report topic.
type Publisher struct {
	producer Sender
	logger   *slog.Logger
}

// New creates a Publisher backed by producer.
func New(producer Sender) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "report-publisher"),
	}
}

// PublishReport publishes report keyed by its run id. Reports of cancelled
// runs are still published, so the write is detached from ctx cancellation.
func (p *Publisher) PublishReport(ctx context.Context, report *ingestion.Report) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:  report.RunID,
		Type: EventType,
		Payload: ingestion.ReportEvent{
			Report:      *report,
			PublishedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Send(ctx, msg); err != nil {
		p.logger.Error("failed to publish run report",
			"run_id", report.RunID,
			"status", report.Status,
			"error", err,
		)
		return fmt.Errorf("publishing report for run %s: %w", report.RunID, err)
	}
	p.logger.Debug("run report published", "run_id", report.RunID, "status", report.Status)
	return nil
}
