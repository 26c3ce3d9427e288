// Package ingestion defines the run report produced by the catalog
// ingestion pipeline and the Kafka message schemas around it.
package ingestion

import "time"

// Status is the outcome of one ingestion run.
type Status string

const (
	// StatusSkipped means a source URL was not configured; nothing was persisted.
	StatusSkipped Status = "skipped"
	// StatusEmpty means the make list yielded no makes.
	StatusEmpty Status = "empty"
	// StatusCompleted means every make and vehicle type was fetched and stored.
	StatusCompleted Status = "completed"
	// StatusPartial means the run finished with contained failures.
	StatusPartial Status = "partial"
	// StatusAborted means the run was cancelled before persisting.
	StatusAborted Status = "aborted"
)

// Report summarizes a single run. It is logged when the run ends and
// published to the run-report topic.
type Report struct {
	RunID                string        `json:"run_id"`
	Status               Status        `json:"status"`
	Reason               string        `json:"reason,omitempty"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration_ns"`
	MakesFetched         int           `json:"makes_fetched"`
	MakesTruncated       int           `json:"makes_truncated"`
	MakesProcessed       int           `json:"makes_processed"`
	MakesSucceeded       int           `json:"makes_succeeded"`
	MakesFailed          int           `json:"makes_failed"`
	VehicleTypesFetched  int           `json:"vehicle_types_fetched"`
	MakesUpserted        int           `json:"makes_upserted"`
	VehicleTypesUpserted int           `json:"vehicle_types_upserted"`
	UpsertFailures       int           `json:"upsert_failures"`
	Failures             []Failure     `json:"failures,omitempty"`
}

// Failure records one contained error. Stage is "fetch" or "persist"; Key
// is the make id or the "makeId/typeId" natural key.
type Failure struct {
	Stage   string `json:"stage"`
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Failed reports whether any make or upsert failed.
func (r *Report) Failed() bool {
	return r.MakesFailed > 0 || r.UpsertFailures > 0
}

// Trigger is the Kafka message that requests a run. All fields are
// informational.
type Trigger struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// ReportEvent is the Kafka message payload published after every run.
type ReportEvent struct {
	Report      Report    `json:"report"`
	PublishedAt time.Time `json:"published_at"`
}
