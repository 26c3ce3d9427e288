// Package store persists catalog records. Writes are idempotent upserts keyed
// by the upstream natural keys; every persisted row also carries a surrogate
// UUID that never changes once assigned.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog"
	"github.com/google/uuid"
)

// ErrNotFound is returned by FindMake for an unknown make id.
var ErrNotFound = errors.New("not found")

// MakeRecord is a persisted make.
type MakeRecord struct {
	ID        uuid.UUID `json:"id"`
	MakeID    string    `json:"make_id"`
	MakeName  string    `json:"make_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VehicleTypeRecord is a persisted vehicle type.
type VehicleTypeRecord struct {
	ID        uuid.UUID `json:"id"`
	MakeID    string    `json:"make_id"`
	TypeID    string    `json:"vehicle_type_id"`
	TypeName  string    `json:"vehicle_type_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Counts summarizes the store contents.
type Counts struct {
	Makes        int `json:"makes"`
	VehicleTypes int `json:"vehicle_types"`
}

// Writer is the upsert contract used by the ingestion run.
//
// UpsertMake inserts the make or replaces the name of the existing row with
// the same MakeID. UpsertVehicleType does the same keyed by (MakeID, TypeID)
// and fails with an error wrapping ErrIntegrity when the make is absent.
// Other failures wrap ErrStore.
type Writer interface {
	UpsertMake(ctx context.Context, m catalog.Make) (MakeRecord, error)
	UpsertVehicleType(ctx context.Context, vt catalog.VehicleType) (VehicleTypeRecord, error)
}

// Reader exposes the stored catalog. Results are ordered by natural key.
type Reader interface {
	ListMakes(ctx context.Context) ([]MakeRecord, error)
	FindMake(ctx context.Context, makeID string) (MakeRecord, error)
	ListVehicleTypes(ctx context.Context, makeID string) ([]VehicleTypeRecord, error)
	Counts(ctx context.Context) (Counts, error)
}

// Store is the full persistence contract.
type Store interface {
	Writer
	Reader
}
