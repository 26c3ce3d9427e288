package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema is the relational layout PostgresStore expects. It is applied by
// the deployment, not by the service.
const Schema = `
CREATE TABLE IF NOT EXISTS makes (
	id         UUID PRIMARY KEY,
	make_id    TEXT NOT NULL UNIQUE,
	make_name  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vehicle_types (
	id                UUID PRIMARY KEY,
	make_id           TEXT NOT NULL REFERENCES makes (make_id),
	vehicle_type_id   TEXT NOT NULL,
	vehicle_type_name TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (make_id, vehicle_type_id)
);
`

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// PostgresStore implements Store on PostgreSQL with INSERT ... ON CONFLICT.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

func (s *PostgresStore) UpsertMake(ctx context.Context, m catalog.Make) (MakeRecord, error) {
	var rec MakeRecord
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO makes (id, make_id, make_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (make_id) DO UPDATE SET make_name = EXCLUDED.make_name, updated_at = now()
		RETURNING id, make_id, make_name, created_at, updated_at`,
		uuid.New(), m.MakeID, m.MakeName,
	).Scan(&rec.ID, &rec.MakeID, &rec.MakeName, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return MakeRecord{}, classify("upsert make", m.MakeID, err)
	}
	return rec, nil
}

func (s *PostgresStore) UpsertVehicleType(ctx context.Context, vt catalog.VehicleType) (VehicleTypeRecord, error) {
	var rec VehicleTypeRecord
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO vehicle_types (id, make_id, vehicle_type_id, vehicle_type_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (make_id, vehicle_type_id) DO UPDATE SET vehicle_type_name = EXCLUDED.vehicle_type_name, updated_at = now()
		RETURNING id, make_id, vehicle_type_id, vehicle_type_name, created_at, updated_at`,
		uuid.New(), vt.MakeID, vt.TypeID, vt.TypeName,
	).Scan(&rec.ID, &rec.MakeID, &rec.TypeID, &rec.TypeName, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return VehicleTypeRecord{}, classify("upsert vehicle type", vt.Key(), err)
	}
	return rec, nil
}

func (s *PostgresStore) ListMakes(ctx context.Context) ([]MakeRecord, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, make_id, make_name, created_at, updated_at FROM makes ORDER BY make_id`)
	if err != nil {
		return nil, classify("list makes", "", err)
	}
	defer rows.Close()

	var out []MakeRecord
	for rows.Next() {
		var rec MakeRecord
		if err := rows.Scan(&rec.ID, &rec.MakeID, &rec.MakeName, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, classify("list makes", "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list makes", "", err)
	}
	return out, nil
}

func (s *PostgresStore) FindMake(ctx context.Context, makeID string) (MakeRecord, error) {
	var rec MakeRecord
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, make_id, make_name, created_at, updated_at FROM makes WHERE make_id = $1`, makeID,
	).Scan(&rec.ID, &rec.MakeID, &rec.MakeName, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return MakeRecord{}, ErrNotFound
	}
	if err != nil {
		return MakeRecord{}, classify("find make", makeID, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListVehicleTypes(ctx context.Context, makeID string) ([]VehicleTypeRecord, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, make_id, vehicle_type_id, vehicle_type_name, created_at, updated_at
		FROM vehicle_types WHERE make_id = $1 ORDER BY vehicle_type_id`, makeID)
	if err != nil {
		return nil, classify("list vehicle types", makeID, err)
	}
	defer rows.Close()

	var out []VehicleTypeRecord
	for rows.Next() {
		var rec VehicleTypeRecord
		if err := rows.Scan(&rec.ID, &rec.MakeID, &rec.TypeID, &rec.TypeName, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, classify("list vehicle types", makeID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list vehicle types", makeID, err)
	}
	return out, nil
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM makes), (SELECT count(*) FROM vehicle_types)`,
	).Scan(&c.Makes, &c.VehicleTypes)
	if err != nil {
		return Counts{}, classify("count", "", err)
	}
	return c, nil
}

// classify maps a driver error onto the store error taxonomy.
func classify(op, key string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
		return &apperrors.StoreError{Err: apperrors.ErrIntegrity, Op: op, Key: key, Cause: err}
	}
	return &apperrors.StoreError{Err: apperrors.ErrStore, Op: op, Key: key, Cause: fmt.Errorf("postgres: %w", err)}
}
