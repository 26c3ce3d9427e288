package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
	"github.com/google/uuid"
)

type typeKey struct {
	makeID string
	typeID string
}

// MemoryStore keeps the catalog in process memory. It enforces the same
// keys and referential rule as the relational schema.
type MemoryStore struct {
	mu    sync.RWMutex
	makes map[string]MakeRecord
	types map[typeKey]VehicleTypeRecord
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		makes: make(map[string]MakeRecord),
		types: make(map[typeKey]VehicleTypeRecord),
		now:   time.Now,
	}
}

func (s *MemoryStore) UpsertMake(ctx context.Context, m catalog.Make) (MakeRecord, error) {
	if err := ctx.Err(); err != nil {
		return MakeRecord{}, &apperrors.StoreError{Err: apperrors.ErrStore, Op: "upsert make", Key: m.MakeID, Cause: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec, ok := s.makes[m.MakeID]
	if !ok {
		rec = MakeRecord{ID: uuid.New(), MakeID: m.MakeID, CreatedAt: now}
	}
	rec.MakeName = m.MakeName
	rec.UpdatedAt = now
	s.makes[m.MakeID] = rec
	return rec, nil
}

func (s *MemoryStore) UpsertVehicleType(ctx context.Context, vt catalog.VehicleType) (VehicleTypeRecord, error) {
	if err := ctx.Err(); err != nil {
		return VehicleTypeRecord{}, &apperrors.StoreError{Err: apperrors.ErrStore, Op: "upsert vehicle type", Key: vt.Key(), Cause: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.makes[vt.MakeID]; !ok {
		return VehicleTypeRecord{}, &apperrors.StoreError{
			Err: apperrors.ErrIntegrity,
			Op:  "upsert vehicle type",
			Key: vt.Key(),
		}
	}
	now := s.now().UTC()
	key := typeKey{makeID: vt.MakeID, typeID: vt.TypeID}
	rec, ok := s.types[key]
	if !ok {
		rec = VehicleTypeRecord{ID: uuid.New(), MakeID: vt.MakeID, TypeID: vt.TypeID, CreatedAt: now}
	}
	rec.TypeName = vt.TypeName
	rec.UpdatedAt = now
	s.types[key] = rec
	return rec, nil
}

func (s *MemoryStore) ListMakes(ctx context.Context) ([]MakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MakeRecord, 0, len(s.makes))
	for _, rec := range s.makes {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MakeID < out[j].MakeID })
	return out, nil
}

func (s *MemoryStore) FindMake(ctx context.Context, makeID string) (MakeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.makes[makeID]
	if !ok {
		return MakeRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListVehicleTypes(ctx context.Context, makeID string) ([]VehicleTypeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []VehicleTypeRecord
	for key, rec := range s.types {
		if key.makeID == makeID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}

func (s *MemoryStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{Makes: len(s.makes), VehicleTypes: len(s.types)}, nil
}
