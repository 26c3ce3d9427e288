package store

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/errors"
)

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.UpsertMake(ctx, catalog.Make{MakeID: "1", MakeName: "Acme"})
	if err != nil {
		t.Fatalf("UpsertMake: %v", err)
	}
	second, err := s.UpsertMake(ctx, catalog.Make{MakeID: "1", MakeName: "Acme Motors"})
	if err != nil {
		t.Fatalf("UpsertMake again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("surrogate id changed: %s -> %s", first.ID, second.ID)
	}
	if second.MakeName != "Acme Motors" {
		t.Errorf("name = %q, want superseded name", second.MakeName)
	}

	vt := catalog.VehicleType{MakeID: "1", TypeID: "3", TypeName: "Truck"}
	a, err := s.UpsertVehicleType(ctx, vt)
	if err != nil {
		t.Fatalf("UpsertVehicleType: %v", err)
	}
	b, err := s.UpsertVehicleType(ctx, vt)
	if err != nil {
		t.Fatalf("UpsertVehicleType again: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("vehicle type surrogate id changed")
	}

	counts, _ := s.Counts(ctx)
	if counts != (Counts{Makes: 1, VehicleTypes: 1}) {
		t.Errorf("counts = %+v", counts)
	}
}

func TestMemoryStoreVehicleTypeNeedsMake(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.UpsertVehicleType(context.Background(), catalog.VehicleType{MakeID: "404", TypeID: "1", TypeName: "Bus"})
	if !errors.Is(err, apperrors.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
	var se *apperrors.StoreError
	if !errors.As(err, &se) || se.Key != "404/1" {
		t.Errorf("err = %#v, want StoreError keyed 404/1", err)
	}
}

func TestMemoryStoreSameTypeIDUnderTwoMakes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"1", "2"} {
		if _, err := s.UpsertMake(ctx, catalog.Make{MakeID: id, MakeName: "M" + id}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.UpsertVehicleType(ctx, catalog.VehicleType{MakeID: id, TypeID: "7", TypeName: "Van"}); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []string{"1", "2"} {
		types, err := s.ListVehicleTypes(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(types) != 1 || types[0].MakeID != id {
			t.Errorf("make %s types = %+v", id, types)
		}
	}
}

func TestMemoryStoreReads(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, m := range []catalog.Make{{MakeID: "20", MakeName: "B"}, {MakeID: "10", MakeName: "A"}} {
		if _, err := s.UpsertMake(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	makes, err := s.ListMakes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(makes) != 2 || makes[0].MakeID != "10" {
		t.Errorf("ListMakes = %+v, want ordered by make id", makes)
	}
	if _, err := s.FindMake(ctx, "10"); err != nil {
		t.Errorf("FindMake(10): %v", err)
	}
	if _, err := s.FindMake(ctx, "99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindMake(99) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().UpsertMake(ctx, catalog.Make{MakeID: "1", MakeName: "Acme"})
	if !errors.Is(err, apperrors.ErrStore) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrStore wrapping context.Canceled", err)
	}
}
