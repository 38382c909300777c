package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-insurance-intake/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

var (
	testCustomer = domain.Customer{Name: "Jane Doe", BirthDate: "1990-04-02"}
	testVehicle  = domain.Vehicle{CarType: "Sedan", Manufacturer: "Ford", Year: 2019, LicensePlate: "AB123"}
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "test.db")); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}

func TestCreateRegistration(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	reg, err := CreateRegistration(ctx, db, testCustomer, testVehicle, nil, false)
	if err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}
	if reg.ID == "" {
		t.Fatalf("expected generated UUID")
	}
	if reg.IsDuplicate || len(reg.DuplicateMatchIDs) != 0 {
		t.Fatalf("unexpected duplicate flags: %+v", reg)
	}
	if reg.CreatedAt.IsZero() {
		t.Fatalf("created at not set")
	}

	got, err := GetRegistration(ctx, db, reg.ID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if got.Customer.Name != "Jane Doe" || got.Vehicle.LicensePlate != "AB123" {
		t.Fatalf("round trip lost data: %+v", got)
	}
}

func TestCreateRegistration_TruncatesMatchIDs(t *testing.T) {
	db := newTestDB(t)

	reg, err := CreateRegistration(context.Background(), db, testCustomer, testVehicle,
		[]string{"a", "b", "c", "d", "e"}, true)
	if err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}
	if !reg.IsDuplicate {
		t.Fatalf("duplicate flag lost")
	}
	if len(reg.DuplicateMatchIDs) != 3 {
		t.Fatalf("match ids = %v, want 3 entries", reg.DuplicateMatchIDs)
	}

	got, err := GetRegistration(context.Background(), db, reg.ID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if len(got.DuplicateMatchIDs) != 3 || got.DuplicateMatchIDs[0] != "a" {
		t.Fatalf("persisted match ids = %v", got.DuplicateMatchIDs)
	}
}

func TestGetRegistration_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := GetRegistration(context.Background(), db, "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRegistrations_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, _ := CreateRegistration(ctx, db, testCustomer, testVehicle, nil, false)
	// Distinct created_at so the ordering is deterministic.
	db.Model(&domain.Registration{}).Where("id = ?", first.ID).
		Update("created_at", time.Now().UTC().Add(-time.Hour))
	second, _ := CreateRegistration(ctx, db, testCustomer, testVehicle, nil, false)

	got, err := ListRegistrations(ctx, db)
	if err != nil {
		t.Fatalf("ListRegistrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("wrong order: %v then %v", got[0].ID, got[1].ID)
	}
}

func TestListRegistrationsPage_AndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := CreateRegistration(ctx, db, testCustomer, testVehicle, nil, false); err != nil {
			t.Fatalf("CreateRegistration: %v", err)
		}
	}

	total, err := CountRegistrations(ctx, db)
	if err != nil || total != 5 {
		t.Fatalf("CountRegistrations = %d, %v", total, err)
	}

	page, err := ListRegistrationsPage(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("ListRegistrationsPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page len = %d", len(page))
	}

	tail, err := ListRegistrationsPage(ctx, db, 4, 2)
	if err != nil || len(tail) != 1 {
		t.Fatalf("tail page = %v, %v", tail, err)
	}
}

func TestUpdateRegistration(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	reg, _ := CreateRegistration(ctx, db, testCustomer, testVehicle, nil, false)

	newCustomer := domain.Customer{Name: "Janet Doe", BirthDate: "1991-05-03"}
	newVehicle := domain.Vehicle{CarType: "Coupe", Manufacturer: "Bmw", Year: 2021, LicensePlate: "XY999"}
	if err := UpdateRegistration(ctx, db, reg.ID, newCustomer, newVehicle); err != nil {
		t.Fatalf("UpdateRegistration: %v", err)
	}

	got, err := GetRegistration(ctx, db, reg.ID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if got.Customer.Name != "Janet Doe" || got.Vehicle.Year != 2021 || got.Vehicle.LicensePlate != "XY999" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("updated_at not bumped: %v vs %v", got.UpdatedAt, got.CreatedAt)
	}

	// No second row was created.
	if total, _ := CountRegistrations(ctx, db); total != 1 {
		t.Fatalf("row count = %d after update", total)
	}
}

func TestUpdateRegistration_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := UpdateRegistration(context.Background(), db, "no-such-id", testCustomer, testVehicle)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistrationStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	count, maxTS, err := RegistrationStats(ctx, db)
	if err != nil {
		t.Fatalf("RegistrationStats: %v", err)
	}
	if count != 0 || maxTS != nil {
		t.Fatalf("empty table stats = %d, %v", count, maxTS)
	}

	if _, err := CreateRegistration(ctx, db, testCustomer, testVehicle, nil, false); err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}

	count, maxTS, err = RegistrationStats(ctx, db)
	if err != nil {
		t.Fatalf("RegistrationStats: %v", err)
	}
	if count != 1 || maxTS == nil || maxTS.IsZero() {
		t.Fatalf("stats = %d, %v", count, maxTS)
	}
}
