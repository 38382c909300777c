// Package repo implements the data persistence layer for registrations,
// backed by GORM. This file provides repository functions for the
// Registration model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a registration is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-insurance-intake/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// maxRecordedMatches caps how many duplicate match IDs are stored alongside
// a registration created despite known duplicates.
const maxRecordedMatches = 3

// CreateRegistration inserts a new Registration row with a UUID primary key
// and UTC timestamp. duplicateIDs records the closest existing matches at
// save time (truncated to three); isDuplicate marks the row as a known
// duplicate. On success, it returns the persisted Registration.
func CreateRegistration(ctx context.Context, db *gorm.DB, customer domain.Customer, vehicle domain.Vehicle, duplicateIDs []string, isDuplicate bool) (*domain.Registration, error) {
	if len(duplicateIDs) > maxRecordedMatches {
		duplicateIDs = duplicateIDs[:maxRecordedMatches]
	}
	r := &domain.Registration{
		ID:                uuid.NewString(),
		Customer:          customer,
		Vehicle:           vehicle,
		IsDuplicate:       isDuplicate,
		DuplicateMatchIDs: domain.MatchIDs(duplicateIDs),
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ListRegistrations returns every registration, ordered by creation time
// descending (most recent first). It returns an empty slice when the table
// is empty. On DB error, it returns the error.
func ListRegistrations(ctx context.Context, db *gorm.DB) ([]domain.Registration, error) {
	var out []domain.Registration
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountRegistrations returns the total number of registrations.
func CountRegistrations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Registration{}).
		Count(&total).Error
	return total, err
}

// ListRegistrationsPage returns a paginated slice of registrations, ordered
// by creation time descending. Use CountRegistrations to obtain the total
// for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListRegistrationsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Registration, error) {
	var out []domain.Registration
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetRegistration fetches a single registration by its ID. If the record
// does not exist, it returns ErrNotFound. On other DB errors, the raw error
// is returned.
func GetRegistration(ctx context.Context, db *gorm.DB, id string) (*domain.Registration, error) {
	var r domain.Registration
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRegistration overwrites the customer and vehicle values of an
// existing registration in place and bumps UpdatedAt. If no rows are
// affected (registration missing), it returns ErrNotFound. On DB error, the
// raw error is returned.
func UpdateRegistration(ctx context.Context, db *gorm.DB, id string, customer domain.Customer, vehicle domain.Vehicle) error {
	res := db.WithContext(ctx).
		Model(&domain.Registration{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"customer_name":         customer.Name,
			"customer_birth_date":   customer.BirthDate,
			"vehicle_car_type":      vehicle.CarType,
			"vehicle_manufacturer":  vehicle.Manufacturer,
			"vehicle_year":          vehicle.Year,
			"vehicle_license_plate": vehicle.LicensePlate,
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
