// Package services – RegistrationService
//
// This file implements RegistrationService, the read side of the intake
// flow: fetching a single registration by ID and listing stored
// registrations with pagination. Writes happen exclusively through the
// conversation flow, so this service stays read-only.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/repo"
)

// RegistrationService exposes read access to stored registrations.
type RegistrationService struct {
	DB *gorm.DB
}

// Get fetches a registration by ID. It returns ErrRegistrationNotFound when
// the ID does not exist.
func (s *RegistrationService) Get(ctx context.Context, id string) (*domain.Registration, error) {
	tr := otel.Tracer("services/RegistrationService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("registration.id", id)),
	)
	defer span.End()

	r, err := repo.GetRegistration(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListPage returns one page of registrations (most recent first) together
// with the total count for pagination metadata.
func (s *RegistrationService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Registration, int64, error) {
	tr := otel.Tracer("services/RegistrationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountRegistrations(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Registration{}, 0, nil
	}

	items, err := repo.ListRegistrationsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Stats returns the registration count and the newest UpdatedAt, used by the
// HTTP layer for conditional responses.
func (s *RegistrationService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.RegistrationStats(ctx, s.DB)
}
