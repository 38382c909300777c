// Registration HTTP handlers.
//
// This file exposes read-only REST endpoints for stored registrations:
//   - GET /registrations        (list, paginated, ETag support)
//   - GET /registrations/{id}   (fetch one)
//
// Registrations are created exclusively through the conversation flow, so
// there is no write surface here.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/services"
	"github.com/tbourn/go-insurance-intake/internal/utils"
)

// RegistrationService defines registration read operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RegistrationService interface {
	// Get fetches one registration by ID.
	Get(ctx context.Context, id string) (*domain.Registration, error)
	// ListPage returns a page of registrations and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Registration, int64, error)
}

// registrationStats is the optional capability behind conditional list
// responses. Services that cannot report stats simply skip the ETag.
type registrationStats interface {
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// Handlers groups the HTTP endpoints of the intake API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	convSvc ConversationService
	regSvc  RegistrationService
}

// New constructs a Handlers instance bound to the given services.
func New(convSvc ConversationService, regSvc RegistrationService) *Handlers {
	return &Handlers{convSvc: convSvc, regSvc: regSvc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRegistrationsResponse wraps a page of registrations and pagination
// information.
type ListRegistrationsResponse struct {
	Registrations []domain.Registration `json:"registrations"`
	Pagination    Pagination            `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// GetRegistration godoc
// @ID          getRegistration
// @Summary     Fetch a registration
// @Description Returns a single registration by its UUID.
// @Tags        Registrations
// @Produce     json
//
// @Param       id  path  string  true  "Registration ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Registration
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Registration not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /registrations/{id} [get]
func (h *Handlers) GetRegistration(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "registration id must be a UUID")
		return
	}

	reg, err := h.regSvc.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrRegistrationNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "registration not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, reg)
}

// ListRegistrations godoc
// @ID          listRegistrations
// @Summary     List registrations (paginated)
// @Description Returns a page of registrations, most recent first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Registrations
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRegistrationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /registrations [get]
func (h *Handlers) ListRegistrations(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort, only when the service can report stats).
	if sp, canStat := h.regSvc.(registrationStats); canStat {
		count, maxTS, err := sp.Stats(ctx)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"registrations:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.regSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListRegistrationsResponse{
		Registrations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}
