package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/repo"
	"github.com/tbourn/go-insurance-intake/internal/services"
)

type fakeRegSvc struct {
	reg   *domain.Registration
	items []domain.Registration
	total int64
	err   error

	gotPage, gotPageSize int
}

func (f *fakeRegSvc) Get(ctx context.Context, id string) (*domain.Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reg, nil
}

func (f *fakeRegSvc) ListPage(ctx context.Context, page, pageSize int) ([]domain.Registration, int64, error) {
	f.gotPage, f.gotPageSize = page, pageSize
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.items, f.total, nil
}

func newRegRouter(svc RegistrationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(nil, svc)
	r.GET("/registrations", h.ListRegistrations)
	r.GET("/registrations/:id", h.GetRegistration)
	return r
}

func getURL(t *testing.T, r *gin.Engine, url string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

const validID = "7b9f2c3e-8d4a-4b9f-9a1e-2f3c4d5e6f70"

func TestGetRegistration_Success(t *testing.T) {
	svc := &fakeRegSvc{reg: &domain.Registration{
		ID:       validID,
		Customer: domain.Customer{Name: "Jane Doe", BirthDate: "1990-04-02"},
	}}
	r := newRegRouter(svc)

	w := getURL(t, r, "/registrations/"+validID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got domain.Registration
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.ID != validID || got.Customer.Name != "Jane Doe" {
		t.Fatalf("body = %+v", got)
	}
}

func TestGetRegistration_BadID(t *testing.T) {
	r := newRegRouter(&fakeRegSvc{})
	w := getURL(t, r, "/registrations/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetRegistration_NotFound(t *testing.T) {
	r := newRegRouter(&fakeRegSvc{err: services.ErrRegistrationNotFound})
	w := getURL(t, r, "/registrations/"+validID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Code != ErrCodeNotFound {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestGetRegistration_InternalError(t *testing.T) {
	r := newRegRouter(&fakeRegSvc{err: errors.New("db down")})
	w := getURL(t, r, "/registrations/"+validID, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListRegistrations_PaginationMath(t *testing.T) {
	svc := &fakeRegSvc{
		items: []domain.Registration{{ID: "a"}, {ID: "b"}},
		total: 5,
	}
	r := newRegRouter(svc)

	w := getURL(t, r, "/registrations?page=2&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.gotPage != 2 || svc.gotPageSize != 2 {
		t.Fatalf("service saw page %d size %d", svc.gotPage, svc.gotPageSize)
	}

	var got ListRegistrationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	p := got.Pagination
	if p.Page != 2 || p.PageSize != 2 || p.Total != 5 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
}

func TestListRegistrations_ClampsParams(t *testing.T) {
	svc := &fakeRegSvc{}
	r := newRegRouter(svc)

	getURL(t, r, "/registrations?page=-2&page_size=5000", nil)
	if svc.gotPage != 1 || svc.gotPageSize != 100 {
		t.Fatalf("clamped to page %d size %d", svc.gotPage, svc.gotPageSize)
	}

	getURL(t, r, "/registrations?page=abc&page_size=xyz", nil)
	if svc.gotPage != 1 || svc.gotPageSize != 20 {
		t.Fatalf("defaults gave page %d size %d", svc.gotPage, svc.gotPageSize)
	}
}

// statsFakeRegSvc additionally reports stats, like the real service.
type statsFakeRegSvc struct {
	fakeRegSvc
	count    int64
	newest   *time.Time
	statsErr error
}

func (f *statsFakeRegSvc) Stats(ctx context.Context) (int64, *time.Time, error) {
	return f.count, f.newest, f.statsErr
}

func TestListRegistrations_ETagFromServiceStats(t *testing.T) {
	newest := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	svc := &statsFakeRegSvc{count: 2, newest: &newest}
	r := newRegRouter(svc)

	w := getURL(t, r, "/registrations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("ETag missing for a stats-capable service")
	}

	svc.gotPage = 0
	w = getURL(t, r, "/registrations", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.gotPage != 0 {
		t.Fatalf("304 path must not hit ListPage, saw page %d", svc.gotPage)
	}
}

func TestListRegistrations_NoETagWithoutStats(t *testing.T) {
	r := newRegRouter(&fakeRegSvc{})
	w := getURL(t, r, "/registrations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != "" {
		t.Fatalf("ETag = %q for a service without stats", got)
	}
}

func TestListRegistrations_StatsErrorSkipsETag(t *testing.T) {
	svc := &statsFakeRegSvc{statsErr: errors.New("db down")}
	r := newRegRouter(svc)
	w := getURL(t, r, "/registrations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats failure must not break the list: status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != "" {
		t.Fatalf("ETag = %q despite stats failure", got)
	}
}

func TestListRegistrations_InternalError(t *testing.T) {
	r := newRegRouter(&fakeRegSvc{err: errors.New("db down")})
	w := getURL(t, r, "/registrations", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func newDBBackedRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return newRegRouter(&services.RegistrationService{DB: db}), db
}

func TestListRegistrations_ETagRoundTrip(t *testing.T) {
	r, db := newDBBackedRouter(t)
	if _, err := repo.CreateRegistration(context.Background(), db,
		domain.Customer{Name: "Jane Doe", BirthDate: "1990-04-02"},
		domain.Vehicle{CarType: "Sedan", Manufacturer: "Ford", Year: 2019, LicensePlate: "AB123"},
		nil, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w1 := getURL(t, r, "/registrations", nil)
	if w1.Code != http.StatusOK {
		t.Fatalf("status = %d", w1.Code)
	}
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("ETag header missing")
	}

	// Same state, matching ETag: 304 with no body.
	w2 := getURL(t, r, "/registrations", map[string]string{"If-None-Match": etag})
	if w2.Code != http.StatusNotModified {
		t.Fatalf("status = %d", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Fatalf("304 must have no body: %q", w2.Body.String())
	}

	// A new row changes the ETag.
	if _, err := repo.CreateRegistration(context.Background(), db,
		domain.Customer{Name: "John Smith", BirthDate: "1985-03-03"},
		domain.Vehicle{CarType: "Coupe", Manufacturer: "Bmw", Year: 2021, LicensePlate: "XY999"},
		nil, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w3 := getURL(t, r, "/registrations", map[string]string{"If-None-Match": etag})
	if w3.Code != http.StatusOK {
		t.Fatalf("status after change = %d", w3.Code)
	}
	if w3.Header().Get("ETag") == etag {
		t.Fatalf("ETag did not change with the data")
	}
}
