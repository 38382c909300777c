package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_IntakeRouteLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())

	// List endpoint writes a body, so the size histogram observes it.
	r.GET("/api/v1/registrations", func(c *gin.Context) {
		c.String(http.StatusOK, `{"registrations":[]}`)
	})
	// Readiness-style endpoint with status only: size stays -1 and the
	// size histogram is skipped.
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Baselines first; the registry is process-global across tests.
	baseList := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/registrations", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/api/v2/chat", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/registrations", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}

	// Unmatched route: the label falls back to the raw URL path.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v2/chat", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("health -> %d", w.Code)
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/registrations", "200")); got != baseList+1 {
		t.Fatalf("list counter = %v; want %v", got, baseList+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/api/v2/chat", "404")); got != baseMiss+1 {
		t.Fatalf("404 fallback counter = %v; want %v", got, baseMiss+1)
	}

	// All three requests completed, so nothing is in flight.
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
