package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEchoMiddlewareInstrumentsRequests(t *testing.T) {
	e := echo.New()
	e.Use(EchoMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200"))
	if after != before+1 {
		t.Errorf("expected request counter to increment, got %v -> %v", before, after)
	}

	if n := testutil.CollectAndCount(HTTPRequestDuration, "openwake_http_request_duration_seconds"); n == 0 {
		t.Error("expected a latency observation for the request")
	}
}

func TestEchoMiddlewareUsesHTTPErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(EchoMiddleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream away")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "502")); got != 1 {
		t.Errorf("expected the handler error status on the counter, got %v", got)
	}
}
