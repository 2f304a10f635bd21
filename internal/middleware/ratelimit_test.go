package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtrec-gateway/internal/config"
	"courtrec-gateway/internal/middleware"
)

func rateLimitedEcho(rps float64) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RateLimit(config.RateLimitConfig{Enabled: true, RequestsPerSecond: rps}))
	e.GET("/api/backend/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func get(e *echo.Echo, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/backend/cases", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_RejectsAfterBurst(t *testing.T) {
	e := rateLimitedEcho(1)

	require.Equal(t, http.StatusOK, get(e, "192.0.2.1:1234").Code, "first request")

	var denied *httptest.ResponseRecorder
	for range 10 {
		rec := get(e, "192.0.2.1:1234")
		if rec.Code == http.StatusTooManyRequests {
			denied = rec
			break
		}
	}
	require.NotNil(t, denied, "expected a 429 after the burst")
	assert.Contains(t, denied.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, denied.Body.String())
}

func TestRateLimit_PerClient(t *testing.T) {
	e := rateLimitedEcho(1)

	for range 5 {
		get(e, "192.0.2.1:1234")
	}

	assert.Equal(t, http.StatusOK, get(e, "192.0.2.2:1234").Code, "second client")
}
