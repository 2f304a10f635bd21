package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtrec-gateway/internal/config"
)

const dashboardOrigin = "https://dashboard.example.org"

func newCORSEcho(t *testing.T) *echo.Echo {
	t.Helper()
	mw, err := CORS(config.CORSConfig{Origins: []string{dashboardOrigin}})
	require.NoError(t, err)
	e := echo.New()
	e.Pre(mw)
	e.Any("/api/backend/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestCORS_Preflight(t *testing.T) {
	e := newCORSEcho(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/backend/users/3", http.NoBody)
	req.Header.Set("Origin", dashboardOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, dashboardOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.NotEqual(t, "ok", rec.Body.String(), "preflight should not reach the route handler")
}

func TestCORS_ActualRequest(t *testing.T) {
	e := newCORSEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/api/backend/recordings", http.NoBody)
	req.Header.Set("Origin", dashboardOrigin)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{dashboardOrigin}, rec.Header().Values("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	e := newCORSEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/api/backend/recordings", http.NoBody)
	req.Header.Set("Origin", "https://evil.example.org")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_InvalidConfig(t *testing.T) {
	_, err := CORS(config.CORSConfig{Origins: []string{"not a url"}})
	assert.Error(t, err)
}
