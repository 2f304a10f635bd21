package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtrec-gateway/internal/metrics"
)

type series struct {
	labels  map[string]string
	counter float64
	samples uint64
}

// gather returns every series of the named metric family.
func gather(t *testing.T, m *metrics.Metrics, name string) []series {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)

	var out []series
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			s := series{
				labels:  make(map[string]string),
				counter: metric.GetCounter().GetValue(),
				samples: metric.GetHistogram().GetSampleCount(),
			}
			for _, lp := range metric.GetLabel() {
				s.labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, s)
		}
	}
	return out
}

func findSeries(t *testing.T, m *metrics.Metrics, name, label, value string) series {
	t.Helper()
	for _, s := range gather(t, m, name) {
		if s.labels[label] == value {
			return s
		}
	}
	require.Failf(t, "series not found", "%s with %s=%s", name, label, value)
	return series{}
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/backend/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/backend/test", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	s := findSeries(t, m, "courtrec_gateway_http_requests_total", "path_prefix", "/api/backend")
	assert.Equal(t, float64(1), s.counter)
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	all := gather(t, m, "courtrec_gateway_http_request_duration_seconds")
	require.NotEmpty(t, all)
	assert.Positive(t, all[0].samples)
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/backend/test", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/backend/test", http.NoBody))

	s := findSeries(t, m, "courtrec_gateway_http_requests_total", "path_prefix", "/api/backend")
	assert.Equal(t, "404", s.labels["status_code"])
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	// Any also matches non-standard methods, so the middleware sees XYZZY.
	e.Any("/api/backend/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("XYZZY", "/api/backend/test", http.NoBody))

	s := findSeries(t, m, "courtrec_gateway_http_requests_total", "path_prefix", "/api/backend")
	assert.Equal(t, "other", s.labels["method"])
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nonexistent", http.NoBody))
	require.Equal(t, http.StatusNotFound, rec.Code)

	s := findSeries(t, m, "courtrec_gateway_http_requests_total", "path_prefix", "other")
	assert.Equal(t, "GET", s.labels["method"])
	assert.Equal(t, "404", s.labels["status_code"])
}

func TestMetricsMiddleware_SkipsScrapePath(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/metrics"))
	e.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "scrape")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Empty(t, gather(t, m, "courtrec_gateway_http_requests_total"), "scrape request was recorded")
}
