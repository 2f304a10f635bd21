package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"courtrec-gateway/internal/client"
	"courtrec-gateway/internal/config"
	"courtrec-gateway/internal/metrics"
	"courtrec-gateway/internal/model"
	"courtrec-gateway/internal/service"
)

// ProxyHandler forwards requests under one route prefix to its upstream.
type ProxyHandler struct {
	forwarder *service.Forwarder
	logger    *slog.Logger
}

// Proxies holds the two forwarding routes of the gateway.
type Proxies struct {
	Audit   *ProxyHandler
	Backend *ProxyHandler
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(f *service.Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: f,
		logger:    logger.With("component", "proxy_handler", "target", f.Target().Name),
	}
}

// NewProxies builds the audit and backend handlers. Only the backend target
// gets the /api fallback.
func NewProxies(c *client.UpstreamClient, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Proxies {
	audit := service.NewForwarder(c, service.Target{
		Name:    "audit",
		BaseURL: cfg.Audit.BaseURL,
	}, m, logger)
	backend := service.NewForwarder(c, service.Target{
		Name:        "backend",
		BaseURL:     cfg.Backend.BaseURL,
		APIFallback: cfg.Backend.FallbackEnabled(),
	}, m, logger)

	return &Proxies{
		Audit:   NewProxyHandler(audit, logger),
		Backend: NewProxyHandler(backend, logger),
	}
}

// Handle proxies the request upstream and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Segments:      service.SplitSegments(escapedSuffix(c)),
		Query:         service.QueryString(req.URL.RawQuery),
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.forwarder.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.logger.Debug("relaying response",
		"status", resp.Status,
		"target_url", service.Redact(resp.TargetURL),
	)

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	// net/http always writes the canonical reason phrase for the code.
	c.Response().WriteHeader(resp.StatusCode)

	if req.Method == http.MethodHead {
		return nil
	}

	// Responses without a declared length are usually event streams or
	// chunked exports; flush each chunk as soon as it arrives.
	var dst io.Writer = c.Response()
	if resp.Header.Get(echo.HeaderContentLength) == "" {
		dst = flushWriter{c.Response()}
	}

	// If io.Copy fails mid-stream (e.g. client disconnect), the status line
	// is already on the wire and the client sees a truncated body.
	if _, err := io.Copy(dst, resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", service.Redact(err.Error()),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// escapedSuffix returns the request path below the route prefix in its
// escaped form. The wildcard param is decoded, and re-parsing it would turn
// %3F, %23 and %25 into a query, a fragment or an invalid escape.
func escapedSuffix(c echo.Context) string {
	prefix := strings.TrimSuffix(c.Path(), "/*")
	if rest, ok := strings.CutPrefix(c.Request().URL.EscapedPath(), prefix); ok {
		return rest
	}
	return c.Param("*")
}

type flushWriter struct {
	w *echo.Response
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if n > 0 {
		f.w.Flush()
	}
	return n, err
}
