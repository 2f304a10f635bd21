// Package service implements the core forwarding logic.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"courtrec-gateway/internal/client"
	"courtrec-gateway/internal/metrics"
	"courtrec-gateway/internal/model"
)

// apiPrefix is inserted after the backend base URL by the 404 fallback.
const apiPrefix = "/api"

// droppedRequestHeaders are recomputed by the outbound transport.
var droppedRequestHeaders = []string{"Host", "Content-Length"}

// droppedResponseHeaders are owned by the gateway's own CORS layer.
var droppedResponseHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Credentials",
}

// Target describes one upstream the gateway forwards to.
type Target struct {
	Name    string
	BaseURL string

	// APIFallback retries 404 reads once under BaseURL+"/api".
	APIFallback bool
}

// Forwarder relays requests to a single upstream target.
type Forwarder struct {
	client  *client.UpstreamClient
	target  Target
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewForwarder creates a Forwarder. The metrics parameter is optional.
func NewForwarder(c *client.UpstreamClient, target Target, m *metrics.Metrics, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:  c,
		target:  target,
		metrics: m,
		logger:  logger.With("component", "forwarder", "target", target.Name),
	}
}

// Target returns the upstream this forwarder relays to.
func (f *Forwarder) Target() Target {
	return f.target
}

// Forward sends a ProxyRequest upstream and returns the response to relay.
// The caller is responsible for closing the response body.
//
// Only transport failures are returned as errors; upstream 4xx/5xx responses
// are returned as-is.
func (f *Forwarder) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	header := filterRequestHeaders(pr.Header)
	body, size := requestBody(pr)

	targetURL := BuildTargetURL(f.target.BaseURL, pr.Segments, pr.Query)

	f.logger.Debug("forwarding request",
		"method", pr.Method,
		"target_url", Redact(targetURL),
	)

	resp, err := f.client.DoStream(pr.Ctx, f.target.Name, pr.Method, targetURL, header, body, size)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	if f.shouldFallback(pr.Method, resp.StatusCode) {
		resp, err = f.fallback(pr, header, resp)
		if err != nil {
			return nil, err
		}
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

// shouldFallback matches the base URL textually: any "/api" in it, including
// inside a longer segment, disables the retry.
func (f *Forwarder) shouldFallback(method string, status int) bool {
	return f.target.APIFallback &&
		status == http.StatusNotFound &&
		!strings.Contains(f.target.BaseURL, apiPrefix) &&
		isBodyless(method)
}

// fallback retries a 404 read under the /api prefix. A non-404 answer
// replaces primary; otherwise primary is returned untouched.
func (f *Forwarder) fallback(pr *model.ProxyRequest, header http.Header, primary *model.ProxyResponse) (*model.ProxyResponse, error) {
	fallbackURL := BuildTargetURL(f.target.BaseURL+apiPrefix, pr.Segments, pr.Query)

	f.logger.Debug("primary returned 404, retrying under /api",
		"primary_url", Redact(primary.TargetURL),
		"fallback_url", Redact(fallbackURL),
	)

	resp, err := f.client.DoStream(pr.Ctx, f.target.Name, pr.Method, fallbackURL, header.Clone(), nil, 0)
	if err != nil {
		_ = primary.Body.Close()
		f.recordFallback(metrics.FallbackError)
		return nil, fmt.Errorf("forward to upstream (api fallback): %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		f.recordFallback(metrics.FallbackKept)
		return primary, nil
	}

	_ = primary.Body.Close()
	f.recordFallback(metrics.FallbackReplaced)
	return resp, nil
}

func (f *Forwarder) recordFallback(outcome string) {
	if f.metrics != nil {
		f.metrics.FallbackAttempts.WithLabelValues(outcome).Inc()
	}
}

// requestBody returns the body to send upstream and its length (-1 if
// unknown). GET and HEAD never carry a body.
func requestBody(pr *model.ProxyRequest) (body io.Reader, size int64) {
	if isBodyless(pr.Method) || pr.Body == nil {
		return nil, 0
	}
	return pr.Body, pr.ContentLength
}

func isBodyless(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// filterRequestHeaders copies every inbound header except those the
// transport recomputes.
func filterRequestHeaders(src http.Header) http.Header {
	return withoutHeaders(src, droppedRequestHeaders)
}

func filterResponseHeaders(src http.Header) http.Header {
	return withoutHeaders(src, droppedResponseHeaders)
}

// withoutHeaders copies src minus the named headers. Keys are compared
// case-insensitively so non-canonical map keys are dropped too.
func withoutHeaders(src http.Header, drop []string) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if containsFold(drop, key) {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
