// Package model defines shared types for the gateway and the session client.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents an inbound request to be forwarded upstream.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Segments []string // path below the route prefix, one entry per segment
	Query    string   // raw query including the leading '?', or empty
	Header   http.Header
	Body     io.ReadCloser

	// ContentLength is the inbound body length, or -1 when unknown.
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser

	// TargetURL is the upstream URL that produced this response.
	TargetURL string
}
