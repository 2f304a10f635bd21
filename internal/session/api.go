package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"courtrec-gateway/internal/config"
	"courtrec-gateway/internal/model"
)

// maxUserBody bounds the current-user payload read into memory.
const maxUserBody = 1 << 20

// UserAPI is the backend surface the container depends on.
type UserAPI interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
}

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPUserAPI calls the backend auth endpoints through the gateway. The
// session token travels as a cookie, so client must carry the shared jar.
type HTTPUserAPI struct {
	client    *http.Client
	meURL     string
	loginURL  string
	logoutURL string
}

// NewHTTPUserAPI creates an HTTPUserAPI for the gateway at gatewayURL.
func NewHTTPUserAPI(client *http.Client, gatewayURL string, cfg config.SessionConfig) *HTTPUserAPI {
	base := strings.TrimRight(gatewayURL, "/")
	return &HTTPUserAPI{
		client:    client,
		meURL:     base + cfg.MePath,
		loginURL:  base + cfg.LoginPath,
		logoutURL: base + cfg.LogoutPath,
	}
}

// MeURL returns the current-user endpoint.
func (a *HTTPUserAPI) MeURL() string {
	return a.meURL
}

// CurrentUser fetches the record of the user the token belongs to.
func (a *HTTPUserAPI) CurrentUser(ctx context.Context) (*model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.meURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: "current user", StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUserBody))
	if err != nil {
		return nil, fmt.Errorf("current user: read body: %w", err)
	}
	return model.DecodeUser(data)
}

// Login posts credentials. On success the backend sets the token cookie.
func (a *HTTPUserAPI) Login(ctx context.Context, email, password string) error {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return a.post(ctx, "login", a.loginURL, payload)
}

// Logout asks the backend to end the session the token cookie names.
func (a *HTTPUserAPI) Logout(ctx context.Context) error {
	return a.post(ctx, "logout", a.logoutURL, nil)
}

func (a *HTTPUserAPI) post(ctx context.Context, op, url string, payload []byte) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
	return nil
}
