// Package audit reports session events to the audit service.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	ActionLogin  = "login"
	ActionLogout = "logout"
)

// Event is the payload posted to the audit events endpoint.
type Event struct {
	Action    string    `json:"action"`
	Email     string    `json:"email"`
	Success   *bool     `json:"success,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client posts audit events. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	eventsURL string
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient creates a Client that posts to eventsURL, typically the
// gateway's /api/audit/events so the session cookie rides along.
func NewClient(httpClient *http.Client, eventsURL string, logger *slog.Logger) *Client {
	return &Client{
		http:      httpClient,
		eventsURL: eventsURL,
		logger:    logger.With("component", "audit"),
		now:       time.Now,
	}
}

// Login records a login attempt.
func (c *Client) Login(ctx context.Context, email string, success bool, detail string) error {
	return c.send(ctx, Event{
		Action:  ActionLogin,
		Email:   email,
		Success: &success,
		Detail:  detail,
	})
}

// Logout records a logout.
func (c *Client) Logout(ctx context.Context, email string) error {
	return c.send(ctx, Event{Action: ActionLogout, Email: email})
}

func (c *Client) send(ctx context.Context, ev Event) error {
	ev.Timestamp = c.now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit %s: marshal: %w", ev.Action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventsURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("audit %s: %w", ev.Action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("audit %s: %w", ev.Action, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("audit %s: unexpected status %d", ev.Action, resp.StatusCode)
	}

	c.logger.Debug("audit event sent", "action", ev.Action, "email", ev.Email)
	return nil
}
