package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"courtrec-gateway/internal/audit"
	"courtrec-gateway/internal/config"
	"courtrec-gateway/internal/session"
)

var _ session.AuditLogger = (*audit.Client)(nil)

// runSession drives a session container against a running gateway and logs
// every auth state change until interrupted.
func runSession(cli *config.CLI) error {
	cfg, err := config.Load(cli)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	opts := cli.Session

	jar, err := session.NewJar()
	if err != nil {
		return err
	}
	httpClient := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	api := session.NewHTTPUserAPI(httpClient, opts.Gateway, cfg.Session)
	tokens, err := session.NewJarTokenSource(jar, api.MeURL())
	if err != nil {
		return err
	}
	auditClient := audit.NewClient(httpClient, strings.TrimRight(opts.Gateway, "/")+cfg.Session.AuditEventsPath, logger)

	c := session.New(session.Options{
		Users:        api,
		Tokens:       tokens,
		Audit:        auditClient,
		PollInterval: cfg.Session.PollInterval(),
		Logger:       logger,
		OnChange: func(s session.State) {
			if s.User == nil {
				logger.Info("session state", "authenticated", false, "loading", s.Loading)
				return
			}
			logger.Info("session state",
				"authenticated", true,
				"loading", s.Loading,
				"email", s.User.Email,
				"role", s.User.Role,
			)
		},
	})
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.Start(ctx)

	if opts.Email != "" {
		if err := c.Login(ctx, opts.Email, opts.Password); err != nil {
			return fmt.Errorf("login as %s: %w", opts.Email, err)
		}
	}

	<-ctx.Done()
	logger.Info("session watcher stopping")

	if opts.Logout {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Logout(logoutCtx)
	}
	return nil
}
