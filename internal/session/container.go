// Package session holds the dashboard's authentication state: who is logged
// in, derived role checks, and the token poll that notices logins performed
// elsewhere.
//
// A Container is created once per dashboard session and passed by reference
// to whatever renders UI. Its lifecycle is Start (mount), an active phase with
// periodic polling and on-demand refreshes, and Close (unmount).
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"courtrec-gateway/internal/model"
)

// DefaultPollInterval is how often the token cookie is re-checked.
const DefaultPollInterval = time.Second

// auditTimeout bounds fire-and-forget audit calls.
const auditTimeout = 10 * time.Second

// AuditLogger receives login and logout events. Failures never reach the
// container's callers.
type AuditLogger interface {
	Login(ctx context.Context, email string, success bool, detail string) error
	Logout(ctx context.Context, email string) error
}

// State is a point-in-time view of a Container.
type State struct {
	User    *model.User
	Loading bool
}

// IsAuthenticated reports whether a user is loaded.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// Options configures a Container.
type Options struct {
	Users  UserAPI
	Tokens TokenSource

	// Audit is optional.
	Audit        AuditLogger
	PollInterval time.Duration
	Logger       *slog.Logger

	// OnChange, if set, is called after every state transition. It runs on
	// the goroutine that caused the change and must not block.
	OnChange func(State)
}

// Container owns the current user. Other components only read it.
type Container struct {
	users    UserAPI
	tokens   TokenSource
	audit    AuditLogger
	interval time.Duration
	logger   *slog.Logger
	onChange func(State)

	mu      sync.RWMutex
	user    *model.User
	loading bool
	gen     uint64 // bumped by Logout so stale fetches cannot resurrect a user
	closed  bool

	fetches  singleflight.Group
	inFlight atomic.Bool
	nudge    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Container. It starts in the loading state with no user.
func New(opts Options) *Container {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Container{
		users:    opts.Users,
		tokens:   opts.Tokens,
		audit:    opts.Audit,
		interval: interval,
		logger:   logger.With("component", "session"),
		onChange: opts.OnChange,
		loading:  true,
		nudge:    make(chan struct{}, 1),
	}
}

// Start runs the mount-time check and starts the token poll. It blocks until
// the initial check completes. The poll stops when ctx is done or Close is
// called. Calling Start more than once has no effect.
func (c *Container) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		pollCtx, cancel := context.WithCancel(ctx)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			cancel()
			return
		}
		c.cancel = cancel
		c.mu.Unlock()

		c.setLoading(true)
		c.fetchCurrentUser(pollCtx)
		c.setLoading(false)

		// Close may have run during the mount fetch; its Wait must never
		// race this Add.
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.wg.Add(1)
		c.mu.Unlock()

		go c.poll(pollCtx)
	})
}

// Close stops the poll and waits for it and for pending audit calls.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
	})
}

// User returns a copy of the current user, or nil when logged out.
func (c *Container) User() *model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyUser(c.user)
}

// Loading reports whether a mount-time check or Refresh is running.
func (c *Container) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// State returns a consistent snapshot of user and loading flag.
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{User: copyUser(c.user), Loading: c.loading}
}

// IsAuthenticated reports whether a user is loaded.
func (c *Container) IsAuthenticated() bool {
	return c.User() != nil
}

// HasRole reports whether the loaded user's role is one of roles.
// It is false when no user is loaded.
func (c *Container) HasRole(roles ...model.Role) bool {
	u := c.User()
	if u == nil {
		return false
	}
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	_, ok := allowed[u.Role]
	return ok
}

// IsAdmin reports whether the user is an admin or super admin.
func (c *Container) IsAdmin() bool {
	return c.HasRole(model.RoleAdmin, model.RoleSuperAdmin)
}

// IsSuperAdmin reports whether the user is a super admin.
func (c *Container) IsSuperAdmin() bool {
	return c.HasRole(model.RoleSuperAdmin)
}

// Refresh re-fetches the current user. Loading is true for the duration.
func (c *Container) Refresh(ctx context.Context) {
	c.setLoading(true)
	defer c.setLoading(false)
	c.fetchCurrentUser(ctx)
}

// Notify tells the container the session may have changed, e.g. after a
// login flow stored a token. The next poll check runs immediately.
func (c *Container) Notify() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// Login submits credentials to the backend, which stores the token cookie on
// success. The audit event is sent in the background; the user itself is
// picked up by the poll, which Login wakes.
func (c *Container) Login(ctx context.Context, email, password string) error {
	err := c.users.Login(ctx, email, password)

	success := err == nil
	detail := "login succeeded"
	if !success {
		detail = err.Error()
	}
	c.emitAudit(func(ctx context.Context) error {
		return c.audit.Login(ctx, email, success, detail)
	})

	if err != nil {
		c.logger.Info("login failed", "email", email, "err", err)
		return err
	}
	c.Notify()
	return nil
}

// Logout ends the session. The user is cleared even if the backend call
// fails; that failure is only logged.
func (c *Container) Logout(ctx context.Context) {
	if u := c.User(); u != nil {
		email := u.Email
		c.emitAudit(func(ctx context.Context) error {
			return c.audit.Logout(ctx, email)
		})
	}

	if err := c.users.Logout(ctx); err != nil {
		c.logger.Warn("logout request failed; clearing session anyway", "err", err)
	}

	c.mu.Lock()
	c.gen++
	c.user = nil
	c.mu.Unlock()
	c.changed()
}

func (c *Container) poll(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.nudge:
		}
		c.check(ctx)
	}
}

// check fetches only when a token exists, nobody is loaded and no fetch is
// already running.
func (c *Container) check(ctx context.Context) {
	if _, ok := c.tokens.Token(); !ok {
		return
	}
	if c.inFlight.Load() || c.IsAuthenticated() {
		return
	}
	c.fetchCurrentUser(ctx)
}

// fetchCurrentUser loads the user behind the token cookie. At most one fetch
// runs at a time; concurrent callers wait for and share the running one.
func (c *Container) fetchCurrentUser(ctx context.Context) {
	_, _, _ = c.fetches.Do("me", func() (any, error) {
		c.inFlight.Store(true)
		defer c.inFlight.Store(false)
		c.loadUser(ctx)
		return nil, nil
	})
}

func (c *Container) loadUser(ctx context.Context) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	if _, ok := c.tokens.Token(); !ok {
		c.storeUser(gen, nil)
		return
	}

	u, err := c.users.CurrentUser(ctx)
	if err != nil {
		c.logger.Debug("current user unavailable", "err", err)
		c.storeUser(gen, nil)
		return
	}
	c.storeUser(gen, u)
}

// storeUser records u unless a Logout happened since gen was read.
func (c *Container) storeUser(gen uint64, u *model.User) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.user = copyUser(u)
	c.mu.Unlock()
	c.changed()
}

func (c *Container) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
	c.changed()
}

func (c *Container) changed() {
	if c.onChange != nil {
		c.onChange(c.State())
	}
}

// emitAudit runs fn in the background. Close waits for it.
func (c *Container) emitAudit(fn func(ctx context.Context) error) {
	if c.audit == nil {
		return
	}

	c.mu.RLock()
	closed := c.closed
	if !closed {
		c.wg.Add(1)
	}
	c.mu.RUnlock()
	if closed {
		return
	}

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Debug("audit event not delivered", "err", err)
		}
	}()
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
