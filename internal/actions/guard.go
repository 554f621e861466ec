// Package actions turns user clicks on cart controls into at most one cart
// mutation or checkout transition each, tolerating rapid repeated clicks.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Outcome is the result of a click.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

// State is the visual state of a control.
type State string

const (
	StateIdle    State = "idle"
	StateBusy    State = "busy"
	StateSuccess State = "success"
)

// Clock abstracts time for the guard windows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// GuardConfig holds the click guard windows.
type GuardConfig struct {
	Debounce        time.Duration
	Cooldown        time.Duration
	SuccessDuration time.Duration
	Timeout         time.Duration
}

// DefaultGuardConfig mirrors the storefront defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Debounce:        time.Second,
		Cooldown:        300 * time.Millisecond,
		SuccessDuration: 2 * time.Second,
		Timeout:         10 * time.Second,
	}
}

// GuardConfigFromConfig reads the windows from configuration.
func GuardConfigFromConfig(cfg config.ActionsConfig) GuardConfig {
	return GuardConfig{
		Debounce:        cfg.Debounce,
		Cooldown:        cfg.Cooldown,
		SuccessDuration: cfg.SuccessDuration,
		Timeout:         cfg.Timeout,
	}
}

// Callbacks are invoked after an accepted click completes.
type Callbacks struct {
	OnSuccess func()
	OnError   func(error)
}

// Guard protects one control against duplicate activation.
type Guard struct {
	name    string
	cfg     GuardConfig
	clock   Clock
	logg    *logger.Logger
	metrics *metrics.ActionMetrics

	mu            sync.Mutex
	lastAccepted  time.Time
	inFlight      bool
	cooldownUntil time.Time
	successUntil  time.Time
	disabled      bool
}

// Name returns the control name.
func (g *Guard) Name() string {
	return g.name
}

// SetDisabled toggles the externally controlled disabled flag.
func (g *Guard) SetDisabled(disabled bool) {
	g.mu.Lock()
	g.disabled = disabled
	g.mu.Unlock()
}

// State reports the control's current visual state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return StateBusy
	}
	if g.clock.Now().Before(g.successUntil) {
		return StateSuccess
	}
	return StateIdle
}

// Do runs fn if the click is accepted. Ignored clicks return OutcomeIgnored
// and a nil error. fn is abandoned with a timeout error once the configured
// timeout elapses and the control becomes clickable again, so fn must honour
// ctx cancellation: an abandoned fn may still be running when the next
// accepted click starts, and it must not commit anything after ctx is done.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error, cb Callbacks) (Outcome, error) {
	if !g.accept() {
		g.metrics.Observe(g.kind(), metrics.OutcomeIgnored)
		return OutcomeIgnored, nil
	}
	g.metrics.Observe(g.kind(), metrics.OutcomeAccepted)

	err := g.run(ctx, fn)

	g.mu.Lock()
	now := g.clock.Now()
	g.inFlight = false
	g.cooldownUntil = now.Add(g.cfg.Cooldown)
	if err == nil {
		g.successUntil = now.Add(g.cfg.SuccessDuration)
	}
	g.mu.Unlock()

	if err != nil {
		g.metrics.Observe(g.kind(), metrics.OutcomeFailed)
		if g.logg != nil {
			g.logg.Error(g.logg.WithField(ctx, "control", g.name), "control action failed", err)
		}
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return OutcomeFailed, err
	}

	g.metrics.Observe(g.kind(), metrics.OutcomeSucceeded)
	if cb.OnSuccess != nil {
		cb.OnSuccess()
	}
	return OutcomeSucceeded, nil
}

func (g *Guard) accept() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	switch {
	case g.disabled, g.inFlight:
		return false
	case !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.cfg.Debounce:
		return false
	case now.Before(g.cooldownUntil):
		return false
	}
	g.lastAccepted = now
	g.inFlight = true
	return true
}

func (g *Guard) run(ctx context.Context, fn func(context.Context) error) (err error) {
	runCtx := ctx
	cancel := func() {}
	if g.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("control action panicked: %v", rec)
			}
		}()
		done <- fn(runCtx)
	}()

	select {
	case err = <-done:
	case <-runCtx.Done():
		err = runCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, fmt.Sprintf("%s timed out", g.name))
	}
	return err
}

func (g *Guard) kind() string {
	kind, _, _ := strings.Cut(g.name, ":")
	return kind
}

// Controls holds the guards of one profile session, keyed by control name.
type Controls struct {
	cfg     GuardConfig
	clock   Clock
	logg    *logger.Logger
	metrics *metrics.ActionMetrics

	mu       sync.Mutex
	guards   map[string]*Guard
	lastUsed time.Time
}

// Guard returns the guard for name, creating it on first use.
func (c *Controls) Guard(name string) *Guard {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.clock.Now()
	if g, ok := c.guards[name]; ok {
		return g
	}
	g := &Guard{
		name:    name,
		cfg:     c.cfg,
		clock:   c.clock,
		logg:    c.logg,
		metrics: c.metrics,
	}
	c.guards[name] = g
	return g
}

func (c *Controls) idleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.guards {
		g.mu.Lock()
		busy := g.inFlight
		g.mu.Unlock()
		if busy {
			return time.Time{}, false
		}
	}
	return c.lastUsed, true
}

// Sessions hands out one Controls set per profile. Sessions with no click
// in flight are dropped once idle for IdleTTL, or least recently used first
// beyond MaxProfiles.
type Sessions struct {
	cfg         GuardConfig
	clock       Clock
	logg        *logger.Logger
	metrics     *metrics.ActionMetrics
	idleTTL     time.Duration
	maxProfiles int

	mu        sync.Mutex
	profiles  map[string]*Controls
	lastSweep time.Time
}

// SessionOptions configures Sessions. A nil Clock uses wall time; a zero
// IdleTTL or MaxProfiles disables that limit.
type SessionOptions struct {
	Guard       GuardConfig
	Clock       Clock
	Logger      *logger.Logger
	Metrics     *metrics.ActionMetrics
	IdleTTL     time.Duration
	MaxProfiles int
}

func NewSessions(opts SessionOptions) *Sessions {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Sessions{
		cfg:         opts.Guard,
		clock:       clock,
		logg:        opts.Logger,
		metrics:     opts.Metrics,
		idleTTL:     opts.IdleTTL,
		maxProfiles: opts.MaxProfiles,
		profiles:    map[string]*Controls{},
	}
}

// For returns the controls of profileID.
func (s *Sessions) For(profileID string) *Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if c, ok := s.profiles[profileID]; ok {
		c.mu.Lock()
		c.lastUsed = now
		c.mu.Unlock()
		return c
	}
	c := &Controls{
		cfg:      s.cfg,
		clock:    s.clock,
		logg:     s.logg,
		metrics:  s.metrics,
		guards:   map[string]*Guard{},
		lastUsed: now,
	}
	s.profiles[profileID] = c
	if s.idleTTL > 0 && now.Sub(s.lastSweep) >= s.idleTTL/2 {
		s.sweepLocked(now)
	}
	s.capLocked(profileID)
	return c
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

// Sweep drops sessions idle for longer than IdleTTL and returns how many.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now())
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) sweepLocked(now time.Time) int {
	s.lastSweep = now
	if s.idleTTL <= 0 {
		return 0
	}
	dropped := 0
	for id, c := range s.profiles {
		last, idle := c.idleSince()
		if idle && now.Sub(last) > s.idleTTL {
			delete(s.profiles, id)
			dropped++
		}
	}
	return dropped
}

func (s *Sessions) capLocked(keep string) {
	if s.maxProfiles <= 0 {
		return
	}
	for len(s.profiles) > s.maxProfiles {
		oldestID := ""
		var oldest time.Time
		for id, c := range s.profiles {
			if id == keep {
				continue
			}
			last, idle := c.idleSince()
			if !idle {
				continue
			}
			if oldestID == "" || last.Before(oldest) {
				oldestID, oldest = id, last
			}
		}
		if oldestID == "" {
			return
		}
		delete(s.profiles, oldestID)
	}
}

// Control names.
func AddToCartControl(productID string) string {
	return "add-to-cart:" + strings.TrimSpace(productID)
}

func BuyNowControl(productID string) string {
	return "buy-now:" + strings.TrimSpace(productID)
}

func ExpressControl(productID string) string {
	return "express:" + strings.TrimSpace(productID)
}

const CheckoutControl = "checkout"
