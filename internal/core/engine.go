// Package core drives the polling loop tying desktop tracking, the
// background registry and the single-instance guard together.
package core

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/config"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/desktop"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/registry"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/singleton"
)

// State is the lifecycle phase of the engine.
type State int

const (
	StateInit State = iota
	StateRunning
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Engine owns the daemon state threaded through each tick: the active
// desktop, the registry and the scheme keys live here rather than in
// globals.
type Engine struct {
	cfg      *config.Config
	platform platform.Platform
	tracker  *desktop.Tracker
	registry *registry.Registry
	guard    *singleton.Guard

	interval    time.Duration
	state       State
	lastDesktop string
}

// Option configures the Engine.
type Option func(*Engine)

// WithInterval overrides the configured polling interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// New assembles an engine over the given platform. The scheme keys are
// queried once here and stay fixed for the process lifetime.
func New(cfg *config.Config, plat platform.Platform, opts ...Option) (*Engine, error) {
	keys, err := plat.Settings().ListKeys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("settings scheme has no keys")
	}

	e := &Engine{
		cfg:      cfg,
		platform: plat,
		tracker:  desktop.NewTracker(plat.Properties(), plat.Geometry()),
		registry: registry.New(cfg.Registry.Path, keys, plat.Settings()),
		guard: singleton.New(plat.Properties(), plat.Processes(),
			cfg.Daemon.MarkerProperty, cfg.Daemon.LockFile),
		interval: time.Duration(cfg.Daemon.Interval) * time.Second,
		state:    StateInit,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Run executes the daemon loop until the context is cancelled, the session
// disappears, or another instance preempts this one. All of those end the
// loop cleanly with a nil error; the only error return is the startup
// conflict from Acquire.
func (e *Engine) Run(ctx context.Context) error {
	e.registry.Load()

	if err := e.guard.Acquire(); err != nil {
		var conflict *singleton.ConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		// No display connection at startup: nothing to manage.
		log.WithError(err).Info("Cannot claim daemon role, no session to manage")
		return nil
	}
	defer func() {
		e.state = StateTerminating
		e.guard.Release()
		log.Info("Stopped")
	}()

	if err := e.applyInitial(); err != nil {
		log.WithError(err).Info("No desktop session, exiting")
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.interval):
		}

		if done, err := e.tick(); done {
			return err
		}
	}
}

// applyInitial force-applies the background of whatever desktop is active
// right now. The user may have logged into a different desktop than the one
// active at last shutdown.
func (e *Engine) applyInitial() error {
	active, err := e.tracker.Current()
	if err != nil {
		return err
	}
	if err := e.registry.Apply(active); err != nil {
		log.WithError(err).Warn("Cannot apply initial background")
	}
	e.lastDesktop = active

	e.state = StateRunning
	log.WithFields(log.Fields{
		"desktop":  active,
		"interval": e.interval,
	}).Info("Managing per-desktop backgrounds")
	return nil
}

// tick runs one polling step. done reports that the loop must stop.
func (e *Engine) tick() (done bool, err error) {
	if err := e.guard.Check(); err != nil {
		if errors.Is(err, singleton.ErrPreempted) {
			log.Info("Preempted by another instance, exiting")
			return true, nil
		}
		log.WithError(err).Info("Lost session while checking ownership, exiting")
		return true, nil
	}

	active, err := e.tracker.Current()
	if err != nil {
		log.WithError(err).Info("Desktop session gone, exiting")
		return true, nil
	}

	if active != e.lastDesktop {
		log.WithFields(log.Fields{"from": e.lastDesktop, "to": active}).Debug("Desktop switched")
		if err := e.registry.Apply(active); err != nil {
			log.WithError(err).Warn("Cannot apply background")
		}
		e.lastDesktop = active
		return false, nil
	}

	if _, err := e.registry.DetectChange(e.lastDesktop); err != nil {
		log.WithError(err).Warn("Cannot persist background change")
	}
	return false, nil
}

// State returns the engine lifecycle phase.
func (e *Engine) State() State {
	return e.state
}

// LastDesktop returns the desktop most recently applied.
func (e *Engine) LastDesktop() string {
	return e.lastDesktop
}

// Registry exposes the background registry, for the status command.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}
