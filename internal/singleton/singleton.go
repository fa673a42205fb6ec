// Package singleton enforces that a single daemon instance manages the
// session's backgrounds.
//
// Mutual exclusion has two halves: an OS-level exclusive lock on a lock
// file, and a PID marker property on the display server's root window. The
// marker makes the active instance discoverable by other processes and
// carries the takeover protocol (a newly started instance asks the recorded
// PID to terminate before claiming the role); the lock file closes the
// read-then-write race the marker alone cannot.
package singleton

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

// ErrPreempted is returned by Check when another instance has claimed the
// daemon role.
var ErrPreempted = errors.New("daemon role claimed by another instance")

// ConflictError reports a live prior instance that did not yield.
type ConflictError struct {
	PID   int
	Owner string
}

func (e *ConflictError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("another instance is running (pid %d, user %s) and did not terminate", e.PID, e.Owner)
	}
	return fmt.Sprintf("another instance is running (pid %d) and did not terminate", e.PID)
}

const (
	// takeoverAttempts bounds the terminate-and-recheck cycles in Acquire.
	takeoverAttempts = 2

	// takeoverWait is how long a signalled instance is given to clean up.
	takeoverWait = 500 * time.Millisecond
)

// Guard claims, verifies and releases the daemon role for this process.
type Guard struct {
	props  platform.PropertyService
	procs  platform.ProcessService
	marker string
	lock   *flock.Flock
	pid    int

	// wait is takeoverWait unless shortened in tests.
	wait time.Duration
}

// New creates a guard using the given marker property and lock file.
func New(props platform.PropertyService, procs platform.ProcessService, marker, lockPath string) *Guard {
	g := &Guard{
		props:  props,
		procs:  procs,
		marker: marker,
		pid:    os.Getpid(),
		wait:   takeoverWait,
	}
	if lockPath != "" {
		g.lock = flock.New(lockPath)
	}
	return g
}

// Acquire claims the daemon role. A recorded prior instance is asked to
// terminate and given a bounded grace period; a marker pointing at a dead
// process is treated as stale leftovers from a crash. A live instance that
// refuses to exit is a fatal *ConflictError.
func (g *Guard) Acquire() error {
	pid, present, err := g.readMarker()
	if err != nil {
		return err
	}

	for attempt := 0; present && attempt < takeoverAttempts; attempt++ {
		log.WithField("pid", pid).Info("Asking running instance to terminate")
		if err := g.procs.Terminate(pid); err != nil {
			log.WithError(err).WithField("pid", pid).Debug("Cannot signal running instance")
		}
		time.Sleep(g.wait)

		pid, present, err = g.readMarker()
		if err != nil {
			return err
		}
	}

	if present {
		if g.procs.Alive(pid) {
			return &ConflictError{PID: pid, Owner: g.procs.Owner(pid)}
		}
		log.WithField("pid", pid).Info("Stale instance marker found, previous instance crashed")
	}

	if g.lock != nil {
		locked, err := g.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock file: %w", err)
		}
		if !locked {
			return &ConflictError{PID: pid}
		}
	}

	if err := g.props.Set(g.marker, g.pid); err != nil {
		g.unlock()
		return fmt.Errorf("claim instance marker: %w", err)
	}

	log.WithField("pid", g.pid).Debug("Instance marker claimed")
	return nil
}

// Check verifies this process still owns the daemon role. ErrPreempted means
// the marker was cleared or rewritten by someone else and this instance must
// exit.
func (g *Guard) Check() error {
	pid, present, err := g.readMarker()
	if err != nil {
		return err
	}
	if !present || pid != g.pid {
		return ErrPreempted
	}
	return nil
}

// Release removes the marker if this process still owns it, never clearing
// another instance's claim, and drops the lock file.
func (g *Guard) Release() {
	pid, present, err := g.readMarker()
	if err == nil && present && pid == g.pid {
		if err := g.props.Remove(g.marker); err != nil {
			log.WithError(err).Debug("Cannot remove instance marker")
		}
	}
	g.unlock()
}

func (g *Guard) unlock() {
	if g.lock != nil {
		if err := g.lock.Unlock(); err != nil {
			log.WithError(err).Debug("Cannot release lock file")
		}
	}
}

// readMarker returns the PID recorded in the marker property. A garbled
// marker value is treated as absent.
func (g *Guard) readMarker() (int, bool, error) {
	values, err := g.props.Get(g.marker)
	if err != nil {
		return 0, false, err
	}
	if len(values) == 0 {
		return 0, false, nil
	}
	pid, err := strconv.Atoi(values[0])
	if err != nil {
		log.WithField("value", values[0]).Warn("Garbled instance marker, treating as absent")
		return 0, false, nil
	}
	return pid, true, nil
}

// SetWait shortens the takeover grace period. Intended for tests.
func (g *Guard) SetWait(d time.Duration) {
	g.wait = d
}

// PID returns the pid this guard claims the role with.
func (g *Guard) PID() int {
	return g.pid
}
