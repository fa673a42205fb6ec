package singleton

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform/stub"
)

const marker = "_PBGNOMEBACKGROUNDER_PID"

func newTestGuard(t *testing.T, plat *stub.Platform) *Guard {
	t.Helper()

	lockPath := filepath.Join(t.TempDir(), "daemon.lock")
	g := New(plat.Properties(), plat.Processes(), marker, lockPath)
	g.SetWait(time.Millisecond)
	return g
}

func TestAcquire_NoPriorInstance(t *testing.T) {
	plat := stub.New()
	g := newTestGuard(t, plat)

	require.NoError(t, g.Acquire())

	assert.Equal(t, []string{strconv.Itoa(os.Getpid())}, plat.Property(marker))
	assert.Empty(t, plat.Terminated, "nothing to signal when no marker exists")

	g.Release()
	assert.Empty(t, plat.Property(marker))
}

func TestAcquire_TakesOverRunningInstance(t *testing.T) {
	plat := stub.New()
	// A cooperative prior instance: clears the marker when signalled.
	plat.SetIntProperty(marker, 4242)
	plat.AddProcess(4242, "alice")
	plat.RemoveOnTerminate = marker

	g := newTestGuard(t, plat)

	require.NoError(t, g.Acquire())

	assert.Equal(t, []int{4242}, plat.Terminated)
	assert.Equal(t, []string{strconv.Itoa(os.Getpid())}, plat.Property(marker))
}

func TestAcquire_StaleMarkerIsRecovered(t *testing.T) {
	plat := stub.New()
	// Marker present, but the recorded process crashed without cleanup.
	plat.SetIntProperty(marker, 4242)

	g := newTestGuard(t, plat)

	require.NoError(t, g.Acquire())

	// Two signal attempts, then the dead pid is ignored.
	assert.Equal(t, []int{4242, 4242}, plat.Terminated)
	assert.Equal(t, []string{strconv.Itoa(os.Getpid())}, plat.Property(marker))
}

func TestAcquire_LiveUnkillableInstanceConflicts(t *testing.T) {
	plat := stub.New()
	plat.SetIntProperty(marker, 4242)
	plat.AddProcess(4242, "alice")
	// The prior instance ignores the signal: marker stays.

	g := newTestGuard(t, plat)

	err := g.Acquire()
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 4242, conflict.PID)
	assert.Equal(t, "alice", conflict.Owner)
	assert.Contains(t, err.Error(), "4242")
	assert.Contains(t, err.Error(), "alice")

	// The refusing instance keeps its claim.
	assert.Equal(t, []string{"4242"}, plat.Property(marker))
}

func TestAcquire_GarbledMarkerTreatedAsAbsent(t *testing.T) {
	plat := stub.New()
	plat.SetProperty(marker, "not-a-pid")

	g := newTestGuard(t, plat)

	require.NoError(t, g.Acquire())
	assert.Empty(t, plat.Terminated)
}

func TestCheck(t *testing.T) {
	plat := stub.New()
	g := newTestGuard(t, plat)

	require.NoError(t, g.Acquire())
	require.NoError(t, g.Check())

	// A newer instance overwrote the marker: this one must step down.
	plat.SetIntProperty(marker, g.PID()+1)
	assert.ErrorIs(t, g.Check(), ErrPreempted)

	// A cleared marker means the same.
	require.NoError(t, plat.Properties().Remove(marker))
	assert.ErrorIs(t, g.Check(), ErrPreempted)
}

func TestRelease_NeverClearsForeignClaim(t *testing.T) {
	plat := stub.New()
	g := newTestGuard(t, plat)

	require.NoError(t, g.Acquire())

	// Another instance already claimed the role.
	plat.SetIntProperty(marker, g.PID()+1)

	g.Release()

	assert.Equal(t, []string{strconv.Itoa(g.PID() + 1)}, plat.Property(marker))
}

func TestTakeoverSequence(t *testing.T) {
	// Two instances in sequence: the second terminates the first, claims
	// the marker, and the first notices via Check.
	plat := stub.New()

	firstPid := 1000
	plat.SetIntProperty(marker, firstPid)
	plat.AddProcess(firstPid, "alice")
	plat.RemoveOnTerminate = marker

	second := newTestGuard(t, plat)
	require.NoError(t, second.Acquire())
	assert.Equal(t, []string{strconv.Itoa(second.PID())}, plat.Property(marker))

	// The first instance's stale view of the world fails ownership.
	first := New(plat.Properties(), plat.Processes(), marker, "")
	first.pid = firstPid
	assert.ErrorIs(t, first.Check(), ErrPreempted)
}

func TestAcquire_LockFileHeldConflicts(t *testing.T) {
	plat := stub.New()

	lockPath := filepath.Join(t.TempDir(), "daemon.lock")
	holder := New(plat.Properties(), plat.Processes(), marker, lockPath)
	holder.SetWait(time.Millisecond)
	require.NoError(t, holder.Acquire())
	// Simulate a racing starter that saw no marker yet.
	require.NoError(t, plat.Properties().Remove(marker))

	racer := New(plat.Properties(), plat.Processes(), marker, lockPath)
	racer.SetWait(time.Millisecond)

	err := racer.Acquire()

	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	holder.Release()
}
