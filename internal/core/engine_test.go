package core

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/config"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform/stub"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/singleton"
)

const marker = "_PBGNOMEBACKGROUNDER_PID"

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		Daemon: config.DaemonConfig{
			Interval:       1,
			LockFile:       filepath.Join(dir, "daemon.lock"),
			MarkerProperty: marker,
		},
		Registry: config.RegistryConfig{
			Path: filepath.Join(dir, "backgrounds"),
		},
		Settings: config.SettingsConfig{
			Schema: "org.gnome.desktop.background",
		},
	}
}

func seededPlatform() *stub.Platform {
	plat := stub.New()
	plat.SetIntProperty("_NET_NUMBER_OF_DESKTOPS", 2)
	plat.SetIntProperty("_NET_CURRENT_DESKTOP", 0)
	plat.SeedSettings(map[string]string{"picture-uri": "'file:///a.jpg'"})
	return plat
}

func newTestEngine(t *testing.T, plat *stub.Platform) *Engine {
	t.Helper()

	e, err := New(testConfig(t), plat, WithInterval(time.Millisecond))
	require.NoError(t, err)
	e.guard.SetWait(time.Millisecond)
	return e
}

// startEngine runs the INIT transition the way Run does.
func startEngine(t *testing.T, e *Engine) {
	t.Helper()

	e.registry.Load()
	require.NoError(t, e.guard.Acquire())
	require.NoError(t, e.applyInitial())
}

func TestNew_RequiresSchemeKeys(t *testing.T) {
	plat := stub.New()

	_, err := New(testConfig(t), plat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keys")
}

func TestStart_AdoptsActiveDesktop(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)

	startEngine(t, e)

	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, "Desktop0", e.LastDesktop())

	// First touch of Desktop0 adopted the displayed background.
	entry := e.registry.Lookup("Desktop0")
	require.True(t, entry.Known)
	assert.Equal(t, "'file:///a.jpg'", entry.Definition["picture-uri"])
	assert.Empty(t, plat.SettingsWrites)

	// The instance marker carries our pid.
	assert.Equal(t, []string{strconv.Itoa(e.guard.PID())}, plat.Property(marker))
}

func TestTick_AppliesOnDesktopSwitch(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)
	startEngine(t, e)

	// Visit Desktop1, change its wallpaper, come back to Desktop0.
	plat.SetIntProperty("_NET_CURRENT_DESKTOP", 1)
	done, err := e.tick()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "Desktop1", e.LastDesktop())

	plat.SeedSettings(map[string]string{"picture-uri": "'file:///b.jpg'"})
	done, err = e.tick()
	require.NoError(t, err)
	require.False(t, done)

	plat.SetIntProperty("_NET_CURRENT_DESKTOP", 0)
	plat.ResetWrites()
	done, err = e.tick()
	require.NoError(t, err)
	require.False(t, done)

	// Desktop0's remembered background was pushed back.
	assert.Equal(t, []string{"picture-uri='file:///a.jpg'"}, plat.SettingsWrites)
	assert.Equal(t, "'file:///a.jpg'", plat.Setting("picture-uri"))

	// And Desktop1 remembers its own.
	entry := e.registry.Lookup("Desktop1")
	require.True(t, entry.Known)
	assert.Equal(t, "'file:///b.jpg'", entry.Definition["picture-uri"])
}

func TestTick_SwitchSkipsChangeDetection(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)
	startEngine(t, e)

	// Both a desktop switch and a settings change in the same tick: the
	// switch wins, the change is not captured for the old desktop.
	plat.SeedSettings(map[string]string{"picture-uri": "'file:///b.jpg'"})
	plat.SetIntProperty("_NET_CURRENT_DESKTOP", 1)

	done, err := e.tick()
	require.NoError(t, err)
	require.False(t, done)

	entry := e.registry.Lookup("Desktop0")
	require.True(t, entry.Known)
	assert.Equal(t, "'file:///a.jpg'", entry.Definition["picture-uri"])
}

func TestTick_DetectsUserChange(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)
	startEngine(t, e)

	plat.SeedSettings(map[string]string{"picture-uri": "'file:///b.jpg'"})

	done, err := e.tick()
	require.NoError(t, err)
	require.False(t, done)

	entry := e.registry.Lookup("Desktop0")
	assert.Equal(t, "'file:///b.jpg'", entry.Definition["picture-uri"])
}

func TestTick_StopsWhenPreempted(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)
	startEngine(t, e)

	// Another instance rewrote the marker.
	plat.SetIntProperty(marker, e.guard.PID()+1)

	done, err := e.tick()
	assert.True(t, done)
	assert.NoError(t, err, "preemption is a clean exit")
}

func TestTick_StopsWhenSessionGone(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)
	startEngine(t, e)

	plat.SeverConnection()

	done, err := e.tick()
	assert.True(t, done)
	assert.NoError(t, err, "session loss is a clean exit")
}

func TestRun_ConflictAborts(t *testing.T) {
	plat := seededPlatform()
	plat.SetIntProperty(marker, 4242)
	plat.AddProcess(4242, "alice")

	e := newTestEngine(t, plat)

	err := e.Run(context.Background())
	var conflict *singleton.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 4242, conflict.PID)
	assert.Equal(t, StateInit, e.State(), "never reached RUNNING")
}

func TestRun_CancelReleasesMarker(t *testing.T) {
	plat := seededPlatform()
	e := newTestEngine(t, plat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.Run(ctx))

	assert.Equal(t, StateTerminating, e.State())
	assert.Empty(t, plat.Property(marker), "marker removed on shutdown")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "terminating", StateTerminating.String())
}
