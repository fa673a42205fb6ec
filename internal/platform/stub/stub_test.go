package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

func TestProperties(t *testing.T) {
	p := New()

	values, err := p.Properties().Get("_NET_CURRENT_DESKTOP")
	require.NoError(t, err)
	assert.Nil(t, values, "absent property yields nil, not an error")

	require.NoError(t, p.Properties().Set("_NET_CURRENT_DESKTOP", 2))
	values, err = p.Properties().Get("_NET_CURRENT_DESKTOP")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, values)

	require.NoError(t, p.Properties().Remove("_NET_CURRENT_DESKTOP"))
	values, err = p.Properties().Get("_NET_CURRENT_DESKTOP")
	require.NoError(t, err)
	assert.Nil(t, values)

	// Removing an absent property is not an error.
	require.NoError(t, p.Properties().Remove("_NET_CURRENT_DESKTOP"))
}

func TestConnectionLoss(t *testing.T) {
	p := New()
	p.SetIntProperty("_NET_NUMBER_OF_DESKTOPS", 2)

	p.SeverConnection()

	_, err := p.Properties().Get("_NET_NUMBER_OF_DESKTOPS")
	assert.ErrorIs(t, err, platform.ErrConnectionLost)

	_, _, err = p.Geometry().RootSize()
	assert.ErrorIs(t, err, platform.ErrConnectionLost)
}

func TestSettings(t *testing.T) {
	p := New()
	p.SeedSettings(map[string]string{
		"picture-uri":     "'file:///a.jpg'",
		"picture-options": "'zoom'",
	})

	keys, err := p.Settings().ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"picture-options", "picture-uri"}, keys)

	value, err := p.Settings().Get("picture-uri")
	require.NoError(t, err)
	assert.Equal(t, "'file:///a.jpg'", value)

	_, err = p.Settings().Get("no-such-key")
	assert.Error(t, err)

	require.NoError(t, p.Settings().Set("picture-uri", "'file:///b.jpg'"))
	assert.Equal(t, "'file:///b.jpg'", p.Setting("picture-uri"))
	assert.Equal(t, []string{"picture-uri='file:///b.jpg'"}, p.SettingsWrites)
}

func TestProcesses(t *testing.T) {
	p := New()
	p.AddProcess(42, "alice")

	assert.True(t, p.Processes().Alive(42))
	assert.Equal(t, "alice", p.Processes().Owner(42))
	assert.False(t, p.Processes().Alive(43))
	assert.Empty(t, p.Processes().Owner(43))

	require.NoError(t, p.Processes().Terminate(42))
	assert.Equal(t, []int{42}, p.Terminated)
	assert.True(t, p.Processes().Alive(42), "plain Terminate only records the signal")

	p.RemoveProcess(42)
	assert.False(t, p.Processes().Alive(42))
}

func TestRemoveOnTerminate(t *testing.T) {
	p := New()
	p.SetIntProperty("_MARKER", 42)
	p.AddProcess(42, "alice")
	p.RemoveOnTerminate = "_MARKER"

	require.NoError(t, p.Processes().Terminate(42))

	assert.Nil(t, p.Property("_MARKER"))
	assert.False(t, p.Processes().Alive(42))
}
