package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	t.Cleanup(func() { SetSchema(DefaultSchema) })

	assert.Equal(t, DefaultSchema, Schema())

	SetSchema("org.cinnamon.desktop.background")
	assert.Equal(t, "org.cinnamon.desktop.background", Schema())

	// Empty schema is ignored.
	SetSchema("")
	assert.Equal(t, "org.cinnamon.desktop.background", Schema())
}

func TestRegisterAndCurrent(t *testing.T) {
	t.Cleanup(ResetPlatform)

	fake := &fakePlatform{}
	SetPlatform(fake)

	p, err := Current()
	require.NoError(t, err)
	assert.Same(t, Platform(fake), p)
}

func TestUnsupportedPlatform(t *testing.T) {
	p := &unsupportedPlatform{name: "plan9"}

	assert.Equal(t, "plan9", p.Name())
	assert.False(t, p.IsSupported())
}

type fakePlatform struct{}

func (f *fakePlatform) Name() string                 { return "fake" }
func (f *fakePlatform) IsSupported() bool            { return true }
func (f *fakePlatform) Properties() PropertyService  { return nil }
func (f *fakePlatform) Geometry() GeometryService    { return nil }
func (f *fakePlatform) Settings() SettingsService    { return nil }
func (f *fakePlatform) Processes() ProcessService    { return nil }
func (f *fakePlatform) Close()                       {}
