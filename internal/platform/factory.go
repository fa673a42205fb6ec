package platform

import (
	"runtime"
	"sync"
)

type platformBuilder func() (Platform, error)

var (
	registry     = make(map[string]platformBuilder)
	registryLock sync.RWMutex
)

// Register installs a builder for the given GOOS. Platform packages call
// this from init.
func Register(osName string, builder platformBuilder) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[osName] = builder
}

// DefaultSchema is the settings scheme managed when none is configured.
const DefaultSchema = "org.gnome.desktop.background"

var (
	schemaLock sync.RWMutex
	schemaName = DefaultSchema
)

// SetSchema selects the settings scheme the platform operates on. Must be
// called before the first Current().
func SetSchema(name string) {
	schemaLock.Lock()
	defer schemaLock.Unlock()
	if name != "" {
		schemaName = name
	}
}

// Schema returns the selected settings scheme.
func Schema() string {
	schemaLock.RLock()
	defer schemaLock.RUnlock()
	return schemaName
}

var (
	current     Platform
	currentErr  error
	currentOnce sync.Once
)

// Current returns the platform for the running OS, connecting on first use.
func Current() (Platform, error) {
	currentOnce.Do(func() {
		current, currentErr = newPlatform()
	})
	return current, currentErr
}

func newPlatform() (Platform, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	if builder, ok := registry[runtime.GOOS]; ok {
		return builder()
	}

	return &unsupportedPlatform{name: runtime.GOOS}, nil
}

type unsupportedPlatform struct {
	name string
}

func (p *unsupportedPlatform) Name() string                 { return p.name }
func (p *unsupportedPlatform) IsSupported() bool            { return false }
func (p *unsupportedPlatform) Properties() PropertyService  { return nil }
func (p *unsupportedPlatform) Geometry() GeometryService    { return nil }
func (p *unsupportedPlatform) Settings() SettingsService    { return nil }
func (p *unsupportedPlatform) Processes() ProcessService    { return nil }
func (p *unsupportedPlatform) Close()                       {}

// SetPlatform overrides the current platform. Intended for tests.
func SetPlatform(p Platform) {
	currentOnce.Do(func() {})
	current = p
	currentErr = nil
}

// ResetPlatform clears the cached platform. Intended for tests.
func ResetPlatform() {
	currentOnce = sync.Once{}
	current = nil
	currentErr = nil
}
