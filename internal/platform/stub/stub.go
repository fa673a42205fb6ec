// Package stub provides an in-memory platform implementation. It backs the
// unit tests and acts as a fallback for systems without an X session.
package stub

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

func init() {
	// Fallback for platforms without a production implementation.
	for _, os := range []string{"freebsd", "openbsd", "netbsd", "dragonfly", "solaris"} {
		platform.Register(os, func() (platform.Platform, error) {
			return New(), nil
		})
	}
}

// Platform implements platform.Platform backed by plain maps.
type Platform struct {
	name string

	mu         sync.Mutex
	props      map[string][]string
	settings   map[string]string
	keys       []string
	procs      map[int]string // pid -> owner
	rootWidth  int
	rootHeight int

	connectionLost bool

	// Recorded settings writes, oldest first, as "key=value".
	SettingsWrites []string
	// Pids that received a termination signal, oldest first.
	Terminated []int
	// When set, Terminate(pid) also clears this property (a cooperative
	// prior instance cleaning up on its way out).
	RemoveOnTerminate string
}

// New creates an empty stub platform with a 1920x1080 root window.
func New() *Platform {
	return &Platform{
		name:       runtime.GOOS,
		props:      make(map[string][]string),
		settings:   make(map[string]string),
		procs:      make(map[int]string),
		rootWidth:  1920,
		rootHeight: 1080,
	}
}

// Compile-time check that Platform implements platform.Platform.
var _ platform.Platform = (*Platform)(nil)

func (p *Platform) Name() string      { return p.name }
func (p *Platform) IsSupported() bool { return false }
func (p *Platform) Close()            {}

func (p *Platform) Properties() platform.PropertyService { return (*propertyService)(p) }
func (p *Platform) Geometry() platform.GeometryService   { return (*geometryService)(p) }
func (p *Platform) Settings() platform.SettingsService   { return (*settingsService)(p) }
func (p *Platform) Processes() platform.ProcessService   { return (*processService)(p) }

// Seeding helpers.

// SetProperty stores raw property values.
func (p *Platform) SetProperty(name string, values ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.props[name] = values
}

// SetIntProperty stores integer property values.
func (p *Platform) SetIntProperty(name string, values ...int) {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = strconv.Itoa(v)
	}
	p.SetProperty(name, strs...)
}

// Property returns the stored values for a property.
func (p *Platform) Property(name string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props[name]
}

// SetRootSize overrides the root window dimensions.
func (p *Platform) SetRootSize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rootWidth, p.rootHeight = width, height
}

// SeedSettings replaces the settings scheme with the given key/value pairs.
// Keys are listed sorted.
func (p *Platform) SeedSettings(values map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = make(map[string]string, len(values))
	p.keys = p.keys[:0]
	for k, v := range values {
		p.settings[k] = v
		p.keys = append(p.keys, k)
	}
	sort.Strings(p.keys)
}

// Setting returns the current value of a settings key.
func (p *Platform) Setting(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings[key]
}

// AddProcess registers a live process.
func (p *Platform) AddProcess(pid int, owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.procs[pid] = owner
}

// RemoveProcess drops a process from the table.
func (p *Platform) RemoveProcess(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.procs, pid)
}

// SeverConnection makes every property and geometry call fail with
// platform.ErrConnectionLost from now on.
func (p *Platform) SeverConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectionLost = true
}

// ResetWrites clears the recorded settings writes.
func (p *Platform) ResetWrites() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SettingsWrites = nil
}

// Services.

type propertyService Platform

func (s *propertyService) Get(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectionLost {
		return nil, platform.ErrConnectionLost
	}
	values, ok := s.props[name]
	if !ok {
		return nil, nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

func (s *propertyService) Set(name string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectionLost {
		return platform.ErrConnectionLost
	}
	s.props[name] = []string{strconv.Itoa(value)}
	return nil
}

func (s *propertyService) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectionLost {
		return platform.ErrConnectionLost
	}
	delete(s.props, name)
	return nil
}

type geometryService Platform

func (s *geometryService) RootSize() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectionLost {
		return 0, 0, platform.ErrConnectionLost
	}
	return s.rootWidth, s.rootHeight, nil
}

type settingsService Platform

func (s *settingsService) ListKeys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out, nil
}

func (s *settingsService) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.settings[key]
	if !ok {
		return "", fmt.Errorf("no such key %q", key)
	}
	return value, nil
}

func (s *settingsService) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	s.SettingsWrites = append(s.SettingsWrites, key+"="+value)
	return nil
}

type processService Platform

func (s *processService) Terminate(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Terminated = append(s.Terminated, pid)
	if s.RemoveOnTerminate != "" {
		delete(s.props, s.RemoveOnTerminate)
		delete(s.procs, pid)
	}
	return nil
}

func (s *processService) Alive(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.procs[pid]
	return ok
}

func (s *processService) Owner(pid int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[pid]
}
