// Package platform provides session-agnostic abstractions for the desktop environment.
package platform

import "errors"

// ErrConnectionLost is returned by the X-backed services when the display
// server connection has been severed (session ended, compositor gone).
var ErrConnectionLost = errors.New("display server connection lost")

// Platform provides access to the desktop-session services.
type Platform interface {
	// Name returns the platform identifier (e.g., "linux", "stub").
	Name() string

	// IsSupported returns true if this platform is fully supported.
	IsSupported() bool

	// Properties returns the root-window property service.
	Properties() PropertyService

	// Geometry returns the root-window geometry service.
	Geometry() GeometryService

	// Settings returns the background settings service.
	Settings() SettingsService

	// Processes returns the process control service.
	Processes() ProcessService

	// Close releases any session connection held by the platform.
	Close()
}

// PropertyService reads and writes named properties on the display server's
// root object. Values are exposed as decimal strings regardless of the
// underlying property format.
type PropertyService interface {
	// Get returns the property values, or (nil, nil) when the property is
	// absent. A severed session connection yields ErrConnectionLost.
	Get(name string) ([]string, error)

	// Set replaces the property with a single integer value.
	Set(name string, value int) error

	// Remove deletes the property. Removing an absent property is not an error.
	Remove(name string) error
}

// GeometryService queries root-window dimensions.
type GeometryService interface {
	// RootSize returns the root window width and height in pixels.
	RootSize() (width, height int, err error)
}

// SettingsService reads and writes string-valued keys of a background
// settings scheme. Values stay in the scheme's serialized form so that a
// value read back can be written unchanged.
type SettingsService interface {
	// ListKeys returns the keys of the scheme, in the scheme's order.
	ListKeys() ([]string, error)

	// Get returns the serialized value for a key.
	Get(key string) (string, error)

	// Set writes the serialized value for a key.
	Set(key, value string) error
}

// ProcessService controls and inspects other processes.
type ProcessService interface {
	// Terminate sends a termination signal to the process.
	Terminate(pid int) error

	// Alive reports whether a process with the given pid exists.
	Alive(pid int) bool

	// Owner returns the username owning the process, or "" if unknown.
	Owner(pid int) string
}
