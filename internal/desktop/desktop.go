// Package desktop determines which virtual desktop is currently active.
package desktop

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

// EWMH root-window properties consulted by the tracker.
const (
	propNumberOfDesktops = "_NET_NUMBER_OF_DESKTOPS"
	propCurrentDesktop   = "_NET_CURRENT_DESKTOP"
	propDesktopGeometry  = "_NET_DESKTOP_GEOMETRY"
	propDesktopViewport  = "_NET_DESKTOP_VIEWPORT"
)

// ErrNoSession indicates there is no desktop session to manage: the display
// server is unreachable or the window manager exposes no desktops.
var ErrNoSession = errors.New("no desktop session")

// Tracker computes the active desktop identifier from root-window state.
type Tracker struct {
	props platform.PropertyService
	geom  platform.GeometryService
}

// NewTracker creates a tracker over the given property and geometry services.
func NewTracker(props platform.PropertyService, geom platform.GeometryService) *Tracker {
	return &Tracker{props: props, geom: geom}
}

// Current returns the identifier of the active desktop. It is recomputed
// from live properties on every call.
//
// Window managers that expose a single logical desktop spanning a grid of
// viewports (cube/wall modes) report one desktop but scroll the viewport;
// for those the sub-desktop is derived from the viewport offset and the
// root window size.
func (t *Tracker) Current() (string, error) {
	count, err := t.readInt(propNumberOfDesktops)
	if err != nil {
		return "", err
	}

	if count != 1 {
		index, err := t.readInt(propCurrentDesktop)
		if err != nil {
			return "", err
		}
		return "Desktop" + strconv.Itoa(index), nil
	}

	index, err := t.viewportIndex()
	if err != nil {
		return "", err
	}
	return "Desktop" + strconv.Itoa(index), nil
}

// viewportIndex maps the current viewport offset onto a desktop index,
// row-major across the virtual canvas.
func (t *Tracker) viewportIndex() (int, error) {
	screenWidth, screenHeight, err := t.geom.RootSize()
	if err != nil {
		if errors.Is(err, platform.ErrConnectionLost) {
			return 0, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return 0, err
	}
	if screenWidth <= 0 || screenHeight <= 0 {
		return 0, fmt.Errorf("%w: degenerate root geometry %dx%d", ErrNoSession, screenWidth, screenHeight)
	}

	viewportWidth, _, err := t.readIntPair(propDesktopGeometry)
	if err != nil {
		return 0, err
	}
	xViewport, yViewport, err := t.readIntPair(propDesktopViewport)
	if err != nil {
		return 0, err
	}

	columns := viewportWidth / screenWidth
	col := xViewport / screenWidth
	row := yViewport / screenHeight

	return row*columns + col, nil
}

// readInt reads a single-valued integer property. An absent property means
// the window manager is not EWMH-compliant or the session is gone.
func (t *Tracker) readInt(name string) (int, error) {
	values, err := t.props.Get(name)
	if err != nil {
		if errors.Is(err, platform.ErrConnectionLost) {
			return 0, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: property %s absent", ErrNoSession, name)
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", name, err)
	}
	return n, nil
}

func (t *Tracker) readIntPair(name string) (int, int, error) {
	values, err := t.props.Get(name)
	if err != nil {
		if errors.Is(err, platform.ErrConnectionLost) {
			return 0, 0, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return 0, 0, err
	}
	if len(values) < 2 {
		return 0, 0, fmt.Errorf("%w: property %s absent", ErrNoSession, name)
	}
	a, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, 0, fmt.Errorf("property %s: %w", name, err)
	}
	b, err := strconv.Atoi(values[1])
	if err != nil {
		return 0, 0, fmt.Errorf("property %s: %w", name, err)
	}
	return a, b, nil
}
