//go:build linux

// Package linux implements the platform services for X11/GNOME sessions.
package linux

import (
	"fmt"

	"github.com/jezek/xgbutil"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

func init() {
	platform.Register("linux", func() (platform.Platform, error) {
		return New(platform.Schema())
	})
}

// Platform implements platform.Platform for X11/GNOME sessions.
type Platform struct {
	xu         *xgbutil.XUtil
	properties *PropertyService
	geometry   *GeometryService
	settings   *SettingsService
	processes  *ProcessService
}

// New connects to the X display and builds the session services. The
// settings service operates on the given settings schema.
func New(schema string) (*Platform, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrConnectionLost, err)
	}

	return &Platform{
		xu:         xu,
		properties: &PropertyService{xu: xu},
		geometry:   &GeometryService{xu: xu},
		settings:   &SettingsService{schema: schema},
		processes:  &ProcessService{},
	}, nil
}

func (p *Platform) Name() string      { return "linux" }
func (p *Platform) IsSupported() bool { return true }

func (p *Platform) Properties() platform.PropertyService { return p.properties }
func (p *Platform) Geometry() platform.GeometryService   { return p.geometry }
func (p *Platform) Settings() platform.SettingsService   { return p.settings }
func (p *Platform) Processes() platform.ProcessService   { return p.processes }

// Close tears down the X connection.
func (p *Platform) Close() {
	if p.xu != nil {
		p.xu.Conn().Close()
	}
}

// Compile-time check that Platform implements platform.Platform.
var _ platform.Platform = (*Platform)(nil)
