//go:build linux

package linux

import (
	"fmt"
	"strconv"

	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil"
	"github.com/jezek/xgbutil/xprop"
	"github.com/jezek/xgbutil/xwindow"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

// PropertyService reads and writes root-window properties over the X
// connection. Numeric property data is exposed as decimal strings.
type PropertyService struct {
	xu *xgbutil.XUtil
}

func (s *PropertyService) Get(name string) ([]string, error) {
	reply, err := xprop.GetProperty(s.xu, s.xu.RootWin(), name)
	if err != nil {
		// Either the property is absent or the connection is gone.
		if !connAlive(s.xu) {
			return nil, platform.ErrConnectionLost
		}
		return nil, nil
	}

	if nums, err := xprop.PropValNums(reply, nil); err == nil {
		values := make([]string, len(nums))
		for i, n := range nums {
			values[i] = strconv.FormatUint(uint64(n), 10)
		}
		return values, nil
	}

	if strs, err := xprop.PropValStrs(reply, nil); err == nil {
		return strs, nil
	}

	return nil, nil
}

func (s *PropertyService) Set(name string, value int) error {
	err := xprop.ChangeProp32(s.xu, s.xu.RootWin(), name, "CARDINAL", uint(value))
	if err != nil {
		if !connAlive(s.xu) {
			return platform.ErrConnectionLost
		}
		return fmt.Errorf("set property %s: %w", name, err)
	}
	return nil
}

func (s *PropertyService) Remove(name string) error {
	atom, err := xprop.Atm(s.xu, name)
	if err != nil {
		// Unknown atom means the property was never set.
		if !connAlive(s.xu) {
			return platform.ErrConnectionLost
		}
		return nil
	}
	if err := xproto.DeletePropertyChecked(s.xu.Conn(), s.xu.RootWin(), atom).Check(); err != nil {
		if !connAlive(s.xu) {
			return platform.ErrConnectionLost
		}
		return fmt.Errorf("remove property %s: %w", name, err)
	}
	return nil
}

// GeometryService queries the root window size.
type GeometryService struct {
	xu *xgbutil.XUtil
}

func (s *GeometryService) RootSize() (int, int, error) {
	geom, err := xwindow.New(s.xu, s.xu.RootWin()).Geometry()
	if err != nil {
		if !connAlive(s.xu) {
			return 0, 0, platform.ErrConnectionLost
		}
		return 0, 0, fmt.Errorf("root geometry: %w", err)
	}
	return geom.Width(), geom.Height(), nil
}

// connAlive probes the connection with a cheap round trip, distinguishing
// a missing property from a dead display server.
func connAlive(xu *xgbutil.XUtil) bool {
	_, err := xproto.GetGeometry(xu.Conn(), xproto.Drawable(xu.RootWin())).Reply()
	return err == nil
}
