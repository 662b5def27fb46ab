// Package history arbitrates hardware back presses between the surface's
// own history and the host platform.
package history

import "github.com/dgnsrekt/webshell/internal/viewstate"

// Action tells the caller who handles a back press.
type Action int

const (
	PassThrough Action = iota
	PopSurfaceHistory
)

func (a Action) String() string {
	if a == PopSurfaceHistory {
		return "POP_SURFACE_HISTORY"
	}
	return "PASS_THROUGH"
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Handled reports whether the press was consumed by the surface.
func (a Action) Handled() bool { return a == PopSurfaceHistory }

// OnBackRequested reads only the snapshot it is given.
func OnBackRequested(s viewstate.State) Action {
	if s.CanGoBack {
		return PopSurfaceHistory
	}
	return PassThrough
}
