// Package viewstate models the loading, ready and error phases of the
// embedded surface. State is a value: every transition returns a new State,
// so a snapshot handed to another component can never change underneath it.
package viewstate

import "fmt"

// Phase is the visible lifecycle phase of the surface.
type Phase int

const (
	Loading Phase = iota
	Ready
	Error
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "READY"
	case Error:
		return "ERROR"
	default:
		return "LOADING"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LOADING":
		*p = Loading
	case "READY":
		*p = Ready
	case "ERROR":
		*p = Error
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// State is one snapshot of the surface as seen by the shell.
type State struct {
	Phase      Phase  `json:"phase"`
	CurrentURL string `json:"current_url"`
	CanGoBack  bool   `json:"can_go_back"`
	// Attempt increments on every navigation start and accepted reload.
	Attempt uint64 `json:"attempt"`
}

// Initial is the state at shell startup.
func Initial(target string) State {
	return State{Phase: Loading, CurrentURL: target}
}

// NavigationStart enters Loading for url. An empty url keeps the current one.
// While in Error the signal is ignored: only a reload leaves Error.
func (s State) NavigationStart(url string) State {
	if s.Phase == Error {
		return s
	}
	next := s
	next.Phase = Loading
	if url != "" {
		next.CurrentURL = url
	}
	next.Attempt++
	return next
}

// NavigationCommitted records the committed url and back-history flag
// without touching the phase.
func (s State) NavigationCommitted(url string, canGoBack bool) State {
	next := s
	if url != "" {
		next.CurrentURL = url
	}
	next.CanGoBack = canGoBack
	return next
}

// LoadEnd moves Loading to Ready. A late load end after an error is dropped.
func (s State) LoadEnd() State {
	if s.Phase != Loading {
		return s
	}
	next := s
	next.Phase = Ready
	return next
}

// LoadError enters Error from any phase. The error view replaces the
// surface, so there is no surface history left to pop.
func (s State) LoadError() State {
	next := s
	next.Phase = Error
	next.CanGoBack = false
	return next
}

// ReloadRequested enters Loading and returns the url the surface must load:
// the current url, or fallback when none is known. It reports false and
// leaves the state untouched when a load is already in flight.
func (s State) ReloadRequested(fallback string) (State, string, bool) {
	if s.Phase == Loading {
		return s, "", false
	}
	next := s
	next.Phase = Loading
	next.Attempt++
	target := next.CurrentURL
	if target == "" {
		target = fallback
		next.CurrentURL = fallback
	}
	return next, target, true
}
