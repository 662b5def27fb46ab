// Package shell composes the navigation policy, the view state machine and
// the back-press arbiter around one embedded surface.
//
// Every handler runs on a single loop goroutine started by Run, so the view
// state has exactly one writer. Callers reach the loop through Intercept,
// Post, Reload, Back, OpenLink and State.
package shell

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/webshell/internal/history"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/platform"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

// Surface is the embedded browsing surface. Both commands must return once
// the command is queued; the outcome arrives later as lifecycle signals.
type Surface interface {
	GoBack(ctx context.Context) error
	Load(ctx context.Context, url string) error
}

// ExternalOpener hands a url to the system browser or link handler.
type ExternalOpener interface {
	OpenExternally(ctx context.Context, url string) error
}

// Observer is told about every state replacement and every decision.
// Calls happen on the loop goroutine and must not block.
type Observer interface {
	OnState(prev, next viewstate.State, cause string)
	OnDecision(req navpolicy.Request, d navpolicy.Decision)
}

// Host is the platform side that delivers back presses and deep links.
type Host interface {
	OnBack(fn platform.BackHandler) platform.Subscription
	OnLink(fn platform.LinkHandler) platform.Subscription
}

// SignalKind enumerates the surface lifecycle signals.
type SignalKind int

const (
	SignalStart SignalKind = iota
	SignalCommit
	SignalLoadEnd
	SignalLoadError
)

func (k SignalKind) String() string {
	switch k {
	case SignalStart:
		return "navigation_start"
	case SignalCommit:
		return "navigation_committed"
	case SignalLoadEnd:
		return "load_end"
	case SignalLoadError:
		return "load_error"
	default:
		return "unknown"
	}
}

// Signal is one lifecycle event from the surface.
type Signal struct {
	Kind      SignalKind
	URL       string
	CanGoBack bool
	Err       string
}

// Config is fixed for the lifetime of a Shell.
type Config struct {
	Origin          navpolicy.AllowedOrigin
	InitialURL      string
	DelegateTimeout time.Duration
}

type Shell struct {
	cfg       Config
	surface   Surface
	opener    ExternalOpener
	observers []Observer

	// state is owned by the loop goroutine.
	state viewstate.State

	ops     chan func()
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	running bool
	closed  bool
	subs    []platform.Subscription

	delegates sync.WaitGroup
}

func New(cfg Config, surface Surface, opener ExternalOpener, observers ...Observer) *Shell {
	if cfg.DelegateTimeout <= 0 {
		cfg.DelegateTimeout = 10 * time.Second
	}
	return &Shell{
		cfg:       cfg,
		surface:   surface,
		opener:    opener,
		observers: observers,
		state:     viewstate.Initial(cfg.InitialURL),
		ops:       make(chan func(), 64),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Run processes handlers until ctx ends or Close is called.
func (s *Shell) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.running {
		s.mu.Unlock()
		return errClosed
	}
	s.running = true
	s.mu.Unlock()
	defer close(s.stopped)

	slog.Info("shell loop started", "initial_url", s.cfg.InitialURL, "allowed_domain", s.cfg.Origin.Domain())
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			slog.Info("shell loop stopped")
			return nil
		case <-ctx.Done():
			slog.Info("shell loop stopped", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// Close stops the loop, releases host subscriptions and waits for external
// opens still in flight.
func (s *Shell) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Release()
	}
	close(s.done)
	if running {
		<-s.stopped
	}
	s.delegates.Wait()
	return nil
}

// Attach subscribes to host back presses and deep links. The returned
// function releases both; Close releases them too.
func (s *Shell) Attach(host Host) func() {
	back := host.OnBack(func(ctx context.Context) bool {
		action, err := s.Back(ctx)
		if err != nil {
			slog.Warn("back press not handled", "error", err)
			return false
		}
		return action.Handled()
	})
	link := host.OnLink(func(ctx context.Context, url string) {
		if _, err := s.OpenLink(ctx, url); err != nil {
			slog.Warn("deep link not handled", "url", url, "error", err)
		}
	})

	s.mu.Lock()
	s.subs = append(s.subs, back, link)
	s.mu.Unlock()

	return func() {
		back.Release()
		link.Release()
	}
}

// Start asks the surface to load the initial target.
func (s *Shell) Start(ctx context.Context) error {
	var loadErr error
	if err := s.do(ctx, func() {
		if loadErr = s.surface.Load(ctx, s.cfg.InitialURL); loadErr != nil {
			s.fail("initial_load_failed", loadErr)
		}
	}); err != nil {
		return err
	}
	return loadErr
}

// Intercept classifies a navigation attempt. The surface must hold the
// navigation until it returns. A closed shell blocks everything.
func (s *Shell) Intercept(ctx context.Context, req navpolicy.Request) navpolicy.Decision {
	var d navpolicy.Decision
	if err := s.do(ctx, func() { d = s.decide(req) }); err != nil {
		slog.Debug("navigation intercept failed", "url", req.URL, "error", err)
		return navpolicy.Block
	}
	return d
}

// Post queues a lifecycle signal without waiting for it to be applied.
func (s *Shell) Post(ctx context.Context, sig Signal) error {
	select {
	case s.ops <- func() { s.apply(sig) }:
		return nil
	case <-s.done:
		return errClosed
	case <-s.stopped:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload is the user-facing retry action. It is a no-op while loading.
func (s *Shell) Reload(ctx context.Context) (viewstate.State, error) {
	var out viewstate.State
	err := s.do(ctx, func() {
		next, target, ok := s.state.ReloadRequested(s.cfg.InitialURL)
		if !ok {
			slog.Debug("reload ignored, load already in flight", "url", s.state.CurrentURL)
			out = s.state
			return
		}
		s.setState(next, "reload")
		slog.Info("reload requested", "url", target, "attempt", next.Attempt)
		if err := s.surface.Load(ctx, target); err != nil {
			s.fail("reload_failed", err)
		}
		out = s.state
	})
	if err != nil {
		return viewstate.State{}, err
	}
	return out, nil
}

// Back answers a host back press from the latest state.
func (s *Shell) Back(ctx context.Context) (history.Action, error) {
	var action history.Action
	err := s.do(ctx, func() {
		action = history.OnBackRequested(s.state)
		slog.Debug("back requested", "action", action, "can_go_back", s.state.CanGoBack, "phase", s.state.Phase)
		if action != history.PopSurfaceHistory {
			return
		}
		if err := s.surface.GoBack(ctx); err != nil {
			slog.Warn("surface go back failed", "error", err)
		}
	})
	if err != nil {
		return history.PassThrough, err
	}
	return action, nil
}

// OpenLink routes a deep link through the policy. Links that belong to the
// allowed origin are loaded in the surface, leaving the error view if needed.
func (s *Shell) OpenLink(ctx context.Context, url string) (navpolicy.Decision, error) {
	if strings.TrimSpace(url) == "" {
		return navpolicy.Block, newError(CodeValidation, "url is required", nil)
	}
	var d navpolicy.Decision
	err := s.do(ctx, func() {
		d = s.decide(navpolicy.Request{URL: url})
		if d != navpolicy.ContinueInSurface {
			return
		}
		if s.state.Phase == viewstate.Error {
			next, _, _ := s.state.ReloadRequested(url)
			s.setState(next, "deep_link")
		}
		if err := s.surface.Load(ctx, url); err != nil {
			s.fail("deep_link_failed", err)
		}
	})
	if err != nil {
		return navpolicy.Block, err
	}
	return d, nil
}

// State returns the current snapshot.
func (s *Shell) State(ctx context.Context) (viewstate.State, error) {
	var out viewstate.State
	if err := s.do(ctx, func() { out = s.state }); err != nil {
		return viewstate.State{}, err
	}
	return out, nil
}

// Origin returns the allowed origin the shell classifies against.
func (s *Shell) Origin() navpolicy.AllowedOrigin { return s.cfg.Origin }

// do runs fn on the loop and waits for it. A loop that stopped because its
// context ended counts as closed.
func (s *Shell) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(finished) }:
	case <-s.done:
		return errClosed
	case <-s.stopped:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return errClosed
	case <-s.stopped:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Shell) decide(req navpolicy.Request) navpolicy.Decision {
	d := navpolicy.Classify(req, s.cfg.Origin)
	switch d {
	case navpolicy.Block:
		slog.Debug("navigation blocked", "code", CodeNavigationBlocked, "url", req.URL, "subframe", req.Subframe)
	case navpolicy.DelegateExternal:
		slog.Info("navigation delegated externally", "url", req.URL)
		s.delegate(req.URL)
	}
	for _, o := range s.observers {
		o.OnDecision(req, d)
	}
	return d
}

func (s *Shell) delegate(url string) {
	if s.opener == nil {
		slog.Warn("external open skipped, no opener", "code", CodeDelegateFailure, "url", url)
		return
	}
	s.delegates.Add(1)
	go func() {
		defer s.delegates.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DelegateTimeout)
		defer cancel()
		if err := s.opener.OpenExternally(ctx, url); err != nil {
			slog.Warn("external open failed", "code", CodeDelegateFailure, "url", url, "error", err)
		}
	}()
}

func (s *Shell) apply(sig Signal) {
	prev := s.state
	var next viewstate.State
	switch sig.Kind {
	case SignalStart:
		next = prev.NavigationStart(sig.URL)
	case SignalCommit:
		next = prev.NavigationCommitted(sig.URL, sig.CanGoBack)
	case SignalLoadEnd:
		next = prev.LoadEnd()
	case SignalLoadError:
		slog.Warn("surface load failed", "code", CodeLoadFailure, "url", prev.CurrentURL, "error", sig.Err)
		next = prev.LoadError()
	default:
		slog.Debug("unknown surface signal", "kind", int(sig.Kind))
		return
	}
	s.setState(next, sig.Kind.String())
}

func (s *Shell) fail(cause string, err error) {
	slog.Warn("surface command failed", "code", CodeLoadFailure, "cause", cause, "error", err)
	s.setState(s.state.LoadError(), cause)
}

func (s *Shell) setState(next viewstate.State, cause string) {
	prev := s.state
	if next == prev {
		return
	}
	s.state = next
	if prev.Phase != next.Phase {
		slog.Info("view phase changed", "from", prev.Phase, "to", next.Phase, "cause", cause, "url", next.CurrentURL)
	}
	for _, o := range s.observers {
		o.OnState(prev, next, cause)
	}
}

// IsClosed reports whether err came from a closed shell.
func IsClosed(err error) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == CodeShellClosed
}
