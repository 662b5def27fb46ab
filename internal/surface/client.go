// Package surface drives one Chromium page over CDP as the shell's embedded
// browsing surface. Document navigations are paused with the Fetch domain
// and held until the shell classifies them; page and network events become
// lifecycle signals.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/shell"
)

const (
	signalBufSize  = 1024
	commandBufSize = 32
	settleDelay    = 500 * time.Millisecond
)

// DisableSelectionScript turns off text selection on every document.
const DisableSelectionScript = `(() => {
  const apply = () => {
    const style = document.createElement('style');
    style.innerHTML = '* { user-select: none; -webkit-user-select: none; -ms-user-select: none; }';
    (document.head || document.documentElement).appendChild(style);
  };
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', apply, { once: true });
  } else {
    apply();
  }
})();`

var ErrClosed = errors.New("surface closed")

// Hooks is the shell side of the surface.
type Hooks interface {
	Intercept(ctx context.Context, req navpolicy.Request) navpolicy.Decision
	Post(ctx context.Context, sig shell.Signal) error
}

// Config holds surface attach settings.
type Config struct {
	CDPURL         string
	TabURLFilter   string
	InjectedScript string
	CommandTimeout time.Duration
}

type command struct {
	name string
	run  func(ctx context.Context) error
	// loads marks commands whose failure leaves the view without a page.
	loads bool
}

// Client is the CDP-backed surface.
type Client struct {
	cfg Config

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	targetID    target.ID

	hooks   Hooks
	tracker *tracker

	signals  chan shell.Signal
	commands chan command
	done     chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool

	runAction   func(ctx context.Context, a chromedp.Action) error
	settleDelay time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		tracker:  newTracker(""),
		signals:  make(chan shell.Signal, signalBufSize),
		commands: make(chan command, commandBufSize),
		done:     make(chan struct{}),

		runAction:   func(ctx context.Context, a chromedp.Action) error { return chromedp.Run(ctx, a) },
		settleDelay: settleDelay,
	}
}

// Connect attaches to the page matching the tab filter, or opens a new one,
// and starts intercepting document navigations on behalf of hooks.
func (c *Client) Connect(ctx context.Context, hooks Hooks) error {
	if c.cfg.CDPURL == "" {
		return fmt.Errorf("missing CDP URL")
	}
	c.hooks = hooks
	slog.Info("connecting to chromium", "url", c.cfg.CDPURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cfg.CDPURL)

	tempCtx, tempCancel := chromedp.NewContext(c.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		c.allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		c.allocCancel()
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	var opts []chromedp.ContextOption
	for _, t := range targets {
		if t.Type != "page" || !c.matchesTabURL(t.URL) {
			continue
		}
		c.targetID = t.TargetID
		opts = append(opts, chromedp.WithTargetID(t.TargetID))
		slog.Info("attaching to existing tab", "target_id", t.TargetID, "url", truncateURL(t.URL))
		break
	}
	if c.targetID == "" {
		slog.Info("no matching tab, opening a new one", "tab_url_filter", c.cfg.TabURLFilter)
	}

	c.tabCtx, c.tabCancel = chromedp.NewContext(c.allocCtx, opts...)
	chromedp.ListenTarget(c.tabCtx, c.handleEvent)

	patterns := []*fetch.RequestPattern{{
		URLPattern:   "*",
		ResourceType: network.ResourceTypeDocument,
		RequestStage: fetch.RequestStageRequest,
	}}
	err = chromedp.Run(c.tabCtx,
		network.Enable(),
		page.Enable(),
		fetch.Enable().WithPatterns(patterns),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			if tree != nil && tree.Frame != nil {
				c.tracker.setMainFrame(tree.Frame.ID)
			}
			if c.cfg.InjectedScript == "" {
				return nil
			}
			_, err = page.AddScriptToEvaluateOnNewDocument(c.cfg.InjectedScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		c.tabCancel()
		c.allocCancel()
		return fmt.Errorf("failed to enable page interception: %w", err)
	}

	c.wg.Add(2)
	go c.signalLoop()
	go c.commandLoop()

	slog.Info("surface attached", "target_id", c.targetID, "injected_script", c.cfg.InjectedScript != "")
	return nil
}

// Load queues a navigation to url.
func (c *Client) Load(ctx context.Context, url string) error {
	return c.enqueue(ctx, command{name: "load", loads: true, run: func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			slog.Debug("navigate reported error", "url", truncateURL(url), "error_text", errorText)
		}
		return nil
	}})
}

// GoBack queues a step back in the page's history.
func (c *Client) GoBack(ctx context.Context) error {
	return c.enqueue(ctx, command{name: "go_back", run: func(ctx context.Context) error {
		idx, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		if idx <= 0 || int(idx) >= len(entries) {
			return nil
		}
		return page.NavigateToHistoryEntry(entries[idx-1].ID).Do(ctx)
	}})
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	if c.tabCancel != nil {
		c.tabCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	slog.Info("surface closed")
	return nil
}

func (c *Client) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.commands <- cmd:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleEvent runs on chromedp's event goroutine and must not block.
func (c *Client) handleEvent(ev any) {
	if e, ok := ev.(*fetch.EventRequestPaused); ok {
		go c.resolvePaused(e)
		return
	}
	out := c.tracker.observe(ev)
	if out.history {
		url := out.signal.URL
		select {
		case c.commands <- command{name: "history", run: func(ctx context.Context) error {
			return c.postCommit(ctx, url)
		}}:
		default:
			slog.Warn("surface command queue full, committing without history", "url", truncateURL(url))
			c.emit(out.signal)
		}
		return
	}
	if out.settle {
		gen := out.gen
		time.AfterFunc(c.settleDelay, func() {
			if c.tracker.settled(gen) {
				slog.Debug("main document dropped without replacement, settling")
				c.emit(shell.Signal{Kind: shell.SignalLoadEnd})
			}
		})
		return
	}
	if out.emit {
		c.emit(out.signal)
	}
}

// resolvePaused asks the shell about a paused document request and
// continues or fails it.
func (c *Client) resolvePaused(e *fetch.EventRequestPaused) {
	req := c.tracker.request(e)
	ctx, cancel := context.WithTimeout(c.tabCtx, c.cfg.CommandTimeout)
	defer cancel()

	decision := c.hooks.Intercept(ctx, req)
	slog.Debug("document request classified", "url", truncateURL(req.URL), "subframe", req.Subframe, "decision", decision)

	action, start := pausedAction(e.RequestID, req, decision)
	if start {
		c.tracker.noteStart()
		c.emit(shell.Signal{Kind: shell.SignalStart, URL: req.URL})
	}
	if err := c.runAction(ctx, action); err != nil {
		slog.Warn("failed to resolve paused request", "url", truncateURL(req.URL), "decision", decision, "error", err)
	}
}

// pausedAction maps a decision onto the Fetch command that releases the
// request, and reports whether the shell sees a navigation start. Refused
// requests are aborted: an aborted navigation leaves the current document
// in place, any other failure reason commits an error page.
func pausedAction(id fetch.RequestID, req navpolicy.Request, d navpolicy.Decision) (chromedp.Action, bool) {
	if d == navpolicy.ContinueInSurface {
		return fetch.ContinueRequest(id), !req.Subframe
	}
	return fetch.FailRequest(id, network.ErrorReasonAborted), false
}

func (c *Client) postCommit(ctx context.Context, url string) error {
	idx, _, err := page.GetNavigationHistory().Do(ctx)
	if err != nil {
		c.emit(shell.Signal{Kind: shell.SignalCommit, URL: url})
		return err
	}
	c.emit(shell.Signal{Kind: shell.SignalCommit, URL: url, CanGoBack: idx > 0})
	return nil
}

func (c *Client) emit(sig shell.Signal) {
	select {
	case c.signals <- sig:
	default:
		slog.Warn("surface signal buffer full, dropping signal", "kind", sig.Kind)
	}
}

func (c *Client) signalLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case sig := <-c.signals:
			if err := c.hooks.Post(c.tabCtx, sig); err != nil {
				slog.Debug("signal not delivered", "kind", sig.Kind, "error", err)
			}
		}
	}
}

func (c *Client) commandLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.commands:
			ctx, cancel := context.WithTimeout(c.tabCtx, c.cfg.CommandTimeout)
			err := c.runAction(ctx, chromedp.ActionFunc(cmd.run))
			cancel()
			if err == nil {
				continue
			}
			slog.Warn("surface command failed", "command", cmd.name, "error", err)
			if cmd.loads {
				c.emit(shell.Signal{Kind: shell.SignalLoadError, Err: err.Error()})
			}
		}
	}
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
