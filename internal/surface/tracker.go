package surface

import (
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/shell"
)

// ignoredLoadErrors are document failures that are not load failures from
// the user's point of view: our own blocks and superseded navigations.
var ignoredLoadErrors = []string{
	"net::ERR_BLOCKED_BY_CLIENT",
	"net::ERR_ABORTED",
}

// outcome is what one CDP event means for the shell.
type outcome struct {
	signal  shell.Signal
	emit    bool
	history bool // refresh back-history and emit a commit
	// settle asks for a LoadEnd once the tab stays idle: a main document
	// was dropped without committing and nothing replaced it.
	settle bool
	gen    uint64
}

// tracker maps raw CDP events from one tab onto lifecycle signals. It only
// follows document requests of the main frame.
type tracker struct {
	mu        sync.Mutex
	mainFrame cdp.FrameID
	docs      map[network.RequestID]struct{}
	// gen moves on every main-frame navigation attempt.
	gen uint64
}

func newTracker(mainFrame cdp.FrameID) *tracker {
	return &tracker{mainFrame: mainFrame, docs: make(map[network.RequestID]struct{})}
}

func (t *tracker) setMainFrame(id cdp.FrameID) {
	t.mu.Lock()
	t.mainFrame = id
	t.mu.Unlock()
}

// noteStart records a main-frame navigation the surface let through.
func (t *tracker) noteStart() {
	t.mu.Lock()
	t.gen++
	t.mu.Unlock()
}

// settled reports whether no main document started since gen and none is
// in flight.
func (t *tracker) settled(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen && len(t.docs) == 0
}

func (t *tracker) isMain(id cdp.FrameID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mainFrame == "" || id == t.mainFrame
}

// request builds the navigation request for a paused document load.
func (t *tracker) request(e *fetch.EventRequestPaused) navpolicy.Request {
	req := navpolicy.Request{Subframe: !t.isMain(e.FrameID)}
	if e.Request != nil {
		req.URL = e.Request.URL
		if e.Request.URLFragment != "" {
			req.URL += e.Request.URLFragment
		}
	}
	return req
}

// observe consumes one event and reports the resulting outcome.
func (t *tracker) observe(ev any) outcome {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeDocument && t.isMain(e.FrameID) {
			t.mu.Lock()
			t.docs[e.RequestID] = struct{}{}
			t.gen++
			t.mu.Unlock()
		}
	case *network.EventLoadingFinished:
		t.forget(e.RequestID)
	case *network.EventLoadingFailed:
		if !t.forget(e.RequestID) {
			return outcome{}
		}
		if e.Canceled || e.BlockedReason != "" || isIgnoredLoadError(e.ErrorText) {
			// Downloads, 204s and our own aborts leave the old document in
			// place. Settle unless another document is already on its way.
			t.mu.Lock()
			defer t.mu.Unlock()
			if len(t.docs) > 0 {
				return outcome{}
			}
			return outcome{settle: true, gen: t.gen}
		}
		return outcome{signal: shell.Signal{Kind: shell.SignalLoadError, Err: e.ErrorText}, emit: true}
	case *page.EventLoadEventFired:
		return outcome{signal: shell.Signal{Kind: shell.SignalLoadEnd}, emit: true}
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return outcome{}
		}
		t.setMainFrame(e.Frame.ID)
		if e.Frame.UnreachableURL != "" {
			// Chromium's error page; the failure itself arrives as
			// loadingFailed and the url to reload is the unreachable one.
			return outcome{}
		}
		return outcome{signal: shell.Signal{Kind: shell.SignalCommit, URL: e.Frame.URL + e.Frame.URLFragment}, history: true}
	case *page.EventNavigatedWithinDocument:
		if !t.isMain(e.FrameID) {
			return outcome{}
		}
		return outcome{signal: shell.Signal{Kind: shell.SignalCommit, URL: e.URL}, history: true}
	}
	return outcome{}
}

func (t *tracker) forget(id network.RequestID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.docs[id]
	delete(t.docs, id)
	return ok
}

func isIgnoredLoadError(text string) bool {
	for _, s := range ignoredLoadErrors {
		if strings.EqualFold(text, s) {
			return true
		}
	}
	return false
}
