// Package platform stands in for the host OS signals a shell listens to:
// the hardware back button and incoming deep links. Listeners are scoped
// subscriptions that must be released.
package platform

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// BackHandler returns true when it consumed the press.
type BackHandler func(ctx context.Context) bool

// LinkHandler receives a url the OS asked the app to open.
type LinkHandler func(ctx context.Context, url string)

// Subscription releases a listener. Release is safe to call more than once.
type Subscription interface {
	Release()
}

type releaseFunc struct {
	once sync.Once
	fn   func()
}

func (r *releaseFunc) Release() { r.once.Do(r.fn) }

// Host dispatches back presses and deep links to subscribers.
type Host struct {
	mu    sync.RWMutex
	back  []backEntry
	links []linkEntry
	seq   atomic.Int64

	defaultBack func(ctx context.Context)
}

type backEntry struct {
	id int64
	fn BackHandler
}

type linkEntry struct {
	id int64
	fn LinkHandler
}

// NewHost returns a host whose unconsumed back presses call defaultBack.
// A nil defaultBack makes unconsumed presses a no-op.
func NewHost(defaultBack func(ctx context.Context)) *Host {
	return &Host{defaultBack: defaultBack}
}

// OnBack registers fn. Later registrations run first, like a stack of
// screens each getting the first chance at the press.
func (h *Host) OnBack(fn BackHandler) Subscription {
	id := h.seq.Add(1)
	h.mu.Lock()
	h.back = append(h.back, backEntry{id: id, fn: fn})
	h.mu.Unlock()
	return &releaseFunc{fn: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, e := range h.back {
			if e.id == id {
				h.back = append(h.back[:i], h.back[i+1:]...)
				return
			}
		}
	}}
}

// OnLink registers fn for deep links.
func (h *Host) OnLink(fn LinkHandler) Subscription {
	id := h.seq.Add(1)
	h.mu.Lock()
	h.links = append(h.links, linkEntry{id: id, fn: fn})
	h.mu.Unlock()
	return &releaseFunc{fn: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, e := range h.links {
			if e.id == id {
				h.links = append(h.links[:i], h.links[i+1:]...)
				return
			}
		}
	}}
}

// PressBack delivers a back press. It reports whether a subscriber consumed
// it; otherwise the default behavior runs.
func (h *Host) PressBack(ctx context.Context) bool {
	h.mu.RLock()
	handlers := make([]backEntry, len(h.back))
	copy(handlers, h.back)
	h.mu.RUnlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		if handlers[i].fn(ctx) {
			return true
		}
	}
	slog.Info("back press not consumed, running host default")
	if h.defaultBack != nil {
		h.defaultBack(ctx)
	}
	return false
}

// OpenLink delivers a deep link to every subscriber. It reports whether
// anyone was listening.
func (h *Host) OpenLink(ctx context.Context, url string) bool {
	h.mu.RLock()
	handlers := make([]linkEntry, len(h.links))
	copy(handlers, h.links)
	h.mu.RUnlock()

	if len(handlers) == 0 {
		slog.Warn("deep link dropped, no listener", "url", url)
		return false
	}
	for _, e := range handlers {
		e.fn(ctx, url)
	}
	return true
}

// Listeners returns the number of back and link subscribers.
func (h *Host) Listeners() (back, links int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.back), len(h.links)
}
