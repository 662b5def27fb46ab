// Package feed publishes the shell's view state and navigation decisions
// to live subscribers over SSE and WebSocket. A companion UI renders the
// loading and error views from it.
package feed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

const (
	KindState    = "state"
	KindDecision = "decision"
)

// StateMessage is the payload of a state event.
type StateMessage struct {
	State viewstate.State `json:"state"`
	Cause string          `json:"cause"`
	At    time.Time       `json:"at"`
}

// DecisionMessage is the payload of a decision event.
type DecisionMessage struct {
	URL      string             `json:"url"`
	Subframe bool               `json:"subframe"`
	Decision navpolicy.Decision `json:"decision"`
	At       time.Time          `json:"at"`
}

// Feed is a shell observer that republishes everything it sees.
type Feed struct {
	broker *Broker
	now    func() time.Time

	mu   sync.RWMutex
	last *Event
}

func New(broker *Broker) *Feed {
	return &Feed{broker: broker, now: time.Now}
}

func (f *Feed) Broker() *Broker { return f.broker }

func (f *Feed) OnState(_, next viewstate.State, cause string) {
	evt, ok := f.encode(KindState, StateMessage{State: next, Cause: cause, At: f.now().UTC()})
	if !ok {
		return
	}
	f.mu.Lock()
	f.last = &evt
	f.mu.Unlock()
	f.broker.Publish(evt)
}

func (f *Feed) OnDecision(req navpolicy.Request, d navpolicy.Decision) {
	evt, ok := f.encode(KindDecision, DecisionMessage{URL: req.URL, Subframe: req.Subframe, Decision: d, At: f.now().UTC()})
	if !ok {
		return
	}
	f.broker.Publish(evt)
}

// Last returns the most recent state event, so new subscribers can render
// immediately.
func (f *Feed) Last() (Event, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return Event{}, false
	}
	return *f.last, true
}

func (f *Feed) encode(kind string, v any) (Event, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode feed event", "kind", kind, "error", err)
		return Event{}, false
	}
	return Event{Kind: kind, Payload: data}, true
}
