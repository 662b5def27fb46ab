package journal

import (
	"time"

	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

const (
	KindDecision   = "decision"
	KindTransition = "transition"
)

// Record is one journal line.
type Record struct {
	Time time.Time `json:"ts"`
	Kind string    `json:"kind"`

	URL      string              `json:"url,omitempty"`
	Subframe bool                `json:"subframe,omitempty"`
	Decision *navpolicy.Decision `json:"decision,omitempty"`

	Cause     string           `json:"cause,omitempty"`
	From      *viewstate.Phase `json:"from,omitempty"`
	To        *viewstate.Phase `json:"to,omitempty"`
	CanGoBack bool             `json:"can_go_back,omitempty"`
	Attempt   uint64           `json:"attempt,omitempty"`
}

// Journal is a shell observer that appends every decision and state
// replacement to a Writer.
type Journal struct {
	w   *Writer
	now func() time.Time
}

func New(w *Writer) *Journal {
	return &Journal{w: w, now: time.Now}
}

func (j *Journal) OnDecision(req navpolicy.Request, d navpolicy.Decision) {
	_ = j.w.Write(Record{
		Time:     j.now().UTC(),
		Kind:     KindDecision,
		URL:      req.URL,
		Subframe: req.Subframe,
		Decision: &d,
	})
}

func (j *Journal) OnState(prev, next viewstate.State, cause string) {
	_ = j.w.Write(Record{
		Time:      j.now().UTC(),
		Kind:      KindTransition,
		URL:       next.CurrentURL,
		Cause:     cause,
		From:      &prev.Phase,
		To:        &next.Phase,
		CanGoBack: next.CanGoBack,
		Attempt:   next.Attempt,
	})
}

func (j *Journal) Close() error {
	return j.w.Close()
}
