package feed

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// kindFilter parses ?kinds=state,decision. A nil filter passes everything.
func kindFilter(r *http.Request) map[string]bool {
	q := r.URL.Query().Get("kinds")
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, k := range strings.Split(q, ",") {
		if k = strings.TrimSpace(k); k != "" {
			filter[k] = true
		}
	}
	return filter
}

func wants(filter map[string]bool, kind string) bool {
	return filter == nil || filter[kind]
}

// SSEHandler streams feed events as server-sent events.
func (f *Feed) SSEHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		filter := kindFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := f.broker.Subscribe()
		defer f.broker.Unsubscribe(id)

		if last, ok := f.Last(); ok && wants(filter, last.Kind) {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", last.Kind, last.Payload)
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !wants(filter, evt.Kind) {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// WSHandler upgrades to a WebSocket and writes each event as one text
// frame of the form {"kind":...,"data":...}.
func (f *Feed) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := kindFilter(r)
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := f.broker.Subscribe()
		defer f.broker.Unsubscribe(id)

		// Reader side only watches for the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		send := func(evt Event) bool {
			frame := fmt.Appendf(nil, `{"kind":%q,"data":%s}`, evt.Kind, evt.Payload)
			if err := wsutil.WriteServerText(conn, frame); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return false
			}
			return true
		}

		if last, ok := f.Last(); ok && wants(filter, last.Kind) {
			if !send(last) {
				return
			}
		}
		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "feed closed"))
					return
				}
				if !wants(filter, evt.Kind) {
					continue
				}
				if !send(evt) {
					return
				}
			}
		}
	}
}
