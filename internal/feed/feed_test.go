package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

func waitForClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d; want %d", b.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBrokerFanOutAndUnsubscribe(t *testing.T) {
	b := NewBroker()
	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Publish(Event{Kind: KindState, Payload: []byte(`{}`)})
	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Kind != KindState {
				t.Fatalf("kind = %q", evt.Kind)
			}
		default:
			t.Fatal("subscriber did not receive event")
		}
	}

	b.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if got := b.ClientCount(); got != 1 {
		t.Fatalf("client count = %d; want 1", got)
	}
	b.Unsubscribe(id1)

	b.Close()
	if _, ok := <-ch2; ok {
		t.Fatal("channel should be closed after broker close")
	}
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker()
	_, _ = b.Subscribe()
	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(Event{Kind: KindDecision})
	}
	if got := b.Dropped(); got != 10 {
		t.Fatalf("dropped = %d; want 10", got)
	}
}

func TestFeedPublishesStateAndKeepsLast(t *testing.T) {
	f := New(NewBroker())
	f.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if _, ok := f.Last(); ok {
		t.Fatal("Last() should be empty before any state")
	}

	_, ch := f.Broker().Subscribe()
	next := viewstate.State{Phase: viewstate.Ready, CurrentURL: "https://www.7publi.com/", Attempt: 1}
	f.OnState(viewstate.Initial("https://www.7publi.com/"), next, "load_end")
	f.OnDecision(navpolicy.Request{URL: "https://accounts.google.com/o/oauth2"}, navpolicy.DelegateExternal)

	evt := <-ch
	if evt.Kind != KindState {
		t.Fatalf("first event kind = %q", evt.Kind)
	}
	var msg StateMessage
	if err := json.Unmarshal(evt.Payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.State != next || msg.Cause != "load_end" || !msg.At.Equal(f.now()) {
		t.Fatalf("state message = %+v", msg)
	}
	if !strings.Contains(string(evt.Payload), `"phase":"READY"`) {
		t.Fatalf("payload = %s; want textual phase", evt.Payload)
	}

	dec := <-ch
	if dec.Kind != KindDecision || !strings.Contains(string(dec.Payload), `"decision":"DELEGATE_EXTERNAL"`) {
		t.Fatalf("decision event = %s %s", dec.Kind, dec.Payload)
	}

	last, ok := f.Last()
	if !ok || last.Kind != KindState {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}
}

func TestSSEHandlerReplaysLastAndStreams(t *testing.T) {
	f := New(NewBroker())
	f.OnState(viewstate.State{}, viewstate.State{Phase: viewstate.Loading, CurrentURL: "https://www.7publi.com/"}, "navigation_start")

	srv := httptest.NewServer(f.SSEHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?kinds=state", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content-type = %q", got)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, data := readEvent()
	if name != KindState || !strings.Contains(data, `"phase":"LOADING"`) {
		t.Fatalf("replayed event = %s %s", name, data)
	}

	waitForClients(t, f.Broker(), 1)
	// Filtered out by ?kinds=state.
	f.OnDecision(navpolicy.Request{URL: "mailto:a@b.c"}, navpolicy.Block)
	f.OnState(viewstate.State{}, viewstate.State{Phase: viewstate.Error, CurrentURL: "https://www.7publi.com/"}, "load_error")

	name, data = readEvent()
	if name != KindState || !strings.Contains(data, `"phase":"ERROR"`) {
		t.Fatalf("streamed event = %s %s", name, data)
	}
}

func TestWSHandlerStreamsFrames(t *testing.T) {
	f := New(NewBroker())
	srv := httptest.NewServer(f.WSHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForClients(t, f.Broker(), 1)
	f.OnDecision(navpolicy.Request{URL: "https://accounts.google.com/o/oauth2"}, navpolicy.DelegateExternal)

	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame struct {
		Kind string          `json:"kind"`
		Data DecisionMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if frame.Kind != KindDecision || frame.Data.Decision != navpolicy.DelegateExternal {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Data.URL != "https://accounts.google.com/o/oauth2" {
		t.Fatalf("url = %q", frame.Data.URL)
	}

	_ = conn.Close()
	waitForClients(t, f.Broker(), 0)
}
