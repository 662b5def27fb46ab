package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestJournalWritesDecisionsAndTransitions(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	w := newWriter(dir, "shell", 16, 1, func() time.Time { return fixed })
	j := New(w)
	j.now = func() time.Time { return fixed }

	j.OnDecision(navpolicy.Request{URL: "https://accounts.google.com/o/oauth2"}, navpolicy.DelegateExternal)
	j.OnState(
		viewstate.State{Phase: viewstate.Loading, CurrentURL: "https://www.7publi.com/"},
		viewstate.State{Phase: viewstate.Error, CurrentURL: "https://www.7publi.com/", Attempt: 1},
		"load_error",
	)
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "2026-03-04", "shell.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d; want 2", len(lines))
	}

	dec := lines[0]
	if dec["kind"] != KindDecision || dec["decision"] != "DELEGATE_EXTERNAL" || dec["url"] != "https://accounts.google.com/o/oauth2" {
		t.Fatalf("decision line = %v", dec)
	}
	if _, ok := dec["subframe"]; ok {
		t.Fatalf("main-frame decision should omit subframe: %v", dec)
	}

	tr := lines[1]
	if tr["kind"] != KindTransition || tr["from"] != "LOADING" || tr["to"] != "ERROR" || tr["cause"] != "load_error" {
		t.Fatalf("transition line = %v", tr)
	}
	if tr["attempt"] != float64(1) {
		t.Fatalf("attempt = %v", tr["attempt"])
	}
}

func TestWriterRotatesByDate(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)
	clock := func() time.Time { return day }
	w := newWriter(dir, "shell", 16, 1, func() time.Time { return clock() })

	// Write synchronously through the record path to control the clock.
	w.writeRecord(map[string]string{"n": "1"})
	day = day.Add(2 * time.Minute)
	w.writeRecord(map[string]string{"n": "2"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, date := range []string{"2026-03-04", "2026-03-05"} {
		if lines := readLines(t, filepath.Join(dir, date, "shell.jsonl")); len(lines) != 1 {
			t.Fatalf("%s lines = %d; want 1", date, len(lines))
		}
	}
}

func TestWriterRejectsAfterClose(t *testing.T) {
	w := NewWriter(t.TempDir(), "shell", 4, 1)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Write(map[string]int{"a": 1}); err == nil {
		t.Fatal("expected error writing to closed writer")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := &Writer{name: "full", writeCh: make(chan any, 1), done: make(chan struct{})}
	if err := w.Write(1); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	if err := w.Write(2); err == nil {
		t.Fatal("expected buffer full error")
	}
}
