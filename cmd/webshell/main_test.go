package main

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/dgnsrekt/webshell/internal/surface"
)

func TestInjectedScript(t *testing.T) {
	if got := injectedScript(false, "  "); got != "" {
		t.Fatalf("injectedScript(false, blank) = %q", got)
	}
	got := injectedScript(true, "window.shell = true;")
	if !strings.HasPrefix(got, surface.DisableSelectionScript) {
		t.Fatalf("selection script missing: %q", got)
	}
	if !strings.HasSuffix(got, "\nwindow.shell = true;") {
		t.Fatalf("extra script missing: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
