package browser

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"testing"
	"time"
)

func TestBuildArgsAppMode(t *testing.T) {
	args := buildArgs(Config{
		CDPAddress: "127.0.0.1",
		CDPPort:    9222,
		StartURL:   "https://www.7publi.com/",
		ProfileDir: "/tmp/profile",
		AppMode:    true,
		WindowSize: "412,915",
	})

	for _, want := range []string{
		"--remote-debugging-port=9222",
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=/tmp/profile",
		"--window-size=412,915",
	} {
		if !slices.Contains(args, want) {
			t.Fatalf("args missing %q: %v", want, args)
		}
	}
	if last := args[len(args)-1]; last != "--app=https://www.7publi.com/" {
		t.Fatalf("last arg = %q, want app url", last)
	}
	if slices.Contains(args, "--kiosk") || slices.Contains(args, "--headless=new") {
		t.Fatalf("unexpected flags: %v", args)
	}
}

func TestBuildArgsWithoutAppMode(t *testing.T) {
	args := buildArgs(Config{CDPPort: 9222, StartURL: "https://www.7publi.com/", Kiosk: true, Headless: true})
	if last := args[len(args)-1]; last != "about:blank" {
		t.Fatalf("last arg = %q, want about:blank", last)
	}
	if !slices.Contains(args, "--kiosk") || !slices.Contains(args, "--headless=new") {
		t.Fatalf("missing kiosk/headless flags: %v", args)
	}
}

func TestNewLauncherDefaultsWindowSize(t *testing.T) {
	l := NewLauncher(Config{})
	if l.cfg.WindowSize != "412,915" {
		t.Fatalf("window size = %q", l.cfg.WindowSize)
	}
	if l.Running() {
		t.Fatal("new launcher should not be running")
	}
	l.Stop()
}

func TestWaitForCDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/140"}`))
	}))
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	if err := waitForCDP(context.Background(), host, port, 2*time.Second); err != nil {
		t.Fatalf("waitForCDP() error = %v", err)
	}
}

func TestWaitForCDPTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	if err := waitForCDP(context.Background(), "127.0.0.1", port, 600*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}
