// Package external hands urls that leave the allowed origin to something
// outside the surface: the desktop's default browser or a webhook.
package external

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	ModeSystem  = "system"
	ModeWebhook = "webhook"
	ModeLog     = "log"
)

// Opener is the common shape of every delegate.
type Opener interface {
	OpenExternally(ctx context.Context, url string) error
}

// Config selects and configures a delegate.
type Config struct {
	Mode       string
	WebhookURL string
	Timeout    time.Duration
	RetryMax   int
}

// New builds the delegate for cfg.Mode.
func New(cfg Config) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeSystem:
		return NewSystemBrowser(), nil
	case ModeWebhook:
		return NewWebhook(cfg.WebhookURL, WebhookOptions{Timeout: cfg.Timeout, RetryMax: cfg.RetryMax})
	case ModeLog:
		return LogOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown external mode %q (want system, webhook or log)", cfg.Mode)
	}
}

// SystemBrowser opens urls with the desktop's url handler.
type SystemBrowser struct {
	command string
	args    []string
	run     func(ctx context.Context, name string, args ...string) error
}

func NewSystemBrowser() *SystemBrowser {
	name, args := systemCommand(runtime.GOOS)
	return &SystemBrowser{command: name, args: args, run: startDetached}
}

func systemCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}

func (b *SystemBrowser) OpenExternally(ctx context.Context, url string) error {
	args := append(append([]string{}, b.args...), url)
	if err := b.run(ctx, b.command, args...); err != nil {
		return fmt.Errorf("open %s with %s: %w", url, b.command, err)
	}
	slog.Info("opened url in system browser", "url", url, "command", b.command)
	return nil
}

// startDetached starts the handler without waiting for it; url handlers
// often stay alive as long as the browser they spawned. ctx only bounds the
// launch: the process outlives it.
func startDetached(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// LogOnly records the delegation and does nothing else. Useful for
// kiosks where leaving the surface is not allowed.
type LogOnly struct{}

func (LogOnly) OpenExternally(_ context.Context, url string) error {
	slog.Info("external open suppressed", "url", url)
	return nil
}
