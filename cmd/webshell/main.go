package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dgnsrekt/webshell/internal/api"
	"github.com/dgnsrekt/webshell/internal/browser"
	"github.com/dgnsrekt/webshell/internal/config"
	"github.com/dgnsrekt/webshell/internal/controller"
	"github.com/dgnsrekt/webshell/internal/external"
	"github.com/dgnsrekt/webshell/internal/feed"
	"github.com/dgnsrekt/webshell/internal/journal"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/netutil"
	"github.com/dgnsrekt/webshell/internal/platform"
	"github.com/dgnsrekt/webshell/internal/shell"
	"github.com/dgnsrekt/webshell/internal/surface"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	origin, err := navpolicy.NewAllowedOrigin(cfg.AllowedOrigin)
	if err != nil {
		slog.Error("invalid allowed origin", "allowed_origin", cfg.AllowedOrigin, "error", err)
		os.Exit(1)
	}

	slog.Info("webshell config loaded",
		"start_url", cfg.StartURL,
		"allowed_host", origin.Host(),
		"allowed_domain", origin.Domain(),
		"profile", cfg.ProfilePath,
		"cdp_url", cfg.CDPURL(),
		"launch_browser", cfg.LaunchBrowser,
		"app_mode", cfg.AppMode,
		"external_mode", cfg.ExternalMode,
		"bind_addr", cfg.BindAddr,
		"journal_dir", cfg.JournalDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	if err := run(cfg, origin); err != nil {
		slog.Error("webshell exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, origin navpolicy.AllowedOrigin) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindFallbacks, cfg.AutoFallback)
	if err != nil {
		return err
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			AppMode:    cfg.AppMode,
			Kiosk:      cfg.Kiosk,
			Headless:   cfg.Headless,
			WindowSize: cfg.WindowSize,
		})
		if err := launcher.Launch(ctx); err != nil {
			return err
		}
		defer launcher.Stop()
	}

	opener, err := external.New(external.Config{
		Mode:       cfg.ExternalMode,
		WebhookURL: cfg.WebhookURL,
		Timeout:    cfg.DelegateTimeout(),
		RetryMax:   cfg.WebhookRetries,
	})
	if err != nil {
		return err
	}

	broker := feed.NewBroker()
	stateFeed := feed.New(broker)
	observers := []shell.Observer{stateFeed}

	if cfg.JournalDir != "" {
		j := journal.New(journal.NewWriter(cfg.JournalDir, "webshell", cfg.JournalBuffer, cfg.JournalMaxSizeMB))
		defer func() {
			if err := j.Close(); err != nil {
				slog.Warn("journal close failed", "error", err)
			}
		}()
		observers = append(observers, j)
	}

	tabFilter := cfg.TabURLFilter
	if tabFilter == "" {
		tabFilter = origin.Domain()
	}
	client := surface.NewClient(surface.Config{
		CDPURL:         cfg.CDPURL(),
		TabURLFilter:   tabFilter,
		InjectedScript: injectedScript(cfg.DisableSelection, cfg.InjectedScript),
		CommandTimeout: cfg.CommandTimeout(),
	})

	sh := shell.New(shell.Config{
		Origin:          origin,
		InitialURL:      cfg.StartURL,
		DelegateTimeout: cfg.DelegateTimeout(),
	}, client, opener, observers...)

	loopDone := make(chan error, 1)
	go func() { loopDone <- sh.Run(ctx) }()

	if err := client.Connect(ctx, sh); err != nil {
		_ = sh.Close()
		return err
	}

	// An unconsumed back press leaves the app, like the last screen of a
	// mobile stack.
	host := platform.NewHost(func(context.Context) {
		slog.Info("back press passed through, shutting down")
		cancel()
	})
	release := sh.Attach(host)
	defer release()

	if err := sh.Start(ctx); err != nil {
		slog.Warn("initial load failed", "url", cfg.StartURL, "error", err)
	}

	svc := controller.NewService(sh, host)
	h := api.NewServer(svc, api.Streams{
		Events:    stateFeed.SSEHandler(),
		WebSocket: stateFeed.WSHandler(),
	})
	srv := &http.Server{Addr: bindAddr, Handler: h}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("control api listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown requested")
	case err := <-serveErr:
		runErr = err
	case err := <-loopDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}
	cancel()

	// Close the shell first so handlers waiting on its loop return, and drop
	// the streams before Shutdown waits on open connections.
	if err := sh.Close(); err != nil {
		slog.Warn("shell close failed", "error", err)
	}
	broker.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("control api shutdown failed", "error", err)
	}
	if err := client.Close(); err != nil {
		slog.Warn("surface close failed", "error", err)
	}
	return runErr
}

func injectedScript(disableSelection bool, extra string) string {
	var parts []string
	if disableSelection {
		parts = append(parts, surface.DisableSelectionScript)
	}
	if s := strings.TrimSpace(extra); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(level, filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h))
	return nil
}
