package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/webshell/internal/netutil"
	"github.com/joho/godotenv"
)

const DefaultStartURL = "https://www.7publi.com/"

// Config holds all configuration for the webshell binary.
type Config struct {
	// What the surface shows.
	StartURL         string
	AllowedOrigin    string
	DisableSelection bool
	InjectedScript   string

	// CDP connection and browser launch.
	CDPAddress    string
	CDPPort       int
	TabURLFilter  string
	LaunchBrowser bool
	AppMode       bool
	Kiosk         bool
	Headless      bool
	ProfileDir    string
	WindowSize    string

	// Control API.
	BindAddr      string
	BindFallbacks []string
	AutoFallback  bool

	// External delegation.
	ExternalMode   string
	WebhookURL     string
	WebhookRetries int

	// Timeouts.
	DelegateTimeoutMS int
	CommandTimeoutMS  int

	// Logging and journal.
	LogLevel         string
	LogFile          string
	JournalDir       string
	JournalMaxSizeMB int
	JournalBuffer    int

	// ProfilePath is the YAML profile that was applied, if any.
	ProfilePath string
}

func defaults() *Config {
	return &Config{
		StartURL:          DefaultStartURL,
		DisableSelection:  true,
		CDPAddress:        "127.0.0.1",
		CDPPort:           9220,
		LaunchBrowser:     true,
		AppMode:           true,
		ProfileDir:        "./chromium_profile",
		WindowSize:        "412,915",
		BindAddr:          "127.0.0.1:8190",
		BindFallbacks:     []string{"127.0.0.1:8191", "127.0.0.1:8192"},
		AutoFallback:      true,
		ExternalMode:      "system",
		WebhookRetries:    3,
		DelegateTimeoutMS: 10000,
		CommandTimeoutMS:  30000,
		LogLevel:          "info",
		LogFile:           "logs/webshell.log",
		JournalDir:        "./journal",
		JournalMaxSizeMB:  25,
		JournalBuffer:     1024,
	}
}

// Load reads configuration from defaults, an optional YAML profile named
// by SHELL_PROFILE, then environment variables and an optional .env file.
// Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := defaults()
	if path := os.Getenv("SHELL_PROFILE"); path != "" {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		p.apply(cfg)
		cfg.ProfilePath = path
	}

	cfg.StartURL = getEnvOrDefault("SHELL_START_URL", cfg.StartURL)
	cfg.AllowedOrigin = getEnvOrDefault("SHELL_ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.DisableSelection = getEnvBoolOrDefault("SHELL_DISABLE_SELECTION", cfg.DisableSelection)

	cfg.CDPAddress = getEnvOrDefault("CHROMIUM_CDP_ADDRESS", cfg.CDPAddress)
	cfg.CDPPort = getEnvIntOrDefault("CHROMIUM_CDP_PORT", cfg.CDPPort)
	cfg.TabURLFilter = getEnvOrDefault("SHELL_TAB_URL_FILTER", cfg.TabURLFilter)
	cfg.LaunchBrowser = getEnvBoolOrDefault("SHELL_LAUNCH_BROWSER", cfg.LaunchBrowser)
	cfg.AppMode = getEnvBoolOrDefault("SHELL_APP_MODE", cfg.AppMode)
	cfg.Kiosk = getEnvBoolOrDefault("SHELL_KIOSK", cfg.Kiosk)
	cfg.Headless = getEnvBoolOrDefault("SHELL_HEADLESS", cfg.Headless)
	cfg.ProfileDir = getEnvOrDefault("CHROMIUM_PROFILE_DIR", cfg.ProfileDir)
	cfg.WindowSize = getEnvOrDefault("SHELL_WINDOW_SIZE", cfg.WindowSize)

	cfg.BindAddr = getEnvOrDefault("SHELL_BIND_ADDR", cfg.BindAddr)
	cfg.BindFallbacks = getEnvListOrDefault("SHELL_BIND_FALLBACKS", cfg.BindFallbacks)
	cfg.AutoFallback = getEnvBoolOrDefault("SHELL_BIND_AUTO_FALLBACK", cfg.AutoFallback)

	cfg.ExternalMode = strings.ToLower(getEnvOrDefault("SHELL_EXTERNAL_MODE", cfg.ExternalMode))
	cfg.WebhookURL = getEnvOrDefault("SHELL_EXTERNAL_WEBHOOK_URL", cfg.WebhookURL)
	cfg.WebhookRetries = getEnvIntOrDefault("SHELL_EXTERNAL_WEBHOOK_RETRIES", cfg.WebhookRetries)

	cfg.DelegateTimeoutMS = getEnvIntOrDefault("SHELL_DELEGATE_TIMEOUT_MS", cfg.DelegateTimeoutMS)
	cfg.CommandTimeoutMS = getEnvIntOrDefault("SHELL_COMMAND_TIMEOUT_MS", cfg.CommandTimeoutMS)

	cfg.LogLevel = strings.ToLower(getEnvOrDefault("SHELL_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = getEnvOrDefault("SHELL_LOG_FILE", cfg.LogFile)
	cfg.JournalDir = getEnvOrDefault("SHELL_JOURNAL_DIR", cfg.JournalDir)
	cfg.JournalMaxSizeMB = getEnvIntOrDefault("SHELL_JOURNAL_MAX_SIZE_MB", cfg.JournalMaxSizeMB)
	cfg.JournalBuffer = getEnvIntOrDefault("SHELL_JOURNAL_BUFFER_SIZE", cfg.JournalBuffer)

	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = cfg.StartURL
	}
	if cfg.DelegateTimeoutMS < 1000 {
		cfg.DelegateTimeoutMS = 1000
	}
	if cfg.CommandTimeoutMS < 1000 {
		cfg.CommandTimeoutMS = 1000
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("config: SHELL_START_URL is empty")
	}
	if c.CDPPort < 1 || c.CDPPort > 65535 {
		return fmt.Errorf("config: CHROMIUM_CDP_PORT out of range: %d", c.CDPPort)
	}
	switch c.ExternalMode {
	case "system", "log":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("config: SHELL_EXTERNAL_WEBHOOK_URL is required for webhook mode")
		}
	default:
		return fmt.Errorf("config: unknown SHELL_EXTERNAL_MODE %q", c.ExternalMode)
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return netutil.CDPURL(c.CDPAddress, c.CDPPort)
}

func (c *Config) DelegateTimeout() time.Duration {
	return time.Duration(c.DelegateTimeoutMS) * time.Millisecond
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
