package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML file bundling the site-specific settings of one shell
// build, so the same binary can wrap different sites.
type Profile struct {
	StartURL         string           `yaml:"start_url"`
	AllowedOrigin    string           `yaml:"allowed_origin,omitempty"`
	InjectedScript   string           `yaml:"injected_script,omitempty"`
	DisableSelection *bool            `yaml:"disable_selection,omitempty"`
	External         *ExternalProfile `yaml:"external,omitempty"`
	Window           *WindowProfile   `yaml:"window,omitempty"`
}

type ExternalProfile struct {
	Mode       string `yaml:"mode"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Retries    *int   `yaml:"retries,omitempty"`
}

type WindowProfile struct {
	Size  string `yaml:"size,omitempty"`
	App   *bool  `yaml:"app,omitempty"`
	Kiosk *bool  `yaml:"kiosk,omitempty"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shell profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("shell profile: %w", err)
	}
	if p.StartURL == "" {
		return nil, fmt.Errorf("shell profile: start_url is required")
	}
	if p.External != nil && p.External.Mode == "webhook" && p.External.WebhookURL == "" {
		return nil, fmt.Errorf("shell profile: external.webhook_url is required for webhook mode")
	}
	return &p, nil
}

func (p *Profile) apply(cfg *Config) {
	cfg.StartURL = p.StartURL
	if p.AllowedOrigin != "" {
		cfg.AllowedOrigin = p.AllowedOrigin
	}
	if p.InjectedScript != "" {
		cfg.InjectedScript = p.InjectedScript
	}
	if p.DisableSelection != nil {
		cfg.DisableSelection = *p.DisableSelection
	}
	if ext := p.External; ext != nil {
		if ext.Mode != "" {
			cfg.ExternalMode = ext.Mode
		}
		if ext.WebhookURL != "" {
			cfg.WebhookURL = ext.WebhookURL
		}
		if ext.Retries != nil {
			cfg.WebhookRetries = *ext.Retries
		}
	}
	if w := p.Window; w != nil {
		if w.Size != "" {
			cfg.WindowSize = w.Size
		}
		if w.App != nil {
			cfg.AppMode = *w.App
		}
		if w.Kiosk != nil {
			cfg.Kiosk = *w.Kiosk
		}
	}
}
