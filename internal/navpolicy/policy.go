// Package navpolicy decides whether a navigation stays inside the embedded
// surface, is handed to an external browser, or is dropped.
package navpolicy

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Decision is the outcome of classifying a navigation request.
type Decision int

const (
	Block Decision = iota
	ContinueInSurface
	DelegateExternal
)

func (d Decision) String() string {
	switch d {
	case ContinueInSurface:
		return "CONTINUE_IN_SURFACE"
	case DelegateExternal:
		return "DELEGATE_EXTERNAL"
	default:
		return "BLOCK"
	}
}

// MarshalText lets decisions render as their names in JSON bodies and logs.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "CONTINUE_IN_SURFACE":
		*d = ContinueInSurface
	case "DELEGATE_EXTERNAL":
		*d = DelegateExternal
	case "BLOCK":
		*d = Block
	default:
		return fmt.Errorf("unknown decision %q", text)
	}
	return nil
}

// Request is a single navigation attempt reported by the surface.
// The zero value of Subframe describes a top-level navigation.
type Request struct {
	URL      string
	Subframe bool
}

// AllowedOrigin is the origin family the surface is confined to.
type AllowedOrigin struct {
	host   string
	domain string
}

// NewAllowedOrigin builds the allowed origin from a base URL such as
// "https://www.7publi.com/" or a bare host such as "7publi.com".
func NewAllowedOrigin(base string) (AllowedOrigin, error) {
	raw := strings.TrimSpace(base)
	if raw == "" {
		return AllowedOrigin{}, fmt.Errorf("allowed origin is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return AllowedOrigin{}, fmt.Errorf("parse allowed origin %q: %w", base, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return AllowedOrigin{}, fmt.Errorf("allowed origin %q has no host", base)
	}
	return AllowedOrigin{host: host, domain: registrableDomain(host)}, nil
}

// MustAllowedOrigin is NewAllowedOrigin for package-level constants and tests.
func MustAllowedOrigin(base string) AllowedOrigin {
	o, err := NewAllowedOrigin(base)
	if err != nil {
		panic(err)
	}
	return o
}

// Host returns the canonical host the origin was built from.
func (o AllowedOrigin) Host() string { return o.host }

// Domain returns the registrable domain matched against, or the bare host
// when it has none (IP literals, single-label names).
func (o AllowedOrigin) Domain() string { return o.domain }

// Contains reports whether host belongs to the origin family.
func (o AllowedOrigin) Contains(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || o.host == "" {
		return false
	}
	if o.domain == "" {
		return host == o.host
	}
	return registrableDomain(host) == o.domain
}

// Classify applies the navigation rules in order: non-web schemes and
// malformed URLs are blocked, the allowed origin family continues in the
// surface, and any other top-level navigation is delegated externally.
// Subframe loads of foreign origins stay in the surface.
func Classify(req Request, allowed AllowedOrigin) Decision {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return Block
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Block
	}
	host := u.Hostname()
	if host == "" {
		return Block
	}
	if allowed.Contains(host) {
		return ContinueInSurface
	}
	if req.Subframe {
		return ContinueInSurface
	}
	return DelegateExternal
}

// registrableDomain returns the eTLD+1 of host, or "" when host is an IP
// literal or has no registrable part.
func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return strings.ToLower(d)
}
