// Package controller adapts the shell and the host platform to the control
// API's Service interface.
package controller

import (
	"context"
	"strings"

	"github.com/dgnsrekt/webshell/internal/api"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/shell"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

// Shell is the part of *shell.Shell the controller needs.
type Shell interface {
	State(ctx context.Context) (viewstate.State, error)
	Reload(ctx context.Context) (viewstate.State, error)
	Origin() navpolicy.AllowedOrigin
}

// Host is the platform side that back presses and deep links go through.
type Host interface {
	PressBack(ctx context.Context) bool
	OpenLink(ctx context.Context, url string) bool
}

type Service struct {
	shell Shell
	host  Host
}

func NewService(sh Shell, host Host) *Service {
	return &Service{shell: sh, host: host}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &shell.CodedError{Code: shell.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) State(ctx context.Context) (viewstate.State, error) {
	return s.shell.State(ctx)
}

func (s *Service) Reload(ctx context.Context) (viewstate.State, error) {
	return s.shell.Reload(ctx)
}

// PressBack goes through the host so that subscription order and the
// default action behave exactly as for a physical key.
func (s *Service) PressBack(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.host.PressBack(ctx), nil
}

func (s *Service) OpenLink(ctx context.Context, url string) (api.LinkResult, error) {
	if err := s.requireNonEmpty(url, "url"); err != nil {
		return api.LinkResult{}, err
	}
	url = strings.TrimSpace(url)
	decision := navpolicy.Classify(navpolicy.Request{URL: url}, s.shell.Origin())
	delivered := s.host.OpenLink(ctx, url)
	return api.LinkResult{Delivered: delivered, Decision: decision}, nil
}

// Classify is a dry run: no navigation happens and nothing is delegated.
func (s *Service) Classify(ctx context.Context, req navpolicy.Request) (navpolicy.Decision, error) {
	if err := s.requireNonEmpty(req.URL, "url"); err != nil {
		return navpolicy.Block, err
	}
	return navpolicy.Classify(req, s.shell.Origin()), nil
}
