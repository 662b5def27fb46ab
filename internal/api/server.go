// Package api serves the shell's local control surface: it plays the host
// platform for back presses and deep links and exposes view state.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/shell"
	"github.com/dgnsrekt/webshell/internal/viewstate"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	State(ctx context.Context) (viewstate.State, error)
	Reload(ctx context.Context) (viewstate.State, error)
	// PressBack delivers a hardware back press. It reports whether the
	// shell consumed it; otherwise the host default action has run.
	PressBack(ctx context.Context) (bool, error)
	// OpenLink delivers a deep link and reports how the policy sees it.
	OpenLink(ctx context.Context, url string) (LinkResult, error)
	Classify(ctx context.Context, req navpolicy.Request) (navpolicy.Decision, error)
}

// LinkResult is the outcome of a deep link delivery.
type LinkResult struct {
	Delivered bool               `json:"delivered"`
	Decision  navpolicy.Decision `json:"decision"`
}

// Streams are optional live endpoints mounted next to the JSON API.
type Streams struct {
	Events    http.HandlerFunc
	WebSocket http.HandlerFunc
}

func NewServer(svc Service, streams Streams) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Webshell Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if streams.Events != nil {
		router.Get("/api/v1/events", streams.Events)
	}
	if streams.WebSocket != nil {
		router.Get("/api/v1/ws", streams.WebSocket)
	}

	registerHealthHandlers(api)
	registerShellHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *shell.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case shell.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case shell.CodeNavigationBlocked:
			return huma.Error403Forbidden(coded.Message)
		case shell.CodeShellClosed:
			return huma.Error503ServiceUnavailable(coded.Message)
		case shell.CodeLoadFailure, shell.CodeDelegateFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("shell did not answer in time")
	}
	return huma.Error500InternalServerError(err.Error())
}
