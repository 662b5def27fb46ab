package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/webshell/internal/navpolicy"
	"github.com/dgnsrekt/webshell/internal/viewstate"
)

type stateOutput struct {
	Body viewstate.State
}

type linkInput struct {
	Body struct {
		URL string `json:"url" doc:"Deep link to open" minLength:"1"`
	}
}

type classifyInput struct {
	Body struct {
		URL      string `json:"url" doc:"URL of the navigation attempt"`
		Subframe bool   `json:"subframe,omitempty" doc:"True when the attempt targets an embedded frame"`
	}
}

type classifyOutput struct {
	Body struct {
		URL      string             `json:"url"`
		Subframe bool               `json:"subframe"`
		Decision navpolicy.Decision `json:"decision"`
	}
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func registerShellHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/state", Summary: "Current view state", Tags: []string{"Shell"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			st, err := svc.State(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reload", Method: http.MethodPost, Path: "/api/v1/reload", Summary: "Retry loading the current page", Description: "Ignored while a load is already in flight.", Tags: []string{"Shell"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			st, err := svc.Reload(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &stateOutput{Body: st}, nil
		})

	type backOutput struct {
		Body struct {
			Handled bool `json:"handled" doc:"False means the host default back action ran"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "press-back", Method: http.MethodPost, Path: "/api/v1/back", Summary: "Deliver a hardware back press", Tags: []string{"Host"}},
		func(ctx context.Context, input *struct{}) (*backOutput, error) {
			handled, err := svc.PressBack(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &backOutput{}
			out.Body.Handled = handled
			return out, nil
		})

	type linkOutput struct {
		Body LinkResult
	}
	huma.Register(api, huma.Operation{OperationID: "open-link", Method: http.MethodPost, Path: "/api/v1/links", Summary: "Deliver a deep link", Tags: []string{"Host"}},
		func(ctx context.Context, input *linkInput) (*linkOutput, error) {
			url := strings.TrimSpace(input.Body.URL)
			if url == "" {
				return nil, huma.Error400BadRequest("url is required")
			}
			res, err := svc.OpenLink(ctx, url)
			if err != nil {
				return nil, mapErr(err)
			}
			return &linkOutput{Body: res}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "classify", Method: http.MethodPost, Path: "/api/v1/classify", Summary: "Classify a URL without navigating", Tags: []string{"Policy"}},
		func(ctx context.Context, input *classifyInput) (*classifyOutput, error) {
			req := navpolicy.Request{URL: input.Body.URL, Subframe: input.Body.Subframe}
			d, err := svc.Classify(ctx, req)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &classifyOutput{}
			out.Body.URL = req.URL
			out.Body.Subframe = req.Subframe
			out.Body.Decision = d
			return out, nil
		})
}
