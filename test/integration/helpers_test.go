//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	Client  *http.Client
}

// waitReady polls /api/v1/state until the first load has settled.
func (e *Env) waitReady(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var phase string
	for time.Now().Before(deadline) {
		resp, err := e.Client.Get(e.BaseURL + "/api/v1/state")
		if err != nil {
			return "", fmt.Errorf("webshell not reachable at %s: %w", e.BaseURL, err)
		}
		var st shellState
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("decode state: %w", err)
		}
		phase = st.Phase
		if phase != "LOADING" {
			return phase, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return phase, fmt.Errorf("surface still %s after %s", phase, timeout)
}

// shellState mirrors the JSON shape from /api/v1/state.
type shellState struct {
	Phase      string `json:"phase"`
	CurrentURL string `json:"current_url"`
	CanGoBack  bool   `json:"can_go_back"`
	Attempt    uint64 `json:"attempt"`
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("WEBSHELL_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8190"
	}

	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}

	phase, err := env.waitReady(30 * time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: webshell at %s is %s\n", env.BaseURL, phase)

	os.Exit(m.Run())
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("POST %s: marshal body: %v", path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("POST %s: new request: %v", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// --- Assertion helpers ---

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
