// Package http_request provides the http_request handler, which fetches a URL
// and records the response.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/registry"
)

// Module implements the registry.Module interface for this package. A nil
// Client means http.DefaultClient.
type Module struct {
	Client *http.Client
}

// Input defines the arguments for the http_request handler.
type Input struct {
	URL     string            `hcl:"url"`
	Method  string            `hcl:"method,optional"`
	Headers map[string]string `hcl:"headers,optional"`

	// AllowErrorStatus records 4xx and 5xx responses instead of failing.
	AllowErrorStatus bool `hcl:"allow_error_status,optional"`
}

// Handler performs requests with its client.
type Handler struct {
	client *http.Client
}

// OnRunHttpRequest sends the request and records an object with the
// status_code and body of the response into every produced item.
func (h *Handler) OnRunHttpRequest(ctx context.Context, call *registry.Call) error {
	input := call.Input.(*Input)
	logger := ctxlog.FromContext(ctx)

	method := input.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, input.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	keys := make([]string, 0, len(input.Headers))
	for k := range input.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Header.Set(k, input.Headers[k])
	}

	logger.Debug("Making HTTP request.", "method", method, "url", input.URL)
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	logger.Debug("Received HTTP response.", "status", resp.Status, "bytes", len(body))

	if resp.StatusCode >= http.StatusBadRequest && !input.AllowErrorStatus {
		return fmt.Errorf("%s %s returned %s", method, input.URL, resp.Status)
	}
	return call.RecordAll(map[string]any{
		"status_code": int64(resp.StatusCode),
		"body":        string(body),
	})
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	h := &Handler{client: client}
	r.RegisterHandler("http_request", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Fn:       h.OnRunHttpRequest,
	})
}
