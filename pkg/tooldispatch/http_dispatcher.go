package tooldispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPDispatcher executes tool calls against an external backend over
// plain request/response JSON, implementing the §6.2 wire contract
// ({tool, input} request, tool-specific result shape). Grounded on
// pkg/modelclient.HTTPClient's request-building/error-status pattern,
// adapted from a streaming SSE response to a single JSON response since
// tool dispatch is request/response, not a token stream.
type HTTPDispatcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDispatcher builds an HTTPDispatcher pointed at a tool backend
// (POST {baseURL}/v1/tools/dispatch).
func NewHTTPDispatcher(baseURL string, httpClient *http.Client) *HTTPDispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPDispatcher{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type dispatchRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

type dispatchResponse struct {
	Result  json.RawMessage `json:"result"`
	IsError bool            `json:"isError"`
	Error   string          `json:"error,omitempty"`
}

// Dispatch sends req to the backend and reports its result.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	body, err := json.Marshal(dispatchRequest{Tool: string(req.Tool), Input: req.Input})
	if err != nil {
		return Result{}, fmt.Errorf("encode tool request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/tools/dispatch", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build tool request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch tool %q: %w", req.Tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{IsError: true, Duration: time.Since(start)}, fmt.Errorf("dispatch tool %q: unexpected status %d", req.Tool, resp.StatusCode)
	}

	var env dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Result{}, fmt.Errorf("decode tool response for %q: %w", req.Tool, err)
	}

	return Result{
		Content:  string(env.Result),
		IsError:  env.IsError,
		Duration: time.Since(start),
	}, nil
}
