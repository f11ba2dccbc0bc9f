package modelclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HTTPClient streams a model provider's Server-Sent-Events endpoint,
// replacing the teacher's generated-gRPC LLMClient (see DESIGN.md). It
// implements the same interface + channel-of-Chunk shape the teacher's
// GRPCLLMClient does.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewHTTPClient builds an HTTPClient pointed at a streaming completion
// endpoint (POST {baseURL}/v1/generate, SSE response).
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        slog.With("component", "modelclient.http"),
	}
}

type sseEnvelope struct {
	Type string `json:"type"`
	// Generic payload fields, interpreted per Type.
	Text           string         `json:"text,omitempty"`
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolInput      map[string]any `json:"tool_input,omitempty"`
	InputTokens    int            `json:"input_tokens,omitempty"`
	OutputTokens   int            `json:"output_tokens,omitempty"`
	TotalTokens    int            `json:"total_tokens,omitempty"`
	ThinkingTokens int            `json:"thinking_tokens,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Generate streams a completion. The returned channel is closed once a
// CompleteChunk or ErrorChunk has been delivered, or ctx is cancelled.
func (c *HTTPClient) Generate(ctx context.Context, in GenerateInput) (<-chan Chunk, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("generate request: unexpected status %d", resp.StatusCode)
	}

	out := make(chan Chunk, 8)
	go c.pump(ctx, resp.Body, out)
	return out, nil
}

func (c *HTTPClient) pump(ctx context.Context, body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	br := bufio.NewReader(body)
	for {
		select {
		case <-ctx.Done():
			out <- ErrorChunk{Err: ctx.Err()}
			return
		default:
		}

		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSpace(line)
			if data, found := strings.CutPrefix(line, "data:"); found {
				data = strings.TrimSpace(data)
				if data == "" {
					continue
				}
				var env sseEnvelope
				if jsonErr := json.Unmarshal([]byte(data), &env); jsonErr != nil {
					c.log.Warn("skipping malformed SSE frame", "error", jsonErr)
					continue
				}
				if chunk, done := translate(env); chunk != nil {
					out <- chunk
					if done {
						return
					}
				}
			}
		}
		if err != nil {
			out <- CompleteChunk{}
			return
		}
	}
}

func translate(env sseEnvelope) (Chunk, bool) {
	switch env.Type {
	case "text":
		return TextChunk{Text: env.Text}, false
	case "thinking":
		return ThinkingChunk{Text: env.Text}, false
	case "tool_call":
		return ToolCallChunk{Call: ToolCall{ID: env.ToolCallID, Name: env.ToolName, Input: env.ToolInput}}, false
	case "usage":
		return UsageChunk{
			InputTokens:    env.InputTokens,
			OutputTokens:   env.OutputTokens,
			TotalTokens:    env.TotalTokens,
			ThinkingTokens: env.ThinkingTokens,
		}, false
	case "error":
		return ErrorChunk{Err: fmt.Errorf("model error: %s", env.Error)}, true
	case "complete":
		return CompleteChunk{}, true
	default:
		return nil, false
	}
}

// Close releases idle connections held by the underlying HTTP client.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
