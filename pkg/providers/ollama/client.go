package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelgate/modelgate/pkg/llm"
)

const defaultTimeout = 60 * time.Second

// Client streams completions and chat turns through a local or remote
// Ollama server. It implements both llm.CompletionStreamer and
// llm.ChatStreamer over the NDJSON streaming API.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an Ollama transport from a model configuration
func NewClient(cfg llm.ModelConfig) (*Client, error) {
	baseURL := cfg.APIBase
	if baseURL == "" {
		baseURL = llm.DefaultOllamaBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout // local inference can be slow
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		model:      cfg.Model,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

// generateRequest is the /api/generate request body
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Raw     bool           `json:"raw,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// chatRequest is the /api/chat request body
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamChunk covers both /api/generate ("response") and /api/chat
// ("message") chunk shapes.
type streamChunk struct {
	Response string      `json:"response,omitempty"`
	Message  chatMessage `json:"message,omitempty"`
	Done     bool        `json:"done"`
	Error    string      `json:"error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// StreamComplete streams tokens for a rendered prompt via /api/generate.
// The prompt arrives fully templated, so Ollama's own model template is
// bypassed with raw mode.
func (c *Client) StreamComplete(ctx context.Context, prompt string, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	body := generateRequest{
		Model:   c.modelFor(opts),
		Prompt:  prompt,
		Raw:     true,
		Stream:  true,
		Options: convertOptions(opts),
	}
	resp, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return nil, err
	}
	return c.stream(ctx, resp, func(chunk streamChunk) string { return chunk.Response }), nil
}

// StreamChat streams a structured conversation via /api/chat
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	msgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Text()})
	}
	body := chatRequest{
		Model:    c.modelFor(opts),
		Messages: msgs,
		Stream:   true,
		Options:  convertOptions(opts),
	}
	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	return c.stream(ctx, resp, func(chunk streamChunk) string { return chunk.Message.Content }), nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) modelFor(opts llm.CompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewTransportError("request_error", fmt.Sprintf("serializing request: %v", err), 0)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, llm.NewTransportError("request_error", fmt.Sprintf("creating request: %v", err), 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.NewTransportError("network_error", fmt.Sprintf("request failed: %v", err), 0)
	}
	return resp, nil
}

// stream relays NDJSON chunks from resp.Body as delta events until the
// server reports completion.
func (c *Client) stream(ctx context.Context, resp *http.Response, content func(streamChunk) string) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			emit(ctx, ch, llm.NewErrorEvent(convertError(body, resp.StatusCode)))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				emit(ctx, ch, llm.NewErrorEvent(
					llm.NewTransportError("parse_error", fmt.Sprintf("parsing chunk: %v", err), 0)))
				return
			}
			if chunk.Error != "" {
				emit(ctx, ch, llm.NewErrorEvent(llm.NewTransportError("server_error", chunk.Error, 0)))
				return
			}
			if text := content(chunk); text != "" {
				if !emit(ctx, ch, llm.NewDeltaEvent(llm.RoleAssistant, text)) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, ch, llm.NewErrorEvent(
				llm.NewTransportError("stream_error", fmt.Sprintf("stream scan: %v", err), 0)))
		}
	}()
	return ch
}

func emit(ctx context.Context, ch chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// convertOptions maps generation parameters onto Ollama's options object
func convertOptions(opts llm.CompletionOptions) map[string]any {
	out := map[string]any{}
	if opts.MaxTokens != nil {
		out["num_predict"] = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		out["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		out["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		out["top_k"] = *opts.TopK
	}
	if opts.PresencePenalty != nil {
		out["presence_penalty"] = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		out["frequency_penalty"] = *opts.FrequencyPenalty
	}
	if len(opts.Stop) > 0 {
		out["stop"] = opts.Stop
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// convertError maps an Ollama error response to a transport error
func convertError(body []byte, statusCode int) *llm.Error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return llm.NewTransportError("server_error", eb.Error, statusCode)
	}
	return llm.NewTransportError("http_error", fmt.Sprintf("HTTP %d: %s", statusCode, strings.TrimSpace(string(body))), statusCode)
}
