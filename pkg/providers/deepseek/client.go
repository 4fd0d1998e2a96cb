package deepseek

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cohesion-org/deepseek-go"

	"github.com/modelgate/modelgate/pkg/llm"
)

// Client streams chat turns through the DeepSeek API. DeepSeek formats
// conversations server-side, so only llm.ChatStreamer is implemented.
type Client struct {
	client *deepseek.Client
	model  string
}

// NewClient creates a DeepSeek transport from a model configuration
func NewClient(cfg llm.ModelConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("missing_api_key", "API key is required for DeepSeek")
	}

	var opts []deepseek.Option
	if cfg.APIBase != "" {
		opts = append(opts, deepseek.WithBaseURL(cfg.APIBase))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, deepseek.WithTimeout(cfg.Timeout))
	}

	var client *deepseek.Client
	var err error
	if len(opts) > 0 {
		client, err = deepseek.NewClientWithOptions(cfg.APIKey, opts...)
		if err != nil {
			return nil, llm.NewConfigurationError("client_creation_error",
				"creating DeepSeek client: "+err.Error())
		}
	} else {
		client = deepseek.NewClient(cfg.APIKey)
	}

	return &Client{client: client, model: cfg.Model}, nil
}

// StreamChat streams a structured conversation through the DeepSeek API
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	req := deepseek.StreamChatCompletionRequest{
		Model:    c.modelFor(opts),
		Messages: convertMessages(messages),
		Stream:   true,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.TopP != nil {
		req.TopP = float32(*opts.TopP)
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, &req)
	if err != nil {
		return nil, convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(ctx, ch, llm.NewErrorEvent(convertError(err)))
				return
			}
			for _, choice := range response.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !emit(ctx, ch, llm.NewDeltaEvent(llm.RoleAssistant, choice.Delta.Content)) {
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// deepseek-go exposes no cleanup hook
	return nil
}

func (c *Client) modelFor(opts llm.CompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

// convertMessages flattens chat messages to DeepSeek's string-content format
func convertMessages(messages []llm.ChatMessage) []deepseek.ChatCompletionMessage {
	out := make([]deepseek.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = deepseek.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		}
	}
	return out
}

// convertError classifies DeepSeek errors by message content, since the
// library surfaces plain errors.
func convertError(err error) *llm.Error {
	if err == nil {
		return nil
	}
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "invalid api key") ||
		strings.Contains(errMsg, "authentication"):
		return llm.NewTransportError("authentication_error", err.Error(), 401)
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests"):
		return llm.NewTransportError("rate_limit_error", err.Error(), 429)
	case strings.Contains(errMsg, "model") && strings.Contains(errMsg, "not found"):
		return llm.NewTransportError("model_not_found", err.Error(), 404)
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return llm.NewTransportError("timeout_error", err.Error(), 408)
	}
	return llm.AsTransportError(err)
}

func emit(ctx context.Context, ch chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
