package openai

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/modelgate/modelgate/pkg/llm"
)

// Client streams completions and chat turns through the OpenAI API or any
// OpenAI-compatible endpoint. It implements both llm.CompletionStreamer and
// llm.ChatStreamer.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates an OpenAI transport from a model configuration
func NewClient(cfg llm.ModelConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("missing_api_key", "API key is required for OpenAI")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientConfig.BaseURL = cfg.APIBase
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// StreamComplete streams a legacy text completion for a rendered prompt
func (c *Client) StreamComplete(ctx context.Context, prompt string, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	req := openai.CompletionRequest{
		Model:  c.modelFor(opts),
		Prompt: prompt,
		Stream: true,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.TopP != nil {
		req.TopP = float32(*opts.TopP)
	}
	if opts.PresencePenalty != nil {
		req.PresencePenalty = float32(*opts.PresencePenalty)
	}
	if opts.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*opts.FrequencyPenalty)
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}

	stream, err := c.client.CreateCompletionStream(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(ctx, ch, llm.NewErrorEvent(convertError(err)))
				return
			}
			for _, choice := range resp.Choices {
				if choice.Text == "" {
					continue
				}
				if !emit(ctx, ch, llm.NewDeltaEvent(llm.RoleAssistant, choice.Text)) {
					return
				}
			}
		}
	}()
	return ch, nil
}

// StreamChat streams a chat completion for a structured conversation
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.modelFor(opts),
		Messages: convertMessages(messages),
		Stream:   true,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.TopP != nil {
		req.TopP = float32(*opts.TopP)
	}
	if opts.PresencePenalty != nil {
		req.PresencePenalty = float32(*opts.PresencePenalty)
	}
	if opts.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*opts.FrequencyPenalty)
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(ctx, ch, llm.NewErrorEvent(convertError(err)))
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				role := llm.RoleAssistant
				if choice.Delta.Role != "" {
					role = llm.Role(choice.Delta.Role)
				}
				if !emit(ctx, ch, llm.NewDeltaEvent(role, choice.Delta.Content)) {
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// go-openai keeps no persistent connections beyond the HTTP pool
	return nil
}

func (c *Client) modelFor(opts llm.CompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

// emit sends an event unless the consumer's context ended first
func emit(ctx context.Context, ch chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// convertMessages converts chat messages to OpenAI format, expanding image
// parts into multi-content entries.
func convertMessages(messages []llm.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		om := openai.ChatCompletionMessage{Role: string(msg.Role)}
		if msg.HasImages() {
			var parts []openai.ChatMessagePart
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case *llm.TextPart:
					if p.Text != "" {
						parts = append(parts, openai.ChatMessagePart{
							Type: openai.ChatMessagePartTypeText,
							Text: p.Text,
						})
					}
				case *llm.ImagePart:
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    p.URL,
							Detail: openai.ImageURLDetailAuto,
						},
					})
				}
			}
			om.MultiContent = parts
		} else {
			om.Content = msg.Text()
		}
		out = append(out, om)
	}
	return out
}

// convertError maps OpenAI API errors to transport errors
func convertError(err error) *llm.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := "unknown"
		if codeStr, ok := apiErr.Code.(string); ok {
			code = codeStr
		}
		return llm.NewTransportError(code, apiErr.Message, apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewTransportError("request_error", reqErr.Error(), reqErr.HTTPStatusCode)
	}
	return llm.AsTransportError(err)
}
