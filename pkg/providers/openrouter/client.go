package openrouter

import (
	"context"
	"errors"
	"io"

	"github.com/revrost/go-openrouter"

	"github.com/modelgate/modelgate/pkg/llm"
)

// Client streams chat turns through the OpenRouter aggregation API, which
// fronts many hosted models behind one OpenAI-compatible surface. Only
// llm.ChatStreamer is implemented; the routed models template server-side.
type Client struct {
	client *openrouter.Client
	model  string
}

// NewClient creates an OpenRouter transport from a model configuration.
// The optional HTTP-Referer and X-Title attribution headers come from the
// configured headers map.
func NewClient(cfg llm.ModelConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("missing_api_key", "API key is required for OpenRouter")
	}

	clientConfig := openrouter.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientConfig.BaseURL = cfg.APIBase
	}
	if referer, ok := cfg.Headers["HTTP-Referer"]; ok {
		clientConfig.HttpReferer = referer
	}
	if title, ok := cfg.Headers["X-Title"]; ok {
		clientConfig.XTitle = title
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client: openrouter.NewClientWithConfig(*clientConfig),
		model:  cfg.Model,
	}, nil
}

// StreamChat streams a structured conversation through OpenRouter
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	req := openrouter.ChatCompletionRequest{
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
		defer stream.Close()
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
	// go-openrouter keeps no persistent connections beyond the HTTP pool
	return nil
}

func (c *Client) modelFor(opts llm.CompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

// convertMessages converts chat messages to OpenRouter format, expanding
// image parts into multi-content entries.
func convertMessages(messages []llm.ChatMessage) []openrouter.ChatCompletionMessage {
	out := make([]openrouter.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		om := openrouter.ChatCompletionMessage{Role: string(msg.Role)}
		if msg.HasImages() {
			var parts []openrouter.ChatMessagePart
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case *llm.TextPart:
					if p.Text != "" {
						parts = append(parts, openrouter.ChatMessagePart{
							Type: openrouter.ChatMessagePartTypeText,
							Text: p.Text,
						})
					}
				case *llm.ImagePart:
					parts = append(parts, openrouter.ChatMessagePart{
						Type:     openrouter.ChatMessagePartTypeImageURL,
						ImageURL: &openrouter.ChatMessageImageURL{URL: p.URL},
					})
				}
			}
			om.Content = openrouter.Content{Multi: parts}
		} else {
			om.Content = openrouter.Content{Text: msg.Text()}
		}
		out = append(out, om)
	}
	return out
}

// convertError maps OpenRouter errors to transport errors
func convertError(err error) *llm.Error {
	var apiErr *openrouter.APIError
	if errors.As(err, &apiErr) {
		code := "openrouter_api_error"
		switch apiErr.HTTPStatusCode {
		case 400:
			code = "bad_request"
		case 401:
			code = "authentication_error"
		case 402:
			code = "insufficient_credits"
		case 404:
			code = "model_not_found"
		case 429:
			code = "rate_limit_error"
		}
		return llm.NewTransportError(code, apiErr.Message, apiErr.HTTPStatusCode)
	}
	var reqErr *openrouter.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewTransportError("request_error", reqErr.Error(), reqErr.HTTPStatusCode)
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
