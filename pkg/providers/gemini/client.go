package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/modelgate/modelgate/pkg/llm"
)

// Client streams chat turns through the Gemini API via the official genai
// library. Gemini applies its own conversation formatting server-side, so
// only llm.ChatStreamer is implemented; the model family resolves to no
// local chat template and the pipeline routes structured messages here.
type Client struct {
	model string
	genai *genai.Client
}

// NewClient creates a Gemini transport from a model configuration
func NewClient(cfg llm.ModelConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("missing_api_key", "API key is required for Gemini")
	}
	model := cfg.Model
	if model == "" {
		model = llm.DefaultGeminiModel
	}

	genaiConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		genaiConfig.HTTPOptions.Timeout = &cfg.Timeout
	}
	if cfg.HTTPClient != nil {
		genaiConfig.HTTPClient = cfg.HTTPClient
	}

	genaiClient, err := genai.NewClient(context.Background(), genaiConfig)
	if err != nil {
		return nil, llm.NewConfigurationError("client_creation_error",
			fmt.Sprintf("creating genai client: %v", err))
	}

	return &Client{model: model, genai: genaiClient}, nil
}

// StreamChat streams a structured conversation as a Gemini chat session.
// Prior turns become session history; the final message is sent streaming.
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		config.Temperature = &t
	}
	if opts.TopP != nil {
		p := float32(*opts.TopP)
		config.TopP = &p
	}
	if opts.MaxTokens != nil {
		config.MaxOutputTokens = int32(*opts.MaxTokens)
	}
	if len(opts.Stop) > 0 {
		config.StopSequences = opts.Stop
	}

	contents, system := convertMessages(messages)
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}
	if len(contents) == 0 {
		return nil, llm.NewValidationError("empty_conversation", "no user or assistant messages to send")
	}

	var history []*genai.Content
	if len(contents) > 1 {
		history = contents[:len(contents)-1]
	}

	chat, err := c.genai.Chats.Create(ctx, c.modelFor(opts), config, history)
	if err != nil {
		return nil, convertError(err)
	}

	last := contents[len(contents)-1]
	parts := make([]genai.Part, len(last.Parts))
	for i, part := range last.Parts {
		parts[i] = *part
	}

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		for response, err := range chat.SendMessageStream(ctx, parts...) {
			if err != nil {
				select {
				case ch <- llm.NewErrorEvent(convertError(err)):
				case <-ctx.Done():
				}
				return
			}
			if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
				continue
			}
			for _, part := range response.Candidates[0].Content.Parts {
				if part.Text == "" {
					continue
				}
				select {
				case ch <- llm.NewDeltaEvent(llm.RoleAssistant, part.Text):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// The genai client holds no resources needing explicit release
	return nil
}

func (c *Client) modelFor(opts llm.CompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

// convertMessages converts chat messages to genai contents, extracting
// system text for the session's system instruction.
func convertMessages(messages []llm.ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Text())
			continue
		}
		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case *llm.TextPart:
				if p.Text != "" {
					parts = append(parts, genai.NewPartFromText(p.Text))
				}
			case *llm.ImagePart:
				parts = append(parts, genai.NewPartFromURI(p.URL, p.MimeType))
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents, strings.Join(system, "\n")
}

// convertError maps genai errors to transport errors by message content,
// since the library surfaces plain errors.
func convertError(err error) *llm.Error {
	if err == nil {
		return nil
	}
	if ourErr, ok := err.(*llm.Error); ok {
		return ourErr
	}

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "API key") ||
		strings.Contains(errMsg, "authentication") ||
		strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "401"):
		return llm.NewTransportError("authentication_error", errMsg, 401)
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "429"):
		return llm.NewTransportError("rate_limit_error", errMsg, 429)
	case strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "403"):
		return llm.NewTransportError("quota_error", errMsg, 403)
	}
	return llm.NewTransportError("api_error", errMsg, 0)
}
