package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/modelgate/modelgate/pkg/llm"
)

const defaultRegion = "us-east-1"

// Client streams completions and chat turns through AWS Bedrock. The
// completion path uses InvokeModelWithResponseStream with a model-family
// request body; the chat path uses the model-agnostic ConverseStream API.
type Client struct {
	runtime *bedrockruntime.Client
	model   string
}

// NewClient creates a Bedrock transport from a model configuration.
// Credentials come from the default AWS chain; the region from the
// "region" header entry, falling back to us-east-1.
func NewClient(cfg llm.ModelConfig) (*Client, error) {
	region := defaultRegion
	if r, ok := cfg.Headers["region"]; ok && r != "" {
		region = r
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.HTTPClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, llm.NewConfigurationError("aws_config_error",
			fmt.Sprintf("loading AWS configuration: %v", err))
	}

	runtime := bedrockruntime.NewFromConfig(awsConfig, func(o *bedrockruntime.Options) {
		if cfg.APIBase != "" {
			o.BaseEndpoint = aws.String(cfg.APIBase)
		}
	})

	return &Client{runtime: runtime, model: cfg.Model}, nil
}

// StreamComplete streams tokens for a rendered prompt via the invoke API
func (c *Client) StreamComplete(ctx context.Context, prompt string, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	model := c.modelFor(opts)
	payload, err := invokeBody(model, prompt, opts)
	if err != nil {
		return nil, err
	}

	response, err := c.runtime.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		stream := response.GetStream()
		defer func() { _ = stream.Close() }()

		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			text, err := chunkText(model, chunk.Value.Bytes)
			if err != nil {
				emit(ctx, ch, llm.NewErrorEvent(convertError(err)))
				return
			}
			if text != "" {
				if !emit(ctx, ch, llm.NewDeltaEvent(llm.RoleAssistant, text)) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			emit(ctx, ch, llm.NewErrorEvent(convertError(err)))
		}
	}()
	return ch, nil
}

// StreamChat streams a structured conversation via ConverseStream
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (<-chan llm.StreamEvent, error) {
	converseMsgs, system := convertMessages(messages)

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(c.modelFor(opts)),
		Messages: converseMsgs,
		System:   system,
	}

	inference := &types.InferenceConfiguration{}
	configured := false
	if opts.MaxTokens != nil {
		v := int32(*opts.MaxTokens)
		inference.MaxTokens = &v
		configured = true
	}
	if opts.Temperature != nil {
		v := float32(*opts.Temperature)
		inference.Temperature = &v
		configured = true
	}
	if opts.TopP != nil {
		v := float32(*opts.TopP)
		inference.TopP = &v
		configured = true
	}
	if len(opts.Stop) > 0 {
		inference.StopSequences = opts.Stop
		configured = true
	}
	if configured {
		input.InferenceConfig = inference
	}

	response, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		stream := response.GetStream()
		defer func() { _ = stream.Close() }()

		for event := range stream.Events() {
			delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
			if !ok {
				continue
			}
			text, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
			if !ok || text.Value == "" {
				continue
			}
			if !emit(ctx, ch, llm.NewDeltaEvent(llm.RoleAssistant, text.Value)) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			emit(ctx, ch, llm.NewErrorEvent(convertError(err)))
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// The SDK client holds no resources needing explicit release
	return nil
}

func (c *Client) modelFor(opts llm.CompletionOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

func emit(ctx context.Context, ch chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// invokeBody builds the model-family request body for the invoke API
func invokeBody(model, prompt string, opts llm.CompletionOptions) ([]byte, error) {
	maxTokens := llm.DefaultMaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	var body map[string]any
	switch {
	case strings.Contains(model, "anthropic"):
		body = map[string]any{
			"prompt":               prompt,
			"max_tokens_to_sample": maxTokens,
		}
		if opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
		if len(opts.Stop) > 0 {
			body["stop_sequences"] = opts.Stop
		}
	case strings.Contains(model, "titan"):
		config := map[string]any{"maxTokenCount": maxTokens}
		if opts.Temperature != nil {
			config["temperature"] = *opts.Temperature
		}
		if len(opts.Stop) > 0 {
			config["stopSequences"] = opts.Stop
		}
		body = map[string]any{
			"inputText":            prompt,
			"textGenerationConfig": config,
		}
	default: // llama and other generation-style families
		body = map[string]any{
			"prompt":      prompt,
			"max_gen_len": maxTokens,
		}
		if opts.Temperature != nil {
			body["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			body["top_p"] = *opts.TopP
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewTransportError("request_error", fmt.Sprintf("serializing request: %v", err), 0)
	}
	return payload, nil
}

// chunkText extracts the delta text from a model-family stream chunk
func chunkText(model string, data []byte) (string, error) {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", err
	}
	switch {
	case strings.Contains(model, "anthropic"):
		if completion, ok := chunk["completion"].(string); ok {
			return completion, nil
		}
		if delta, ok := chunk["delta"].(map[string]any); ok {
			if text, ok := delta["text"].(string); ok {
				return text, nil
			}
		}
	case strings.Contains(model, "titan"):
		if text, ok := chunk["outputText"].(string); ok {
			return text, nil
		}
	default:
		if text, ok := chunk["generation"].(string); ok {
			return text, nil
		}
	}
	return "", nil
}

// convertMessages converts chat messages to Converse format, separating
// system text into system content blocks.
func convertMessages(messages []llm.ChatMessage) ([]types.Message, []types.SystemContentBlock) {
	var out []types.Message
	var system []types.SystemContentBlock

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: msg.Text()})
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == llm.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		text := msg.Text()
		if text == "" {
			continue
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		})
	}
	return out, system
}

// convertError maps SDK and service errors to transport errors
func convertError(err error) *llm.Error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		statusCode := 0
		switch code {
		case "ThrottlingException", "TooManyRequestsException":
			statusCode = 429
		case "AccessDeniedException", "UnauthorizedOperation":
			statusCode = 403
		case "ResourceNotFoundException":
			statusCode = 404
		case "ValidationException":
			statusCode = 400
		}
		return llm.NewTransportError(code, apiErr.ErrorMessage(), statusCode)
	}
	return llm.AsTransportError(err)
}
