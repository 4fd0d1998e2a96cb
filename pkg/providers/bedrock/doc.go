// Package bedrock implements streaming transports for AWS Bedrock. The
// completion path streams rendered prompts through
// InvokeModelWithResponseStream with per-family request bodies (Anthropic,
// Titan, Llama); the chat path uses the model-agnostic ConverseStream API.
package bedrock
