// Completion options and the three-layer merge
package llm

import "net/http"

// Default generation limits applied when neither the instance nor the call
// site sets them.
const (
	DefaultContextLength = 4096
	DefaultMaxTokens     = 1024
)

// CompletionOptions are the per-call generation parameters. Unset pointer
// fields inherit from the layer below; see Merge.
type CompletionOptions struct {
	Model            string         `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	TopK             *int           `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	Stop             []string       `json:"stop,omitempty" yaml:"stop,omitempty"`
	// Raw suppresses prompt templating on the completion path.
	Raw *bool `json:"raw,omitempty" yaml:"raw,omitempty"`
	// DisableLogging suppresses the prompt/completion log writes for a call.
	DisableLogging *bool `json:"disable_logging,omitempty" yaml:"disable_logging,omitempty"`
	// Extra carries provider-specific parameters; merged key-wise.
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Merge returns o overridden key-wise by over. Later layers win per field,
// never wholesale: an unset field in over keeps o's value, and nested Extra
// maps are merged per key rather than replaced.
func (o CompletionOptions) Merge(over CompletionOptions) CompletionOptions {
	out := o
	if over.Model != "" {
		out.Model = over.Model
	}
	if over.MaxTokens != nil {
		out.MaxTokens = intPtr(*over.MaxTokens)
	}
	if over.Temperature != nil {
		out.Temperature = floatPtr(*over.Temperature)
	}
	if over.TopP != nil {
		out.TopP = floatPtr(*over.TopP)
	}
	if over.TopK != nil {
		out.TopK = intPtr(*over.TopK)
	}
	if over.PresencePenalty != nil {
		out.PresencePenalty = floatPtr(*over.PresencePenalty)
	}
	if over.FrequencyPenalty != nil {
		out.FrequencyPenalty = floatPtr(*over.FrequencyPenalty)
	}
	if over.Stop != nil {
		out.Stop = append([]string(nil), over.Stop...)
	}
	if over.Raw != nil {
		out.Raw = boolPtr(*over.Raw)
	}
	if over.DisableLogging != nil {
		out.DisableLogging = boolPtr(*over.DisableLogging)
	}
	if over.Extra != nil {
		out.Extra = mergeExtra(o.Extra, over.Extra)
	}
	return out
}

// mergeExtra merges override into base key-wise, recursing into nested
// string-keyed maps.
func mergeExtra(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = mergeExtra(existing, nested)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// IsRaw reports whether templating is suppressed for this call
func (o CompletionOptions) IsRaw() bool {
	return o.Raw != nil && *o.Raw
}

// LoggingDisabled reports whether log writes are suppressed for this call
func (o CompletionOptions) LoggingDisabled() bool {
	return o.DisableLogging != nil && *o.DisableLogging
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

// RequestInterceptor observes the fully rendered prompt just before it is
// handed to a transport.
type RequestInterceptor func(model, prompt string)

// Options is the construction configuration for an LLM instance. All
// capability- and template-derived fields are computed once in New and are
// immutable afterwards.
type Options struct {
	// Title identifies the instance in logs and host-proxy requests.
	Title string
	// Provider and Model identify the backend; Model is required.
	Provider string
	Model    string
	// ContextLength is the model's window size; DefaultContextLength if zero.
	ContextLength int
	// SystemMessage is prepended to every compiled conversation.
	SystemMessage string

	// TemplateType overrides template-family autodetection when non-empty.
	TemplateType TemplateType
	// PromptTemplates overrides named prompt variants (e.g. "edit").
	PromptTemplates map[string]string
	// ChatRenderer overrides the family renderer with a custom function.
	ChatRenderer MessageRenderer

	// APIKey and APIBase configure the transport; a trailing slash on
	// APIBase is stripped at construction and the value never changes.
	APIKey  string
	APIBase string
	// Headers are extra outbound headers for the transport.
	Headers map[string]string
	// HTTPClient optionally replaces the default network client, e.g. for
	// non-interactive execution contexts.
	HTTPClient *http.Client

	// CompletionDefaults are the instance-level generation defaults.
	CompletionDefaults CompletionOptions
	// ModelDefaults override CompletionDefaults per model name.
	ModelDefaults map[string]CompletionOptions

	// Transport performs direct-path completion streaming.
	Transport CompletionStreamer
	// ChatTransport optionally performs native structured-message streaming.
	ChatTransport ChatStreamer

	// Host receives proxied requests; nil means headless.
	Host HostProxy
	// Surface describes the embedding execution context.
	Surface Surface

	// Capabilities defaults to DefaultCapabilities().
	Capabilities *CapabilityRegistry
	// LogWriter receives prompt/completion log entries; defaults to slog.
	LogWriter LogWriter
	// Interceptor, when set, observes (model, prompt) before each request.
	Interceptor RequestInterceptor
}
