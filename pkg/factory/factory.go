package factory

import (
	"fmt"
	"strings"

	"github.com/modelgate/modelgate/pkg/llm"
)

const DefaultProvider = "openai"

// Factory builds LLM instances from declarative model configuration,
// resolving the provider transport from the registry.
type Factory struct {
	// Host, when set, is attached to every created instance so embedded
	// surfaces proxy their requests through it.
	Host    llm.HostProxy
	Surface llm.Surface
	// LogWriter, when set, replaces the default structured logger.
	LogWriter llm.LogWriter
}

// New creates a factory with no host proxy attached
func New() *Factory {
	return &Factory{}
}

// CreateLLM creates an LLM instance for a model entry. The registered
// transport constructor is invoked and the result wired in as completion
// and/or chat transport, depending on which interfaces it implements.
func (f *Factory) CreateLLM(cfg llm.ModelConfig) (*llm.LLM, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	provider = strings.ToLower(provider)
	cfg.Provider = provider

	if cfg.Model == "" {
		return nil, llm.NewValidationError("missing_model", "model is required")
	}

	constructor, exists := GetTransport(provider)
	if !exists {
		return nil, llm.NewValidationError("unsupported_provider",
			fmt.Sprintf("unsupported provider: %s", provider))
	}

	transport, err := constructor(cfg)
	if err != nil {
		return nil, err
	}

	opts := cfg.Options()
	opts.Host = f.Host
	opts.Surface = f.Surface
	opts.LogWriter = f.LogWriter
	if completer, ok := transport.(llm.CompletionStreamer); ok {
		opts.Transport = completer
	}
	if chatter, ok := transport.(llm.ChatStreamer); ok {
		opts.ChatTransport = chatter
	}
	if opts.Transport == nil && opts.ChatTransport == nil {
		return nil, llm.NewConfigurationError("invalid_transport",
			fmt.Sprintf("provider %s registered a transport with no streaming interfaces", provider))
	}

	return llm.New(opts)
}

// CreateFromConfig creates the named model (or the default) from a loaded
// configuration.
func (f *Factory) CreateFromConfig(cfg *llm.Config, title string) (*llm.LLM, error) {
	entry, err := cfg.Model(title)
	if err != nil {
		return nil, err
	}
	return f.CreateLLM(entry)
}
