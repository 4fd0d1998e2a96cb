package factory

import (
	"github.com/modelgate/modelgate/pkg/llm"
	"github.com/modelgate/modelgate/pkg/providers/bedrock"
	"github.com/modelgate/modelgate/pkg/providers/deepseek"
	"github.com/modelgate/modelgate/pkg/providers/gemini"
	"github.com/modelgate/modelgate/pkg/providers/mock"
	"github.com/modelgate/modelgate/pkg/providers/ollama"
	"github.com/modelgate/modelgate/pkg/providers/openai"
	"github.com/modelgate/modelgate/pkg/providers/openrouter"
)

func init() {
	// Register the OpenAI provider, also serving OpenAI-compatible
	// self-hosted endpoints.
	RegisterTransport("openai", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return openai.NewClient(cfg)
	})
	for _, name := range []string{"openai-compatible", "lmstudio", "text-gen-webui", "llamafile"} {
		RegisterTransport(name, func(cfg llm.ModelConfig) (llm.Transport, error) {
			return openai.NewClient(cfg)
		})
	}

	// Register the ollama provider
	RegisterTransport("ollama", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return ollama.NewClient(cfg)
	})

	// Register the gemini provider under both the current and legacy names
	RegisterTransport("gemini", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return gemini.NewClient(cfg)
	})
	RegisterTransport("google-palm", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return gemini.NewClient(cfg)
	})

	// Register the deepseek provider
	RegisterTransport("deepseek", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return deepseek.NewClient(cfg)
	})

	// Register the openrouter provider
	RegisterTransport("openrouter", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return openrouter.NewClient(cfg)
	})

	// Register the bedrock provider
	RegisterTransport("bedrock", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return bedrock.NewClient(cfg)
	})

	// Register the mock provider
	RegisterTransport("mock", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return mock.New("mock response"), nil
	})
}
