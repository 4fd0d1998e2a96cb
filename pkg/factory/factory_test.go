package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/llm"
	"github.com/modelgate/modelgate/pkg/providers/mock"
)

func TestCreateLLMRequiresModel(t *testing.T) {
	f := New()
	_, err := f.CreateLLM(llm.ModelConfig{Provider: "mock"})
	require.Error(t, err)
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "missing_model", llmErr.Code)
}

func TestCreateLLMUnknownProvider(t *testing.T) {
	f := New()
	_, err := f.CreateLLM(llm.ModelConfig{Provider: "does-not-exist", Model: "m"})
	require.Error(t, err)
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "unsupported_provider", llmErr.Code)
}

func TestCreateLLMWiresRegisteredTransport(t *testing.T) {
	f := New()
	l, err := f.CreateLLM(llm.ModelConfig{Provider: "mock", Model: "test-model"})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "test-model", l.Model())
	assert.Equal(t, "mock", l.Provider())
}

func TestCreateLLMProviderNameIsCaseInsensitive(t *testing.T) {
	f := New()
	l, err := f.CreateLLM(llm.ModelConfig{Provider: "MOCK", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "mock", l.Provider())
}

func TestCreateLLMWiresBothInterfacesOfOneTransport(t *testing.T) {
	RegisterTransport("both-test", func(cfg llm.ModelConfig) (llm.Transport, error) {
		return mock.New("a", "b"), nil
	})

	f := New()
	l, err := f.CreateLLM(llm.ModelConfig{Provider: "both-test", Model: "llama2-13b"})
	require.NoError(t, err)

	// Completion path works.
	text, err := l.Complete(context.Background(), "p", llm.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ab", text)

	// Chat path works through the same transport.
	msg, err := l.Chat(context.Background(), []llm.ChatMessage{llm.NewTextMessage(llm.RoleUser, "hi")}, llm.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ab", msg.Text())
}

func TestListProvidersIncludesBuiltins(t *testing.T) {
	names := ListProviders()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, expected := range []string{"openai", "ollama", "gemini", "deepseek", "openrouter", "bedrock", "mock"} {
		assert.True(t, set[expected], "provider %s not registered", expected)
	}
}

func TestCreateFromConfig(t *testing.T) {
	cfg, err := llm.ParseConfig([]byte(`
default_model: main
models:
  - title: main
    provider: mock
    model: llama2-13b
`))
	require.NoError(t, err)

	f := New()
	l, err := f.CreateFromConfig(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "llama2-13b", l.Model())
}
