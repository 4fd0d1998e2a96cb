package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConversation() []ChatMessage {
	return []ChatMessage{
		NewTextMessage(RoleSystem, "Be helpful."),
		NewTextMessage(RoleUser, "What is Go?"),
		NewTextMessage(RoleAssistant, "A programming language."),
		NewTextMessage(RoleUser, "Show me an example."),
	}
}

func TestRendererForCoversEveryTemplateType(t *testing.T) {
	msgs := sampleConversation()
	for _, tt := range AllTemplateTypes() {
		t.Run(string(tt), func(t *testing.T) {
			renderer, ok := RendererFor(tt)
			if tt == TemplateNone {
				assert.False(t, ok)
				assert.Nil(t, renderer)
				return
			}
			require.True(t, ok)
			require.NotNil(t, renderer)

			out := renderer(msgs)
			assert.NotEmpty(t, out)
			// Every renderer must carry the user text through.
			assert.Contains(t, out, "What is Go?")
			// Rendering is pure.
			assert.Equal(t, out, renderer(msgs))
		})
	}
}

func TestRendererMarkers(t *testing.T) {
	msgs := sampleConversation()

	tests := []struct {
		template TemplateType
		markers  []string
	}{
		{TemplateLlama2, []string{"<s>[INST] ", "<<SYS>>", "[/INST]"}},
		{TemplateAlpaca, []string{"### Instruction:", "### Response:"}},
		{TemplatePhi2, []string{"Instruct: ", "Output: "}},
		{TemplatePhind, []string{"### System Prompt", "### User Message", "### Assistant"}},
		{TemplateZephyr, []string{"<|system|>", "<|user|>", "<|assistant|>", "</s>"}},
		{TemplateAnthropic, []string{"\n\nHuman: ", "\n\nAssistant: "}},
		{TemplateChatML, []string{"<|im_start|>system", "<|im_start|>user", "<|im_end|>"}},
		{TemplateDeepseek, []string{"### Instruction:", "### Response:", "<|EOT|>"}},
		{TemplateOpenchat, []string{"GPT4 Correct User: ", "GPT4 Correct Assistant: ", "<|end_of_turn|>"}},
		{TemplateXWinCoder, []string{"<system>: ", "<user>: ", "<AI>: "}},
		{TemplateNeuralChat, []string{"### System:", "### User:", "### Assistant:"}},
		{TemplateLlava, []string{"USER: ", "ASSISTANT: "}},
		{TemplateCodeLlama70B, []string{"Source: system", "Source: user", "<step>", "Destination: user"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.template), func(t *testing.T) {
			renderer, ok := RendererFor(tt.template)
			require.True(t, ok)
			out := renderer(msgs)
			for _, marker := range tt.markers {
				assert.Contains(t, out, marker)
			}
		})
	}
}

func TestRendererEndsAwaitingAssistant(t *testing.T) {
	msgs := sampleConversation()
	suffixes := map[TemplateType]string{
		TemplateAlpaca:     "### Response:\n",
		TemplatePhi2:       "\n\nOutput: ",
		TemplateAnthropic:  "\n\nAssistant: ",
		TemplateChatML:     "<|im_start|>assistant\n",
		TemplateZephyr:     "<|assistant|>\n",
		TemplateOpenchat:   "GPT4 Correct Assistant: ",
		TemplateNeuralChat: "### Assistant:\n",
		TemplateLlava:      "ASSISTANT: ",
	}
	for tt, suffix := range suffixes {
		renderer, ok := RendererFor(tt)
		require.True(t, ok)
		assert.True(t, strings.HasSuffix(renderer(msgs), suffix), "template %s", tt)
	}
}

func TestRenderLlavaMarksImages(t *testing.T) {
	renderer, ok := RendererFor(TemplateLlava)
	require.True(t, ok)

	msgs := []ChatMessage{
		{Role: RoleUser, Parts: []MessagePart{
			&ImagePart{URL: "https://example.com/cat.png"},
			&TextPart{Text: "What is in this picture?"},
		}},
	}
	out := renderer(msgs)
	assert.Contains(t, out, "USER: <image>\n")
	assert.Contains(t, out, "What is in this picture?")
}

func TestResolveMessageRenderer(t *testing.T) {
	engine := NewTemplateEngine(nil)

	t.Run("self-templating provider resolves to none", func(t *testing.T) {
		renderer, ok := engine.ResolveMessageRenderer("gpt-4", "openai", "")
		assert.False(t, ok)
		assert.Nil(t, renderer)
	})

	t.Run("explicit template overrides self-templating provider", func(t *testing.T) {
		renderer, ok := engine.ResolveMessageRenderer("gpt-4", "openai", TemplateChatML)
		assert.True(t, ok)
		assert.NotNil(t, renderer)
	})

	t.Run("local model autodetects", func(t *testing.T) {
		renderer, ok := engine.ResolveMessageRenderer("llama2-13b", "ollama", "")
		require.True(t, ok)
		out := renderer(sampleConversation())
		assert.Contains(t, out, "[INST]")
	})

	t.Run("hosted model marker resolves to none even without provider", func(t *testing.T) {
		renderer, ok := engine.ResolveMessageRenderer("gpt-4", "lmstudio", "")
		assert.False(t, ok)
		assert.Nil(t, renderer)
	})
}

func TestResolveEditPromptTemplates(t *testing.T) {
	engine := NewTemplateEngine(nil)

	t.Run("hosted models get no edit templates", func(t *testing.T) {
		out := engine.ResolveEditPromptTemplates("gpt-4", "")
		assert.Empty(t, out)
	})

	t.Run("llama family", func(t *testing.T) {
		out := engine.ResolveEditPromptTemplates("llama2-13b", "")
		assert.Equal(t, EditTemplateLlama2, out["edit"])
	})

	t.Run("mistral models within the llama family get their own variant", func(t *testing.T) {
		out := engine.ResolveEditPromptTemplates("mistral-7b-instruct", "")
		assert.Equal(t, EditTemplateMistral, out["edit"])
	})

	t.Run("everything else gets the generic variant", func(t *testing.T) {
		out := engine.ResolveEditPromptTemplates("zephyr-7b", "")
		assert.Equal(t, EditTemplateGeneric, out["edit"])
	})

	t.Run("explicit type wins over the model name", func(t *testing.T) {
		out := engine.ResolveEditPromptTemplates("gpt-4", TemplateZephyr)
		assert.Equal(t, EditTemplateGeneric, out["edit"])
	})
}
