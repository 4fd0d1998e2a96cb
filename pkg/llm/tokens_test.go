package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	t.Run("empty text counts zero", func(t *testing.T) {
		assert.Equal(t, 0, CountTokens("", "llama2-13b"))
	})

	t.Run("short words count one each", func(t *testing.T) {
		assert.Equal(t, 2, CountTokens("hello world", "llama2-13b"))
	})

	t.Run("punctuation counts separately", func(t *testing.T) {
		assert.Equal(t, 3, CountTokens("a,b", "llama2-13b"))
	})

	t.Run("cjk counts one token per rune", func(t *testing.T) {
		assert.Equal(t, 2, CountTokens("你好", "gpt-4"))
	})

	t.Run("long words charge extra per family chunk", func(t *testing.T) {
		word := "abcdefghijkl" // 12 runes
		assert.Equal(t, 2, CountTokens(word, "gpt-4"))      // chunk 6
		assert.Equal(t, 3, CountTokens(word, "llama2-13b")) // chunk 4
	})

	t.Run("extra charge starts at the second full chunk", func(t *testing.T) {
		assert.Equal(t, 1, CountTokens("abcdefg", "llama2-13b"))  // 7 runes, chunk 4
		assert.Equal(t, 2, CountTokens("abcdefgh", "llama2-13b")) // 8 runes, chunk 4
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		text := "The quick brown fox, jumps over 13 lazy dogs. 你好!"
		first := CountTokens(text, "mistral-7b")
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, CountTokens(text, "mistral-7b"))
		}
	})
}

func TestPruneRawPromptFromTop(t *testing.T) {
	t.Run("prompt within budget is unchanged", func(t *testing.T) {
		prompt := "short prompt"
		assert.Equal(t, prompt, PruneRawPromptFromTop("llama2-13b", 4096, prompt, 1024))
	})

	t.Run("oversized prompt keeps the tail", func(t *testing.T) {
		var lines []string
		for i := 0; i < 100; i++ {
			lines = append(lines, "some context line with several words here")
		}
		prompt := strings.Join(lines, "\n")

		pruned := PruneRawPromptFromTop("llama2-13b", 100, prompt, 20)
		require.NotEqual(t, prompt, pruned)
		assert.LessOrEqual(t, CountTokens(pruned, "llama2-13b"), 80)
		// Content is removed from the top only; what remains is a suffix.
		assert.True(t, strings.HasSuffix(prompt, pruned))
	})

	t.Run("pruning is idempotent", func(t *testing.T) {
		prompt := strings.Repeat("line of words here\n", 200)
		once := PruneRawPromptFromTop("llama2-13b", 100, prompt, 20)
		twice := PruneRawPromptFromTop("llama2-13b", 100, once, 20)
		assert.Equal(t, once, twice)
	})

	t.Run("zero budget yields empty prompt", func(t *testing.T) {
		assert.Equal(t, "", PruneRawPromptFromTop("llama2-13b", 100, "anything", 100))
	})

	t.Run("single long line falls back to word boundaries", func(t *testing.T) {
		prompt := strings.Repeat("word ", 500)
		pruned := PruneRawPromptFromTop("llama2-13b", 50, prompt, 10)
		assert.LessOrEqual(t, CountTokens(pruned, "llama2-13b"), 40)
		assert.True(t, strings.HasSuffix(prompt, pruned))
	})
}

func TestCompileChatMessages(t *testing.T) {
	t.Run("exhausted window is a validation error", func(t *testing.T) {
		_, err := CompileChatMessages("llama2-13b", []ChatMessage{NewTextMessage(RoleUser, "hi")}, 100, 100, false, "")
		require.Error(t, err)
		var llmErr *Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, "context_window_exceeded", llmErr.Code)
		assert.Equal(t, ErrTypeValidation, llmErr.Type)
	})

	t.Run("conversation within budget passes through with system prepended", func(t *testing.T) {
		msgs := []ChatMessage{
			NewTextMessage(RoleUser, "first question"),
			NewTextMessage(RoleAssistant, "first answer"),
			NewTextMessage(RoleUser, "second question"),
		}
		out, err := CompileChatMessages("llama2-13b", msgs, 4096, 1024, false, "Be helpful.")
		require.NoError(t, err)
		require.Len(t, out, 4)
		assert.Equal(t, RoleSystem, out[0].Role)
		assert.Equal(t, "Be helpful.", out[0].Text())
		assert.Equal(t, "first question", out[1].Text())
		assert.Equal(t, "first answer", out[2].Text())
		assert.Equal(t, "second question", out[3].Text())
	})

	t.Run("oldest context is dropped first", func(t *testing.T) {
		long := strings.TrimSpace(strings.Repeat("word ", 30))
		msgs := []ChatMessage{
			NewTextMessage(RoleUser, long),
			NewTextMessage(RoleAssistant, long),
			NewTextMessage(RoleUser, "final question"),
		}
		// budget 50: system(5) + final user(7) + newest assistant(34) fit;
		// the oldest user message does not.
		out, err := CompileChatMessages("llama2-13b", msgs, 60, 10, false, "sys")
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, RoleSystem, out[0].Role)
		assert.Equal(t, RoleAssistant, out[1].Role)
		assert.Equal(t, "final question", out[2].Text())
	})

	t.Run("last user message survives even when oversized", func(t *testing.T) {
		huge := strings.TrimSpace(strings.Repeat("word ", 100))
		msgs := []ChatMessage{NewTextMessage(RoleUser, huge)}

		out, err := CompileChatMessages("llama2-13b", msgs, 30, 10, false, "")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, RoleUser, out[0].Role)
		kept := out[0].Text()
		assert.NotEmpty(t, kept)
		assert.LessOrEqual(t, CountTokens(kept, "llama2-13b"), 16)
		assert.True(t, strings.HasSuffix(huge, kept))
	})

	t.Run("oversized system message is capped at half the budget", func(t *testing.T) {
		hugeSystem := strings.TrimSpace(strings.Repeat("rule ", 200))
		msgs := []ChatMessage{NewTextMessage(RoleUser, strings.TrimSpace(strings.Repeat("ask ", 50)))}

		out, err := CompileChatMessages("llama2-13b", msgs, 100, 20, false, hugeSystem)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, RoleSystem, out[0].Role)
		assert.LessOrEqual(t, CountTokens(out[0].Text(), "llama2-13b")+messageTokenOverhead, 40)
		assert.Equal(t, RoleUser, out[1].Role)
		assert.NotEmpty(t, out[1].Text())
	})

	t.Run("oversized system message is capped without a user message", func(t *testing.T) {
		hugeSystem := strings.TrimSpace(strings.Repeat("rule ", 200))
		msgs := []ChatMessage{NewTextMessage(RoleAssistant, "previous answer")}

		out, err := CompileChatMessages("llama2-13b", msgs, 100, 20, false, hugeSystem)
		require.NoError(t, err)
		require.NotEmpty(t, out)
		assert.Equal(t, RoleSystem, out[0].Role)

		total := 0
		for _, m := range out {
			total += CountTokens(m.Text(), "llama2-13b") + messageTokenOverhead
		}
		assert.LessOrEqual(t, total, 80)
	})

	t.Run("images are stripped for non-vision models", func(t *testing.T) {
		msgs := []ChatMessage{{
			Role: RoleUser,
			Parts: []MessagePart{
				&TextPart{Text: "what is this"},
				&ImagePart{URL: "https://example.com/x.png"},
			},
		}}
		out, err := CompileChatMessages("llama2-13b", msgs, 4096, 1024, false, "")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.False(t, out[0].HasImages())
		assert.Equal(t, "what is this", out[0].Text())
	})

	t.Run("images are kept for vision models", func(t *testing.T) {
		msgs := []ChatMessage{{
			Role: RoleUser,
			Parts: []MessagePart{
				&TextPart{Text: "what is this"},
				&ImagePart{URL: "https://example.com/x.png"},
			},
		}}
		out, err := CompileChatMessages("gpt-4-vision-preview", msgs, 4096, 1024, true, "")
		require.NoError(t, err)
		assert.True(t, out[0].HasImages())
	})

	t.Run("caller messages are never mutated", func(t *testing.T) {
		msgs := []ChatMessage{{
			Role: RoleUser,
			Parts: []MessagePart{
				&TextPart{Text: "keep me"},
				&ImagePart{URL: "https://example.com/x.png"},
			},
		}}
		_, err := CompileChatMessages("llama2-13b", msgs, 4096, 1024, false, "")
		require.NoError(t, err)
		assert.True(t, msgs[0].HasImages())
		assert.Equal(t, "keep me", msgs[0].Text())
	})
}
