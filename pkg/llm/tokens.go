// Token counting and budget enforcement
package llm

import (
	"fmt"
	"strings"
	"unicode"
)

// messageTokenOverhead approximates the per-message cost of role markers and
// separators once a conversation is rendered.
const messageTokenOverhead = 4

// CountTokens returns a deterministic, model-family-specific token count for
// text. It is the sole budget oracle for PruneRawPromptFromTop and
// CompileChatMessages: identical text and model always yield the identical
// count. The estimate segments words, punctuation and CJK runes; a word costs
// one token per full family-specific chunk of runes, minimum one.
func CountTokens(text, model string) int {
	if text == "" {
		return 0
	}
	chunk := runesPerToken(model)
	tokens := 0
	wordLen := 0
	flush := func() {
		if wordLen > 0 {
			t := wordLen / chunk
			if t < 1 {
				t = 1
			}
			tokens += t
			wordLen = 0
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r >= 0x2E80:
			// CJK and beyond tokenize roughly one token per rune
			flush()
			tokens++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			wordLen++
		default:
			flush()
			tokens++
		}
	}
	flush()
	return tokens
}

// runesPerToken is the family-specific chunk length used to charge extra
// tokens for long words.
func runesPerToken(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt") || strings.Contains(lower, "gemini") ||
		strings.Contains(lower, "bison") || strings.Contains(lower, "pplx"):
		return 6
	case strings.Contains(lower, "llama") || strings.Contains(lower, "mistral"):
		return 4
	default:
		return 5
	}
}

// PruneRawPromptFromTop removes content from the beginning of a flat prompt,
// keeping the tail, until its token count fits contextLength - maxTokens.
// Input already within budget is returned unchanged. Cuts are made at the
// safe boundary (line, then word) nearest the computed cut point so the
// remaining text stays well formed.
func PruneRawPromptFromTop(model string, contextLength int, prompt string, maxTokens int) string {
	budget := contextLength - maxTokens
	if budget < 0 {
		budget = 0
	}
	return truncateFromTop(prompt, model, budget)
}

// truncateFromTop trims text from the beginning to at most budget tokens,
// dropping whole lines first, then leading words, then single runes when no
// safe boundary remains.
func truncateFromTop(text, model string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if CountTokens(text, model) <= budget {
		return text
	}

	lines := strings.Split(text, "\n")
	start := 0
	for start < len(lines)-1 {
		start++
		remaining := strings.Join(lines[start:], "\n")
		if CountTokens(remaining, model) <= budget {
			return remaining
		}
	}

	// A single line still exceeds the budget: drop leading words.
	line := lines[len(lines)-1]
	for CountTokens(line, model) > budget {
		idx := strings.IndexAny(line, " \t")
		if idx < 0 {
			break
		}
		line = line[idx+1:]
	}

	// No word boundary left; fall back to trimming runes.
	runes := []rune(line)
	for len(runes) > 0 && CountTokens(string(runes), model) > budget {
		runes = runes[1:]
	}
	return string(runes)
}

// CompileChatMessages reshapes a conversation so its rendered token count
// fits contextLength - maxTokens. Image parts are stripped first when the
// model does not support them. The most recent user message is never
// dropped; when reduction is needed, whole messages are removed starting
// from the oldest retained context, preserving the relative order of what
// remains. A non-empty systemMessage is accounted for in the budget and
// prepended.
//
// If the system message and the most recent user message together exceed the
// budget, the system message is capped at half the budget and the user
// message is hard-truncated from the top into the remainder. When the
// conversation holds no user message at all, an oversized system message is
// capped at the full budget instead. This policy is deterministic: identical
// inputs always produce identical output.
func CompileChatMessages(model string, messages []ChatMessage, contextLength, maxTokens int, supportsImages bool, systemMessage string) ([]ChatMessage, error) {
	budget := contextLength - maxTokens
	if budget <= 0 {
		return nil, NewValidationError("context_window_exceeded",
			fmt.Sprintf("maxTokens %d leaves no room in a %d-token context window", maxTokens, contextLength))
	}

	msgs := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		c := m.DeepCopy()
		if !supportsImages {
			c = c.WithoutImages()
		}
		msgs = append(msgs, c)
	}

	cost := func(m ChatMessage) int {
		return CountTokens(m.Text(), model) + messageTokenOverhead
	}

	var system *ChatMessage
	if systemMessage != "" {
		s := NewTextMessage(RoleSystem, systemMessage)
		system = &s
	}

	lastUser := LastUserIndex(msgs)

	// Reserve room for the messages that may never be dropped.
	sysCost := 0
	if system != nil {
		sysCost = cost(*system)
	}
	if lastUser >= 0 {
		if sysCost+cost(msgs[lastUser]) > budget {
			if system != nil && sysCost > budget/2 {
				capped := truncateFromTop(system.Text(), model, budget/2-messageTokenOverhead)
				s := system.WithText(capped)
				system = &s
				sysCost = cost(*system)
			}
			avail := budget - sysCost - messageTokenOverhead
			if avail < 0 {
				avail = 0
			}
			truncated := truncateFromTop(msgs[lastUser].Text(), model, avail)
			msgs[lastUser] = msgs[lastUser].WithText(truncated)
		}
	} else if system != nil && sysCost > budget {
		// No user message to make room for, but the system message alone
		// still may not exceed the whole budget.
		capped := truncateFromTop(system.Text(), model, budget-messageTokenOverhead)
		if capped == "" {
			system = nil
		} else {
			s := system.WithText(capped)
			system = &s
		}
	}

	used := 0
	if system != nil {
		used += cost(*system)
	}
	include := make([]bool, len(msgs))
	if lastUser >= 0 {
		include[lastUser] = true
		used += cost(msgs[lastUser])
	}

	// Fill the remaining budget from the newest context backwards; the first
	// entry that does not fit cuts off everything older, so removal always
	// starts from the oldest retained context.
	for i := len(msgs) - 1; i >= 0; i-- {
		if i == lastUser {
			continue
		}
		c := cost(msgs[i])
		if used+c > budget {
			break
		}
		include[i] = true
		used += c
	}

	out := make([]ChatMessage, 0, len(msgs)+1)
	if system != nil {
		out = append(out, *system)
	}
	for i, m := range msgs {
		if include[i] {
			out = append(out, m)
		}
	}
	return out, nil
}
