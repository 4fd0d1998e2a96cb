// Template families and conversation-to-prompt renderers
package llm

import "strings"

// TemplateType is the closed set of template families. Exactly one value is
// associated with any model name by CapabilityRegistry.DetectTemplateType.
type TemplateType string

const (
	TemplateLlama2       TemplateType = "llama2"
	TemplateAlpaca       TemplateType = "alpaca"
	TemplatePhi2         TemplateType = "phi2"
	TemplatePhind        TemplateType = "phind"
	TemplateZephyr       TemplateType = "zephyr"
	TemplateAnthropic    TemplateType = "anthropic"
	TemplateChatML       TemplateType = "chatml"
	TemplateDeepseek     TemplateType = "deepseek"
	TemplateOpenchat     TemplateType = "openchat"
	TemplateXWinCoder    TemplateType = "xwin-coder"
	TemplateNeuralChat   TemplateType = "neural-chat"
	TemplateLlava        TemplateType = "llava"
	TemplateCodeLlama70B TemplateType = "codellama-70b"
	// TemplateNone means the provider renders prompts internally; callers
	// must pass structured messages to its native transport instead of a
	// pre-rendered string.
	TemplateNone TemplateType = "none"
)

// AllTemplateTypes lists every member of the closed enumeration.
func AllTemplateTypes() []TemplateType {
	return []TemplateType{
		TemplateLlama2, TemplateAlpaca, TemplatePhi2, TemplatePhind,
		TemplateZephyr, TemplateAnthropic, TemplateChatML, TemplateDeepseek,
		TemplateOpenchat, TemplateXWinCoder, TemplateNeuralChat,
		TemplateLlava, TemplateCodeLlama70B, TemplateNone,
	}
}

// MessageRenderer is a pure function mapping an ordered message sequence to
// a single rendered prompt string.
type MessageRenderer func(messages []ChatMessage) string

// RendererFor maps a TemplateType to its rendering function. The switch is
// exhaustive over the closed enumeration, so totality holds by construction;
// ok is false only for TemplateNone, the explicit "no local templating"
// member. Unrecognized values (which cannot arise from detection) render as
// ChatML, the default family.
func RendererFor(t TemplateType) (renderer MessageRenderer, ok bool) {
	switch t {
	case TemplateLlama2:
		return renderLlama2, true
	case TemplateAlpaca:
		return renderAlpaca, true
	case TemplatePhi2:
		return renderPhi2, true
	case TemplatePhind:
		return renderPhind, true
	case TemplateZephyr:
		return renderZephyr, true
	case TemplateAnthropic:
		return renderAnthropic, true
	case TemplateChatML:
		return renderChatML, true
	case TemplateDeepseek:
		return renderDeepseek, true
	case TemplateOpenchat:
		return renderOpenchat, true
	case TemplateXWinCoder:
		return renderXWinCoder, true
	case TemplateNeuralChat:
		return renderNeuralChat, true
	case TemplateLlava:
		return renderLlava, true
	case TemplateCodeLlama70B:
		return renderCodeLlama70B, true
	case TemplateNone:
		return nil, false
	default:
		return renderChatML, true
	}
}

// splitSystem separates a leading system message from the conversation
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages[0].Text(), messages[1:]
	}
	return "", messages
}

func renderLlama2(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	sb.WriteString("<s>[INST] ")
	if system != "" {
		sb.WriteString("<<SYS>>\n")
		sb.WriteString(system)
		sb.WriteString("\n<</SYS>>\n\n")
	}
	first := true
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			if !first {
				sb.WriteString("<s>[INST] ")
			}
			sb.WriteString(msg.Text())
			sb.WriteString(" [/INST]")
			first = false
		case RoleAssistant:
			sb.WriteString(" ")
			sb.WriteString(msg.Text())
			sb.WriteString(" </s>")
		}
	}
	return sb.String()
}

func renderAlpaca(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	if system != "" {
		sb.WriteString(system)
		sb.WriteString("\n\n")
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("### Instruction:\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n\n")
		case RoleAssistant:
			sb.WriteString("### Response:\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString("### Response:\n")
	return sb.String()
}

func renderPhi2(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	if system != "" {
		sb.WriteString(system)
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("\n\nInstruct: ")
			sb.WriteString(msg.Text())
		case RoleAssistant:
			sb.WriteString("\n\nOutput: ")
			sb.WriteString(msg.Text())
		}
	}
	sb.WriteString("\n\nOutput: ")
	return sb.String()
}

func renderPhind(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	if system != "" {
		sb.WriteString("### System Prompt\n")
		sb.WriteString(system)
		sb.WriteString("\n\n")
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("### User Message\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n\n")
		case RoleAssistant:
			sb.WriteString("### Assistant\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString("### Assistant\n")
	return sb.String()
}

func renderZephyr(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	sb.WriteString("<|system|>")
	sb.WriteString(system)
	sb.WriteString("</s>\n")
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("<|user|>\n")
			sb.WriteString(msg.Text())
			sb.WriteString("</s>\n")
		case RoleAssistant:
			sb.WriteString("<|assistant|>\n")
			sb.WriteString(msg.Text())
			sb.WriteString("</s>\n")
		}
	}
	sb.WriteString("<|assistant|>\n")
	return sb.String()
}

func renderAnthropic(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	if system != "" {
		sb.WriteString(system)
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("\n\nHuman: ")
			sb.WriteString(msg.Text())
		case RoleAssistant:
			sb.WriteString("\n\nAssistant: ")
			sb.WriteString(msg.Text())
		}
	}
	sb.WriteString("\n\nAssistant: ")
	return sb.String()
}

func renderChatML(messages []ChatMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString("<|im_start|>")
		sb.WriteString(string(msg.Role))
		sb.WriteString("\n")
		sb.WriteString(msg.Text())
		sb.WriteString("<|im_end|>\n")
	}
	sb.WriteString("<|im_start|>assistant\n")
	return sb.String()
}

func renderDeepseek(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	if system != "" {
		sb.WriteString(system)
		sb.WriteString("\n")
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("### Instruction:\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n")
		case RoleAssistant:
			sb.WriteString("### Response:\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n<|EOT|>\n")
		}
	}
	sb.WriteString("### Response:\n")
	return sb.String()
}

func renderOpenchat(messages []ChatMessage) string {
	// openchat has no system slot; a leading system message folds into the
	// first user turn.
	system, rest := splitSystem(messages)
	var sb strings.Builder
	pendingSystem := system
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("GPT4 Correct User: ")
			if pendingSystem != "" {
				sb.WriteString(pendingSystem)
				sb.WriteString("\n")
				pendingSystem = ""
			}
			sb.WriteString(msg.Text())
			sb.WriteString("<|end_of_turn|>")
		case RoleAssistant:
			sb.WriteString("GPT4 Correct Assistant: ")
			sb.WriteString(msg.Text())
			sb.WriteString("<|end_of_turn|>")
		}
	}
	sb.WriteString("GPT4 Correct Assistant: ")
	return sb.String()
}

func renderXWinCoder(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	sb.WriteString("<system>: ")
	if system != "" {
		sb.WriteString(system)
	} else {
		sb.WriteString("You are an AI coding assistant that helps people with programming.")
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("\n<user>: ")
			sb.WriteString(msg.Text())
		case RoleAssistant:
			sb.WriteString("\n<AI>: ")
			sb.WriteString(msg.Text())
		}
	}
	sb.WriteString("\n<AI>: ")
	return sb.String()
}

func renderNeuralChat(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	sb.WriteString("### System:\n")
	if system != "" {
		sb.WriteString(system)
	} else {
		sb.WriteString("You are a chatbot developed by Intel. Please answer all questions to the best of your ability.")
	}
	sb.WriteString("\n")
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("### User:\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n")
		case RoleAssistant:
			sb.WriteString("### Assistant:\n")
			sb.WriteString(msg.Text())
			sb.WriteString("\n")
		}
	}
	sb.WriteString("### Assistant:\n")
	return sb.String()
}

func renderLlava(messages []ChatMessage) string {
	system, rest := splitSystem(messages)
	var sb strings.Builder
	if system != "" {
		sb.WriteString(system)
		sb.WriteString("\n")
	}
	for _, msg := range rest {
		switch msg.Role {
		case RoleUser:
			sb.WriteString("USER: ")
			if msg.HasImages() {
				sb.WriteString("<image>\n")
			}
			sb.WriteString(msg.Text())
			sb.WriteString("\n")
		case RoleAssistant:
			sb.WriteString("ASSISTANT: ")
			sb.WriteString(msg.Text())
			sb.WriteString("\n")
		}
	}
	sb.WriteString("ASSISTANT: ")
	return sb.String()
}

func renderCodeLlama70B(messages []ChatMessage) string {
	var sb strings.Builder
	sb.WriteString("<s>")
	for _, msg := range messages {
		sb.WriteString("Source: ")
		sb.WriteString(string(msg.Role))
		sb.WriteString("\n\n ")
		sb.WriteString(strings.TrimSpace(msg.Text()))
		sb.WriteString(" <step> ")
	}
	sb.WriteString("Source: assistant\nDestination: user\n\n ")
	return sb.String()
}

// TemplateEngine resolves chat renderers and edit prompt variants for a
// model. Resolution is pure and deterministic: identical inputs always
// resolve identically.
type TemplateEngine struct {
	caps *CapabilityRegistry
}

// NewTemplateEngine creates a TemplateEngine backed by the given registry
func NewTemplateEngine(caps *CapabilityRegistry) *TemplateEngine {
	if caps == nil {
		caps = DefaultCapabilities()
	}
	return &TemplateEngine{caps: caps}
}

// ResolveMessageRenderer selects the chat renderer for a model. An explicit
// template type always wins. Without one, self-templating providers resolve
// to (nil, false), meaning structured messages must go to the provider's
// native transport; every other model resolves through autodetection.
func (e *TemplateEngine) ResolveMessageRenderer(model, provider string, explicit TemplateType) (MessageRenderer, bool) {
	if explicit == "" && e.caps.TemplatesInternally(provider) {
		return nil, false
	}
	t := explicit
	if t == "" {
		t = e.caps.DetectTemplateType(model)
	}
	return RendererFor(t)
}

// ResolveEditPromptTemplates selects specialized prompt variants for
// code-editing tasks. Every classified family resolves to some edit template
// ("edit" is currently the only populated slot); TemplateNone resolves to no
// entry. The llama2 family further distinguishes mistral-named models.
func (e *TemplateEngine) ResolveEditPromptTemplates(model string, explicit TemplateType) map[string]string {
	t := explicit
	if t == "" {
		t = e.caps.DetectTemplateType(model)
	}
	switch t {
	case TemplateNone:
		return map[string]string{}
	case TemplateLlama2:
		if strings.Contains(strings.ToLower(model), "mistral") {
			return map[string]string{"edit": EditTemplateMistral}
		}
		return map[string]string{"edit": EditTemplateLlama2}
	default:
		return map[string]string{"edit": EditTemplateGeneric}
	}
}
