// Model and provider capability lookups
package llm

import "strings"

// CapabilityRegistry answers per-model/provider capability questions and
// classifies models into template families. Lookups are pure: the tables are
// fixed at construction and identical inputs always yield identical results.
//
// The stock tables come from DefaultCapabilities; embedders that add new
// providers construct their own registry instead of patching core logic.
type CapabilityRegistry struct {
	// multimodalProviders are providers whose APIs accept image input at all.
	multimodalProviders map[string]bool
	// visionModels are exact model names known to accept images.
	visionModels map[string]bool
	// visionMarkers are substrings marking vision-capable model families.
	visionMarkers []string
	// providerVisionModels are vision models only under a specific provider.
	providerVisionModels map[string]map[string]bool
	// parallelProviders tolerate concurrent in-flight requests. Advisory
	// metadata for an external scheduler; nothing here enforces it.
	parallelProviders map[string]bool
	// selfHostedProviders front OpenAI-compatible self-hosted endpoints.
	selfHostedProviders map[string]bool
	// selfTemplatingProviders accept structured messages and render prompts
	// internally, so no local template must be applied.
	selfTemplatingProviders map[string]bool
	// selfTemplatedModelMarkers short-circuit template detection to
	// TemplateNone for hosted model families.
	selfTemplatedModelMarkers []string
}

// DefaultCapabilities returns the registry with the stock capability tables.
func DefaultCapabilities() *CapabilityRegistry {
	return &CapabilityRegistry{
		multimodalProviders: map[string]bool{
			"openai":      true,
			"ollama":      true,
			"google-palm": true,
			"gemini":      true,
		},
		visionModels: map[string]bool{
			"gpt-4-vision-preview": true,
			"gpt-4o":               true,
			"gpt-4o-mini":          true,
			"gpt-4-turbo":          true,
		},
		visionMarkers: []string{"llava"},
		providerVisionModels: map[string]map[string]bool{
			"google-palm": {"gemini-ultra": true},
			"gemini":      {"gemini-ultra": true},
		},
		parallelProviders: map[string]bool{
			"openai":      true,
			"anthropic":   true,
			"gemini":      true,
			"google-palm": true,
			"deepseek":    true,
			"openrouter":  true,
			"bedrock":     true,
			"mistral":     true,
			"together":    true,
		},
		selfHostedProviders: map[string]bool{
			"openai-compatible": true,
			"lmstudio":          true,
			"text-gen-webui":    true,
			"llamafile":         true,
		},
		selfTemplatingProviders: map[string]bool{
			"openai":      true,
			"anthropic":   true,
			"gemini":      true,
			"google-palm": true,
			"deepseek":    true,
			"openrouter":  true,
			"bedrock":     true,
			"mistral":     true,
		},
		selfTemplatedModelMarkers: []string{"gpt", "bison", "pplx", "gemini"},
	}
}

// SupportsImages reports whether the provider/model pair accepts image input.
func (r *CapabilityRegistry) SupportsImages(provider, model string) bool {
	if !r.multimodalProviders[provider] {
		return false
	}
	for _, marker := range r.visionMarkers {
		if strings.Contains(model, marker) {
			return true
		}
	}
	if r.visionModels[model] {
		return true
	}
	return r.providerVisionModels[provider][model]
}

// SupportsParallelGeneration reports whether the provider is known to
// tolerate concurrent in-flight requests for this model. Self-hosted
// OpenAI-compatible endpoints only qualify for generic gpt models; everything
// else is a fixed provider allow-list. The flag is advisory only.
func (r *CapabilityRegistry) SupportsParallelGeneration(provider, model string) bool {
	if r.selfHostedProviders[provider] {
		return strings.Contains(strings.ToLower(model), "gpt")
	}
	return r.parallelProviders[provider]
}

// TemplatesInternally reports whether the provider renders prompts itself
// and must receive structured messages rather than a flat string.
func (r *CapabilityRegistry) TemplatesInternally(provider string) bool {
	return r.selfTemplatingProviders[provider]
}

// DetectTemplateType classifies a model name into its template family. The
// cascade is ordered: combined markers (codellama + 70b) are checked before
// their generic prefixes, and hosted model families short-circuit to
// TemplateNone because the provider templates its own prompts. The function
// is total: every input maps to exactly one family, TemplateChatML by default.
func (r *CapabilityRegistry) DetectTemplateType(model string) TemplateType {
	lower := strings.ToLower(model)

	if strings.Contains(lower, "codellama") && strings.Contains(lower, "70b") {
		return TemplateCodeLlama70B
	}
	for _, marker := range r.selfTemplatedModelMarkers {
		if strings.Contains(lower, marker) {
			return TemplateNone
		}
	}

	switch {
	case strings.Contains(lower, "llava"):
		return TemplateLlava
	case strings.Contains(lower, "tinyllama"):
		return TemplateZephyr
	case strings.Contains(lower, "xwin"):
		return TemplateXWinCoder
	case strings.Contains(lower, "dolphin"):
		return TemplateChatML
	case strings.Contains(lower, "phi2") || strings.Contains(lower, "phi-2"):
		return TemplatePhi2
	case strings.Contains(lower, "phind"):
		return TemplatePhind
	case strings.Contains(lower, "llama"):
		return TemplateLlama2
	case strings.Contains(lower, "zephyr"):
		return TemplateZephyr
	case strings.Contains(lower, "claude"):
		return TemplateAnthropic
	case strings.Contains(lower, "alpaca") || strings.Contains(lower, "wizard"):
		return TemplateAlpaca
	case strings.Contains(lower, "mistral") || strings.Contains(lower, "mixtral"):
		return TemplateLlama2
	case strings.Contains(lower, "openchat"):
		return TemplateOpenchat
	case strings.Contains(lower, "deepseek"):
		return TemplateDeepseek
	case strings.Contains(lower, "neural-chat"):
		return TemplateNeuralChat
	default:
		return TemplateChatML
	}
}
