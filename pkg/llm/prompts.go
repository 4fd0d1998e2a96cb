package llm

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/swaggest/jsonschema-go"
)

// Edit prompt variants. Rendered with PromptTemplate; inputs are CodeToEdit,
// UserInput and optionally Language.
const (
	// EditTemplateGeneric is the fallback edit prompt for every classified
	// template family without a family-specific variant.
	EditTemplateGeneric = `Consider the following code:
` + "```{{.Language}}\n{{.CodeToEdit}}\n```" + `
Edit the code to perfectly satisfy the following user request:
{{.UserInput}}
Output nothing except for the code. No code block, no English explanation, no start/end tags.`

	// EditTemplateLlama2 phrases the request the way llama2-family
	// instruction tuning expects.
	EditTemplateLlama2 = `[CODE]
{{.CodeToEdit}}
[/CODE]

Rewrite the code above in order to satisfy this request: "{{.UserInput}}"

Respond only with the rewritten code, without explanations or surrounding code fences.`

	// EditTemplateMistral is the llama2-family variant for mistral-named
	// models, which follow bracketed instruction markers more reliably.
	EditTemplateMistral = `[INST] You are a helpful code assistant. Your task is to rewrite the following code to satisfy the user's request.

Original code:
{{.CodeToEdit}}

Request: {{.UserInput}}

Respond only with the rewritten code. [/INST]`
)

// PromptTemplate is a named prompt with Go text/template placeholders.
type PromptTemplate struct {
	Template string
}

// NewPromptTemplate creates a PromptTemplate from the given template string
func NewPromptTemplate(tmpl string) PromptTemplate {
	return PromptTemplate{Template: tmpl}
}

// Render fills the template with the provided inputs
func (pt PromptTemplate) Render(inputs map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Parse(pt.Template)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, inputs); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderWithJSONSchemaFor renders the template with the provided inputs plus
// a "JSONSchema" key holding the reflected JSON schema of s. Useful for
// prompts that instruct a model to produce schema-conforming output.
func (pt PromptTemplate) RenderWithJSONSchemaFor(inputs map[string]any, s any) (string, error) {
	reflector := jsonschema.Reflector{}

	schema, err := reflector.Reflect(s)
	if err != nil {
		return "", err
	}

	j, err := json.MarshalIndent(schema, "", " ")
	if err != nil {
		return "", err
	}

	inputs["JSONSchema"] = string(j)
	return pt.Render(inputs)
}
