// Package analyze holds the structure-survey prompt: the first pipeline pass
// that counts repeating entities in a land-registry extract before anything
// is extracted.
package analyze

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/shamayhq/nesach/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").Parse(userPromptTmpl))

// SystemPrompt returns the system prompt for the structure survey.
func SystemPrompt() string {
	return systemPrompt
}

// UserPromptData is the template data for the user prompt.
type UserPromptData struct {
	// DocumentText is the pre-extracted document text. Empty in vision mode,
	// where the document travels as an attachment instead.
	DocumentText string
}

// UserPrompt builds the user prompt for the structure survey.
func UserPrompt(data UserPromptData) string {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return userPromptTmpl
	}
	return buf.String()
}

// UserPromptWithOverride renders the user prompt, using a session-level
// template override when one is provided. A broken override falls back to
// the embedded default rather than failing the pass.
func UserPromptWithOverride(data UserPromptData, overrideTmpl string) string {
	if overrideTmpl == "" {
		return UserPrompt(data)
	}
	t, err := template.New("user_override").Parse(overrideTmpl)
	if err != nil {
		return UserPrompt(data)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return UserPrompt(data)
	}
	return buf.String()
}

// Prompt keys
const (
	SystemPromptKey = "stages.analyze.system"
	UserPromptKey   = "stages.analyze.user"
)

// RegisterPrompts registers the structure-survey prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Structure survey system prompt - counts repeating entities across the whole document",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Structure survey user prompt template",
	})
}
