// Package comprehensive holds the full-extraction prompt: the primary
// pipeline pass that recovers every entity category plus the parcel header
// in one call, steered by the structure survey's expected counts.
package comprehensive

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/prompts"
)

//go:embed system.tmpl
var systemPromptTmpl string

//go:embed user.tmpl
var userPromptTmpl string

var (
	systemTemplate = template.Must(template.New("system").Parse(systemPromptTmpl))
	userTemplate   = template.Must(template.New("user").Parse(userPromptTmpl))
)

// SystemPromptData is the template data for the system prompt: the expected
// counts from the structure survey, restated to bias the model toward
// exhaustive recall. HasCounts false renders generic "multiple" guidance.
type SystemPromptData struct {
	HasCounts            bool
	OwnersCount          int
	MortgagesCount       int
	NotesAboveRegulation int
	NotesBelowRegulation int
	EasementsCount       int
}

// NewSystemPromptData builds system prompt data from a structure survey.
// A nil or zero-valued report yields generic guidance.
func NewSystemPromptData(report *extraction.AnalysisReport) SystemPromptData {
	if report == nil {
		return SystemPromptData{}
	}
	return SystemPromptData{
		HasCounts:            report.HasCounts(),
		OwnersCount:          report.OwnersCount,
		MortgagesCount:       report.MortgagesCount,
		NotesAboveRegulation: report.NotesAboveRegulation,
		NotesBelowRegulation: report.NotesBelowRegulation,
		EasementsCount:       report.EasementsCount,
	}
}

// SystemPrompt renders the system prompt for full extraction.
func SystemPrompt(data SystemPromptData) string {
	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, data); err != nil {
		return systemPromptTmpl
	}
	return buf.String()
}

// SystemPromptWithOverride renders the system prompt, using a session-level
// template override when one is provided. A broken override falls back to
// the embedded default rather than failing the pass.
func SystemPromptWithOverride(data SystemPromptData, overrideTmpl string) string {
	if overrideTmpl == "" {
		return SystemPrompt(data)
	}
	t, err := template.New("system_override").Parse(overrideTmpl)
	if err != nil {
		return SystemPrompt(data)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return SystemPrompt(data)
	}
	return buf.String()
}

// UserPromptData is the template data for the user prompt.
type UserPromptData struct {
	// DocumentText is the pre-extracted document text. Empty in vision mode,
	// where the document travels as an attachment instead.
	DocumentText string
}

// UserPrompt builds the user prompt for full extraction.
func UserPrompt(data UserPromptData) string {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return userPromptTmpl
	}
	return buf.String()
}

// UserPromptWithOverride renders the user prompt with an optional
// session-level template override.
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
	SystemPromptKey = "stages.comprehensive.system"
	UserPromptKey   = "stages.comprehensive.user"
)

// RegisterPrompts registers the full-extraction prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPromptTmpl,
		Description: "Full extraction system prompt template - all categories plus parcel header, count-guided",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Full extraction user prompt template",
	})
}
