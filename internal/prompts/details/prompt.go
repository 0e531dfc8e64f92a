// Package details holds the targeted recall prompts: one narrow sub-query
// per entity category, issued alongside the full extraction to recover
// entries the broad pass tends to truncate.
package details

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user_owners.tmpl
var ownersPromptTmpl string

//go:embed user_mortgages.tmpl
var mortgagesPromptTmpl string

//go:embed user_notes.tmpl
var notesPromptTmpl string

//go:embed user_easements.tmpl
var easementsPromptTmpl string

var userPromptTmpls = map[extraction.Category]string{
	extraction.CategoryOwners:    ownersPromptTmpl,
	extraction.CategoryMortgages: mortgagesPromptTmpl,
	extraction.CategoryNotes:     notesPromptTmpl,
	extraction.CategoryEasements: easementsPromptTmpl,
}

var userTemplates = map[extraction.Category]*template.Template{
	extraction.CategoryOwners:    template.Must(template.New("owners").Parse(ownersPromptTmpl)),
	extraction.CategoryMortgages: template.Must(template.New("mortgages").Parse(mortgagesPromptTmpl)),
	extraction.CategoryNotes:     template.Must(template.New("notes").Parse(notesPromptTmpl)),
	extraction.CategoryEasements: template.Must(template.New("easements").Parse(easementsPromptTmpl)),
}

// SystemPrompt returns the shared system prompt for targeted sub-queries.
func SystemPrompt() string {
	return systemPrompt
}

// UserPromptData is the template data for the per-category user prompts.
type UserPromptData struct {
	// DocumentText is the pre-extracted document text. Empty in vision mode,
	// where the document travels as an attachment instead.
	DocumentText string
}

// UserPrompt builds the targeted user prompt for one category.
func UserPrompt(cat extraction.Category, data UserPromptData) string {
	t, ok := userTemplates[cat]
	if !ok {
		return ""
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return userPromptTmpls[cat]
	}
	return buf.String()
}

// UserPromptWithOverride renders the targeted user prompt for one category,
// using a session-level template override when one is provided. A broken
// override falls back to the embedded default rather than failing the
// sub-query.
func UserPromptWithOverride(cat extraction.Category, data UserPromptData, overrideTmpl string) string {
	if overrideTmpl == "" {
		return UserPrompt(cat, data)
	}
	t, err := template.New("user_override").Parse(overrideTmpl)
	if err != nil {
		return UserPrompt(cat, data)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return UserPrompt(cat, data)
	}
	return buf.String()
}

// SystemPromptKey is the prompt key for the shared sub-query system prompt.
const SystemPromptKey = "stages.details.system"

// UserPromptKey returns the prompt key for one category's user prompt.
func UserPromptKey(cat extraction.Category) string {
	return fmt.Sprintf("stages.details.%s", cat)
}

// RegisterPrompts registers the targeted sub-query prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Targeted recall system prompt - one section per call, shared across categories",
	})
	descriptions := map[extraction.Category]string{
		extraction.CategoryOwners:    "Targeted owners prompt - every ownership row, across pages",
		extraction.CategoryMortgages: "Targeted mortgages prompt - every rank, not just the first",
		extraction.CategoryNotes:     "Targeted notes prompt - above and below the regulation table",
		extraction.CategoryEasements: "Targeted easements prompt - every easement entry",
	}
	for _, cat := range extraction.Categories() {
		r.Register(prompts.EmbeddedPrompt{
			Key:         UserPromptKey(cat),
			Text:        userPromptTmpls[cat],
			Description: descriptions[cat],
		})
	}
}
