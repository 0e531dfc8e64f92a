package details

import (
	"encoding/json"
	"fmt"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/providers"
)

// Input contains the data needed for one targeted sub-query work unit.
// Exactly one of DocumentText, PageImages, or PDF should carry the document.
type Input struct {
	Category extraction.Category

	DocumentText string
	PageImages   [][]byte // vision mode: rendered page images
	PDF          []byte   // vision mode: whole PDF as a file attachment
	Filename     string   // attachment filename, informational

	// SystemPromptOverride allows using a session-level system prompt
	// override shared by all sub-queries. If empty, uses the embedded default.
	SystemPromptOverride string

	// UserPromptOverride allows using a session-level user prompt template
	// override for this category. If empty, uses the embedded default.
	UserPromptOverride string
}

// CreateWorkUnit creates one targeted sub-query LLM work unit.
// The caller must set ID, JobID, and Provider on the returned unit.
func CreateWorkUnit(input Input) (*jobs.WorkUnit, error) {
	rf, err := buildResponseFormat(input.Category)
	if err != nil {
		return nil, err
	}

	systemPrompt := input.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = SystemPrompt()
	}

	data := UserPromptData{DocumentText: input.DocumentText}
	userPrompt := UserPromptWithOverride(input.Category, data, input.UserPromptOverride)
	if userPrompt == "" {
		return nil, fmt.Errorf("no targeted prompt for category %q", input.Category)
	}

	unit := &jobs.WorkUnit{
		Type: jobs.WorkUnitTypeLLM,
		ChatRequest: &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			ResponseFormat: rf,
			Temperature:    0,
			MaxTokens:      4096,
		},
	}

	attachDocument(unit, input)
	return unit, nil
}

// Result represents the parsed result from one targeted sub-query.
// Only the queried category's list is populated.
type Result struct {
	Owners     []extraction.Owner    `json:"owners,omitempty"`
	Mortgages  []extraction.Mortgage `json:"mortgages,omitempty"`
	Notes      []extraction.Note     `json:"notes,omitempty"`
	Easements  []extraction.Easement `json:"easements,omitempty"`
	Confidence *float64              `json:"confidence"`
}

// ParseResult parses one sub-query's LLM response. Note positions are
// normalized so unknown position strings degrade to "other" instead of
// failing the sub-query.
func ParseResult(parsedJSON any) (*Result, error) {
	jsonBytes, err := json.Marshal(parsedJSON)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil, err
	}
	for i := range result.Notes {
		result.Notes[i].Position = extraction.ParseNotePosition(string(result.Notes[i].Position))
	}
	return &result, nil
}

// Apply folds this sub-query's entities and confidence into the combined
// detail pass output under the given category.
func (r *Result) Apply(out *extraction.StageOutput, cat extraction.Category) {
	switch cat {
	case extraction.CategoryOwners:
		out.Owners = append(out.Owners, r.Owners...)
	case extraction.CategoryMortgages:
		out.Mortgages = append(out.Mortgages, r.Mortgages...)
	case extraction.CategoryNotes:
		out.Notes = append(out.Notes, r.Notes...)
	case extraction.CategoryEasements:
		out.Easements = append(out.Easements, r.Easements...)
	}
	if r.Confidence != nil {
		if out.Confidence == nil {
			out.Confidence = make(map[extraction.Category]float64)
		}
		out.Confidence[cat] = *r.Confidence
	}
}

func buildResponseFormat(cat extraction.Category) (*providers.ResponseFormat, error) {
	schema, ok := categorySchemas[cat]
	if !ok {
		return nil, fmt.Errorf("no sub-query schema for category %q", cat)
	}
	jsonSchema, _ := json.Marshal(schema["json_schema"])
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema,
	}, nil
}

// attachDocument adds the vision-mode payload to the user message:
// rendered page images inline, or the whole PDF as a file part.
func attachDocument(unit *jobs.WorkUnit, input Input) {
	if len(input.PageImages) > 0 {
		unit.ChatRequest.Messages[1].Images = input.PageImages
		return
	}
	if len(input.PDF) > 0 {
		name := input.Filename
		if name == "" {
			name = "document.pdf"
		}
		unit.ChatRequest.Messages[1].Files = []providers.FileAttachment{{
			Filename:  name,
			MediaType: "application/pdf",
			Data:      input.PDF,
		}}
	}
}
