package comprehensive

import (
	"encoding/json"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/providers"
)

// Input contains the data needed for a full-extraction work unit.
// Exactly one of DocumentText, PageImages, or PDF should carry the document.
type Input struct {
	DocumentText string
	PageImages   [][]byte // vision mode: rendered page images
	PDF          []byte   // vision mode: whole PDF as a file attachment
	Filename     string   // attachment filename, informational

	// Report is the structure survey steering this pass. Nil or zero-valued
	// yields generic "multiple entries" guidance instead of counts.
	Report *extraction.AnalysisReport

	// SystemPromptOverride allows using a session-level system prompt
	// template override. If empty, uses the embedded default.
	SystemPromptOverride string

	// UserPromptOverride allows using a session-level user prompt template
	// override. If empty, uses the embedded default template.
	UserPromptOverride string
}

// CreateWorkUnit creates a full-extraction LLM work unit.
// The caller must set ID, JobID, and Provider on the returned unit.
func CreateWorkUnit(input Input) *jobs.WorkUnit {
	systemPrompt := SystemPromptWithOverride(NewSystemPromptData(input.Report), input.SystemPromptOverride)

	data := UserPromptData{DocumentText: input.DocumentText}
	userPrompt := UserPromptWithOverride(data, input.UserPromptOverride)

	unit := &jobs.WorkUnit{
		Type: jobs.WorkUnitTypeLLM,
		ChatRequest: &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			ResponseFormat: buildResponseFormat(),
			Temperature:    0,
			MaxTokens:      8192,
		},
	}

	attachDocument(unit, input)
	return unit
}

// ConfidenceScores is the per-category confidence block of the wire format.
// Pointers distinguish "not reported" from zero.
type ConfidenceScores struct {
	Owners    *float64 `json:"owners"`
	Mortgages *float64 `json:"mortgages"`
	Notes     *float64 `json:"notes"`
	Easements *float64 `json:"easements"`
}

// Result represents the parsed result from full extraction.
type Result struct {
	Property   *extraction.PropertyDetails `json:"property_details"`
	Owners     []extraction.Owner          `json:"owners"`
	Mortgages  []extraction.Mortgage       `json:"mortgages"`
	Notes      []extraction.Note           `json:"notes"`
	Easements  []extraction.Easement       `json:"easements"`
	Confidence ConfidenceScores            `json:"confidence"`
}

// ParseResult parses the LLM response into a Result. Note positions are
// normalized so unknown position strings degrade to "other" instead of
// failing the pass.
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

// ToStageOutput converts the parsed result into the merger's input form,
// attributing the given token count to this pass.
func (r *Result) ToStageOutput(tokensUsed int) *extraction.StageOutput {
	return &extraction.StageOutput{
		Stage:      extraction.StageComprehensive,
		Owners:     r.Owners,
		Mortgages:  r.Mortgages,
		Notes:      r.Notes,
		Easements:  r.Easements,
		Property:   r.Property,
		Confidence: r.Confidence.toMap(),
		TokensUsed: tokensUsed,
	}
}

func (c ConfidenceScores) toMap() map[extraction.Category]float64 {
	m := make(map[extraction.Category]float64)
	if c.Owners != nil {
		m[extraction.CategoryOwners] = *c.Owners
	}
	if c.Mortgages != nil {
		m[extraction.CategoryMortgages] = *c.Mortgages
	}
	if c.Notes != nil {
		m[extraction.CategoryNotes] = *c.Notes
	}
	if c.Easements != nil {
		m[extraction.CategoryEasements] = *c.Easements
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func buildResponseFormat() *providers.ResponseFormat {
	jsonSchema, _ := json.Marshal(ExtractionSchema["json_schema"])
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema,
	}
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
