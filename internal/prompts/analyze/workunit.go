package analyze

import (
	"encoding/json"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/providers"
)

// Input contains the data needed for a structure-survey work unit.
// Exactly one of DocumentText, PageImages, or PDF should carry the document.
type Input struct {
	DocumentText string
	PageImages   [][]byte // vision mode: rendered page images
	PDF          []byte   // vision mode: whole PDF as a file attachment
	Filename     string   // attachment filename, informational

	// SystemPromptOverride allows using a session-level system prompt override.
	// If empty, uses the embedded default.
	SystemPromptOverride string

	// UserPromptOverride allows using a session-level user prompt template
	// override. If empty, uses the embedded default template.
	UserPromptOverride string
}

// CreateWorkUnit creates a structure-survey LLM work unit.
// The caller must set ID, JobID, and Provider on the returned unit.
func CreateWorkUnit(input Input) *jobs.WorkUnit {
	systemPrompt := input.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = SystemPrompt()
	}

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
			MaxTokens:      2048,
		},
	}

	attachDocument(unit, input)
	return unit
}

// ParseResult parses the LLM response into an AnalysisReport.
func ParseResult(parsedJSON any) (*extraction.AnalysisReport, error) {
	jsonBytes, err := json.Marshal(parsedJSON)
	if err != nil {
		return nil, err
	}
	var report extraction.AnalysisReport
	if err := json.Unmarshal(jsonBytes, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func buildResponseFormat() *providers.ResponseFormat {
	jsonSchema, _ := json.Marshal(SurveySchema["json_schema"])
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
