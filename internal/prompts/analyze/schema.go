package analyze

// SurveySchema is the JSON schema for the structure survey output.
var SurveySchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "structure_survey",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"owners_count": map[string]any{
					"type":        "integer",
					"description": "Number of registered owner rows in the ownership section",
				},
				"mortgages_count": map[string]any{
					"type":        "integer",
					"description": "Number of mortgage registrations across all ranks",
				},
				"notes_above_regulation": map[string]any{
					"type":        "integer",
					"description": "Number of notes physically above the regulation table",
				},
				"notes_below_regulation": map[string]any{
					"type":        "integer",
					"description": "Number of notes physically below the regulation table",
				},
				"easements_count": map[string]any{
					"type":        "integer",
					"description": "Number of easement entries",
				},
				"document_pages": map[string]any{
					"type":        "integer",
					"description": "Total pages in the document",
				},
				"complex_sections": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Sections that look hard to extract",
				},
				"extraction_challenges": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Anything likely to cause extraction errors",
				},
			},
			"required": []string{
				"owners_count", "mortgages_count",
				"notes_above_regulation", "notes_below_regulation",
				"easements_count", "document_pages",
			},
			"additionalProperties": false,
		},
	},
}
