package details

import "github.com/shamayhq/nesach/internal/extraction"

// Schema returns the JSON schema for one category's sub-query output.
// Each schema carries only that category's entity list plus a confidence.
func Schema(cat extraction.Category) map[string]any {
	return categorySchemas[cat]
}

var categorySchemas = map[extraction.Category]map[string]any{
	extraction.CategoryOwners: {
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "owners_detail",
			"strict": true,
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owners": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name": map[string]any{
									"type":        "string",
									"description": "Owner name, verbatim",
								},
								"id_number": map[string]any{
									"type":        []string{"string", "null"},
									"description": "ID number (ת\"ז) or company number (ח\"פ) if stated",
								},
								"share_percent": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Ownership share as written, e.g. 1/2",
								},
								"source_note": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Registration deed reference (שטר) if stated",
								},
							},
							"required":             []string{"name"},
							"additionalProperties": false,
						},
					},
					"confidence": map[string]any{
						"type":        "number",
						"description": "Confidence in [0,1] for completeness and correctness",
					},
				},
				"required":             []string{"owners", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	extraction.CategoryMortgages: {
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "mortgages_detail",
			"strict": true,
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"mortgages": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"rank": map[string]any{
									"type":        "integer",
									"description": "Registration rank (דרגה) as a number, 1-based",
								},
								"lender_name": map[string]any{
									"type":        "string",
									"description": "Lender name, verbatim",
								},
								"amount": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Amount as written, currency included",
								},
								"registration_date": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Registration date as written",
								},
								"status": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Status if stated",
								},
							},
							"required":             []string{"rank", "lender_name"},
							"additionalProperties": false,
						},
					},
					"confidence": map[string]any{
						"type":        "number",
						"description": "Confidence in [0,1] for completeness and correctness",
					},
				},
				"required":             []string{"mortgages", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	extraction.CategoryNotes: {
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "notes_detail",
			"strict": true,
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"notes": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"text": map[string]any{
									"type":        "string",
									"description": "Note text, verbatim",
								},
								"position": map[string]any{
									"type":        "string",
									"enum":        []string{"above_regulation", "below_regulation", "other"},
									"description": "Position relative to the regulation table",
								},
							},
							"required":             []string{"text", "position"},
							"additionalProperties": false,
						},
					},
					"confidence": map[string]any{
						"type":        "number",
						"description": "Confidence in [0,1] for completeness and correctness",
					},
				},
				"required":             []string{"notes", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	extraction.CategoryEasements: {
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "easements_detail",
			"strict": true,
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"easements": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"description": map[string]any{
									"type":        "string",
									"description": "Easement description, verbatim",
								},
								"beneficiary": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Beneficiary if stated",
								},
								"location": map[string]any{
									"type":        []string{"string", "null"},
									"description": "Location if stated",
								},
							},
							"required":             []string{"description"},
							"additionalProperties": false,
						},
					},
					"confidence": map[string]any{
						"type":        "number",
						"description": "Confidence in [0,1] for completeness and correctness",
					},
				},
				"required":             []string{"easements", "confidence"},
				"additionalProperties": false,
			},
		},
	},
}
