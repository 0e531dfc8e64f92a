package comprehensive

// ExtractionSchema is the JSON schema for the full extraction output.
var ExtractionSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "land_registry_extraction",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"property_details": map[string]any{
					"type":        []string{"object", "null"},
					"description": "Parcel header fields from the top of the extract",
					"properties": map[string]any{
						"registration_office": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Land registry office (לשכת רישום מקרקעין), verbatim",
						},
						"gush": map[string]any{
							"type":        []string{"integer", "null"},
							"description": "Block number (גוש)",
						},
						"chelka": map[string]any{
							"type":        []string{"integer", "null"},
							"description": "Parcel number (חלקה)",
						},
						"sub_chelka": map[string]any{
							"type":        []string{"integer", "null"},
							"description": "Sub-parcel number (תת חלקה)",
						},
						"total_plot_area": map[string]any{
							"type":        []string{"number", "null"},
							"description": "Total plot area in square meters",
						},
						"regulation_type": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Regulation type (e.g. מוסכם), verbatim",
						},
						"address": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Property address as stated in the extract",
						},
						"unit_description": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Unit description (e.g. דירת 4 חדרים), verbatim",
						},
						"floor": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Floor as written, including textual floors like קרקע",
						},
						"apartment_registered_area": map[string]any{
							"type":        []string{"number", "null"},
							"description": "Registered apartment area in square meters",
						},
						"balcony_area": map[string]any{
							"type":        []string{"number", "null"},
							"description": "Balcony area in square meters",
						},
						"ownership_type": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Ownership type (e.g. בעלות מלאה), verbatim",
						},
						"issue_date": map[string]any{
							"type":        []string{"string", "null"},
							"description": "Extract issue date as written",
						},
					},
					"additionalProperties": false,
				},
				"owners": map[string]any{
					"type":        "array",
					"items":       ownerItemSchema,
					"description": "Every registered owner row",
				},
				"mortgages": map[string]any{
					"type":        "array",
					"items":       mortgageItemSchema,
					"description": "Every mortgage registration, all ranks",
				},
				"notes": map[string]any{
					"type":        "array",
					"items":       noteItemSchema,
					"description": "Every note, with its position relative to the regulation table",
				},
				"easements": map[string]any{
					"type":        "array",
					"items":       easementItemSchema,
					"description": "Every easement entry",
				},
				"confidence": map[string]any{
					"type":        "object",
					"description": "Per-category confidence in [0,1]; omit categories with nothing extracted",
					"properties": map[string]any{
						"owners":    map[string]any{"type": []string{"number", "null"}},
						"mortgages": map[string]any{"type": []string{"number", "null"}},
						"notes":     map[string]any{"type": []string{"number", "null"}},
						"easements": map[string]any{"type": []string{"number", "null"}},
					},
					"additionalProperties": false,
				},
			},
			"required":             []string{"owners", "mortgages", "notes", "easements", "confidence"},
			"additionalProperties": false,
		},
	},
}

// Entity item schemas shared with the targeted detail pass via identical wire
// shapes; kept package-local so each schema document is self-contained.
var ownerItemSchema = map[string]any{
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
}

var mortgageItemSchema = map[string]any{
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
}

var noteItemSchema = map[string]any{
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
}

var easementItemSchema = map[string]any{
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
}
