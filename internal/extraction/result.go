package extraction

// Document is the input handed to the pipeline: either pre-extracted text
// (markdown from conversion or OCR) or the raw binary for vision mode.
type Document struct {
	// Text is the document content for plain-text mode.
	Text string
	// Data is the raw document for vision mode (PDF or image bytes).
	Data []byte
	// MediaType declares what Data holds, e.g. "application/pdf" or
	// "image/jpeg". Ignored when Data is empty.
	MediaType string
	// Filename is informational only, carried into logs and records.
	Filename string
}

// HasText reports whether the document carries plain-text content.
func (d Document) HasText() bool { return d.Text != "" }

// HasData reports whether the document carries binary content.
func (d Document) HasData() bool { return len(d.Data) > 0 }

// Result is the final artifact of one pipeline run. The caller owns it once
// returned; the pipeline keeps no reference.
type Result struct {
	Owners    []Owner    `json:"owners"`
	Mortgages []Mortgage `json:"mortgages"`
	Notes     []Note     `json:"notes"`
	Easements []Easement `json:"easements"`

	// Property is the parcel header from the comprehensive pass, when it
	// produced one.
	Property *PropertyDetails `json:"property,omitempty"`

	// OverallConfidence is 0-100, nil when no pass reported any
	// per-category confidence.
	OverallConfidence *float64 `json:"overall_confidence"`

	ProcessingTimeMs int64   `json:"processing_time_ms"`
	TokensUsed       int     `json:"tokens_used"`
	StagesCompleted  []Stage `json:"stages_completed"`

	// AnalysisSummary is the one-line rendering of the structure survey.
	AnalysisSummary string `json:"analysis_summary"`

	// ExtractionChallenges collects every recorded warning: survey-reported
	// difficulties, absorbed pass failures, and merged-count shortfalls.
	ExtractionChallenges []string `json:"extraction_challenges"`
}

// Count returns the number of merged entities in a category.
func (r *Result) Count(c Category) int {
	switch c {
	case CategoryOwners:
		return len(r.Owners)
	case CategoryMortgages:
		return len(r.Mortgages)
	case CategoryNotes:
		return len(r.Notes)
	case CategoryEasements:
		return len(r.Easements)
	default:
		return 0
	}
}

// EntityTotal returns the number of merged entities across all categories.
func (r *Result) EntityTotal() int {
	total := 0
	for _, c := range Categories() {
		total += r.Count(c)
	}
	return total
}
