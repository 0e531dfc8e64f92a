package extraction

import "fmt"

// Stage identifies which pipeline pass produced an output.
type Stage string

const (
	// StageAnalysis is the structure survey pass that counts entities.
	StageAnalysis Stage = "analysis"
	// StageComprehensive is the full extraction pass covering all categories.
	StageComprehensive Stage = "comprehensive"
	// StageDetail is the targeted recall pass for under-counted categories.
	StageDetail Stage = "detail"
)

// AnalysisReport is the structure survey produced by the analysis pass:
// how many of each repeating entity the document appears to contain, and
// which sections look hard to extract. The counts are guidance for the
// later passes, never ground truth. A mismatch between these counts and
// the merged result becomes a recorded challenge, not invented entities.
//
// The report is immutable once produced. A failed analysis pass yields the
// zero value, which the extraction passes treat as "counts unknown".
type AnalysisReport struct {
	OwnersCount          int      `json:"owners_count"`
	MortgagesCount       int      `json:"mortgages_count"`
	NotesAboveRegulation int      `json:"notes_above_regulation"`
	NotesBelowRegulation int      `json:"notes_below_regulation"`
	EasementsCount       int      `json:"easements_count"`
	DocumentPages        int      `json:"document_pages"`
	ComplexSections      []string `json:"complex_sections"`
	ExtractionChallenges []string `json:"extraction_challenges"`
}

// ExpectedCount returns the report's expected entity count for a category.
// Notes combine the counts above and below the regulation table.
func (r AnalysisReport) ExpectedCount(c Category) int {
	switch c {
	case CategoryOwners:
		return r.OwnersCount
	case CategoryMortgages:
		return r.MortgagesCount
	case CategoryNotes:
		return r.NotesAboveRegulation + r.NotesBelowRegulation
	case CategoryEasements:
		return r.EasementsCount
	default:
		return 0
	}
}

// HasCounts reports whether the survey produced any entity count at all.
// False for the zero-valued report a failed analysis pass falls back to.
func (r AnalysisReport) HasCounts() bool {
	for _, c := range Categories() {
		if r.ExpectedCount(c) > 0 {
			return true
		}
	}
	return false
}

// Summary renders the report as one line for the final result.
func (r AnalysisReport) Summary() string {
	if !r.HasCounts() && r.DocumentPages == 0 {
		return "structure survey unavailable"
	}
	return fmt.Sprintf("%d owners, %d mortgages, %d notes (%d above / %d below regulation), %d easements, %d pages",
		r.OwnersCount, r.MortgagesCount,
		r.NotesAboveRegulation+r.NotesBelowRegulation, r.NotesAboveRegulation, r.NotesBelowRegulation,
		r.EasementsCount, r.DocumentPages)
}

// StageOutput is the parsed result of one extraction pass. Ephemeral:
// consumed only by the merger, never stored.
type StageOutput struct {
	Stage      Stage
	Owners     []Owner
	Mortgages  []Mortgage
	Notes      []Note
	Easements  []Easement
	Property   *PropertyDetails     // comprehensive pass only
	Confidence map[Category]float64 // 0..1, only for categories the pass reported
	TokensUsed int
}

// CategoryConfidence returns the confidence this pass reported for a
// category, and whether it reported one at all.
func (s *StageOutput) CategoryConfidence(c Category) (float64, bool) {
	if s == nil || s.Confidence == nil {
		return 0, false
	}
	v, ok := s.Confidence[c]
	return v, ok
}

// EntityCount returns the number of entities this pass produced for a
// category.
func (s *StageOutput) EntityCount(c Category) int {
	if s == nil {
		return 0
	}
	switch c {
	case CategoryOwners:
		return len(s.Owners)
	case CategoryMortgages:
		return len(s.Mortgages)
	case CategoryNotes:
		return len(s.Notes)
	case CategoryEasements:
		return len(s.Easements)
	default:
		return 0
	}
}
