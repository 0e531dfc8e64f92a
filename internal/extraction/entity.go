// Package extraction defines the domain model for land-registry extraction:
// the entity records recovered from a nesach Tabu document, the per-pass
// outputs produced by the LLM stages, and the merged final result.
//
// Everything in this package is pure data and pure transforms. Nothing here
// talks to a provider, the store, or the filesystem, so the merge and
// confidence logic can be tested without any external collaborator.
package extraction

import (
	"fmt"
	"strings"
)

// Category identifies one of the repeating entity categories extracted from
// a land-registry document.
type Category string

const (
	CategoryOwners    Category = "owners"
	CategoryMortgages Category = "mortgages"
	CategoryNotes     Category = "notes"
	CategoryEasements Category = "easements"
)

// Categories returns all entity categories in canonical order.
func Categories() []Category {
	return []Category{CategoryOwners, CategoryMortgages, CategoryNotes, CategoryEasements}
}

// NotePosition locates a note relative to the regulation table in the
// document. Notes above the table apply to the whole parcel; notes below
// apply to the specific sub-parcel.
type NotePosition string

const (
	// NoteAboveRegulation marks a note physically above the regulation table.
	NoteAboveRegulation NotePosition = "above_regulation"
	// NoteBelowRegulation marks a note physically below the regulation table.
	NoteBelowRegulation NotePosition = "below_regulation"
	// NoteOther marks a note whose position could not be determined.
	NoteOther NotePosition = "other"
)

// ParseNotePosition converts a string to a NotePosition.
// Returns NoteOther if the string is not recognized.
func ParseNotePosition(s string) NotePosition {
	switch s {
	case "above_regulation":
		return NoteAboveRegulation
	case "below_regulation":
		return NoteBelowRegulation
	default:
		return NoteOther
	}
}

// Owner is one registered owner row from the ownership section.
type Owner struct {
	Name         string  `json:"name"`
	IDNumber     *string `json:"id_number"`     // teudat zehut or company number
	SharePercent *string `json:"share_percent"` // ownership share, verbatim (e.g. "1/2")
	SourceNote   *string `json:"source_note"`   // registration deed reference if stated
}

// Key returns the identity key used for deduplication: the normalized name,
// plus the ID number when one is present.
func (o Owner) Key(n Normalizer) string {
	key := n.Normalize(o.Name)
	if hasText(o.IDNumber) {
		key += "|" + strings.TrimSpace(*o.IDNumber)
	}
	return key
}

// Populated reports how many attributes carry a value. Used by the merger to
// prefer the richer of two records with the same identity key.
func (o Owner) Populated() int {
	count := 1 // name
	for _, p := range []*string{o.IDNumber, o.SharePercent, o.SourceNote} {
		if hasText(p) {
			count++
		}
	}
	return count
}

// Mortgage is one mortgage (mashkanta) registration, ordered by rank.
type Mortgage struct {
	Rank             int     `json:"rank"` // registration rank (daraga), 1-based
	LenderName       string  `json:"lender_name"`
	Amount           *string `json:"amount"` // verbatim, currency included
	RegistrationDate *string `json:"registration_date"`
	Status           *string `json:"status"`
}

// Key returns the identity key used for deduplication: rank plus the
// normalized lender name.
func (m Mortgage) Key(n Normalizer) string {
	return fmt.Sprintf("%d|%s", m.Rank, n.Normalize(m.LenderName))
}

// Populated reports how many attributes carry a value.
func (m Mortgage) Populated() int {
	count := 2 // rank, lender
	for _, p := range []*string{m.Amount, m.RegistrationDate, m.Status} {
		if hasText(p) {
			count++
		}
	}
	return count
}

// Note is one note (he'ara) from the notes sections of the extract.
type Note struct {
	Text     string       `json:"text"`
	Position NotePosition `json:"position"`
}

// Key returns the identity key used for deduplication: the normalized text.
// Position is not part of the key, so the same note reported above and below
// the regulation table by different passes is one note.
func (nt Note) Key(n Normalizer) string {
	return n.Normalize(nt.Text)
}

// Populated reports how many attributes carry a value. A position other than
// NoteOther counts: it locates the note relative to the regulation table.
func (nt Note) Populated() int {
	count := 1 // text
	if nt.Position == NoteAboveRegulation || nt.Position == NoteBelowRegulation {
		count++
	}
	return count
}

// Easement is one easement (zikat hana'a) registration.
type Easement struct {
	Description string  `json:"description"`
	Beneficiary *string `json:"beneficiary"`
	Location    *string `json:"location"`
}

// Key returns the identity key used for deduplication: the normalized
// description.
func (e Easement) Key(n Normalizer) string {
	return n.Normalize(e.Description)
}

// Populated reports how many attributes carry a value.
func (e Easement) Populated() int {
	count := 1 // description
	for _, p := range []*string{e.Beneficiary, e.Location} {
		if hasText(p) {
			count++
		}
	}
	return count
}

// PropertyDetails carries the parcel-level fields of the extract header:
// registration office, gush/chelka identifiers, areas, regulation type.
// Produced only by the comprehensive pass. Every field is optional; a
// missing value stays nil, never a placeholder.
type PropertyDetails struct {
	RegistrationOffice      *string  `json:"registration_office"`
	Gush                    *int     `json:"gush"`
	Chelka                  *int     `json:"chelka"`
	SubChelka               *int     `json:"sub_chelka"`
	TotalPlotArea           *float64 `json:"total_plot_area"` // square meters
	RegulationType          *string  `json:"regulation_type"` // e.g. "מוסכם"
	Address                 *string  `json:"address"`
	UnitDescription         *string  `json:"unit_description"`
	Floor                   *string  `json:"floor"` // textual, floors like "קרקע" appear
	ApartmentRegisteredArea *float64 `json:"apartment_registered_area"`
	BalconyArea             *float64 `json:"balcony_area"`
	OwnershipType           *string  `json:"ownership_type"`
	IssueDate               *string  `json:"issue_date"`
}

func hasText(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}
