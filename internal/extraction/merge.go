package extraction

import "fmt"

// Merger combines the comprehensive and detail pass outputs into one
// deduplicated entity set per category. The comprehensive pass is the
// primary source; the detail pass is a recall booster for categories the
// primary tends to under-count.
type Merger struct {
	normalizer Normalizer
}

// NewMerger creates a merger using the given normalizer for identity keys.
// A nil normalizer selects DefaultNormalizer.
func NewMerger(n Normalizer) *Merger {
	if n == nil {
		n = DefaultNormalizer()
	}
	return &Merger{normalizer: n}
}

// Merged is the merger's output: deduplicated sequences in first-seen order,
// the property header, and any count-validation flags.
type Merged struct {
	Owners     []Owner
	Mortgages  []Mortgage
	Notes      []Note
	Easements  []Easement
	Property   *PropertyDetails
	Challenges []string
}

// Count returns the number of merged entities in a category.
func (m Merged) Count(c Category) int {
	switch c {
	case CategoryOwners:
		return len(m.Owners)
	case CategoryMortgages:
		return len(m.Mortgages)
	case CategoryNotes:
		return len(m.Notes)
	case CategoryEasements:
		return len(m.Easements)
	default:
		return 0
	}
}

// Merge combines the two pass outputs and validates the merged counts
// against the structure survey. Either output may be nil (a pass that never
// ran contributes nothing). Merge never invents data: every entity in the
// result is one of the input entities, chosen per identity key by the
// tie-break rules in pickBetter.
func (m *Merger) Merge(primary, booster *StageOutput, report AnalysisReport) Merged {
	var out Merged
	out.Owners = mergeEntities(m.normalizer,
		Owner.Key, Owner.Populated,
		sourceFor(primary, CategoryOwners, stageOwners),
		sourceFor(booster, CategoryOwners, stageOwners))
	out.Mortgages = mergeEntities(m.normalizer,
		Mortgage.Key, Mortgage.Populated,
		sourceFor(primary, CategoryMortgages, stageMortgages),
		sourceFor(booster, CategoryMortgages, stageMortgages))
	out.Notes = mergeEntities(m.normalizer,
		Note.Key, Note.Populated,
		sourceFor(primary, CategoryNotes, stageNotes),
		sourceFor(booster, CategoryNotes, stageNotes))
	out.Easements = mergeEntities(m.normalizer,
		Easement.Key, Easement.Populated,
		sourceFor(primary, CategoryEasements, stageEasements),
		sourceFor(booster, CategoryEasements, stageEasements))

	if primary != nil && primary.Property != nil {
		out.Property = primary.Property
	} else if booster != nil && booster.Property != nil {
		out.Property = booster.Property
	}

	out.Challenges = validateCounts(report, out)
	return out
}

func stageOwners(s *StageOutput) []Owner       { return s.Owners }
func stageMortgages(s *StageOutput) []Mortgage { return s.Mortgages }
func stageNotes(s *StageOutput) []Note         { return s.Notes }
func stageEasements(s *StageOutput) []Easement { return s.Easements }

// entitySource is one pass's contribution to a single category.
type entitySource[E any] struct {
	entities []E
	conf     float64
	primary  bool
}

func sourceFor[E any](s *StageOutput, c Category, pick func(*StageOutput) []E) entitySource[E] {
	var src entitySource[E]
	if s == nil {
		return src
	}
	src.entities = pick(s)
	// Unreported confidence compares as zero in tie-breaks.
	src.conf, _ = s.CategoryConfidence(c)
	src.primary = s.Stage == StageComprehensive
	return src
}

// candidate pairs an entity with the metadata the tie-breaks need.
type candidate[E any] struct {
	entity    E
	populated int
	conf      float64
	primary   bool
}

// mergeEntities deduplicates two entity lists by identity key. First-seen
// order of each key is preserved; within a key group the representative is
// chosen by pickBetter. A key duplicated inside one list collapses the same
// way, which is what makes merging an output with itself a no-op.
func mergeEntities[E any](
	n Normalizer,
	key func(E, Normalizer) string,
	populated func(E) int,
	primary, booster entitySource[E],
) []E {
	var order []string
	best := make(map[string]candidate[E])

	absorb := func(src entitySource[E]) {
		for _, e := range src.entities {
			k := key(e, n)
			cand := candidate[E]{entity: e, populated: populated(e), conf: src.conf, primary: src.primary}
			cur, seen := best[k]
			if !seen {
				best[k] = cand
				order = append(order, k)
				continue
			}
			if pickBetter(cand, cur) {
				best[k] = cand
			}
		}
	}
	absorb(primary)
	absorb(booster)

	if len(order) == 0 {
		return nil
	}
	out := make([]E, 0, len(order))
	for _, k := range order {
		out = append(out, best[k].entity)
	}
	return out
}

// pickBetter reports whether the incoming candidate should replace the
// current representative for an identity key. Tie-break order: more
// populated attributes, then higher category confidence of the producing
// pass, then the comprehensive pass. On a full tie the current (first-seen)
// entity stays.
func pickBetter[E any](incoming, current candidate[E]) bool {
	if incoming.populated != current.populated {
		return incoming.populated > current.populated
	}
	if incoming.conf != current.conf {
		return incoming.conf > current.conf
	}
	return incoming.primary && !current.primary
}

// validateCounts compares merged counts per category against the structure
// survey's expectations. Any shortfall becomes a flag on the result; the
// merger never retries and never fills the gap.
func validateCounts(report AnalysisReport, merged Merged) []string {
	var flags []string
	for _, c := range Categories() {
		expected := report.ExpectedCount(c)
		got := merged.Count(c)
		if expected > got {
			flags = append(flags, fmt.Sprintf("%s: structure survey expected %d, merged result has %d", c, expected, got))
		}
	}
	return flags
}
