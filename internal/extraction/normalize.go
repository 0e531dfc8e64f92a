package extraction

import (
	"strings"
	"unicode"
)

// Normalizer folds entity text into the canonical form used to build
// identity keys. Deduplication by normalized key is heuristic (spelling
// and punctuation vary between extraction passes), so the fold is a
// pluggable strategy: tests can swap in a trivial normalizer and exercise
// the merge logic independent of Hebrew text rules.
type Normalizer interface {
	Normalize(s string) string
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(string) string

// Normalize calls f(s).
func (f NormalizerFunc) Normalize(s string) string { return f(s) }

// DefaultNormalizer returns the normalizer used for Hebrew land-registry
// text. Hebrew has no letter case, so the fold targets what actually varies
// between passes: quote marks (gershayim in בע״מ vs straight quotes in
// בע"מ), the maqaf vs ASCII hyphen, niqqud, and whitespace runs.
func DefaultNormalizer() Normalizer { return hebrewNormalizer{} }

type hebrewNormalizer struct{}

const (
	hebrewGeresh    = '׳' // ׳
	hebrewGershayim = '״' // ״
	hebrewMaqaf     = '־' // ־
)

func (hebrewNormalizer) Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case r >= 0x0591 && r <= 0x05C7:
			// niqqud and cantillation marks
		case r == hebrewGeresh || r == hebrewGershayim || r == '"' || r == '\'' || r == '`':
			// quote marks, both Hebrew and ASCII
		default:
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			if r == hebrewMaqaf {
				r = '-'
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
