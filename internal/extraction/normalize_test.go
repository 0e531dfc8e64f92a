package extraction

import "testing"

func TestDefaultNormalizer_FoldsQuoteVariants(t *testing.T) {
	n := DefaultNormalizer()

	// The same company name with gershayim vs straight quotes.
	a := n.Normalize("בנק לאומי בע״מ")
	b := n.Normalize(`בנק לאומי בע"מ`)
	if a != b {
		t.Fatalf("Normalize() gershayim = %q, straight quote = %q", a, b)
	}
}

func TestDefaultNormalizer_Cases(t *testing.T) {
	n := DefaultNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapses whitespace", "יוסי   כהן", "יוסי כהן"},
		{"trims ends", "  יוסי כהן\t", "יוסי כהן"},
		{"folds latin case", "Bank Leumi LTD", "bank leumi ltd"},
		{"maqaf to hyphen", "תל־אביב", "תל-אביב"},
		{"drops geresh", "ג׳ורג", "גורג"},
		{"drops apostrophe", "ג'ורג", "גורג"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultNormalizer_DropsNiqqud(t *testing.T) {
	n := DefaultNormalizer()

	// "שָׁלוֹם" with niqqud folds to the bare letters.
	pointed := "שָׁלוֹם"
	if got, want := n.Normalize(pointed), "שלום"; got != want {
		t.Fatalf("Normalize(pointed) = %q, want %q", got, want)
	}
}

func TestNormalizerFunc_Adapts(t *testing.T) {
	upper := NormalizerFunc(func(s string) string { return s + "!" })
	if got := upper.Normalize("x"); got != "x!" {
		t.Fatalf("NormalizerFunc.Normalize() = %q, want %q", got, "x!")
	}
}
