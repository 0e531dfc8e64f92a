package details

import (
	"strings"
	"testing"

	"github.com/shamayhq/nesach/internal/extraction"
)

func TestCreateWorkUnit(t *testing.T) {
	t.Run("each category has a targeted prompt", func(t *testing.T) {
		for _, cat := range extraction.Categories() {
			unit, err := CreateWorkUnit(Input{Category: cat, DocumentText: "doc"})
			if err != nil {
				t.Fatalf("CreateWorkUnit(%s) error = %v", cat, err)
			}
			if unit.ChatRequest.Temperature != 0 {
				t.Errorf("%s: Temperature = %f, want 0", cat, unit.ChatRequest.Temperature)
			}
			if unit.ChatRequest.ResponseFormat == nil {
				t.Errorf("%s: expected response format", cat)
			}
			if !strings.Contains(unit.ChatRequest.Messages[1].Content, "doc") {
				t.Errorf("%s: user prompt should interpolate document text", cat)
			}
		}
	})

	t.Run("unknown category errors", func(t *testing.T) {
		if _, err := CreateWorkUnit(Input{Category: "liens", DocumentText: "doc"}); err == nil {
			t.Error("expected error for unknown category")
		}
	})

	t.Run("mortgage prompt targets ranks", func(t *testing.T) {
		unit, err := CreateWorkUnit(Input{Category: extraction.CategoryMortgages, DocumentText: "doc"})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(unit.ChatRequest.Messages[1].Content, "EVERY rank") {
			t.Error("mortgage prompt should insist on every rank")
		}
	})
}

func TestParseResult(t *testing.T) {
	t.Run("mortgages sub-query", func(t *testing.T) {
		parsed := map[string]any{
			"mortgages": []any{
				map[string]any{"rank": 1, "lender_name": "בנק לאומי"},
				map[string]any{"rank": 2, "lender_name": "בנק הפועלים"},
			},
			"confidence": 0.85,
		}

		result, err := ParseResult(parsed)
		if err != nil {
			t.Fatalf("ParseResult() error = %v", err)
		}
		if len(result.Mortgages) != 2 {
			t.Errorf("mortgages = %d, want 2", len(result.Mortgages))
		}
		if result.Confidence == nil || *result.Confidence != 0.85 {
			t.Errorf("Confidence = %v", result.Confidence)
		}
	})

	t.Run("note position normalization", func(t *testing.T) {
		parsed := map[string]any{
			"notes": []any{
				map[string]any{"text": "הערה", "position": "somewhere"},
			},
			"confidence": 1.0,
		}
		result, err := ParseResult(parsed)
		if err != nil {
			t.Fatal(err)
		}
		if result.Notes[0].Position != extraction.NoteOther {
			t.Errorf("Position = %s, want other", result.Notes[0].Position)
		}
	})
}

func TestApply(t *testing.T) {
	out := &extraction.StageOutput{Stage: extraction.StageDetail}

	conf1 := 0.9
	(&Result{
		Owners:     []extraction.Owner{{Name: "יוסי כהן"}, {Name: "רחל כהן"}},
		Confidence: &conf1,
	}).Apply(out, extraction.CategoryOwners)

	conf2 := 0.7
	(&Result{
		Easements:  []extraction.Easement{{Description: "זכות מעבר"}},
		Confidence: &conf2,
	}).Apply(out, extraction.CategoryEasements)

	// A failed sub-query applies nothing
	(&Result{}).Apply(out, extraction.CategoryMortgages)

	if len(out.Owners) != 2 {
		t.Errorf("owners = %d, want 2", len(out.Owners))
	}
	if len(out.Easements) != 1 {
		t.Errorf("easements = %d, want 1", len(out.Easements))
	}
	if v, ok := out.CategoryConfidence(extraction.CategoryOwners); !ok || v != 0.9 {
		t.Errorf("owners confidence = %v, %v", v, ok)
	}
	if _, ok := out.CategoryConfidence(extraction.CategoryMortgages); ok {
		t.Error("mortgages confidence should be unreported")
	}
	if out.EntityCount(extraction.CategoryMortgages) != 0 {
		t.Error("mortgages should be empty")
	}
}
