package analyze

import (
	"strings"
	"testing"

	"github.com/shamayhq/nesach/internal/jobs"
)

func TestCreateWorkUnit(t *testing.T) {
	t.Run("text mode", func(t *testing.T) {
		unit := CreateWorkUnit(Input{DocumentText: "גוש 9905 חלקה 88"})

		if unit.Type != jobs.WorkUnitTypeLLM {
			t.Errorf("Type = %s, want %s", unit.Type, jobs.WorkUnitTypeLLM)
		}
		if unit.ChatRequest.Temperature != 0 {
			t.Errorf("Temperature = %f, want 0", unit.ChatRequest.Temperature)
		}
		if unit.ChatRequest.ResponseFormat == nil {
			t.Fatal("expected response format")
		}
		if len(unit.ChatRequest.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(unit.ChatRequest.Messages))
		}
		if !strings.Contains(unit.ChatRequest.Messages[0].Content, "COUNT") {
			t.Error("system prompt should instruct counting")
		}
		if !strings.Contains(unit.ChatRequest.Messages[1].Content, "גוש 9905") {
			t.Error("user prompt should interpolate the document text")
		}
		if len(unit.ChatRequest.Messages[1].Images) != 0 {
			t.Error("text mode should not attach images")
		}
	})

	t.Run("vision mode with page images", func(t *testing.T) {
		unit := CreateWorkUnit(Input{PageImages: [][]byte{[]byte("img1"), []byte("img2")}})

		if len(unit.ChatRequest.Messages[1].Images) != 2 {
			t.Errorf("expected 2 images, got %d", len(unit.ChatRequest.Messages[1].Images))
		}
		if !strings.Contains(unit.ChatRequest.Messages[1].Content, "attached") {
			t.Error("user prompt should mention the attachment")
		}
	})

	t.Run("vision mode with pdf attachment", func(t *testing.T) {
		unit := CreateWorkUnit(Input{PDF: []byte("%PDF-1.4"), Filename: "nesach.pdf"})

		files := unit.ChatRequest.Messages[1].Files
		if len(files) != 1 {
			t.Fatalf("expected 1 file, got %d", len(files))
		}
		if files[0].Filename != "nesach.pdf" {
			t.Errorf("Filename = %s", files[0].Filename)
		}
		if files[0].MediaType != "application/pdf" {
			t.Errorf("MediaType = %s", files[0].MediaType)
		}
	})

	t.Run("system prompt override", func(t *testing.T) {
		unit := CreateWorkUnit(Input{DocumentText: "text", SystemPromptOverride: "custom survey prompt"})

		if unit.ChatRequest.Messages[0].Content != "custom survey prompt" {
			t.Errorf("system prompt = %q", unit.ChatRequest.Messages[0].Content)
		}
	})
}

func TestParseResult(t *testing.T) {
	t.Run("valid survey", func(t *testing.T) {
		parsed := map[string]any{
			"owners_count":           3,
			"mortgages_count":        2,
			"notes_above_regulation": 1,
			"notes_below_regulation": 2,
			"easements_count":        0,
			"document_pages":         4,
			"complex_sections":       []string{"mortgage table split across pages"},
		}

		report, err := ParseResult(parsed)
		if err != nil {
			t.Fatalf("ParseResult() error = %v", err)
		}
		if report.OwnersCount != 3 {
			t.Errorf("OwnersCount = %d, want 3", report.OwnersCount)
		}
		if report.NotesBelowRegulation != 2 {
			t.Errorf("NotesBelowRegulation = %d, want 2", report.NotesBelowRegulation)
		}
		if len(report.ComplexSections) != 1 {
			t.Errorf("ComplexSections = %v", report.ComplexSections)
		}
		if !report.HasCounts() {
			t.Error("expected HasCounts() = true")
		}
	})

	t.Run("schema mismatch fails", func(t *testing.T) {
		parsed := map[string]any{"owners_count": "three"}
		if _, err := ParseResult(parsed); err == nil {
			t.Error("expected error for non-integer count")
		}
	})
}

func TestUserPromptWithOverride(t *testing.T) {
	data := UserPromptData{DocumentText: "doc body"}

	t.Run("override renders with data", func(t *testing.T) {
		got := UserPromptWithOverride(data, "Custom: {{.DocumentText}}")
		if got != "Custom: doc body" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("broken override falls back to default", func(t *testing.T) {
		got := UserPromptWithOverride(data, "{{.Broken")
		if !strings.Contains(got, "doc body") {
			t.Errorf("expected fallback to embedded template, got %q", got)
		}
	})
}
