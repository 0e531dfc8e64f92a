package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/extraction"
)

func strp(s string) *string { return &s }

func intp(n int) *int { return &n }

func floatp(f float64) *float64 { return &f }

func sampleResult() extraction.Result {
	return extraction.Result{
		Owners: []extraction.Owner{
			{Name: "יוסי כהן", IDNumber: strp("012345678"), SharePercent: strp("1/2")},
			{Name: "רחל כהן", IDNumber: strp("023456789"), SharePercent: strp("1/2")},
		},
		Mortgages: []extraction.Mortgage{
			{Rank: 1, LenderName: "בנק לאומי", Amount: strp("1,500,000 ש\"ח")},
		},
		Notes: []extraction.Note{
			{Text: "הערת אזהרה לטובת בנק לאומי", Position: extraction.NoteAboveRegulation},
		},
		Easements: nil,
		Property: &extraction.PropertyDetails{
			RegistrationOffice: strp("לשכת רישום מקרקעין תל אביב"),
			Gush:               intp(6158),
			Chelka:             intp(219),
			SubChelka:          intp(8),
			RegulationType:     strp("מוסכם"),
		},
		OverallConfidence: floatp(92.5),
		ProcessingTimeMs:  4200,
		TokensUsed:        1820,
		StagesCompleted: []extraction.Stage{
			extraction.StageAnalysis,
			extraction.StageComprehensive,
			extraction.StageDetail,
		},
		AnalysisSummary: "2 owners, 1 mortgages, 1 notes, 0 easements over 1 pages",
	}
}

// stubServer answers Extract and Session list queries with canned documents.
func stubServer(t *testing.T, extracts []map[string]any, sessions []map[string]any) *defra.Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var gql struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(body, &gql); err != nil {
			t.Errorf("malformed request body: %v", err)
		}

		data := map[string]any{}
		switch {
		case strings.Contains(gql.Query, "Extract("):
			data["Extract"] = extracts
		case strings.Contains(gql.Query, "Session"):
			data["Session"] = sessions
		}
		payload, _ := json.Marshal(map[string]any{"data": data})
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}))
	t.Cleanup(server.Close)

	return defra.NewClient(server.URL)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	if err != nil {
		t.Fatalf("GetCellValue(%s!%s) error = %v", sheet, ref, err)
	}
	return v
}

func TestService_ExportXLSX(t *testing.T) {
	resultJSON, err := json.Marshal(sampleResult())
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	client := stubServer(t,
		[]map[string]any{{
			"session_id": "sess-0001",
			"result":     string(resultJSON),
			"created_at": "2026-01-15T10:30:00Z",
		}},
		[]map[string]any{{
			"_docID":   "sess-0001",
			"filename": "nesach.pdf",
		}},
	)

	svc := NewService(client, testLogger())
	data, err := svc.ExportXLSX(context.Background())
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f := openWorkbook(t, data)

	t.Run("has_all_sheets", func(t *testing.T) {
		want := []string{sheetSummary, sheetExtracts, sheetOwners, sheetMortgages, sheetNotes, sheetEasements}
		got := f.GetSheetList()
		for _, name := range want {
			found := false
			for _, g := range got {
				if g == name {
					found = true
				}
			}
			if !found {
				t.Errorf("sheet %q missing, got %v", name, got)
			}
		}
	})

	t.Run("extracts_sheet", func(t *testing.T) {
		if got := cell(t, f, sheetExtracts, "A1"); got != "session_id" {
			t.Errorf("A1 = %q, want session_id", got)
		}
		if got := cell(t, f, sheetExtracts, "A2"); got != "sess-0001" {
			t.Errorf("A2 = %q, want sess-0001", got)
		}
		if got := cell(t, f, sheetExtracts, "B2"); got != "nesach.pdf" {
			t.Errorf("B2 = %q, want nesach.pdf", got)
		}
		if got := cell(t, f, sheetExtracts, "E2"); got != "6158" {
			t.Errorf("gush = %q, want 6158", got)
		}
		// owners_count is column P
		if got := cell(t, f, sheetExtracts, "P2"); got != "2" {
			t.Errorf("owners_count = %q, want 2", got)
		}
		if got := cell(t, f, sheetExtracts, "X2"); got != "analysis, comprehensive, detail" {
			t.Errorf("stages_completed = %q", got)
		}
	})

	t.Run("owners_sheet", func(t *testing.T) {
		if got := cell(t, f, sheetOwners, "C2"); got != "יוסי כהן" {
			t.Errorf("owner name = %q", got)
		}
		if got := cell(t, f, sheetOwners, "D3"); got != "023456789" {
			t.Errorf("second owner id = %q", got)
		}
		if got := cell(t, f, sheetOwners, "C4"); got != "" {
			t.Errorf("unexpected third owner row: %q", got)
		}
	})

	t.Run("mortgages_sheet", func(t *testing.T) {
		if got := cell(t, f, sheetMortgages, "C2"); got != "1" {
			t.Errorf("rank = %q, want 1", got)
		}
		if got := cell(t, f, sheetMortgages, "D2"); got != "בנק לאומי" {
			t.Errorf("lender = %q", got)
		}
	})

	t.Run("notes_sheet", func(t *testing.T) {
		if got := cell(t, f, sheetNotes, "D2"); got != "above_regulation" {
			t.Errorf("position = %q", got)
		}
	})

	t.Run("summary_counts", func(t *testing.T) {
		rows := map[string]string{
			"D2": "1", // Extracts
			"D3": "2", // Owners
			"D4": "1", // Mortgages
			"D5": "1", // Notes
			"D6": "0", // Easements
		}
		for ref, want := range rows {
			if got := cell(t, f, sheetSummary, ref); got != want {
				t.Errorf("summary %s = %q, want %q", ref, got, want)
			}
		}
	})
}

func TestService_ExportXLSX_SkipsUnparseableResult(t *testing.T) {
	resultJSON, _ := json.Marshal(sampleResult())

	client := stubServer(t,
		[]map[string]any{
			{
				"session_id": "sess-bad",
				"result":     "{not json",
				"created_at": "2026-01-14T09:00:00Z",
			},
			{
				"session_id": "sess-0002",
				"result":     string(resultJSON),
				"created_at": "2026-01-15T10:30:00Z",
			},
		},
		[]map[string]any{{
			"_docID":   "sess-0002",
			"filename": "good.pdf",
		}},
	)

	svc := NewService(client, testLogger())
	data, err := svc.ExportXLSX(context.Background())
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f := openWorkbook(t, data)
	if got := cell(t, f, sheetExtracts, "A2"); got != "sess-0002" {
		t.Errorf("first data row = %q, want sess-0002", got)
	}
	if got := cell(t, f, sheetExtracts, "A3"); got != "" {
		t.Errorf("unexpected second data row: %q", got)
	}
}

func TestService_ExportXLSX_Empty(t *testing.T) {
	client := stubServer(t, nil, nil)

	svc := NewService(client, testLogger())
	data, err := svc.ExportXLSX(context.Background())
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f := openWorkbook(t, data)
	if got := cell(t, f, sheetOwners, "A1"); got != "session_id" {
		t.Errorf("header row = %q, want session_id", got)
	}
	if got := cell(t, f, sheetSummary, "D2"); got != "0" {
		t.Errorf("summary extracts count = %q, want 0", got)
	}
}
