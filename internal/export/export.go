// Package export renders accumulated extraction results as an Excel
// workbook: one sheet per entity table (owners, mortgages, notes,
// easements), a flat sheet of extract headers, and a summary sheet with
// per-table row counts. The workbook is the database handoff artifact for
// downstream valuation tooling.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/extraction"
)

// Service queries completed extracts from the store and produces XLSX bytes.
type Service struct {
	client *defra.Client
	logger *slog.Logger
}

func NewService(client *defra.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// record is one extract joined with its session filename.
type record struct {
	SessionID string
	Filename  string
	CreatedAt string
	Result    extraction.Result
}

// sheet names, capped at Excel's 31-character limit by construction.
const (
	sheetSummary   = "Summary"
	sheetExtracts  = "Extracts"
	sheetOwners    = "Owners"
	sheetMortgages = "Mortgages"
	sheetNotes     = "Notes"
	sheetEasements = "Easements"
)

// ExportXLSX returns an XLSX workbook of every stored extract. Extracts
// whose result payload fails to parse are skipped with a warning rather
// than failing the whole export.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	records, err := s.fetchRecords(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes the summary so it opens first.
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	for _, name := range []string{sheetExtracts, sheetOwners, sheetMortgages, sheetNotes, sheetEasements} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	counts := map[string]int{
		sheetExtracts:  s.writeExtracts(f, records),
		sheetOwners:    s.writeOwners(f, records),
		sheetMortgages: s.writeMortgages(f, records),
		sheetNotes:     s.writeNotes(f, records),
		sheetEasements: s.writeEasements(f, records),
	}
	s.writeSummary(f, counts)

	if index, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(index)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("excel export built",
		"extracts", len(records),
		"owners", counts[sheetOwners],
		"mortgages", counts[sheetMortgages],
		"notes", counts[sheetNotes],
		"easements", counts[sheetEasements],
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// fetchRecords loads all Extract documents plus the session filenames they
// reference. Results come back ordered by creation time so workbook rows
// are stable across exports.
func (s *Service) fetchRecords(ctx context.Context) ([]record, error) {
	query := `{
		Extract(order: {created_at: ASC}) {
			session_id
			result
			created_at
		}
	}`
	resp, err := s.client.Execute(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query extracts: %w", err)
	}

	filenames, err := s.sessionFilenames(ctx)
	if err != nil {
		return nil, err
	}

	docs, _ := resp.Data["Extract"].([]any)
	records := make([]record, 0, len(docs))
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		rec := record{}
		rec.SessionID, _ = doc["session_id"].(string)
		rec.CreatedAt, _ = doc["created_at"].(string)
		rec.Filename = filenames[rec.SessionID]

		raw, _ := doc["result"].(string)
		if err := json.Unmarshal([]byte(raw), &rec.Result); err != nil {
			s.logger.Warn("skipping extract with unparseable result",
				"session_id", rec.SessionID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Service) sessionFilenames(ctx context.Context) (map[string]string, error) {
	query := `{
		Session {
			_docID
			filename
		}
	}`
	resp, err := s.client.Execute(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	filenames := make(map[string]string)
	docs, _ := resp.Data["Session"].([]any)
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		id, _ := doc["_docID"].(string)
		name, _ := doc["filename"].(string)
		if id != "" {
			filenames[id] = name
		}
	}
	return filenames, nil
}

// rowWriter writes sequential rows to one sheet, header first.
type rowWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newRowWriter(f *excelize.File, sheet string, headers []string) *rowWriter {
	w := &rowWriter{f: f, sheet: sheet, row: 1}
	w.write(toAny(headers)...)
	return w
}

func (w *rowWriter) write(values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, w.row)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
	w.row++
}

// rows returns the number of data rows written so far.
func (w *rowWriter) rows() int { return w.row - 2 }

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (s *Service) writeExtracts(f *excelize.File, records []record) int {
	w := newRowWriter(f, sheetExtracts, []string{
		"session_id",
		"document_filename",
		"registration_office",
		"issue_date",
		"gush",
		"chelka",
		"sub_chelka",
		"total_plot_area",
		"regulation_type",
		"address_from_tabu",
		"unit_description",
		"floor",
		"apartment_registered_area",
		"balcony_area",
		"ownership_type",
		"owners_count",
		"mortgages_count",
		"notes_count",
		"easements_count",
		"confidence_overall",
		"analysis_summary",
		"processing_time_ms",
		"tokens_used",
		"stages_completed",
		"extraction_challenges",
		"created_at",
	})

	for _, rec := range records {
		p := rec.Result.Property
		if p == nil {
			p = &extraction.PropertyDetails{}
		}
		stages := make([]string, 0, len(rec.Result.StagesCompleted))
		for _, st := range rec.Result.StagesCompleted {
			stages = append(stages, string(st))
		}
		w.write(
			rec.SessionID,
			rec.Filename,
			strVal(p.RegistrationOffice),
			strVal(p.IssueDate),
			intVal(p.Gush),
			intVal(p.Chelka),
			intVal(p.SubChelka),
			floatVal(p.TotalPlotArea),
			strVal(p.RegulationType),
			strVal(p.Address),
			strVal(p.UnitDescription),
			strVal(p.Floor),
			floatVal(p.ApartmentRegisteredArea),
			floatVal(p.BalconyArea),
			strVal(p.OwnershipType),
			len(rec.Result.Owners),
			len(rec.Result.Mortgages),
			len(rec.Result.Notes),
			len(rec.Result.Easements),
			floatVal(rec.Result.OverallConfidence),
			rec.Result.AnalysisSummary,
			rec.Result.ProcessingTimeMs,
			rec.Result.TokensUsed,
			strings.Join(stages, ", "),
			strings.Join(rec.Result.ExtractionChallenges, "; "),
			rec.CreatedAt,
		)
	}

	_ = f.SetColWidth(sheetExtracts, "A", "B", 24)
	_ = f.SetColWidth(sheetExtracts, "C", "C", 30)
	_ = f.SetColWidth(sheetExtracts, "J", "K", 32)
	_ = f.SetColWidth(sheetExtracts, "U", "U", 48)
	_ = f.SetColWidth(sheetExtracts, "Y", "Y", 48)
	return w.rows()
}

func (s *Service) writeOwners(f *excelize.File, records []record) int {
	w := newRowWriter(f, sheetOwners, []string{
		"session_id",
		"document_filename",
		"owner_name",
		"id_number",
		"share_percent",
		"source_note",
	})
	for _, rec := range records {
		for _, o := range rec.Result.Owners {
			w.write(
				rec.SessionID,
				rec.Filename,
				o.Name,
				strVal(o.IDNumber),
				strVal(o.SharePercent),
				strVal(o.SourceNote),
			)
		}
	}
	_ = f.SetColWidth(sheetOwners, "A", "B", 24)
	_ = f.SetColWidth(sheetOwners, "C", "C", 28)
	_ = f.SetColWidth(sheetOwners, "F", "F", 40)
	return w.rows()
}

func (s *Service) writeMortgages(f *excelize.File, records []record) int {
	w := newRowWriter(f, sheetMortgages, []string{
		"session_id",
		"document_filename",
		"rank",
		"lender_name",
		"amount",
		"registration_date",
		"status",
	})
	for _, rec := range records {
		for _, m := range rec.Result.Mortgages {
			w.write(
				rec.SessionID,
				rec.Filename,
				m.Rank,
				m.LenderName,
				strVal(m.Amount),
				strVal(m.RegistrationDate),
				strVal(m.Status),
			)
		}
	}
	_ = f.SetColWidth(sheetMortgages, "A", "B", 24)
	_ = f.SetColWidth(sheetMortgages, "D", "E", 28)
	return w.rows()
}

func (s *Service) writeNotes(f *excelize.File, records []record) int {
	w := newRowWriter(f, sheetNotes, []string{
		"session_id",
		"document_filename",
		"note_text",
		"position",
	})
	for _, rec := range records {
		for _, n := range rec.Result.Notes {
			w.write(
				rec.SessionID,
				rec.Filename,
				n.Text,
				string(n.Position),
			)
		}
	}
	_ = f.SetColWidth(sheetNotes, "A", "B", 24)
	_ = f.SetColWidth(sheetNotes, "C", "C", 64)
	return w.rows()
}

func (s *Service) writeEasements(f *excelize.File, records []record) int {
	w := newRowWriter(f, sheetEasements, []string{
		"session_id",
		"document_filename",
		"description",
		"beneficiary",
		"location",
	})
	for _, rec := range records {
		for _, e := range rec.Result.Easements {
			w.write(
				rec.SessionID,
				rec.Filename,
				e.Description,
				strVal(e.Beneficiary),
				strVal(e.Location),
			)
		}
	}
	_ = f.SetColWidth(sheetEasements, "A", "B", 24)
	_ = f.SetColWidth(sheetEasements, "C", "C", 48)
	return w.rows()
}

// writeSummary lists each table sheet with its Hebrew name and row count,
// matching the index sheet of the original database workbook.
func (s *Service) writeSummary(f *excelize.File, counts map[string]int) {
	w := newRowWriter(f, sheetSummary, []string{
		"Table Name",
		"שם הטבלה",
		"תיאור",
		"Rows",
	})
	summary := []struct {
		sheet       string
		hebrewName  string
		description string
	}{
		{sheetExtracts, "נסח טאבו מקיף", "מסמכי בעלות ורישום מקרקעין"},
		{sheetOwners, "בעלים", "בעלים רשומים לפי נסח"},
		{sheetMortgages, "משכנתאות", "משכנתאות רשומות לפי דרגה"},
		{sheetNotes, "הערות", "הערות אזהרה והערות רישום"},
		{sheetEasements, "זיקות הנאה", "זיקות הנאה רשומות"},
	}
	for _, row := range summary {
		w.write(row.sheet, row.hebrewName, row.description, counts[row.sheet])
	}
	_ = f.SetColWidth(sheetSummary, "A", "C", 28)
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intVal(p *int) any {
	if p == nil {
		return ""
	}
	return *p
}

func floatVal(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}
