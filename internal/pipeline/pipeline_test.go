package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/providers"
)

// Canned stage responses for a four-page extract with three owners, two
// mortgage ranks, two notes, and no easements.
const (
	surveyJSON = `{"owners_count":3,"mortgages_count":2,"notes_above_regulation":1,"notes_below_regulation":1,"easements_count":0,"document_pages":4,"complex_sections":[],"extraction_challenges":[]}`

	// The comprehensive pass finds two of the three owners and only the
	// first mortgage rank; the detail sub-queries recover the rest.
	comprehensiveJSON = `{"property_details":{"registration_office":"נתניה","gush":9905,"chelka":88,"sub_chelka":8,"regulation_type":"מוסכם"},"owners":[{"name":"ישראל ישראלי","id_number":"012345678","share_percent":"1/3"},{"name":"שרה לוי","id_number":"023456789","share_percent":"1/3"}],"mortgages":[{"rank":1,"lender_name":"בנק הפועלים","amount":"1,200,000 ש\"ח","status":"פעילה"}],"notes":[{"text":"הערת אזהרה לטובת בנק הפועלים","position":"above_regulation"},{"text":"הערה לפי סעיף 126","position":"below_regulation"}],"easements":[],"confidence":{"owners":0.9,"mortgages":0.8,"notes":0.7,"easements":null}}`

	ownersDetailJSON    = `{"owners":[{"name":"שרה לוי","id_number":"023456789"},{"name":"דוד כהן","id_number":"034567890","share_percent":"1/3"}],"confidence":0.85}`
	mortgagesDetailJSON = `{"mortgages":[{"rank":1,"lender_name":"בנק הפועלים"},{"rank":2,"lender_name":"בנק לאומי","amount":"500,000 ש\"ח"}],"confidence":0.8}`
	notesDetailJSON     = `{"notes":[{"text":"הערת אזהרה לטובת בנק הפועלים","position":"above_regulation"}],"confidence":0.75}`
	easementsDetailJSON = `{"easements":[],"confidence":null}`
)

var textDoc = extraction.Document{
	Text:     "נסח רישום מקרקעין\nגוש 9905 חלקה 88 תת חלקה 8\nבעלויות: ישראל ישראלי, שרה לוי, דוד כהן",
	Filename: "nesach.pdf",
}

// schemaName extracts the structured-output schema name from a request,
// which identifies the stage that built it.
func schemaName(req *providers.ChatRequest) string {
	if req.ResponseFormat == nil {
		return ""
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.ResponseFormat.JSONSchema, &meta); err != nil {
		return ""
	}
	return meta.Name
}

// scriptedResponses routes each stage request to its canned response.
// Overrides replace the response for a schema name; a nil override is a
// gateway failure for that stage.
func scriptedResponses(overrides map[string]*string) func(*providers.ChatRequest) (json.RawMessage, error) {
	responses := map[string]string{
		"structure_survey":         surveyJSON,
		"land_registry_extraction": comprehensiveJSON,
		"owners_detail":            ownersDetailJSON,
		"mortgages_detail":         mortgagesDetailJSON,
		"notes_detail":             notesDetailJSON,
		"easements_detail":         easementsDetailJSON,
	}
	return func(req *providers.ChatRequest) (json.RawMessage, error) {
		name := schemaName(req)
		if override, ok := overrides[name]; ok {
			if override == nil {
				return nil, fmt.Errorf("scripted gateway failure for %s", name)
			}
			return json.RawMessage(*override), nil
		}
		body, ok := responses[name]
		if !ok {
			return nil, fmt.Errorf("unexpected schema %q", name)
		}
		return json.RawMessage(body), nil
	}
}

// captureRecorder collects every audit record the pipeline emits.
type captureRecorder struct {
	mu    sync.Mutex
	calls []StageCall
}

func (r *captureRecorder) RecordCall(call StageCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *captureRecorder) all() []StageCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// tokenSum adds up TotalTokens across captured calls, skipping stages the
// filter rejects.
func tokenSum(calls []StageCall, keep func(StageCall) bool) int {
	total := 0
	for _, c := range calls {
		if c.Result != nil && keep(c) {
			total += c.Result.TotalTokens
		}
	}
	return total
}

// requestCapture records every chat request the mock receives.
type requestCapture struct {
	mu       sync.Mutex
	requests []*providers.ChatRequest
}

func (c *requestCapture) add(req *providers.ChatRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
}

func (c *requestCapture) bySchema(name string) *providers.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.requests {
		if schemaName(req) == name {
			return req
		}
	}
	return nil
}

func newTestPipeline(t *testing.T, mock *providers.MockClient, recorder CallRecorder) *Pipeline {
	t.Helper()
	p, err := New(Config{Client: mock, Recorder: recorder})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestRun(t *testing.T) {
	t.Run("merges all three passes", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.Latency = 0
		mock.ResponseFunc = scriptedResponses(nil)
		recorder := &captureRecorder{}
		p := newTestPipeline(t, mock, recorder)

		var states []State
		result, err := p.Run(context.Background(), textDoc, Options{
			SessionID:  "sess-123",
			OnProgress: func(s State) { states = append(states, s) },
		})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		// Owner "שרה לוי" is reported by both passes and must appear once;
		// "דוד כהן" comes only from the detail pass. First-seen order.
		if len(result.Owners) != 3 {
			t.Fatalf("expected 3 merged owners, got %d: %+v", len(result.Owners), result.Owners)
		}
		wantOwners := []string{"ישראל ישראלי", "שרה לוי", "דוד כהן"}
		for i, want := range wantOwners {
			if result.Owners[i].Name != want {
				t.Errorf("owner[%d] = %q, want %q", i, result.Owners[i].Name, want)
			}
		}

		// The second mortgage rank comes only from the detail pass; the
		// richer comprehensive record wins for rank 1.
		if len(result.Mortgages) != 2 {
			t.Fatalf("expected 2 merged mortgages, got %d", len(result.Mortgages))
		}
		if result.Mortgages[0].Rank != 1 || result.Mortgages[0].Amount == nil {
			t.Errorf("rank-1 mortgage should keep the comprehensive record: %+v", result.Mortgages[0])
		}
		if result.Mortgages[1].Rank != 2 || result.Mortgages[1].LenderName != "בנק לאומי" {
			t.Errorf("rank-2 mortgage missing: %+v", result.Mortgages[1])
		}

		if len(result.Notes) != 2 {
			t.Errorf("expected 2 merged notes, got %d", len(result.Notes))
		}
		if len(result.Easements) != 0 {
			t.Errorf("expected no easements, got %d", len(result.Easements))
		}
		if result.Property == nil || result.Property.Gush == nil || *result.Property.Gush != 9905 {
			t.Errorf("property details not carried through: %+v", result.Property)
		}

		// All counts match the survey, so no challenges.
		if len(result.ExtractionChallenges) != 0 {
			t.Errorf("expected no challenges, got %v", result.ExtractionChallenges)
		}
		if !strings.Contains(result.AnalysisSummary, "3 owners") {
			t.Errorf("analysis summary = %q", result.AnalysisSummary)
		}

		wantStages := []extraction.Stage{extraction.StageAnalysis, extraction.StageComprehensive, extraction.StageDetail}
		if len(result.StagesCompleted) != len(wantStages) {
			t.Fatalf("stages completed = %v, want %v", result.StagesCompleted, wantStages)
		}
		for i, want := range wantStages {
			if result.StagesCompleted[i] != want {
				t.Errorf("stages completed = %v, want %v", result.StagesCompleted, wantStages)
				break
			}
		}

		// owners (0.9+0.85)/2, mortgages (0.8+0.8)/2, notes (0.7+0.75)/2,
		// easements unreported: mean of 0.875, 0.8, 0.725 is 0.8.
		if result.OverallConfidence == nil {
			t.Fatal("expected overall confidence")
		}
		if math.Abs(*result.OverallConfidence-80.0) > 1e-9 {
			t.Errorf("overall confidence = %v, want 80.0", *result.OverallConfidence)
		}

		wantStates := []State{StateInit, StateAnalyzing, StateExtracting, StateMerging, StateDone}
		if len(states) != len(wantStates) {
			t.Fatalf("states = %v, want %v", states, wantStates)
		}
		for i, want := range wantStates {
			if states[i] != want {
				t.Errorf("states = %v, want %v", states, wantStates)
				break
			}
		}

		// Six gateway calls: survey, comprehensive, four detail sub-queries.
		calls := recorder.all()
		if len(calls) != 6 {
			t.Fatalf("expected 6 recorded calls, got %d", len(calls))
		}
		detailCategories := map[extraction.Category]bool{}
		for _, call := range calls {
			if call.SessionID != "sess-123" {
				t.Errorf("call %s missing session attribution: %q", call.PromptKey, call.SessionID)
			}
			if call.Stage == extraction.StageDetail {
				detailCategories[call.Category] = true
			}
		}
		if len(detailCategories) != 4 {
			t.Errorf("expected 4 distinct detail categories, got %v", detailCategories)
		}

		// Every pass succeeded, so the result's token count is the sum of
		// all recorded calls.
		wantTokens := tokenSum(calls, func(StageCall) bool { return true })
		if result.TokensUsed != wantTokens {
			t.Errorf("tokens used = %d, want %d", result.TokensUsed, wantTokens)
		}
		if result.ProcessingTimeMs < 0 {
			t.Errorf("processing time = %d", result.ProcessingTimeMs)
		}
	})

	t.Run("count shortfall becomes challenge", func(t *testing.T) {
		// Survey expects five owners but the passes only produce three.
		bigSurvey := `{"owners_count":5,"mortgages_count":2,"notes_above_regulation":1,"notes_below_regulation":1,"easements_count":0,"document_pages":4,"complex_sections":[],"extraction_challenges":[]}`
		mock := providers.NewMockClient()
		mock.Latency = 0
		mock.ResponseFunc = scriptedResponses(map[string]*string{"structure_survey": &bigSurvey})
		p := newTestPipeline(t, mock, nil)

		result, err := p.Run(context.Background(), textDoc, Options{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if len(result.Owners) != 3 {
			t.Fatalf("expected 3 owners, got %d", len(result.Owners))
		}
		found := false
		for _, c := range result.ExtractionChallenges {
			if strings.Contains(c, "owners") && strings.Contains(c, "expected 5") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected owner-count challenge, got %v", result.ExtractionChallenges)
		}
	})

	t.Run("malformed survey degrades to generic guidance", func(t *testing.T) {
		badSurvey := `{"owners_count":"three"}`
		mock := providers.NewMockClient()
		mock.Latency = 0
		capture := &requestCapture{}
		inner := scriptedResponses(map[string]*string{"structure_survey": &badSurvey})
		mock.ResponseFunc = func(req *providers.ChatRequest) (json.RawMessage, error) {
			capture.add(req)
			return inner(req)
		}
		recorder := &captureRecorder{}
		p := newTestPipeline(t, mock, recorder)

		result, err := p.Run(context.Background(), textDoc, Options{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		found := false
		for _, c := range result.ExtractionChallenges {
			if strings.Contains(c, "structure survey failed") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected survey-failure challenge, got %v", result.ExtractionChallenges)
		}
		if result.AnalysisSummary != "structure survey unavailable" {
			t.Errorf("analysis summary = %q", result.AnalysisSummary)
		}
		for _, s := range result.StagesCompleted {
			if s == extraction.StageAnalysis {
				t.Errorf("failed analysis pass must not count as completed: %v", result.StagesCompleted)
			}
		}

		// The comprehensive pass must fall back to generic guidance
		// instead of restating counts.
		req := capture.bySchema("land_registry_extraction")
		if req == nil {
			t.Fatal("comprehensive request not captured")
		}
		system := req.Messages[0].Content
		if !strings.Contains(system, "routinely contain MULTIPLE") {
			t.Errorf("expected generic guidance, got: %s", system)
		}
		if strings.Contains(system, "A structure survey of this document reported") {
			t.Errorf("counts must not be restated after a failed survey: %s", system)
		}

		// The failed survey contributes no tokens even though the gateway
		// call itself succeeded.
		wantTokens := tokenSum(recorder.all(), func(c StageCall) bool {
			return c.Stage != extraction.StageAnalysis
		})
		if result.TokensUsed != wantTokens {
			t.Errorf("tokens used = %d, want %d", result.TokensUsed, wantTokens)
		}
	})

	t.Run("malformed detail sub-query costs only its category", func(t *testing.T) {
		badMortgages := `{"mortgages":[{"rank":"ראשונה","lender_name":"בנק הפועלים"}],"confidence":0.5}`
		mock := providers.NewMockClient()
		mock.Latency = 0
		mock.ResponseFunc = scriptedResponses(map[string]*string{"mortgages_detail": &badMortgages})
		recorder := &captureRecorder{}
		p := newTestPipeline(t, mock, recorder)

		result, err := p.Run(context.Background(), textDoc, Options{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		// Mortgages come entirely from the comprehensive pass.
		if len(result.Mortgages) != 1 {
			t.Fatalf("expected 1 mortgage, got %d", len(result.Mortgages))
		}
		if result.Mortgages[0].Rank != 1 || result.Mortgages[0].LenderName != "בנק הפועלים" {
			t.Errorf("unexpected mortgage: %+v", result.Mortgages[0])
		}

		var detailWarning, shortfall bool
		for _, c := range result.ExtractionChallenges {
			if strings.Contains(c, "detail pass for mortgages failed") {
				detailWarning = true
			}
			if strings.Contains(c, "mortgages") && strings.Contains(c, "expected 2") {
				shortfall = true
			}
		}
		if !detailWarning {
			t.Errorf("expected detail-failure challenge, got %v", result.ExtractionChallenges)
		}
		if !shortfall {
			t.Errorf("expected mortgage-count challenge, got %v", result.ExtractionChallenges)
		}

		// The other categories still merge from both passes.
		if len(result.Owners) != 3 {
			t.Errorf("expected 3 owners, got %d", len(result.Owners))
		}
		hasDetail := false
		for _, s := range result.StagesCompleted {
			if s == extraction.StageDetail {
				hasDetail = true
			}
		}
		if !hasDetail {
			t.Errorf("detail pass with surviving sub-queries counts as completed: %v", result.StagesCompleted)
		}

		// The malformed sub-query contributes no tokens.
		wantTokens := tokenSum(recorder.all(), func(c StageCall) bool {
			return c.Category != extraction.CategoryMortgages
		})
		if result.TokensUsed != wantTokens {
			t.Errorf("tokens used = %d, want %d", result.TokensUsed, wantTokens)
		}
	})

	t.Run("all detail sub-queries failing leaves comprehensive result", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.Latency = 0
		mock.ResponseFunc = scriptedResponses(map[string]*string{
			"owners_detail":    nil,
			"mortgages_detail": nil,
			"notes_detail":     nil,
			"easements_detail": nil,
		})
		p := newTestPipeline(t, mock, nil)

		result, err := p.Run(context.Background(), textDoc, Options{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if len(result.Owners) != 2 || len(result.Mortgages) != 1 {
			t.Errorf("expected comprehensive-only entities, got %d owners, %d mortgages",
				len(result.Owners), len(result.Mortgages))
		}
		for _, s := range result.StagesCompleted {
			if s == extraction.StageDetail {
				t.Errorf("fully failed detail pass must not count as completed: %v", result.StagesCompleted)
			}
		}
		failures := 0
		for _, c := range result.ExtractionChallenges {
			if strings.Contains(c, "detail pass for") {
				failures++
			}
		}
		if failures != 4 {
			t.Errorf("expected 4 detail-failure challenges, got %d: %v", failures, result.ExtractionChallenges)
		}
	})

	t.Run("comprehensive failure fails the run", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.Latency = 0
		mock.ResponseFunc = scriptedResponses(map[string]*string{"land_registry_extraction": nil})
		p := newTestPipeline(t, mock, nil)

		var states []State
		result, err := p.Run(context.Background(), textDoc, Options{
			OnProgress: func(s State) { states = append(states, s) },
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}

		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			t.Fatalf("expected StageError, got %T: %v", err, err)
		}
		if stageErr.Stage != extraction.StageComprehensive {
			t.Errorf("failure attributed to %q, want comprehensive", stageErr.Stage)
		}
		var gatewayErr *GatewayError
		if !errors.As(err, &gatewayErr) {
			t.Errorf("expected GatewayError in chain, got %v", err)
		}
		if len(states) == 0 || states[len(states)-1] != StateFailed {
			t.Errorf("states = %v, want FAILED last", states)
		}
	})

	t.Run("confidence absent when no pass reports any", func(t *testing.T) {
		noConf := map[string]*string{}
		quiet := strings.Replace(comprehensiveJSON,
			`"confidence":{"owners":0.9,"mortgages":0.8,"notes":0.7,"easements":null}`,
			`"confidence":{"owners":null,"mortgages":null,"notes":null,"easements":null}`, 1)
		noConf["land_registry_extraction"] = &quiet
		for _, name := range []string{"owners_detail", "mortgages_detail", "notes_detail", "easements_detail"} {
			empty := `{"confidence":null}`
			noConf[name] = &empty
		}
		mock := providers.NewMockClient()
		mock.Latency = 0
		mock.ResponseFunc = scriptedResponses(noConf)
		p := newTestPipeline(t, mock, nil)

		result, err := p.Run(context.Background(), textDoc, Options{})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if result.OverallConfidence != nil {
			t.Errorf("expected absent confidence, got %v", *result.OverallConfidence)
		}
	})

	t.Run("cancellation abandons the run", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.Latency = 50 * time.Millisecond
		mock.ResponseFunc = scriptedResponses(nil)
		p := newTestPipeline(t, mock, nil)

		ctx, cancel := context.WithCancel(context.Background())
		timer := time.AfterFunc(10*time.Millisecond, cancel)
		defer timer.Stop()
		defer cancel()

		var states []State
		result, err := p.Run(ctx, textDoc, Options{
			OnProgress: func(s State) { states = append(states, s) },
		})
		if result != nil {
			t.Errorf("expected nil result, got %+v", result)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(states) == 0 || states[len(states)-1] != StateFailed {
			t.Errorf("states = %v, want FAILED last", states)
		}
	})

	t.Run("empty document rejected", func(t *testing.T) {
		mock := providers.NewMockClient()
		p := newTestPipeline(t, mock, nil)
		_, err := p.Run(context.Background(), extraction.Document{}, Options{})
		if !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("expected ErrEmptyDocument, got %v", err)
		}
	})
}

func TestRunVisionMode(t *testing.T) {
	runWithCapture := func(t *testing.T, doc extraction.Document, opts Options) *requestCapture {
		t.Helper()
		mock := providers.NewMockClient()
		mock.Latency = 0
		capture := &requestCapture{}
		inner := scriptedResponses(nil)
		mock.ResponseFunc = func(req *providers.ChatRequest) (json.RawMessage, error) {
			capture.add(req)
			return inner(req)
		}
		p := newTestPipeline(t, mock, nil)
		if _, err := p.Run(context.Background(), doc, opts); err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		return capture
	}

	t.Run("whole pdf attached", func(t *testing.T) {
		doc := extraction.Document{
			Data:      []byte("%PDF-1.7 fake"),
			MediaType: "application/pdf",
			Filename:  "nesach.pdf",
		}
		capture := runWithCapture(t, doc, Options{UseVision: true})

		req := capture.bySchema("land_registry_extraction")
		if req == nil {
			t.Fatal("comprehensive request not captured")
		}
		user := req.Messages[1]
		if len(user.Files) != 1 {
			t.Fatalf("expected 1 file attachment, got %d", len(user.Files))
		}
		if user.Files[0].MediaType != "application/pdf" || user.Files[0].Filename != "nesach.pdf" {
			t.Errorf("attachment = %+v", user.Files[0])
		}
		if strings.Contains(user.Content, "<document>") {
			t.Errorf("vision request must not interpolate text: %s", user.Content)
		}
	})

	t.Run("page images preferred over pdf", func(t *testing.T) {
		doc := extraction.Document{
			Text:      "plain text fallback",
			Data:      []byte("%PDF-1.7 fake"),
			MediaType: "application/pdf",
			Filename:  "nesach.pdf",
		}
		pages := [][]byte{[]byte("page-1"), []byte("page-2")}
		capture := runWithCapture(t, doc, Options{UseVision: true, PageImages: pages})

		req := capture.bySchema("structure_survey")
		if req == nil {
			t.Fatal("survey request not captured")
		}
		user := req.Messages[1]
		if len(user.Images) != 2 {
			t.Errorf("expected 2 page images, got %d", len(user.Images))
		}
		if len(user.Files) != 0 {
			t.Errorf("expected no file attachment, got %d", len(user.Files))
		}
	})

	t.Run("binary-only document forces vision", func(t *testing.T) {
		doc := extraction.Document{
			Data:      []byte("jpeg bytes"),
			MediaType: "image/jpeg",
			Filename:  "scan.jpg",
		}
		capture := runWithCapture(t, doc, Options{})

		req := capture.bySchema("owners_detail")
		if req == nil {
			t.Fatal("owners detail request not captured")
		}
		if len(req.Messages[1].Images) != 1 {
			t.Errorf("expected single-image attachment, got %d", len(req.Messages[1].Images))
		}
	})

	t.Run("text mode interpolates document", func(t *testing.T) {
		capture := runWithCapture(t, textDoc, Options{})

		req := capture.bySchema("structure_survey")
		if req == nil {
			t.Fatal("survey request not captured")
		}
		user := req.Messages[1]
		if !strings.Contains(user.Content, "גוש 9905") {
			t.Errorf("document text not interpolated: %s", user.Content)
		}
		if len(user.Images) != 0 || len(user.Files) != 0 {
			t.Error("text mode must not attach binaries")
		}
	})
}

func TestBuildPayload(t *testing.T) {
	pdf := []byte("%PDF")
	img := []byte("img")

	tests := []struct {
		name    string
		doc     extraction.Document
		opts    Options
		wantTxt bool
		wantImg int
		wantPDF bool
	}{
		{
			name:    "text document in text mode",
			doc:     extraction.Document{Text: "hello"},
			wantTxt: true,
		},
		{
			name:    "vision with pdf media type",
			doc:     extraction.Document{Text: "hello", Data: pdf, MediaType: "application/pdf"},
			opts:    Options{UseVision: true},
			wantPDF: true,
		},
		{
			name:    "vision with explicit pdf flag",
			doc:     extraction.Document{Data: pdf},
			opts:    Options{UseVision: true, IsPDF: true},
			wantPDF: true,
		},
		{
			name:    "vision with image data",
			doc:     extraction.Document{Data: img, MediaType: "image/png"},
			opts:    Options{UseVision: true},
			wantImg: 1,
		},
		{
			name:    "pre-rendered pages win",
			doc:     extraction.Document{Data: pdf, MediaType: "application/pdf"},
			opts:    Options{UseVision: true, PageImages: [][]byte{img, img, img}},
			wantImg: 3,
		},
		{
			name:    "binary-only forces vision",
			doc:     extraction.Document{Data: img},
			wantImg: 1,
		},
		{
			name:    "vision without binary falls back to text",
			doc:     extraction.Document{Text: "hello"},
			opts:    Options{UseVision: true},
			wantTxt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := buildPayload(tt.doc, tt.opts)
			if tt.wantTxt != (payload.text != "") {
				t.Errorf("text = %q", payload.text)
			}
			if len(payload.images) != tt.wantImg {
				t.Errorf("images = %d, want %d", len(payload.images), tt.wantImg)
			}
			if tt.wantPDF != (payload.pdf != nil) {
				t.Errorf("pdf = %v bytes", len(payload.pdf))
			}
		})
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing client")
	}

	p, err := New(Config{Client: providers.NewMockClient()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if p.detailConcurrency != DefaultDetailConcurrency {
		t.Errorf("detail concurrency = %d, want %d", p.detailConcurrency, DefaultDetailConcurrency)
	}

	if _, err := Run(context.Background(), nil, textDoc, Options{}); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateInit, StateAnalyzing, StateExtracting, StateMerging} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []State{StateDone, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
