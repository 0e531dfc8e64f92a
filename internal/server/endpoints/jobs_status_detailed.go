package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/metrics"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// DetailedJobStatusResponse is a comprehensive status response with
// per-page progress and per-stage cost breakdowns.
type DetailedJobStatusResponse struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename,omitempty"`
	Status    string `json:"status"`
	PageCount int    `json:"page_count"`

	// Per-page render and OCR progress
	Pages []PageProgress `json:"pages,omitempty"`

	// Per-stage call counts and costs, keyed by stage name
	// (analysis, comprehensive, owners, mortgages, notes, easements, ocr)
	Stages       map[string]StageStatus `json:"stages"`
	TotalCostUSD float64                `json:"total_cost_usd"`

	// Extraction result summary, present once the merge has run
	Result *ResultSummary `json:"result,omitempty"`
}

// PageProgress tracks render and OCR state for a single page.
type PageProgress struct {
	PageNum     int    `json:"page_num"`
	Status      string `json:"status"`
	Rendered    bool   `json:"rendered"`
	HasText     bool   `json:"has_text"`
	OcrProvider string `json:"ocr_provider,omitempty"`
}

// StageStatus aggregates metrics for one pipeline stage.
type StageStatus struct {
	Calls   int     `json:"calls"`
	Errors  int     `json:"errors"`
	CostUSD float64 `json:"cost_usd"`
	Tokens  int     `json:"tokens"`
	Seconds float64 `json:"seconds"`
}

// ResultSummary is the headline view of a stored extraction result.
type ResultSummary struct {
	OverallConfidence float64  `json:"overall_confidence"`
	StagesCompleted   []string `json:"stages_completed,omitempty"`
	AnalysisSummary   string   `json:"analysis_summary,omitempty"`
	Challenges        string   `json:"challenges,omitempty"`
	ProcessingTimeMs  int      `json:"processing_time_ms"`
	TokensUsed        int      `json:"tokens_used"`
}

var errSessionNotFound = errors.New("session not found")

// DetailedJobStatusEndpoint handles GET /api/jobs/status/{session_id}/detailed.
type DetailedJobStatusEndpoint struct{}

func (e *DetailedJobStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/status/{session_id}/detailed", e.handler
}

func (e *DetailedJobStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get detailed extraction status for a session
//	@Description	Get comprehensive status including per-page render/OCR progress, per-stage costs, and the result summary
//	@Tags			jobs
//	@Produce		json
//	@Param			session_id	path		string	true	"Session ID"
//	@Success		200			{object}	DetailedJobStatusResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/jobs/status/{session_id}/detailed [get]
func (e *DetailedJobStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	defraClient := svcctx.DefraClientFrom(r.Context())
	if defraClient == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	resp, err := getDetailedStatus(r.Context(), defraClient, sessionID)
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *DetailedJobStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status-detailed <session_id>",
		Short: "Get detailed extraction status for a session",
		Long: `Get comprehensive extraction status including:
- Per-page render and OCR progress
- Per-stage call counts, costs, tokens, and timing
- The stored result summary (confidence, stages, challenges)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			client := api.NewClient(getServerURL())
			var resp DetailedJobStatusResponse
			if err := client.Get(ctx, fmt.Sprintf("/api/jobs/status/%s/detailed", sessionID), &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

// getDetailedStatus assembles the full status picture from DefraDB.
func getDetailedStatus(ctx context.Context, client *defra.Client, sessionID string) (*DetailedJobStatusResponse, error) {
	resp := &DetailedJobStatusResponse{
		SessionID: sessionID,
		Stages:    make(map[string]StageStatus),
	}

	sessionQuery := fmt.Sprintf(`{
		Session(filter: {_docID: {_eq: "%s"}}) {
			filename
			status
			page_count
		}
	}`, sessionID)

	sessionResp, err := client.Query(ctx, sessionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if errMsg := sessionResp.Error(); errMsg != "" {
		return nil, fmt.Errorf("failed to query session: %s", errMsg)
	}

	sessions, _ := sessionResp.Data["Session"].([]any)
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: %s", errSessionNotFound, sessionID)
	}
	if session, ok := sessions[0].(map[string]any); ok {
		resp.Filename, _ = session["filename"].(string)
		resp.Status, _ = session["status"].(string)
		if pc, ok := session["page_count"].(float64); ok {
			resp.PageCount = int(pc)
		}
	}

	pageQuery := fmt.Sprintf(`{
		Page(filter: {session_id: {_eq: "%s"}}, order: {page_num: ASC}) {
			page_num
			status
			image_path
			text
			ocr_text
			ocr_provider
		}
	}`, sessionID)

	pageResp, err := client.Query(ctx, pageQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	if pages, ok := pageResp.Data["Page"].([]any); ok {
		for _, p := range pages {
			page, ok := p.(map[string]any)
			if !ok {
				continue
			}
			prog := PageProgress{}
			if pn, ok := page["page_num"].(float64); ok {
				prog.PageNum = int(pn)
			}
			prog.Status, _ = page["status"].(string)
			if ip, _ := page["image_path"].(string); ip != "" {
				prog.Rendered = true
			}
			text, _ := page["text"].(string)
			ocrText, _ := page["ocr_text"].(string)
			prog.HasText = text != "" || ocrText != ""
			prog.OcrProvider, _ = page["ocr_provider"].(string)
			resp.Pages = append(resp.Pages, prog)
		}
	}

	extractQuery := fmt.Sprintf(`{
		Extract(filter: {session_id: {_eq: "%s"}}, order: {created_at: DESC}, limit: 1) {
			overall_confidence
			stages_completed
			analysis_summary
			challenges
			processing_time_ms
			tokens_used
		}
	}`, sessionID)

	extractResp, err := client.Query(ctx, extractQuery)
	if err == nil && extractResp.Error() == "" {
		if extracts, ok := extractResp.Data["Extract"].([]any); ok && len(extracts) > 0 {
			if extract, ok := extracts[0].(map[string]any); ok {
				summary := &ResultSummary{}
				if v, ok := extract["overall_confidence"].(float64); ok {
					summary.OverallConfidence = v
				}
				if stages, ok := extract["stages_completed"].([]any); ok {
					for _, s := range stages {
						if stage, ok := s.(string); ok {
							summary.StagesCompleted = append(summary.StagesCompleted, stage)
						}
					}
				}
				summary.AnalysisSummary, _ = extract["analysis_summary"].(string)
				summary.Challenges, _ = extract["challenges"].(string)
				if v, ok := extract["processing_time_ms"].(float64); ok {
					summary.ProcessingTimeMs = int(v)
				}
				if v, ok := extract["tokens_used"].(float64); ok {
					summary.TokensUsed = int(v)
				}
				resp.Result = summary
			}
		}
	}

	// Aggregate metrics per stage in one pass.
	if metricsQuery := svcctx.MetricsQueryFrom(ctx); metricsQuery != nil {
		records, err := metricsQuery.List(ctx, metrics.Filter{SessionID: sessionID}, 0)
		if err == nil {
			for _, m := range records {
				stage := m.Stage
				if stage == "" {
					stage = "unknown"
				}
				s := resp.Stages[stage]
				s.Calls++
				if !m.Success {
					s.Errors++
				}
				s.CostUSD += m.CostUSD
				s.Tokens += m.TotalTokens
				s.Seconds += m.ExecutionSeconds
				resp.Stages[stage] = s
				resp.TotalCostUSD += m.CostUSD
			}
		}
	}

	return resp, nil
}
