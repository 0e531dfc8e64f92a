package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/jobcfg"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/jobs/extract"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// RerunResponse is the response for rerunning an extraction.
type RerunResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// RerunSessionEndpoint handles POST /api/sessions/{id}/rerun.
// Settings are read from DefraDB at request time; the request body may
// override them for this run. Prior Extract records are kept, the result
// endpoint serves the newest.
type RerunSessionEndpoint struct{}

func (e *RerunSessionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/sessions/{id}/rerun", e.handler
}

func (e *RerunSessionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Rerun extraction for a session
//	@Description	Start a fresh extraction run for a session, optionally with different providers
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session ID"
//	@Param			request	body		StartJobRequest	false	"Optional setting overrides"
//	@Success		202		{object}	RerunResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Extraction already running for this session"
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/sessions/{id}/rerun [post]
func (e *RerunSessionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	var req StartJobRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	scheduler := svcctx.SchedulerFrom(r.Context())
	if scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not initialized")
		return
	}

	configStore := svcctx.ConfigStoreFrom(r.Context())
	if configStore == nil {
		writeError(w, http.StatusServiceUnavailable, "config store not initialized")
		return
	}

	sessionQuery := fmt.Sprintf(`{
		Session(filter: {_docID: {_eq: "%s"}}) {
			_docID
		}
	}`, sessionID)

	sessionResp, err := client.Query(r.Context(), sessionQuery)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sessions, _ := sessionResp.Data["Session"].([]any)
	if len(sessions) == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	// Refuse a second concurrent run for the same session.
	if manager := svcctx.JobManagerFrom(r.Context()); manager != nil {
		records, err := manager.List(r.Context(), jobs.ListFilter{
			Status:  jobs.StatusRunning,
			JobType: extract.JobType,
		})
		if err == nil {
			for _, record := range records {
				if sid, _ := record.Metadata["session_id"].(string); sid == sessionID {
					writeError(w, http.StatusConflict,
						fmt.Sprintf("extraction already running for session (job %s)", record.ID))
					return
				}
			}
		}
	}

	// Reset the session so status reflects the new run.
	if sink := svcctx.DefraSinkFrom(r.Context()); sink != nil {
		_, err := sink.SendSync(r.Context(), defra.WriteOp{
			Collection: "Session",
			DocID:      sessionID,
			Document: map[string]any{
				"status": ingest.SessionStatusUploaded,
			},
			Op: defra.OpUpdate,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("failed to reset session: %v", err))
			return
		}
	}

	settings, err := jobcfg.NewBuilder(configStore).ExtractConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to load config: %v", err))
		return
	}
	if req.LLMProvider != "" {
		settings.LLMProvider = req.LLMProvider
	}
	if req.UseVision != nil {
		settings.UseVision = *req.UseVision
	}
	if len(req.OcrProviders) > 0 {
		settings.OcrProviders = req.OcrProviders
	}

	job, err := extract.NewJob(r.Context(), settings, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to create job: %v", err))
		return
	}

	if err := scheduler.Submit(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to submit job: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, RerunResponse{
		JobID:   job.ID(),
		Message: fmt.Sprintf("extraction rerun started for session %s", sessionID),
	})
}

func (e *RerunSessionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var llmProvider string
	var useVision bool
	var ocrProviders []string
	cmd := &cobra.Command{
		Use:   "rerun <session-id>",
		Short: "Rerun extraction for a session",
		Long: `Start a fresh extraction run for an already uploaded session.

Earlier results are kept; 'nesach api sessions result' serves the newest.
Flags override the stored settings for this run only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req := StartJobRequest{
				LLMProvider:  llmProvider,
				OcrProviders: ocrProviders,
			}
			if cmd.Flags().Changed("vision") {
				req.UseVision = &useVision
			}

			client := api.NewClient(getServerURL())
			var resp RerunResponse
			if err := client.Post(ctx, "/api/sessions/"+args[0]+"/rerun", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "Override the LLM provider for this run")
	cmd.Flags().BoolVar(&useVision, "vision", false, "Send page images instead of text to the LLM")
	cmd.Flags().StringSliceVar(&ocrProviders, "ocr-providers", nil, "Override OCR providers for this run")
	return cmd
}
