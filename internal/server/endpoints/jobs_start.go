package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/jobcfg"
	"github.com/shamayhq/nesach/internal/jobs/extract"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// StartJobRequest is the request body for starting an extraction job.
// All fields are optional overrides; anything unset falls back to the
// settings stored in DefraDB.
type StartJobRequest struct {
	LLMProvider  string   `json:"llm_provider,omitempty"`
	UseVision    *bool    `json:"use_vision,omitempty"`
	OcrProviders []string `json:"ocr_providers,omitempty"`
}

// StartJobResponse is the response for starting a job.
type StartJobResponse struct {
	JobID     string `json:"job_id"`
	JobType   string `json:"job_type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// StartJobEndpoint handles POST /api/jobs/start/{session_id}.
// Settings are read from DefraDB at request time, so changes made through
// the settings endpoint take effect on the next job without a restart.
type StartJobEndpoint struct{}

func (e *StartJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/start/{session_id}", e.handler
}

func (e *StartJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start extraction job for a session
//	@Description	Start the extraction job (render, OCR, analysis, extraction, merge) for an uploaded session
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			session_id	path		string			true	"Session ID"
//	@Param			request		body		StartJobRequest	false	"Optional setting overrides"
//	@Success		202			{object}	StartJobResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/jobs/start/{session_id} [post]
func (e *StartJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	var req StartJobRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
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

	// Read settings from DefraDB, then layer request overrides on top.
	settings, err := jobcfg.NewBuilder(configStore).ExtractConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load config: %v", err))
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
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		return
	}

	if err := scheduler.Submit(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to submit job: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, StartJobResponse{
		JobID:     job.ID(),
		JobType:   extract.JobType,
		SessionID: sessionID,
		Status:    "queued",
	})
}

func (e *StartJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var llmProvider string
	var useVision bool
	var ocrProviders []string
	cmd := &cobra.Command{
		Use:   "start <session_id>",
		Short: "Start extraction for a session",
		Long: `Start the extraction job for an uploaded session.

The job renders PDF pages, runs OCR where needed, then performs the staged
extraction: structure analysis, comprehensive and detail extraction in
parallel, and a deterministic merge with confidence aggregation.

The command submits a job and returns immediately.
Use 'nesach api jobs get <job-id>' to check progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			req := StartJobRequest{
				LLMProvider:  llmProvider,
				OcrProviders: ocrProviders,
			}
			if cmd.Flags().Changed("vision") {
				req.UseVision = &useVision
			}

			client := api.NewClient(getServerURL())
			var resp StartJobResponse
			if err := client.Post(ctx, "/api/jobs/start/"+sessionID, req, &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "Override the LLM provider for this job")
	cmd.Flags().BoolVar(&useVision, "vision", false, "Send page images instead of text to the LLM")
	cmd.Flags().StringSliceVar(&ocrProviders, "ocr-providers", nil, "Override OCR providers for this job")
	return cmd
}
