package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/jobs/extract"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// JobStatusResponse is the response for job status. Phase holds the job
// pipeline phase (pages, analysis, extraction, merge, done) when a live
// job is found, otherwise the stored session status.
type JobStatusResponse struct {
	SessionID     string `json:"session_id"`
	JobID         string `json:"job_id,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Phase         string `json:"phase"`
	PageCount     int    `json:"page_count"`
	PagesRendered int    `json:"pages_rendered"`
	PagesOcr      int    `json:"pages_ocr"`
	PendingUnits  int    `json:"pending_units"`
	Warnings      int    `json:"warnings"`
	HasResult     bool   `json:"has_result"`
	IsComplete    bool   `json:"is_complete"`
}

// JobStatusEndpoint handles GET /api/jobs/status/{session_id}.
type JobStatusEndpoint struct{}

func (e *JobStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/status/{session_id}", e.handler
}

func (e *JobStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get extraction status for a session
//	@Description	Get extraction progress for a session, live from the scheduler when a job is active
//	@Tags			jobs
//	@Produce		json
//	@Param			session_id	path		string	true	"Session ID"
//	@Success		200			{object}	JobStatusResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/jobs/status/{session_id} [get]
func (e *JobStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	// Live status from the scheduler is more up to date than the DB.
	if resp, ok := e.liveStatus(r, sessionID); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// No active job. Report what the DB knows about the session.
	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	query := fmt.Sprintf(`{
		Session(filter: {_docID: {_eq: "%s"}}) {
			filename
			status
			page_count
		}
	}`, sessionID)

	qResp, err := client.Query(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if errMsg := qResp.Error(); errMsg != "" {
		writeError(w, http.StatusInternalServerError, errMsg)
		return
	}

	sessions, _ := qResp.Data["Session"].([]any)
	if len(sessions) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session not found: %s", sessionID))
		return
	}

	resp := JobStatusResponse{SessionID: sessionID}
	if m, ok := sessions[0].(map[string]any); ok {
		resp.Filename, _ = m["filename"].(string)
		resp.Phase, _ = m["status"].(string)
		if pc, ok := m["page_count"].(float64); ok {
			resp.PageCount = int(pc)
		}
	}
	resp.HasResult = hasExtract(r, client, sessionID)
	resp.IsComplete = resp.HasResult

	writeJSON(w, http.StatusOK, resp)
}

// liveStatus looks for an active extraction job for the session and
// reports its scheduler-side status.
func (e *JobStatusEndpoint) liveStatus(r *http.Request, sessionID string) (JobStatusResponse, bool) {
	scheduler := svcctx.SchedulerFrom(r.Context())
	manager := svcctx.JobManagerFrom(r.Context())
	if scheduler == nil || manager == nil {
		return JobStatusResponse{}, false
	}

	records, err := manager.List(r.Context(), jobs.ListFilter{
		Status:  jobs.StatusRunning,
		JobType: extract.JobType,
	})
	if err != nil {
		return JobStatusResponse{}, false
	}

	for _, record := range records {
		if sid, _ := record.Metadata["session_id"].(string); sid != sessionID {
			continue
		}

		status, err := scheduler.JobStatus(r.Context(), record.ID)
		if err != nil {
			// Record says running but the scheduler does not know the
			// job (e.g. restart before Resume). Fall through to the DB.
			continue
		}

		resp := JobStatusResponse{
			SessionID:     sessionID,
			JobID:         record.ID,
			Filename:      status["filename"],
			Mode:          status["mode"],
			Phase:         status["phase"],
			PageCount:     statusInt(status, "page_count"),
			PagesRendered: statusInt(status, "pages_rendered"),
			PagesOcr:      statusInt(status, "pages_ocr"),
			PendingUnits:  statusInt(status, "pending_units"),
			Warnings:      statusInt(status, "warnings"),
			IsComplete:    status["done"] == "true",
		}
		resp.HasResult = resp.IsComplete
		return resp, true
	}

	return JobStatusResponse{}, false
}

func statusInt(m map[string]string, key string) int {
	n, _ := strconv.Atoi(m[key])
	return n
}

// hasExtract reports whether an Extract record exists for the session.
func hasExtract(r *http.Request, client *defra.Client, sessionID string) bool {
	query := fmt.Sprintf(`{
		Extract(filter: {session_id: {_eq: "%s"}}) {
			_docID
		}
	}`, sessionID)

	resp, err := client.Query(r.Context(), query)
	if err != nil || resp.Error() != "" {
		return false
	}
	extracts, _ := resp.Data["Extract"].([]any)
	return len(extracts) > 0
}

func (e *JobStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session_id>",
		Short: "Get extraction status for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			client := api.NewClient(getServerURL())
			var resp JobStatusResponse
			if err := client.Get(ctx, fmt.Sprintf("/api/jobs/status/%s", sessionID), &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}
