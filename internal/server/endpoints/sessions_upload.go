package endpoints

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/jobcfg"
	"github.com/shamayhq/nesach/internal/jobs/extract"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// UploadResponse is the response for a document upload.
type UploadResponse struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	PageCount int    `json:"page_count"`
	HasText   bool   `json:"has_text"`
	JobID     string `json:"job_id,omitempty"`
	Status    string `json:"status"`
}

// UploadSessionEndpoint handles POST /api/sessions/upload with a
// multipart document upload.
type UploadSessionEndpoint struct{}

var _ api.Endpoint = (*UploadSessionEndpoint)(nil)

func (e *UploadSessionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/sessions/upload", e.handler
}

func (e *UploadSessionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload a land registry document
//	@Description	Upload a PDF, image, or text document to create a session; extraction starts automatically unless auto_extract=false
//	@Tags			sessions
//	@Accept			mpfd
//	@Produce		json
//	@Param			file			formData	file	true	"Document to extract (PDF, PNG, JPEG, or plain text)"
//	@Param			auto_extract	formData	bool	false	"Start extraction after upload (default true)"
//	@Success		202				{object}	UploadResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		500				{object}	ErrorResponse
//	@Failure		503				{object}	ErrorResponse
//	@Router			/api/sessions/upload [post]
func (e *UploadSessionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	// Registry documents are a few pages; 100MB is generous.
	const maxMemory = 100 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	autoExtract := r.FormValue("auto_extract") != "false"

	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not initialized")
		return
	}

	logger := svcctx.LoggerFrom(r.Context())

	result, err := ingest.Ingest(r.Context(), client, homeDir, ingest.Request{
		Data:     data,
		Filename: header.Filename,
		Logger:   logger,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ingest failed: %v", err))
		return
	}

	resp := UploadResponse{
		SessionID: result.SessionID,
		Filename:  result.Filename,
		MediaType: result.MediaType,
		PageCount: result.PageCount,
		HasText:   result.HasText,
		Status:    "uploaded",
	}

	if autoExtract {
		jobID, err := e.startExtraction(r, result.SessionID)
		if err != nil {
			// Ingest succeeded. Report the session and let the caller
			// start extraction explicitly.
			if logger != nil {
				logger.Error("failed to start extraction", "error", err, "session_id", result.SessionID)
			}
		} else {
			resp.JobID = jobID
			resp.Status = "processing"
		}
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (e *UploadSessionEndpoint) startExtraction(r *http.Request, sessionID string) (string, error) {
	scheduler := svcctx.SchedulerFrom(r.Context())
	if scheduler == nil {
		return "", fmt.Errorf("scheduler not initialized")
	}

	configStore := svcctx.ConfigStoreFrom(r.Context())
	if configStore == nil {
		return "", fmt.Errorf("config store not initialized")
	}

	settings, err := jobcfg.NewBuilder(configStore).ExtractConfig(r.Context())
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	job, err := extract.NewJob(r.Context(), settings, sessionID)
	if err != nil {
		return "", err
	}

	if err := scheduler.Submit(r.Context(), job); err != nil {
		return "", err
	}
	return job.ID(), nil
}

func (e *UploadSessionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var noExtract bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and start extraction",
		Long: `Upload a land registry document (PDF, image, or text) to the server.

Extraction starts automatically after upload. Use --no-extract to upload
only and start extraction later with 'nesach api jobs start <session-id>'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			fields := map[string]string{}
			if noExtract {
				fields["auto_extract"] = "false"
			}

			client := api.NewClient(getServerURL())
			var resp UploadResponse
			if err := client.Upload(ctx, "/api/sessions/upload", args[0], "file", fields, &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&noExtract, "no-extract", false, "Upload without starting extraction")
	return cmd
}
