package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// SessionResultResponse wraps the stored extraction result for a session.
type SessionResultResponse struct {
	SessionID string             `json:"session_id"`
	CreatedAt string             `json:"created_at,omitempty"`
	Result    *extraction.Result `json:"result"`
}

// SessionResultEndpoint handles GET /api/sessions/{id}/result.
type SessionResultEndpoint struct{}

func (e *SessionResultEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions/{id}/result", e.handler
}

func (e *SessionResultEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get extraction result
//	@Description	Get the full extraction result (owners, mortgages, notes, easements, property) for a session
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	SessionResultResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/sessions/{id}/result [get]
func (e *SessionResultEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	// Latest extract wins when a session was rerun.
	query := fmt.Sprintf(`{
		Extract(filter: {session_id: {_eq: "%s"}}, order: {created_at: DESC}, limit: 1) {
			result
			created_at
		}
	}`, sessionID)

	resp, err := client.Query(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if errMsg := resp.Error(); errMsg != "" {
		writeError(w, http.StatusInternalServerError, errMsg)
		return
	}

	extracts, _ := resp.Data["Extract"].([]any)
	if len(extracts) == 0 {
		writeError(w, http.StatusNotFound, "no extraction result for session")
		return
	}

	m, ok := extracts[0].(map[string]any)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unexpected response format")
		return
	}

	raw, _ := m["result"].(string)
	var result extraction.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("stored result is unreadable: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, SessionResultResponse{
		SessionID: sessionID,
		CreatedAt: getString(m, "created_at"),
		Result:    &result,
	})
}

func (e *SessionResultEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "result <session_id>",
		Short: "Get the extraction result for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp SessionResultResponse
			if err := client.Get(ctx, "/api/sessions/"+args[0]+"/result", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
