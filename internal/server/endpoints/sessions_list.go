package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

// Session represents a session record.
type Session struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	MediaType string `json:"media_type,omitempty"`
	PageCount int    `json:"page_count"`
	HasText   bool   `json:"has_text"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ListSessionsEndpoint handles GET /api/sessions.
type ListSessionsEndpoint struct{}

func (e *ListSessionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions", e.handler
}

func (e *ListSessionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List sessions
//	@Description	List all extraction sessions
//	@Tags			sessions
//	@Produce		json
//	@Success		200	{object}	ListSessionsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/sessions [get]
func (e *ListSessionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	resp, err := client.Query(r.Context(), `{
		Session(order: {created_at: DESC}) {
			_docID
			filename
			status
			media_type
			page_count
			has_text
			created_at
			updated_at
		}
	}`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if errMsg := resp.Error(); errMsg != "" {
		writeError(w, http.StatusInternalServerError, errMsg)
		return
	}

	var sessions []Session
	if data, ok := resp.Data["Session"].([]any); ok {
		for _, item := range data {
			if m, ok := item.(map[string]any); ok {
				sessions = append(sessions, sessionFromMap(m))
			}
		}
	}

	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

func (e *ListSessionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp ListSessionsResponse
			if err := client.Get(ctx, "/api/sessions", &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

// sessionFromMap builds a Session from a DefraDB result row.
func sessionFromMap(m map[string]any) Session {
	s := Session{
		ID:        getString(m, "_docID"),
		Filename:  getString(m, "filename"),
		Status:    getString(m, "status"),
		MediaType: getString(m, "media_type"),
		CreatedAt: getString(m, "created_at"),
		UpdatedAt: getString(m, "updated_at"),
	}
	if pc, ok := m["page_count"].(float64); ok {
		s.PageCount = int(pc)
	}
	if ht, ok := m["has_text"].(bool); ok {
		s.HasText = ht
	}
	return s
}

// getString safely extracts a string from a map.
func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
