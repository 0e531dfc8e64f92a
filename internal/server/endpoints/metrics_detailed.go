package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/metrics"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// MetricsDetailedResponse is the response for detailed metrics with percentiles.
type MetricsDetailedResponse struct {
	SessionID string                            `json:"session_id,omitempty"`
	Stages    map[string]*metrics.DetailedStats `json:"stages"`
}

// MetricsDetailedEndpoint handles GET /api/metrics/detailed.
type MetricsDetailedEndpoint struct{}

func (e *MetricsDetailedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/detailed", e.handler
}

func (e *MetricsDetailedEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get detailed metrics with percentiles
//	@Description	Get detailed metrics including latency percentiles (p50, p95, p99) and token breakdowns per stage
//	@Tags			metrics
//	@Produce		json
//	@Param			session_id	query		string	false	"Filter by session ID"
//	@Success		200			{object}	MetricsDetailedResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/metrics/detailed [get]
func (e *MetricsDetailedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	defraClient := svcctx.DefraClientFrom(r.Context())
	if defraClient == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	query := metrics.NewQuery(defraClient)

	// Empty session ID gives overall stats grouped by stage.
	stages, err := query.StageDetailedStats(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, MetricsDetailedResponse{
		SessionID: sessionID,
		Stages:    stages,
	})
}

func (e *MetricsDetailedEndpoint) Command(getServerURL func() string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "detailed",
		Short: "Get detailed metrics with percentiles",
		Long: `Get detailed metrics including latency percentiles (p50, p95, p99)
and token breakdowns (prompt, completion, reasoning) per stage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			path := "/api/metrics/detailed"
			if sessionID != "" {
				path += "?session_id=" + sessionID
			}

			var resp MetricsDetailedResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Filter by session ID")

	return cmd
}

// SessionMetricsDetailedEndpoint handles GET /api/sessions/{id}/metrics/detailed.
type SessionMetricsDetailedEndpoint struct{}

func (e *SessionMetricsDetailedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions/{id}/metrics/detailed", e.handler
}

func (e *SessionMetricsDetailedEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get detailed session metrics with percentiles
//	@Description	Get detailed metrics for a specific session including latency percentiles and token breakdowns per stage
//	@Tags			sessions,metrics
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	MetricsDetailedResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/sessions/{id}/metrics/detailed [get]
func (e *SessionMetricsDetailedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	defraClient := svcctx.DefraClientFrom(r.Context())
	if defraClient == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	query := metrics.NewQuery(defraClient)
	stages, err := query.StageDetailedStats(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, MetricsDetailedResponse{
		SessionID: sessionID,
		Stages:    stages,
	})
}

func (e *SessionMetricsDetailedEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics-detailed <session_id>",
		Short: "Get detailed metrics for a session",
		Long: `Get detailed metrics for a specific session including latency percentiles
(p50, p95, p99) and token breakdowns (prompt, completion, reasoning) per stage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			client := api.NewClient(getServerURL())
			var resp MetricsDetailedResponse
			if err := client.Get(ctx, fmt.Sprintf("/api/sessions/%s/metrics/detailed", sessionID), &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}
