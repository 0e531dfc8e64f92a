package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/metrics"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// SessionCostEndpoint handles GET /api/sessions/{id}/cost.
type SessionCostEndpoint struct{}

func (e *SessionCostEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions/{id}/cost", e.handler
}

func (e *SessionCostEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get cost for a session
//	@Description	Get total LLM/OCR cost for a session, optionally broken down by stage
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Param			by	query		string	false	"Breakdown by: stage"
//	@Success		200	{object}	MetricsCostResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/sessions/{id}/cost [get]
func (e *SessionCostEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	// Check for breakdown
	byStage := r.URL.Query().Get("by") == "stage"

	var resp MetricsCostResponse
	var err error

	if byStage {
		resp.Breakdown, err = query.SessionStageBreakdown(r.Context(), sessionID)
		if err == nil {
			for _, v := range resp.Breakdown {
				resp.TotalCostUSD += v
			}
		}
	} else {
		resp.TotalCostUSD, err = query.SessionCost(r.Context(), sessionID)
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *SessionCostEndpoint) Command(getServerURL func() string) *cobra.Command {
	var byStage bool

	cmd := &cobra.Command{
		Use:   "cost <session_id>",
		Short: "Get cost for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			path := "/api/sessions/" + sessionID + "/cost"
			if byStage {
				path += "?by=stage"
			}

			client := api.NewClient(getServerURL())
			var resp MetricsCostResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}

			fmt.Printf("Session Cost: $%.4f\n", resp.TotalCostUSD)

			if len(resp.Breakdown) > 0 {
				fmt.Printf("\nBreakdown by stage:\n")
				for k, v := range resp.Breakdown {
					fmt.Printf("  %-20s  $%.4f\n", k, v)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&byStage, "by-stage", false, "Show breakdown by stage")

	return cmd
}
