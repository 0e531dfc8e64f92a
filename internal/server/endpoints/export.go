package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/export"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// ExportExcelEndpoint handles GET /api/extracts/export/excel.
// The workbook mirrors the registry database layout: one sheet per
// table plus a summary index.
type ExportExcelEndpoint struct{}

var _ api.Endpoint = (*ExportExcelEndpoint)(nil)

func (e *ExportExcelEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/extracts/export/excel", e.handler
}

func (e *ExportExcelEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Export extractions as an Excel workbook
//	@Description	Download all stored extraction results as an xlsx workbook with per-table sheets
//	@Tags			extracts
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Success		200	{file}		binary
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/extracts/export/excel [get]
func (e *ExportExcelEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	svc := export.NewService(client, svcctx.LoggerFrom(r.Context()))
	data, err := svc.ExportXLSX(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("export failed: %v", err))
		return
	}

	filename := fmt.Sprintf("nesach_export_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (e *ExportExcelEndpoint) Command(getServerURL func() string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all extractions as an Excel workbook",
		Long: `Download all stored extraction results as an xlsx workbook.

One sheet per table (extracts, owners, mortgages, notes, easements)
plus a summary index with row counts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(ctx, "/api/extracts/export/excel")
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = fmt.Sprintf("nesach_export_%s.xlsx", time.Now().Format("2006-01-02"))
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}

			cmd.Printf("Wrote %s (%d bytes)\n", path, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default nesach_export_<date>.xlsx)")
	return cmd
}
