package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// RegistryResponse lists the providers registered for each role.
type RegistryResponse struct {
	LLM []string `json:"llm"`
	OCR []string `json:"ocr"`
}

// RegistryEndpoint handles GET /api/registry.
type RegistryEndpoint struct{}

func (e *RegistryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/registry", e.handler
}

func (e *RegistryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List registered providers
//	@Description	Get the names of all registered LLM and OCR providers
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	RegistryResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/registry [get]
func (e *RegistryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusServiceUnavailable, "provider registry not available")
		return
	}

	writeJSON(w, http.StatusOK, RegistryResponse{
		LLM: registry.ListLLM(),
		OCR: registry.ListOCR(),
	})
}

func (e *RegistryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "List registered LLM and OCR providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			var resp RegistryResponse
			if err := client.Get(cmd.Context(), "/api/registry", &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

var _ api.Endpoint = (*RegistryEndpoint)(nil)
