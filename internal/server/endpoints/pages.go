package endpoints

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shamayhq/nesach/internal/api"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// PageImageEndpoint handles GET /api/sessions/{session_id}/pages/{page_num}/image.
type PageImageEndpoint struct{}

var _ api.Endpoint = (*PageImageEndpoint)(nil)

func (e *PageImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions/{session_id}/pages/{page_num}/image", e.handler
}

func (e *PageImageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get page image
//	@Description	Get the rendered PNG image for a specific page of a session
//	@Tags			pages
//	@Produce		image/png
//	@Param			session_id	path		string	true	"Session ID"
//	@Param			page_num	path		int		true	"Page number (1-indexed)"
//	@Success		200			{file}		binary
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/sessions/{session_id}/pages/{page_num}/image [get]
func (e *PageImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	pageNumStr := r.PathValue("page_num")
	pageNum, err := strconv.Atoi(pageNumStr)
	if err != nil || pageNum < 1 {
		writeError(w, http.StatusBadRequest, "page_num must be a positive integer")
		return
	}

	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not initialized")
		return
	}

	imagePath := homeDir.PageImagePath(sessionID, pageNum)

	file, err := os.Open(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("page %d not found", pageNum))
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	http.ServeContent(w, r, fmt.Sprintf("page_%04d.png", pageNum), fileInfo.ModTime(), file)
}

func (e *PageImageEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// ListPagesResponse is the response for listing pages.
type ListPagesResponse struct {
	Pages      []PageSummary `json:"pages"`
	TotalPages int           `json:"total_pages"`
}

// PageSummary is a brief summary of a page.
type PageSummary struct {
	PageNum     int    `json:"page_num"`
	Status      string `json:"status"`
	OcrProvider string `json:"ocr_provider,omitempty"`
}

// ListPagesEndpoint handles GET /api/sessions/{session_id}/pages.
type ListPagesEndpoint struct{}

var _ api.Endpoint = (*ListPagesEndpoint)(nil)

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions/{session_id}/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List pages
//	@Description	List all pages for a session with processing status
//	@Tags			pages
//	@Produce		json
//	@Param			session_id	path		string	true	"Session ID"
//	@Success		200			{object}	ListPagesResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/sessions/{session_id}/pages [get]
func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	query := fmt.Sprintf(`{
		Page(filter: {session_id: {_eq: "%s"}}, order: {page_num: ASC}) {
			page_num
			status
			ocr_provider
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

	var pages []PageSummary
	if data, ok := resp.Data["Page"].([]any); ok {
		for _, item := range data {
			if m, ok := item.(map[string]any); ok {
				page := PageSummary{}
				if pn, ok := m["page_num"].(float64); ok {
					page.PageNum = int(pn)
				}
				page.Status, _ = m["status"].(string)
				page.OcrProvider, _ = m["ocr_provider"].(string)
				pages = append(pages, page)
			}
		}
	}

	writeJSON(w, http.StatusOK, ListPagesResponse{
		Pages:      pages,
		TotalPages: len(pages),
	})
}

func (e *ListPagesEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// GetPageResponse is the response for getting a single page.
type GetPageResponse struct {
	PageNum     int    `json:"page_num"`
	Status      string `json:"status"`
	Text        string `json:"text,omitempty"`
	OcrText     string `json:"ocr_text,omitempty"`
	OcrProvider string `json:"ocr_provider,omitempty"`
}

// GetPageEndpoint handles GET /api/sessions/{session_id}/pages/{page_num}.
type GetPageEndpoint struct{}

var _ api.Endpoint = (*GetPageEndpoint)(nil)

func (e *GetPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/sessions/{session_id}/pages/{page_num}", e.handler
}

func (e *GetPageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get page details
//	@Description	Get full details for a specific page including extracted and OCR text
//	@Tags			pages
//	@Produce		json
//	@Param			session_id	path		string	true	"Session ID"
//	@Param			page_num	path		int		true	"Page number (1-indexed)"
//	@Success		200			{object}	GetPageResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/sessions/{session_id}/pages/{page_num} [get]
func (e *GetPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	pageNumStr := r.PathValue("page_num")
	pageNum, err := strconv.Atoi(pageNumStr)
	if err != nil || pageNum < 1 {
		writeError(w, http.StatusBadRequest, "page_num must be a positive integer")
		return
	}

	client := svcctx.DefraClientFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "defra client not initialized")
		return
	}

	query := fmt.Sprintf(`{
		Page(filter: {session_id: {_eq: "%s"}, page_num: {_eq: %d}}) {
			page_num
			status
			text
			ocr_text
			ocr_provider
		}
	}`, sessionID, pageNum)

	resp, err := client.Query(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if errMsg := resp.Error(); errMsg != "" {
		writeError(w, http.StatusInternalServerError, errMsg)
		return
	}

	data, ok := resp.Data["Page"].([]any)
	if !ok || len(data) == 0 {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}

	m, ok := data[0].(map[string]any)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unexpected response format")
		return
	}

	response := GetPageResponse{}
	if pn, ok := m["page_num"].(float64); ok {
		response.PageNum = int(pn)
	}
	response.Status, _ = m["status"].(string)
	response.Text, _ = m["text"].(string)
	response.OcrText, _ = m["ocr_text"].(string)
	response.OcrProvider, _ = m["ocr_provider"].(string)

	writeJSON(w, http.StatusOK, response)
}

func (e *GetPageEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
