// Package ingest turns uploaded land-registry documents into extraction
// sessions: the original file is stored under the home directory, inspected,
// and registered as a Session record in DefraDB. Rendering pages and running
// the extraction passes is the extract job's work, not ingest's.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/home"
)

// Session statuses, in lifecycle order.
const (
	SessionStatusUploaded   = "uploaded"
	SessionStatusProcessing = "processing"
	SessionStatusCompleted  = "completed"
	SessionStatusFailed     = "failed"
)

// Request contains an uploaded document to ingest.
type Request struct {
	Data     []byte       // Document bytes
	Filename string       // Original filename, used for media type detection
	Logger   *slog.Logger // Optional logger for progress updates
}

// Result describes the created session.
type Result struct {
	SessionID  string
	Filename   string
	MediaType  string
	PageCount  int
	HasText    bool
	SourcePath string
}

// Ingest stores the uploaded document and creates a Session record.
// PDFs are validated and counted; permission-restricted PDFs are accepted
// (land-registry portals ship no-copy PDFs routinely).
func Ingest(ctx context.Context, client *defra.Client, homeDir *home.Dir, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.Data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	mediaType := DetectMediaType(req.Filename, req.Data)
	if mediaType == "" {
		return nil, fmt.Errorf("unsupported document type: %s", filepath.Base(req.Filename))
	}
	hasText := mediaType == "text/plain" || mediaType == "text/markdown"

	// Store the original under a provisional ID; the directory is renamed
	// to the Session docID once the record exists.
	tempID := uuid.New().String()
	if err := homeDir.EnsureOriginalsDir(tempID); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	tempDir := homeDir.PageImagesDir(tempID)

	sourcePath := homeDir.OriginalPath(tempID, req.Filename)
	if err := os.WriteFile(sourcePath, req.Data, 0o644); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	pageCount := 0
	switch {
	case mediaType == "application/pdf":
		count, err := InspectPDF(sourcePath)
		if err != nil {
			os.RemoveAll(tempDir)
			return nil, fmt.Errorf("invalid PDF: %w", err)
		}
		pageCount = count
	case strings.HasPrefix(mediaType, "image/"):
		pageCount = 1
	}

	log.Info("ingesting document",
		"filename", filepath.Base(req.Filename),
		"media_type", mediaType,
		"pages", pageCount,
		"has_text", hasText)

	now := time.Now().UTC().Format(time.RFC3339)
	docID, err := client.Create(ctx, "Session", map[string]any{
		"filename":   filepath.Base(req.Filename),
		"status":     SessionStatusUploaded,
		"page_count": pageCount,
		"media_type": mediaType,
		"has_text":   hasText,
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create Session record: %w", err)
	}

	// Rename to the docID and record the final path.
	finalDir := homeDir.PageImagesDir(docID)
	if err := os.Rename(tempDir, finalDir); err != nil {
		return nil, fmt.Errorf("failed to rename session directory: %w", err)
	}
	finalPath := homeDir.OriginalPath(docID, req.Filename)
	if err := client.Update(ctx, "Session", docID, map[string]any{
		"source_path": finalPath,
	}); err != nil {
		return nil, fmt.Errorf("failed to record source path: %w", err)
	}

	log.Info("session created", "session_id", docID, "pages", pageCount)

	return &Result{
		SessionID:  docID,
		Filename:   filepath.Base(req.Filename),
		MediaType:  mediaType,
		PageCount:  pageCount,
		HasText:    hasText,
		SourcePath: finalPath,
	}, nil
}

// DetectMediaType identifies the document type from filename extension,
// falling back to magic bytes. Returns "" for unsupported types.
func DetectMediaType(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	case ".md", ".markdown":
		return "text/markdown"
	}

	if len(data) >= 5 && string(data[:5]) == "%PDF-" {
		return "application/pdf"
	}
	if len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n" {
		return "image/png"
	}
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	return ""
}

// InspectPDF validates a PDF and returns its page count. Permission
// restricted files are decrypted to a temp copy for counting.
func InspectPDF(path string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	workingPath, cleanup, err := preparePDF(path, conf)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	f, err := os.Open(workingPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return count, nil
}

// preparePDF returns a readable path for the PDF. When the file carries
// permission restrictions that block processing, a decrypted temp copy is
// returned instead; the cleanup func removes it.
func preparePDF(path string, conf *model.Configuration) (string, func(), error) {
	noop := func() {}

	if err := api.ValidateFile(path, conf); err == nil {
		return path, noop, nil
	}

	tmp, err := os.CreateTemp("", "nesach-pdf-*.pdf")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := api.DecryptFile(path, tmpPath, conf); err != nil {
		os.Remove(tmpPath)
		return "", noop, fmt.Errorf("failed to prepare PDF: %w", err)
	}

	return tmpPath, func() { os.Remove(tmpPath) }, nil
}
