package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/shamayhq/nesach/internal/home"
	"github.com/shamayhq/nesach/internal/jobs"
)

// TaskRenderPage is the CPU pool task name for rendering one PDF page.
const TaskRenderPage = "render-page"

// PageRenderRequest is the data for a single page render work unit.
type PageRenderRequest struct {
	PDFPath    string // Source PDF file
	PageNum    int    // Page number within the PDF (1-indexed)
	OutputPath string // Destination image path
}

// PageRenderResult is returned from a successful page render.
type PageRenderResult struct {
	OutputPath string
	PageNum    int
}

// RenderPageHandler returns a CPUTaskHandler that renders a single PDF page.
// Registered on the CPU pool under TaskRenderPage.
func RenderPageHandler() jobs.CPUTaskHandler {
	return func(ctx context.Context, req *jobs.CPUWorkRequest) (*jobs.CPUWorkResult, error) {
		renderReq, ok := req.Data.(PageRenderRequest)
		if !ok {
			// Map form appears when the request round-tripped through JSON
			if m, ok := req.Data.(map[string]any); ok {
				pdfPath, _ := m["PDFPath"].(string)
				pageNum, _ := m["PageNum"].(float64)
				outputPath, _ := m["OutputPath"].(string)
				renderReq = PageRenderRequest{
					PDFPath:    pdfPath,
					PageNum:    int(pageNum),
					OutputPath: outputPath,
				}
			} else {
				return nil, fmt.Errorf("invalid data type for %s task: %T", TaskRenderPage, req.Data)
			}
		}

		if err := RenderPage(ctx, renderReq); err != nil {
			return nil, err
		}

		return &jobs.CPUWorkResult{
			Data: PageRenderResult{
				OutputPath: renderReq.OutputPath,
				PageNum:    renderReq.PageNum,
			},
		}, nil
	}
}

// RenderPage renders a single page from a PDF using pdftoppm (poppler-utils).
// pdftoppm rasterizes the page as displayed, which is what the vision models
// and OCR providers need; extracting embedded image objects does not preserve
// the page layout of registry extracts.
func RenderPage(ctx context.Context, req PageRenderRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	tmpDir, err := os.MkdirTemp("", "nesach-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -r 300: resolution in DPI, enough for the small print in the notes table
	// -singlefile: no page number suffix, we name the output ourselves
	pageStr := fmt.Sprintf("%d", req.PageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", "300",
		"-singlefile",
		req.PDFPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(req.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	return nil
}

// RenderAllPages renders every page of a session's PDF synchronously,
// bounded by a CPU-count semaphore. Used by the one-shot CLI path; the
// server path renders through CPU pool work units instead.
func RenderAllPages(ctx context.Context, homeDir *home.Dir, sessionID, pdfPath string, pageCount int) error {
	if err := homeDir.EnsurePageImagesDir(sessionID); err != nil {
		return fmt.Errorf("failed to create page images directory: %w", err)
	}

	maxWorkers := runtime.NumCPU()

	type result struct {
		pageNum int
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageNum int) {
			defer func() { <-sem }() // release

			err := RenderPage(ctx, PageRenderRequest{
				PDFPath:    pdfPath,
				PageNum:    pageNum,
				OutputPath: homeDir.PageImagePath(sessionID, pageNum),
			})
			results <- result{pageNum: pageNum, err: err}
		}(page)
	}

	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			return fmt.Errorf("failed to render page %d: %w", r.pageNum, r.err)
		}
	}

	return nil
}

// StorePageImage writes a single-image document (JPEG/PNG upload) as the
// session's page 1, so the page phase is uniform downstream.
func StorePageImage(homeDir *home.Dir, sessionID string, data []byte) (string, error) {
	if err := homeDir.EnsurePageImagesDir(sessionID); err != nil {
		return "", fmt.Errorf("failed to create page images directory: %w", err)
	}
	path := homeDir.PageImagePath(sessionID, 1)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write page image: %w", err)
	}
	return path, nil
}
