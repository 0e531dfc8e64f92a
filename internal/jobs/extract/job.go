package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// Ensure Job implements the jobs.Job interface.
var _ jobs.Job = (*Job)(nil)

// ID returns the DefraDB record ID for this job.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.recordID
}

// SetRecordID sets the DefraDB record ID after the job is persisted.
func (j *Job) SetRecordID(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recordID = id
}

// Type returns the job type identifier.
func (j *Job) Type() string {
	return JobType
}

// Start initializes the job and returns the initial work units. Safe to
// call again on resume: page state is reloaded from DefraDB and disk, and
// only the remaining work is emitted. The LLM passes restart from the
// survey on resume since only the final extract is persisted.
func (j *Job) Start(ctx context.Context) ([]jobs.WorkUnit, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.checkPreconditions(ctx); err != nil {
		return nil, err
	}

	logger := svcctx.LoggerFrom(ctx)

	if j.startedAt.IsZero() {
		j.startedAt = time.Now()
	}

	// A session that already has an extract needs no work.
	extracted, err := j.hasExtract(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing extract: %w", err)
	}
	if extracted {
		if logger != nil {
			logger.Info("extract.Start: session already extracted", "session_id", j.SessionID)
		}
		j.isDone = true
		return nil, nil
	}

	if err := j.resolvePrompts(ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve prompts: %w", err)
	}

	// One survey, one comprehensive pass, one sub-query per category.
	j.llmTotal = 2 + len(extraction.Categories())

	if err := j.setSessionStatus(ctx, ingest.SessionStatusProcessing); err != nil {
		if logger != nil {
			logger.Warn("failed to mark session processing", "session_id", j.SessionID, "error", err)
		}
	}

	// Plain-text uploads skip page preparation entirely.
	if j.HasText {
		text, err := os.ReadFile(j.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read document text: %w", err)
		}
		j.documentText = string(text)
		if logger != nil {
			logger.Info("extract.Start: text document, starting survey",
				"session_id", j.SessionID,
				"bytes", len(text))
		}
		unit := j.createAnalysisUnit(0)
		return []jobs.WorkUnit{*unit}, nil
	}

	// Single-image uploads become the session's page 1.
	if strings.HasPrefix(j.MediaType, "image/") {
		if err := j.ensureImagePage(); err != nil {
			return nil, fmt.Errorf("failed to stage image page: %w", err)
		}
	}

	if err := j.loadPages(ctx); err != nil {
		return nil, fmt.Errorf("failed to load page state: %w", err)
	}
	if err := j.createPageRecords(ctx); err != nil {
		return nil, fmt.Errorf("failed to create page records: %w", err)
	}
	j.markRenderedFromDisk()

	units, err := j.pageUnits(ctx)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("extract.Start: page work generated",
			"session_id", j.SessionID,
			"page_count", j.PageCount,
			"units", len(units),
			"vision", j.UseVision)
	}

	// All pages already prepared (resume): go straight to the survey.
	if len(units) == 0 {
		if err := j.buildDocumentPayload(); err != nil {
			return nil, err
		}
		unit := j.createAnalysisUnit(0)
		return []jobs.WorkUnit{*unit}, nil
	}

	return units, nil
}

// OnComplete is called when a work unit finishes.
func (j *Job) OnComplete(ctx context.Context, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	logger := svcctx.LoggerFrom(ctx)

	info, ok := j.pendingUnits[result.WorkUnitID]
	if !ok {
		// Results fan out to every job with units in flight; this one
		// is not ours.
		if logger != nil {
			logger.Debug("work unit not found in pending units",
				"work_unit_id", result.WorkUnitID,
				"job_id", j.recordID)
		}
		return nil, nil
	}
	delete(j.pendingUnits, result.WorkUnitID)

	if !result.Success {
		return j.handleFailure(ctx, info, result)
	}

	var newUnits []jobs.WorkUnit
	var err error

	switch info.Kind {
	case unitRender:
		newUnits, err = j.handleRenderComplete(ctx, info, result)
	case unitOCR:
		newUnits, err = j.handleOCRComplete(ctx, info, result)
	case unitAnalysis:
		newUnits, err = j.handleAnalysisComplete(ctx, info, result)
	case unitComprehensive:
		newUnits, err = j.handleComprehensiveComplete(ctx, info, result)
	case unitDetail:
		newUnits, err = j.handleDetailComplete(ctx, info, result)
	case unitMerge:
		err = j.handleMergeComplete(ctx, result)
	default:
		err = fmt.Errorf("unknown work unit kind: %s", info.Kind)
	}

	if err != nil {
		j.failSession(ctx)
		return nil, err
	}
	return newUnits, nil
}

// handleFailure applies the per-stage failure policy: pages retry then
// fail the session, the survey degrades to generic guidance, the
// comprehensive pass gets one retry, detail sub-queries cost only their
// category, and a failed merge fails the session.
func (j *Job) handleFailure(ctx context.Context, info unitInfo, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	logger := svcctx.LoggerFrom(ctx)

	switch info.Kind {
	case unitRender, unitOCR:
		if info.RetryCount < MaxPageRetries {
			if logger != nil {
				logger.Warn("page work unit failed, retrying",
					"kind", info.Kind,
					"page_num", info.PageNum,
					"provider", info.Provider,
					"retry_count", info.RetryCount,
					"error", result.Error)
			}
			unit, err := j.createRetryUnit(ctx, info)
			if err == nil {
				return []jobs.WorkUnit{*unit}, nil
			}
			if logger != nil {
				logger.Error("failed to create retry unit",
					"kind", info.Kind,
					"page_num", info.PageNum,
					"error", err)
			}
		}
		err := fmt.Errorf("%s failed for page %d after %d attempts: %v",
			info.Kind, info.PageNum, info.RetryCount+1, result.Error)
		j.failSession(ctx)
		return nil, err

	case unitAnalysis:
		// Survey failure degrades to generic guidance.
		if logger != nil {
			logger.Warn("structure survey failed, proceeding without counts",
				"session_id", j.SessionID,
				"error", result.Error)
		}
		j.absorbSurveyFailure(fmt.Sprintf("structure survey failed: %v", result.Error))
		return j.extractionUnits(ctx)

	case unitComprehensive:
		if !j.compRetried {
			j.compRetried = true
			if logger != nil {
				logger.Warn("comprehensive pass failed, retrying",
					"session_id", j.SessionID,
					"error", result.Error)
			}
			unit := j.createComprehensiveUnit(info.RetryCount + 1)
			return []jobs.WorkUnit{*unit}, nil
		}
		err := fmt.Errorf("comprehensive extraction failed: %v", result.Error)
		j.failSession(ctx)
		return nil, err

	case unitDetail:
		// Sub-query failures cost only their category.
		if logger != nil {
			logger.Warn("detail sub-query failed",
				"session_id", j.SessionID,
				"category", info.Category,
				"error", result.Error)
		}
		j.warnings = append(j.warnings, fmt.Sprintf("detail pass for %s failed: %v", info.Category, result.Error))
		j.llmFailed++
		j.detailPending--
		return j.maybeQueueMerge(), nil

	case unitMerge:
		err := fmt.Errorf("merge failed: %v", result.Error)
		j.failSession(ctx)
		return nil, err
	}

	err := fmt.Errorf("unknown work unit kind: %s", info.Kind)
	j.failSession(ctx)
	return nil, err
}

// Done returns true when the job has completed.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.isDone
}

// Status returns the current status of the job. The session_id entry is
// required: the job factory reads it from stored metadata on resume.
func (j *Job) Status(ctx context.Context) (map[string]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rendered, ocrd := 0, 0
	for _, slot := range j.pages {
		if slot.rendered {
			rendered++
		}
		if slot.ocrDone {
			ocrd++
		}
	}

	mode := "text"
	if j.UseVision {
		mode = "vision"
	}

	return map[string]string{
		"session_id":     j.SessionID,
		"filename":       j.Filename,
		"mode":           mode,
		"page_count":     fmt.Sprintf("%d", j.PageCount),
		"pages_rendered": fmt.Sprintf("%d", rendered),
		"pages_ocr":      fmt.Sprintf("%d", ocrd),
		"phase":          j.phase(),
		"pending_units":  fmt.Sprintf("%d", len(j.pendingUnits)),
		"warnings":       fmt.Sprintf("%d", len(j.warnings)),
		"done":           fmt.Sprintf("%v", j.isDone),
	}, nil
}

// phase names the furthest stage the job has reached. Caller must hold j.mu.
func (j *Job) phase() string {
	switch {
	case j.isDone:
		return "done"
	case j.mergeQueued:
		return "merge"
	case j.report != nil:
		return "extraction"
	case j.documentText != "" || len(j.pageImages) > 0:
		return "analysis"
	default:
		return "pages"
	}
}

// Progress returns per-provider work unit progress.
func (j *Job) Progress() map[string]jobs.ProviderProgress {
	j.mu.Lock()
	defer j.mu.Unlock()

	progress := make(map[string]jobs.ProviderProgress)

	if !j.HasText && j.PageCount > 0 {
		rendered, ocrd := 0, 0
		for _, slot := range j.pages {
			if slot.rendered {
				rendered++
			}
			if slot.ocrDone {
				ocrd++
			}
		}
		progress["cpu"] = jobs.ProviderProgress{
			TotalExpected: j.PageCount,
			Completed:     rendered,
		}
		if !j.UseVision && len(j.OcrProviders) > 0 {
			progress[j.OcrProviders[0]] = jobs.ProviderProgress{
				TotalExpected: j.PageCount,
				Completed:     ocrd,
			}
		}
	}

	progress[j.LLMProvider] = jobs.ProviderProgress{
		TotalExpected: j.llmTotal,
		Completed:     j.llmDone,
		Failed:        j.llmFailed,
	}

	return progress
}

// MetricsFor returns base metrics attribution for this job.
func (j *Job) MetricsFor() *jobs.WorkUnitMetrics {
	return &jobs.WorkUnitMetrics{
		SessionID: j.SessionID,
		Stage:     JobType,
	}
}
