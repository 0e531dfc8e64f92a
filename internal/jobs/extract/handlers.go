package extract

import (
	"context"
	"fmt"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/prompts/analyze"
	"github.com/shamayhq/nesach/internal/prompts/comprehensive"
	"github.com/shamayhq/nesach/internal/prompts/details"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// handleRenderComplete records the rendered page image and queues the OCR
// step, or the survey once every page is ready in vision mode.
func (j *Job) handleRenderComplete(ctx context.Context, info unitInfo, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	slot := j.pages[info.PageNum]
	if slot == nil {
		return nil, fmt.Errorf("render completed for unknown page %d", info.PageNum)
	}
	if result.CPUResult == nil {
		return nil, fmt.Errorf("render result for page %d carries no data", info.PageNum)
	}

	renderRes, err := decodeRenderResult(result.CPUResult.Data)
	if err != nil {
		return nil, err
	}
	slot.rendered = true
	slot.imagePath = renderRes.OutputPath

	status := PageStatusRendered
	if j.UseVision {
		// No OCR step follows in vision mode.
		status = PageStatusCompleted
	}
	j.updatePage(ctx, slot.docID, map[string]any{
		"image_path": slot.imagePath,
		"status":     status,
	})

	if !j.UseVision {
		unit, err := j.createOCRUnit(ctx, info.PageNum, 0)
		if err != nil {
			return nil, err
		}
		return []jobs.WorkUnit{*unit}, nil
	}
	return j.maybeStartSurvey(ctx)
}

// handleOCRComplete records the page text and queues the survey once every
// page has resolved.
func (j *Job) handleOCRComplete(ctx context.Context, info unitInfo, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	slot := j.pages[info.PageNum]
	if slot == nil {
		return nil, fmt.Errorf("ocr completed for unknown page %d", info.PageNum)
	}
	if result.OCRResult == nil {
		return nil, fmt.Errorf("ocr result for page %d carries no data", info.PageNum)
	}

	// Empty text is legitimate: blank pages OCR to nothing.
	slot.ocrDone = true
	slot.ocrText = result.OCRResult.Text

	j.updatePage(ctx, slot.docID, map[string]any{
		"ocr_text":     slot.ocrText,
		"ocr_provider": info.Provider,
		"status":       PageStatusCompleted,
	})

	return j.maybeStartSurvey(ctx)
}

// maybeStartSurvey emits the structure survey unit once the document
// payload can be assembled. Caller must hold j.mu.
func (j *Job) maybeStartSurvey(ctx context.Context) ([]jobs.WorkUnit, error) {
	if j.surveyStarted || !j.pagesReady() {
		return nil, nil
	}
	if err := j.buildDocumentPayload(); err != nil {
		return nil, err
	}
	if logger := svcctx.LoggerFrom(ctx); logger != nil {
		logger.Info("pages prepared, starting structure survey",
			"session_id", j.SessionID,
			"page_count", j.PageCount,
			"vision", j.UseVision)
	}
	unit := j.createAnalysisUnit(0)
	return []jobs.WorkUnit{*unit}, nil
}

// handleAnalysisComplete parses the survey. A malformed survey degrades
// to generic guidance exactly like a failed one; either way both
// extraction passes launch.
func (j *Job) handleAnalysisComplete(ctx context.Context, info unitInfo, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	logger := svcctx.LoggerFrom(ctx)

	res := result.ChatResult
	if res == nil || len(res.ParsedJSON) == 0 {
		if logger != nil {
			logger.Warn("structure survey returned no structured output", "session_id", j.SessionID)
		}
		j.absorbSurveyFailure("structure survey failed: empty structured response")
		return j.extractionUnits(ctx)
	}

	report, err := analyze.ParseResult(res.ParsedJSON)
	if err != nil {
		if logger != nil {
			logger.Warn("structure survey produced malformed output",
				"session_id", j.SessionID,
				"error", err)
		}
		j.absorbSurveyFailure(fmt.Sprintf("structure survey failed: %v", err))
		return j.extractionUnits(ctx)
	}

	j.report = report
	j.surveyOK = true
	j.tokens += res.TotalTokens
	j.llmDone++

	if logger != nil {
		logger.Info("structure survey complete",
			"session_id", j.SessionID,
			"summary", report.Summary(),
			"tokens", res.TotalTokens)
	}
	return j.extractionUnits(ctx)
}

// absorbSurveyFailure records the failure and substitutes the zero report,
// which the extraction passes treat as "counts unknown". Caller must hold
// j.mu.
func (j *Job) absorbSurveyFailure(warning string) {
	j.warnings = append(j.warnings, warning)
	j.report = &extraction.AnalysisReport{}
	j.llmFailed++
}

// handleComprehensiveComplete parses the required extraction pass. One
// retry for malformed output, then the session fails.
func (j *Job) handleComprehensiveComplete(ctx context.Context, info unitInfo, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	logger := svcctx.LoggerFrom(ctx)

	res := result.ChatResult
	var parsed *comprehensive.Result
	var parseErr error
	if res == nil || len(res.ParsedJSON) == 0 {
		parseErr = fmt.Errorf("empty structured response")
	} else {
		parsed, parseErr = comprehensive.ParseResult(res.ParsedJSON)
	}
	if parseErr != nil {
		if !j.compRetried {
			j.compRetried = true
			if logger != nil {
				logger.Warn("comprehensive pass produced malformed output, retrying",
					"session_id", j.SessionID,
					"error", parseErr)
			}
			unit := j.createComprehensiveUnit(info.RetryCount + 1)
			return []jobs.WorkUnit{*unit}, nil
		}
		return nil, fmt.Errorf("comprehensive extraction produced malformed output: %v", parseErr)
	}

	j.primary = parsed.ToStageOutput(res.TotalTokens)
	j.tokens += res.TotalTokens
	j.llmDone++

	if logger != nil {
		logger.Debug("comprehensive pass complete",
			"session_id", j.SessionID,
			"owners", len(j.primary.Owners),
			"mortgages", len(j.primary.Mortgages),
			"notes", len(j.primary.Notes),
			"easements", len(j.primary.Easements),
			"tokens", res.TotalTokens)
	}
	return j.maybeQueueMerge(), nil
}

// handleDetailComplete folds one sub-query into the detail pass output.
// Malformed output costs only the category.
func (j *Job) handleDetailComplete(ctx context.Context, info unitInfo, result jobs.WorkResult) ([]jobs.WorkUnit, error) {
	logger := svcctx.LoggerFrom(ctx)

	j.detailPending--

	res := result.ChatResult
	var parsed *details.Result
	var parseErr error
	if res == nil || len(res.ParsedJSON) == 0 {
		parseErr = fmt.Errorf("empty structured response")
	} else {
		parsed, parseErr = details.ParseResult(res.ParsedJSON)
	}
	if parseErr != nil {
		if logger != nil {
			logger.Warn("detail sub-query produced malformed output",
				"session_id", j.SessionID,
				"category", info.Category,
				"error", parseErr)
		}
		j.warnings = append(j.warnings, fmt.Sprintf("detail pass for %s failed: %v", info.Category, parseErr))
		j.llmFailed++
		return j.maybeQueueMerge(), nil
	}

	if j.booster == nil {
		j.booster = &extraction.StageOutput{Stage: extraction.StageDetail}
	}
	parsed.Apply(j.booster, info.Category)
	j.booster.TokensUsed += res.TotalTokens
	j.tokens += res.TotalTokens
	j.llmDone++

	return j.maybeQueueMerge(), nil
}

// handleMergeComplete persists the merged result and completes the session.
func (j *Job) handleMergeComplete(ctx context.Context, result jobs.WorkResult) error {
	if result.CPUResult == nil {
		return fmt.Errorf("merge result carries no data")
	}
	mergeRes, err := decodeMergeResult(result.CPUResult.Data)
	if err != nil {
		return err
	}
	return j.finalize(ctx, mergeRes.Merged)
}

// decodeRenderResult recovers the render output from the CPU pool result.
// The map form appears when the result round-tripped through JSON.
func decodeRenderResult(data any) (ingest.PageRenderResult, error) {
	switch v := data.(type) {
	case ingest.PageRenderResult:
		return v, nil
	case map[string]any:
		outputPath, _ := v["OutputPath"].(string)
		pageNum, _ := v["PageNum"].(float64)
		return ingest.PageRenderResult{OutputPath: outputPath, PageNum: int(pageNum)}, nil
	default:
		return ingest.PageRenderResult{}, fmt.Errorf("unexpected render result type: %T", data)
	}
}
