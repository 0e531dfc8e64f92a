package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/jobs"
	"github.com/shamayhq/nesach/internal/prompts/analyze"
	"github.com/shamayhq/nesach/internal/prompts/comprehensive"
	"github.com/shamayhq/nesach/internal/prompts/details"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// pageUnits emits the remaining page preparation work: render units for
// pages without an image, OCR units for rendered pages still awaiting
// text. Caller must hold j.mu.
func (j *Job) pageUnits(ctx context.Context) ([]jobs.WorkUnit, error) {
	var units []jobs.WorkUnit
	for pageNum := 1; pageNum <= j.PageCount; pageNum++ {
		slot := j.pages[pageNum]
		if slot == nil {
			continue
		}

		// Text mode with OCR already done never needs the image again.
		needsImage := j.UseVision || !slot.ocrDone
		if needsImage && !slot.rendered {
			units = append(units, *j.createRenderUnit(pageNum, 0))
			continue
		}
		if !j.UseVision && !slot.ocrDone {
			unit, err := j.createOCRUnit(ctx, pageNum, 0)
			if err != nil {
				return nil, err
			}
			units = append(units, *unit)
		}
	}
	return units, nil
}

// createRenderUnit creates a CPU work unit that rasterizes one PDF page.
func (j *Job) createRenderUnit(pageNum, retry int) *jobs.WorkUnit {
	unit := &jobs.WorkUnit{
		ID:       uuid.New().String(),
		Type:     jobs.WorkUnitTypeCPU,
		Priority: jobs.PriorityForStage("render"),
		CPURequest: &jobs.CPUWorkRequest{
			Task: ingest.TaskRenderPage,
			Data: ingest.PageRenderRequest{
				PDFPath:    j.SourcePath,
				PageNum:    pageNum,
				OutputPath: j.HomeDir.PageImagePath(j.SessionID, pageNum),
			},
		},
	}
	j.pendingUnits[unit.ID] = unitInfo{Kind: unitRender, PageNum: pageNum, RetryCount: retry}
	return unit
}

// createOCRUnit creates an OCR work unit for a rendered page. Retries
// rotate through the configured providers so a provider outage does not
// strand the page.
func (j *Job) createOCRUnit(ctx context.Context, pageNum, retry int) (*jobs.WorkUnit, error) {
	slot := j.pages[pageNum]
	if slot == nil || !slot.rendered {
		return nil, fmt.Errorf("page %d has no rendered image", pageNum)
	}
	image, err := os.ReadFile(slot.imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d image: %w", pageNum, err)
	}

	provider := j.OcrProviders[retry%len(j.OcrProviders)]
	unit := &jobs.WorkUnit{
		ID:       uuid.New().String(),
		Type:     jobs.WorkUnitTypeOCR,
		Provider: provider,
		Priority: jobs.PriorityForStage("ocr"),
		OCRRequest: &jobs.OCRWorkRequest{
			Image:   image,
			PageNum: pageNum,
		},
		Metrics: &jobs.WorkUnitMetrics{
			SessionID: j.SessionID,
			Stage:     "ocr",
			ItemKey:   fmt.Sprintf("page_%04d_%s", pageNum, provider),
		},
	}
	j.pendingUnits[unit.ID] = unitInfo{Kind: unitOCR, PageNum: pageNum, Provider: provider, RetryCount: retry}

	if logger := svcctx.LoggerFrom(ctx); logger != nil {
		logger.Debug("created OCR work unit",
			"session_id", j.SessionID,
			"page_num", pageNum,
			"provider", provider)
	}
	return unit, nil
}

// createAnalysisUnit creates the structure survey LLM work unit.
func (j *Job) createAnalysisUnit(retry int) *jobs.WorkUnit {
	j.surveyStarted = true
	unit := analyze.CreateWorkUnit(analyze.Input{
		DocumentText:         j.documentText,
		PageImages:           j.pageImages,
		Filename:             j.Filename,
		SystemPromptOverride: j.overrides.analyzeSystem,
		UserPromptOverride:   j.overrides.analyzeUser,
	})
	unit.ID = uuid.New().String()
	unit.Provider = j.LLMProvider
	unit.Priority = jobs.PriorityForStage(string(extraction.StageAnalysis))
	unit.Metrics = &jobs.WorkUnitMetrics{
		SessionID: j.SessionID,
		Stage:     string(extraction.StageAnalysis),
		PromptKey: analyze.SystemPromptKey,
		PromptCID: j.promptCIDs[analyze.SystemPromptKey],
	}
	j.pendingUnits[unit.ID] = unitInfo{Kind: unitAnalysis, RetryCount: retry}
	return unit
}

// createComprehensiveUnit creates the full extraction LLM work unit,
// steered by the survey when it produced counts.
func (j *Job) createComprehensiveUnit(retry int) *jobs.WorkUnit {
	unit := comprehensive.CreateWorkUnit(comprehensive.Input{
		DocumentText:         j.documentText,
		PageImages:           j.pageImages,
		Filename:             j.Filename,
		Report:               j.report,
		SystemPromptOverride: j.overrides.comprehensiveSystem,
		UserPromptOverride:   j.overrides.comprehensiveUser,
	})
	unit.ID = uuid.New().String()
	unit.Provider = j.LLMProvider
	unit.Priority = jobs.PriorityForStage(string(extraction.StageComprehensive))
	unit.Metrics = &jobs.WorkUnitMetrics{
		SessionID: j.SessionID,
		Stage:     string(extraction.StageComprehensive),
		PromptKey: comprehensive.SystemPromptKey,
		PromptCID: j.promptCIDs[comprehensive.SystemPromptKey],
	}
	j.pendingUnits[unit.ID] = unitInfo{Kind: unitComprehensive, RetryCount: retry}
	return unit
}

// createDetailUnit creates one targeted sub-query LLM work unit.
func (j *Job) createDetailUnit(cat extraction.Category) (*jobs.WorkUnit, error) {
	unit, err := details.CreateWorkUnit(details.Input{
		Category:             cat,
		DocumentText:         j.documentText,
		PageImages:           j.pageImages,
		Filename:             j.Filename,
		SystemPromptOverride: j.overrides.detailSystem,
		UserPromptOverride:   j.overrides.detailUser[cat],
	})
	if err != nil {
		return nil, err
	}
	unit.ID = uuid.New().String()
	unit.Provider = j.LLMProvider
	unit.Priority = jobs.PriorityForStage(string(extraction.StageDetail))
	unit.Metrics = &jobs.WorkUnitMetrics{
		SessionID: j.SessionID,
		Stage:     string(extraction.StageDetail),
		ItemKey:   string(cat),
		PromptKey: details.UserPromptKey(cat),
		PromptCID: j.promptCIDs[details.UserPromptKey(cat)],
	}
	j.pendingUnits[unit.ID] = unitInfo{Kind: unitDetail, Category: cat}
	return unit, nil
}

// extractionUnits emits the comprehensive pass and the detail sub-queries
// together once the survey has resolved. A sub-query that cannot be built
// is absorbed the same way a failed one would be. Caller must hold j.mu.
func (j *Job) extractionUnits(ctx context.Context) ([]jobs.WorkUnit, error) {
	units := []jobs.WorkUnit{*j.createComprehensiveUnit(0)}

	for _, cat := range extraction.Categories() {
		unit, err := j.createDetailUnit(cat)
		if err != nil {
			if logger := svcctx.LoggerFrom(ctx); logger != nil {
				logger.Warn("failed to create detail sub-query",
					"session_id", j.SessionID,
					"category", cat,
					"error", err)
			}
			j.warnings = append(j.warnings, fmt.Sprintf("detail pass for %s failed: %v", cat, err))
			j.llmFailed++
			continue
		}
		units = append(units, *unit)
		j.detailPending++
	}

	return units, nil
}

// createMergeUnit creates the CPU work unit for the deterministic merge.
func (j *Job) createMergeUnit() *jobs.WorkUnit {
	unit := &jobs.WorkUnit{
		ID:       uuid.New().String(),
		Type:     jobs.WorkUnitTypeCPU,
		Priority: jobs.PriorityForStage("merge"),
		CPURequest: &jobs.CPUWorkRequest{
			Task: TaskMergeExtraction,
			Data: MergeRequest{
				Primary: j.primary,
				Booster: j.booster,
				Report:  *j.report,
			},
		},
	}
	j.pendingUnits[unit.ID] = unitInfo{Kind: unitMerge}
	return unit
}

// maybeQueueMerge emits the merge unit once the comprehensive pass has
// succeeded and every detail sub-query has resolved. Caller must hold j.mu.
func (j *Job) maybeQueueMerge() []jobs.WorkUnit {
	if j.primary == nil || j.detailPending > 0 || j.mergeQueued {
		return nil
	}
	j.mergeQueued = true
	return []jobs.WorkUnit{*j.createMergeUnit()}
}

// createRetryUnit recreates a failed page work unit with an incremented
// retry count. Caller must hold j.mu.
func (j *Job) createRetryUnit(ctx context.Context, info unitInfo) (*jobs.WorkUnit, error) {
	switch info.Kind {
	case unitRender:
		return j.createRenderUnit(info.PageNum, info.RetryCount+1), nil
	case unitOCR:
		return j.createOCRUnit(ctx, info.PageNum, info.RetryCount+1)
	default:
		return nil, fmt.Errorf("no retry for work unit kind %s", info.Kind)
	}
}
