package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/ingest"
	"github.com/shamayhq/nesach/internal/prompts"
	"github.com/shamayhq/nesach/internal/prompts/analyze"
	"github.com/shamayhq/nesach/internal/prompts/comprehensive"
	"github.com/shamayhq/nesach/internal/prompts/details"
	"github.com/shamayhq/nesach/internal/svcctx"
)

// hasExtract reports whether the session already has a persisted extract.
func (j *Job) hasExtract(ctx context.Context) (bool, error) {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return false, fmt.Errorf("defra client not in context")
	}

	query := fmt.Sprintf(`{
		Extract(filter: {session_id: {_eq: "%s"}}, limit: 1) {
			_docID
		}
	}`, j.SessionID)

	resp, err := client.Execute(ctx, query, nil)
	if err != nil {
		return false, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return false, fmt.Errorf("query error: %s", errMsg)
	}

	extracts, ok := resp.Data["Extract"].([]any)
	return ok && len(extracts) > 0, nil
}

// resolvePrompts resolves every stage prompt for this session up front:
// override texts feed the work units, CIDs feed metrics attribution.
func (j *Job) resolvePrompts(ctx context.Context) error {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return fmt.Errorf("defra client not in context")
	}
	logger := svcctx.LoggerFrom(ctx)

	r := prompts.NewResolver(prompts.NewStore(client, logger), logger)
	analyze.RegisterPrompts(r)
	comprehensive.RegisterPrompts(r)
	details.RegisterPrompts(r)

	resolve := func(key string) (string, error) {
		p, err := r.Resolve(ctx, key, j.SessionID)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", key, err)
		}
		j.promptCIDs[key] = p.CID
		if p.IsOverride {
			return p.Text, nil
		}
		return "", nil
	}

	var err error
	if j.overrides.analyzeSystem, err = resolve(analyze.SystemPromptKey); err != nil {
		return err
	}
	if j.overrides.analyzeUser, err = resolve(analyze.UserPromptKey); err != nil {
		return err
	}
	if j.overrides.comprehensiveSystem, err = resolve(comprehensive.SystemPromptKey); err != nil {
		return err
	}
	if j.overrides.comprehensiveUser, err = resolve(comprehensive.UserPromptKey); err != nil {
		return err
	}
	if j.overrides.detailSystem, err = resolve(details.SystemPromptKey); err != nil {
		return err
	}

	j.overrides.detailUser = make(map[extraction.Category]string)
	for _, cat := range extraction.Categories() {
		text, err := resolve(details.UserPromptKey(cat))
		if err != nil {
			return err
		}
		if text != "" {
			j.overrides.detailUser[cat] = text
		}
	}
	return nil
}

// ensureImagePage stages a single-image upload as the session's page 1 so
// the page phase is uniform downstream.
func (j *Job) ensureImagePage() error {
	path := j.HomeDir.PageImagePath(j.SessionID, 1)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := os.ReadFile(j.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to read original image: %w", err)
	}
	_, err = ingest.StorePageImage(j.HomeDir, j.SessionID, data)
	return err
}

// loadPages loads existing Page records for the session. OCR state comes
// from the records; render state comes from the filesystem afterwards, in
// markRenderedFromDisk, since a recorded image path is only useful if the
// file is still there.
func (j *Job) loadPages(ctx context.Context) error {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return fmt.Errorf("defra client not in context")
	}

	query := fmt.Sprintf(`{
		Page(filter: {session_id: {_eq: "%s"}}) {
			_docID
			page_num
			ocr_text
			status
		}
	}`, j.SessionID)

	resp, err := client.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return fmt.Errorf("query error: %s", errMsg)
	}

	pages, ok := resp.Data["Page"].([]any)
	if !ok {
		return nil // no pages yet
	}

	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		pageNum := 0
		if pn, ok := page["page_num"].(float64); ok {
			pageNum = int(pn)
		}
		if pageNum == 0 {
			continue
		}

		slot := &pageSlot{}
		if docID, ok := page["_docID"].(string); ok {
			slot.docID = docID
		}
		slot.ocrText, _ = page["ocr_text"].(string)
		if status, ok := page["status"].(string); ok && status == PageStatusCompleted && !j.UseVision {
			slot.ocrDone = true
		}
		j.pages[pageNum] = slot
	}

	return nil
}

// createPageRecords creates Page records for pages that don't exist yet.
// CreateMany results may come back in any order, so pages are matched by
// the returned page_num field.
func (j *Job) createPageRecords(ctx context.Context) error {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return fmt.Errorf("defra client not in context")
	}

	var missing []int
	for pageNum := 1; pageNum <= j.PageCount; pageNum++ {
		if j.pages[pageNum] == nil {
			missing = append(missing, pageNum)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	inputs := make([]map[string]any, len(missing))
	for i, pageNum := range missing {
		inputs[i] = map[string]any{
			"session_id": j.SessionID,
			"page_num":   pageNum,
			"status":     PageStatusPending,
			"created_at": now,
		}
	}

	results, err := client.CreateMany(ctx, "Page", inputs, "page_num")
	if err != nil {
		return err
	}

	for _, res := range results {
		pageNum, ok := res.Fields["page_num"].(float64)
		if !ok {
			continue
		}
		j.pages[int(pageNum)] = &pageSlot{docID: res.DocID}
	}
	for _, pageNum := range missing {
		if j.pages[pageNum] == nil {
			return fmt.Errorf("page record for page %d missing from create response", pageNum)
		}
	}
	return nil
}

// markRenderedFromDisk marks pages whose image is already on disk, from a
// previous run or a staged image upload. Caller must hold j.mu.
func (j *Job) markRenderedFromDisk() {
	for pageNum := 1; pageNum <= j.PageCount; pageNum++ {
		slot := j.pages[pageNum]
		if slot == nil || slot.rendered {
			continue
		}
		path := j.HomeDir.PageImagePath(j.SessionID, pageNum)
		if _, err := os.Stat(path); err == nil {
			slot.rendered = true
			slot.imagePath = path
		}
	}
}

// pagesReady reports whether the document payload can be assembled: all
// pages rendered in vision mode, all pages OCR'd in text mode. Caller must
// hold j.mu.
func (j *Job) pagesReady() bool {
	if j.PageCount == 0 {
		return false
	}
	for pageNum := 1; pageNum <= j.PageCount; pageNum++ {
		slot := j.pages[pageNum]
		if slot == nil {
			return false
		}
		if j.UseVision {
			if !slot.rendered {
				return false
			}
		} else if !slot.ocrDone {
			return false
		}
	}
	return true
}

// buildDocumentPayload assembles the prompt-facing document from the
// prepared pages: concatenated OCR text in text mode, page images in
// vision mode. Caller must hold j.mu.
func (j *Job) buildDocumentPayload() error {
	if j.UseVision {
		images := make([][]byte, 0, j.PageCount)
		for pageNum := 1; pageNum <= j.PageCount; pageNum++ {
			slot := j.pages[pageNum]
			if slot == nil {
				return fmt.Errorf("page %d missing from page state", pageNum)
			}
			data, err := os.ReadFile(slot.imagePath)
			if err != nil {
				return fmt.Errorf("failed to read page %d image: %w", pageNum, err)
			}
			images = append(images, data)
		}
		j.pageImages = images
		return nil
	}

	if j.PageCount == 1 {
		j.documentText = j.pages[1].ocrText
		return nil
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= j.PageCount; pageNum++ {
		slot := j.pages[pageNum]
		if slot == nil {
			return fmt.Errorf("page %d missing from page state", pageNum)
		}
		if pageNum > 1 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## Page %d\n\n%s", pageNum, slot.ocrText)
	}
	j.documentText = b.String()
	return nil
}

// updatePage records page progress on the Page row through the write sink.
// Fire and forget: page rows are bookkeeping, not control flow.
func (j *Job) updatePage(ctx context.Context, docID string, doc map[string]any) {
	sink := svcctx.DefraSinkFrom(ctx)
	if sink == nil || docID == "" {
		return
	}
	sink.Send(defra.WriteOp{
		Collection: "Page",
		DocID:      docID,
		Document:   doc,
		Op:         defra.OpUpdate,
		Source:     "extract",
	})
}

// setSessionStatus updates the Session record's status.
func (j *Job) setSessionStatus(ctx context.Context, status string) error {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return fmt.Errorf("defra client not in context")
	}
	return client.Update(ctx, "Session", j.SessionID, map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// failSession marks the session failed. The job record carries the error
// itself; the session status is what the upload endpoints surface.
func (j *Job) failSession(ctx context.Context) {
	if err := j.setSessionStatus(ctx, ingest.SessionStatusFailed); err != nil {
		if logger := svcctx.LoggerFrom(ctx); logger != nil {
			logger.Warn("failed to mark session failed",
				"session_id", j.SessionID,
				"error", err)
		}
	}
}

// finalize builds the extraction result from the merge output, persists
// the Extract record, and completes the session. Caller must hold j.mu.
func (j *Job) finalize(ctx context.Context, merged extraction.Merged) error {
	client := svcctx.DefraClientFrom(ctx)
	if client == nil {
		return fmt.Errorf("defra client not in context")
	}
	logger := svcctx.LoggerFrom(ctx)

	var completed []extraction.Stage
	if j.surveyOK {
		completed = append(completed, extraction.StageAnalysis)
	}
	completed = append(completed, extraction.StageComprehensive)
	if j.booster != nil {
		completed = append(completed, extraction.StageDetail)
	}

	out := &extraction.Result{
		Owners:           merged.Owners,
		Mortgages:        merged.Mortgages,
		Notes:            merged.Notes,
		Easements:        merged.Easements,
		Property:         merged.Property,
		ProcessingTimeMs: time.Since(j.startedAt).Milliseconds(),
		TokensUsed:       j.tokens,
		StagesCompleted:  completed,
		AnalysisSummary:  j.report.Summary(),
	}
	out.ExtractionChallenges = append(out.ExtractionChallenges, j.report.ExtractionChallenges...)
	out.ExtractionChallenges = append(out.ExtractionChallenges, j.warnings...)
	out.ExtractionChallenges = append(out.ExtractionChallenges, merged.Challenges...)

	if overall, ok := extraction.AggregateConfidence(j.primary, j.booster); ok {
		out.OverallConfidence = &overall
	}

	resultJSON, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode extraction result: %w", err)
	}

	stages := make([]string, len(completed))
	for i, s := range completed {
		stages[i] = string(s)
	}

	doc := map[string]any{
		"session_id":         j.SessionID,
		"result":             string(resultJSON),
		"processing_time_ms": out.ProcessingTimeMs,
		"tokens_used":        out.TokensUsed,
		"stages_completed":   stages,
		"analysis_summary":   out.AnalysisSummary,
		"created_at":         time.Now().UTC().Format(time.RFC3339),
	}
	if out.OverallConfidence != nil {
		doc["overall_confidence"] = *out.OverallConfidence
	}
	if len(out.ExtractionChallenges) > 0 {
		doc["challenges"] = out.ExtractionChallenges
	}

	extractID, err := client.Create(ctx, "Extract", doc)
	if err != nil {
		return fmt.Errorf("failed to persist extract: %w", err)
	}

	if err := j.setSessionStatus(ctx, ingest.SessionStatusCompleted); err != nil {
		if logger != nil {
			logger.Warn("failed to mark session completed",
				"session_id", j.SessionID,
				"error", err)
		}
	}

	j.isDone = true

	if logger != nil {
		logger.Info("extraction complete",
			"session_id", j.SessionID,
			"extract_id", extractID,
			"owners", len(out.Owners),
			"mortgages", len(out.Mortgages),
			"notes", len(out.Notes),
			"easements", len(out.Easements),
			"challenges", len(out.ExtractionChallenges),
			"tokens", out.TokensUsed,
			"duration_ms", out.ProcessingTimeMs)
	}
	return nil
}
