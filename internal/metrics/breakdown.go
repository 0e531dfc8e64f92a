package metrics

import "context"

// SessionCost returns the total cost for a session.
func (q *Query) SessionCost(ctx context.Context, sessionID string) (float64, error) {
	return q.TotalCost(ctx, Filter{SessionID: sessionID})
}

// StageCost returns the total cost for a stage (across all sessions).
func (q *Query) StageCost(ctx context.Context, stage string) (float64, error) {
	return q.TotalCost(ctx, Filter{Stage: stage})
}

// SessionStageCost returns the total cost for a specific session and stage.
func (q *Query) SessionStageCost(ctx context.Context, sessionID, stage string) (float64, error) {
	return q.TotalCost(ctx, Filter{SessionID: sessionID, Stage: stage})
}

// SessionStageBreakdown returns cost breakdown by stage for a session.
func (q *Query) SessionStageBreakdown(ctx context.Context, sessionID string) (map[string]float64, error) {
	metrics, err := q.List(ctx, Filter{SessionID: sessionID}, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		breakdown[m.Stage] += m.CostUSD
	}
	return breakdown, nil
}

// CostByModel returns cost breakdown by model.
func (q *Query) CostByModel(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		breakdown[m.Model] += m.CostUSD
	}
	return breakdown, nil
}

// CostByProvider returns cost breakdown by provider.
func (q *Query) CostByProvider(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		breakdown[m.Provider] += m.CostUSD
	}
	return breakdown, nil
}

// MetricForOutput returns the metric that produced a specific output version.
func (q *Query) MetricForOutput(ctx context.Context, docID, cid string) (*Metric, error) {
	metrics, err := q.List(ctx, Filter{OutputDocID: docID, OutputCID: cid}, 1)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, nil
	}
	return &metrics[0], nil
}

// CostByOperationType returns cost breakdown by operation type, derived from
// item_key and stage. Detail sub-queries break out per category (owners,
// mortgages, notes, easements); per-page OCR breaks out per OCR provider;
// single-call stages fall back to the stage name.
func (q *Query) CostByOperationType(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		opType := parseOperationType(m.ItemKey, m.Stage, m.Provider)
		breakdown[opType] += m.CostUSD
	}
	return breakdown, nil
}

// CostByOCRProvider returns OCR cost breakdown by provider (mistral, deepinfra, etc).
func (q *Query) CostByOCRProvider(ctx context.Context, f Filter) (map[string]float64, error) {
	if f.Stage == "" {
		f.Stage = "ocr"
	}
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		// OCR metrics have item_key like "page_0004_mistral" where the provider is in the key
		breakdown[parseOperationType(m.ItemKey, m.Stage, m.Provider)] += m.CostUSD
	}
	return breakdown, nil
}

// parseOperationType extracts the operation type from item_key.
// item_key formats:
// - "page_0004_mistral" -> "mistral" (per-page OCR)
// - "owners" -> "owners" (detail sub-query category)
// - "" -> stage name (analysis, comprehensive), or provider if no stage
func parseOperationType(itemKey, stage, provider string) string {
	if itemKey == "" {
		if stage != "" {
			return stage
		}
		return provider
	}

	parts := splitItemKey(itemKey)
	if parts[0] == "page" {
		if len(parts) >= 3 {
			// page_0004_mistral -> mistral
			return parts[len(parts)-1]
		}
		// page_0004 carries no provider suffix
		if provider != "" {
			return provider
		}
		return stage
	}

	// owners, mortgages, notes, easements -> the category itself
	return parts[0]
}

func splitItemKey(s string) []string {
	var parts []string
	current := ""
	for _, c := range s {
		if c == '_' {
			if current != "" {
				parts = append(parts, current)
				current = ""
			}
		} else {
			current += string(c)
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}
