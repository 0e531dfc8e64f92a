package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/jobs"
)

// TaskMergeExtraction is the CPU pool task name for the merge step.
const TaskMergeExtraction = "merge-extraction"

// MergeRequest carries the two extraction passes and the structure survey
// into the merge task. Booster is nil when every detail sub-query failed.
type MergeRequest struct {
	Primary *extraction.StageOutput
	Booster *extraction.StageOutput
	Report  extraction.AnalysisReport
}

// MergeResult is the merge task output.
type MergeResult struct {
	Merged extraction.Merged
}

// MergeHandler returns the CPU task handler that runs the deterministic
// merge. Registered on the CPU pool under TaskMergeExtraction at startup.
func MergeHandler() jobs.CPUTaskHandler {
	return func(ctx context.Context, req *jobs.CPUWorkRequest) (*jobs.CPUWorkResult, error) {
		mergeReq, err := decodeMergeRequest(req.Data)
		if err != nil {
			return nil, err
		}
		if mergeReq.Primary == nil {
			return nil, fmt.Errorf("merge requires a comprehensive pass output")
		}
		merged := extraction.NewMerger(nil).Merge(mergeReq.Primary, mergeReq.Booster, mergeReq.Report)
		return &jobs.CPUWorkResult{Data: MergeResult{Merged: merged}}, nil
	}
}

// decodeMergeRequest recovers the request from the work unit data. The map
// form appears when the request round-tripped through JSON.
func decodeMergeRequest(data any) (MergeRequest, error) {
	switch v := data.(type) {
	case MergeRequest:
		return v, nil
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return MergeRequest{}, fmt.Errorf("invalid data for %s task: %w", TaskMergeExtraction, err)
		}
		var req MergeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return MergeRequest{}, fmt.Errorf("invalid data for %s task: %w", TaskMergeExtraction, err)
		}
		return req, nil
	default:
		return MergeRequest{}, fmt.Errorf("invalid data type for %s task: %T", TaskMergeExtraction, data)
	}
}

// decodeMergeResult recovers the merge output from the CPU pool result.
func decodeMergeResult(data any) (MergeResult, error) {
	switch v := data.(type) {
	case MergeResult:
		return v, nil
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return MergeResult{}, fmt.Errorf("unexpected merge result: %w", err)
		}
		var res MergeResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return MergeResult{}, fmt.Errorf("unexpected merge result: %w", err)
		}
		return res, nil
	default:
		return MergeResult{}, fmt.Errorf("unexpected merge result type: %T", data)
	}
}
