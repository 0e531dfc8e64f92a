package jobs

import (
	"context"
	"testing"
)

func TestMockJob(t *testing.T) {
	t.Run("creates work units on start", func(t *testing.T) {
		job := NewMockJob(MockJobConfig{WorkUnits: 3})
		job.SetRecordID("job-1")

		units, err := job.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if len(units) != 3 {
			t.Fatalf("got %d units, want 3", len(units))
		}
		for _, u := range units {
			if u.Type != WorkUnitTypeLLM {
				t.Errorf("unit type = %s, want llm", u.Type)
			}
			if u.JobID != "job-1" {
				t.Errorf("unit JobID = %s, want job-1", u.JobID)
			}
			if u.ChatRequest == nil {
				t.Error("LLM unit missing ChatRequest")
			}
		}
	})

	t.Run("rejects double start", func(t *testing.T) {
		job := NewMockJob(MockJobConfig{WorkUnits: 1})

		if _, err := job.Start(context.Background()); err != nil {
			t.Fatalf("first Start() error = %v", err)
		}
		if _, err := job.Start(context.Background()); err == nil {
			t.Error("second Start() should error")
		}
	})

	t.Run("done after all completions", func(t *testing.T) {
		job := NewMockJob(MockJobConfig{WorkUnits: 2})
		job.SetRecordID("job-2")

		units, err := job.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		if job.Done() {
			t.Error("job should not be done before completions")
		}

		for _, u := range units {
			if _, err := job.OnComplete(context.Background(), WorkResult{
				WorkUnitID: u.ID,
				Success:    true,
			}); err != nil {
				t.Fatalf("OnComplete() error = %v", err)
			}
		}

		if !job.Done() {
			t.Error("job should be done after all completions")
		}

		status, err := job.Status(context.Background())
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if status["completed"] != "2" {
			t.Errorf("status completed = %s, want 2", status["completed"])
		}
		if status["done"] != "true" {
			t.Errorf("status done = %s, want true", status["done"])
		}
	})

	t.Run("ocr units carry OCRRequest", func(t *testing.T) {
		job := NewMockJob(MockJobConfig{WorkUnits: 2, UnitType: WorkUnitTypeOCR})
		job.SetRecordID("job-3")

		units, err := job.Start(context.Background())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		for i, u := range units {
			if u.Type != WorkUnitTypeOCR {
				t.Errorf("unit type = %s, want ocr", u.Type)
			}
			if u.OCRRequest == nil {
				t.Fatal("OCR unit missing OCRRequest")
			}
			if u.OCRRequest.PageNum != i+1 {
				t.Errorf("PageNum = %d, want %d", u.OCRRequest.PageNum, i+1)
			}
		}
	})
}

func TestCountingJob(t *testing.T) {
	job := NewCountingJob(3)
	job.SetRecordID("count-1")

	units, err := job.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}

	for i, u := range units {
		if _, err := job.OnComplete(context.Background(), WorkResult{
			WorkUnitID: u.ID,
			Success:    true,
		}); err != nil {
			t.Fatalf("OnComplete() error = %v", err)
		}
		if job.Completed() != i+1 {
			t.Errorf("Completed() = %d, want %d", job.Completed(), i+1)
		}
	}

	if !job.Done() {
		t.Error("job should be done")
	}
}

func TestMockJob_Progress(t *testing.T) {
	job := NewMockJob(MockJobConfig{WorkUnits: 4, Provider: "openrouter"})
	job.SetRecordID("prog-1")

	units, _ := job.Start(context.Background())

	// Complete 2 of 4, one failed
	job.OnComplete(context.Background(), WorkResult{WorkUnitID: units[0].ID, Success: true})
	job.OnComplete(context.Background(), WorkResult{WorkUnitID: units[1].ID, Success: false})

	progress := job.Progress()
	p, ok := progress["openrouter"]
	if !ok {
		t.Fatal("expected progress entry for openrouter")
	}
	if p.TotalExpected != 4 {
		t.Errorf("TotalExpected = %d, want 4", p.TotalExpected)
	}
	if p.Completed != 1 {
		t.Errorf("Completed = %d, want 1", p.Completed)
	}
	if p.Failed != 1 {
		t.Errorf("Failed = %d, want 1", p.Failed)
	}
	if p.Queued != 2 {
		t.Errorf("Queued = %d, want 2", p.Queued)
	}
}

func TestNewRecord(t *testing.T) {
	metadata := map[string]any{"session_id": "bae-123"}
	record := NewRecord("extract_session", metadata)

	if record.JobType != "extract_session" {
		t.Errorf("JobType = %s, want extract_session", record.JobType)
	}
	if record.Status != StatusQueued {
		t.Errorf("Status = %s, want queued", record.Status)
	}
	if record.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if record.Metadata["session_id"] != "bae-123" {
		t.Error("metadata not preserved")
	}
}
