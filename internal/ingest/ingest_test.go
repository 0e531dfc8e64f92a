package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/shamayhq/nesach/internal/defra"
	"github.com/shamayhq/nesach/internal/home"
	"github.com/shamayhq/nesach/internal/jobs"
)

func TestDetectMediaType(t *testing.T) {
	pngMagic := []byte("\x89PNG\r\n\x1a\n")
	jpegMagic := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	tests := []struct {
		name     string
		filename string
		data     []byte
		expected string
	}{
		{"pdf extension", "nesach-6158-219.pdf", []byte("anything"), "application/pdf"},
		{"png extension", "scan.png", []byte("anything"), "image/png"},
		{"jpg extension", "scan.jpg", []byte("anything"), "image/jpeg"},
		{"jpeg extension", "scan.jpeg", []byte("anything"), "image/jpeg"},
		{"txt extension", "nesach.txt", []byte("anything"), "text/plain"},
		{"md extension", "nesach.md", []byte("anything"), "text/markdown"},
		{"markdown extension", "nesach.markdown", []byte("anything"), "text/markdown"},
		{"uppercase extension", "NESACH.PDF", []byte("anything"), "application/pdf"},
		{"pdf magic bytes", "download", []byte("%PDF-1.7 rest"), "application/pdf"},
		{"png magic bytes", "download", pngMagic, "image/png"},
		{"jpeg magic bytes", "download", jpegMagic, "image/jpeg"},
		{"unsupported extension", "nesach.docx", []byte("anything"), ""},
		{"no extension no magic", "download", []byte("plain bytes"), ""},
		{"empty data", "download", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectMediaType(tt.filename, tt.data)
			if got != tt.expected {
				t.Errorf("DetectMediaType(%q) = %q, want %q", tt.filename, got, tt.expected)
			}
		})
	}
}

// defraStub answers Session create/update mutations with a fixed docID.
func defraStub(t *testing.T, docID string) *defra.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(string(body), "create_Session"):
			w.Write([]byte(`{"data": {"create_Session": [{"_docID": "` + docID + `"}]}}`))
		case strings.Contains(string(body), "update_Session"):
			w.Write([]byte(`{"data": {"update_Session": [{"_docID": "` + docID + `"}]}}`))
		default:
			w.Write([]byte(`{"data": {}}`))
		}
	}))
	t.Cleanup(server.Close)
	return defra.NewClient(server.URL)
}

func TestIngest_TextDocument(t *testing.T) {
	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := defraStub(t, "bae-session-1")

	content := []byte("נסח רישום מפנקס הזכויות\nגוש 6158 חלקה 219\n")
	res, err := Ingest(context.Background(), client, homeDir, Request{
		Data:     content,
		Filename: "nesach.txt",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if res.SessionID != "bae-session-1" {
		t.Errorf("SessionID = %q, want bae-session-1", res.SessionID)
	}
	if res.MediaType != "text/plain" {
		t.Errorf("MediaType = %q, want text/plain", res.MediaType)
	}
	if !res.HasText {
		t.Error("HasText = false, want true")
	}
	if res.PageCount != 0 {
		t.Errorf("PageCount = %d, want 0 for text documents", res.PageCount)
	}

	// The original must live under the final session ID, not the provisional one
	stored, err := os.ReadFile(res.SourcePath)
	if err != nil {
		t.Fatalf("stored document missing: %v", err)
	}
	if string(stored) != string(content) {
		t.Error("stored document does not match upload")
	}
	if res.SourcePath != homeDir.OriginalPath("bae-session-1", "nesach.txt") {
		t.Errorf("SourcePath = %q not under session dir", res.SourcePath)
	}
}

func TestIngest_ImageDocument(t *testing.T) {
	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := defraStub(t, "bae-session-2")

	data := append([]byte("\x89PNG\r\n\x1a\n"), []byte("imagedata")...)
	res, err := Ingest(context.Background(), client, homeDir, Request{
		Data:     data,
		Filename: "scan.png",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if res.MediaType != "image/png" {
		t.Errorf("MediaType = %q, want image/png", res.MediaType)
	}
	if res.PageCount != 1 {
		t.Errorf("PageCount = %d, want 1", res.PageCount)
	}
	if res.HasText {
		t.Error("HasText = true, want false for images")
	}
}

func TestIngest_Rejections(t *testing.T) {
	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := defraStub(t, "bae-unused")

	tests := []struct {
		name string
		req  Request
	}{
		{"empty document", Request{Data: nil, Filename: "nesach.pdf"}},
		{"missing filename", Request{Data: []byte("data"), Filename: ""}},
		{"unsupported type", Request{Data: []byte("data"), Filename: "nesach.docx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Ingest(context.Background(), client, homeDir, tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRenderPageHandler_InvalidData(t *testing.T) {
	handler := RenderPageHandler()

	_, err := handler(context.Background(), &jobs.CPUWorkRequest{Data: 42})
	if err == nil {
		t.Fatal("expected error for non-request data")
	}
	if !strings.Contains(err.Error(), "invalid data type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRenderPageHandler_MapConversion(t *testing.T) {
	handler := RenderPageHandler()

	// JSON round-tripped form: the handler must rebuild the request and
	// reach the render step (which then fails on the missing file).
	_, err := handler(context.Background(), &jobs.CPUWorkRequest{Data: map[string]any{
		"PDFPath":    "/nonexistent/nesach.pdf",
		"PageNum":    float64(1),
		"OutputPath": t.TempDir() + "/page_0001.png",
	}})
	if err == nil {
		t.Fatal("expected render error for missing PDF")
	}
	if strings.Contains(err.Error(), "invalid data type") {
		t.Errorf("map form not converted: %v", err)
	}
}

func TestStorePageImage(t *testing.T) {
	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	path, err := StorePageImage(homeDir, "bae-session-3", data)
	if err != nil {
		t.Fatalf("StorePageImage() error = %v", err)
	}

	if path != homeDir.PageImagePath("bae-session-3", 1) {
		t.Errorf("path = %q, want page 1 path", path)
	}
	stored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("stored image missing: %v", err)
	}
	if len(stored) != len(data) {
		t.Error("stored image does not match input")
	}
}
