package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/antoniostano/prefview/internal/config"
)

func TestBuildServesDatasetFromFile(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "pairs.jsonl")
	line := `{"source":"s","prompt":"p","chosen":[{"role":"user","content":"a"}],"rejected":[{"role":"user","content":"b"}]}` + "\n"
	if err := os.WriteFile(dataPath, []byte(line), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	cfg := config.Config{
		MetricsNamespace:  "test_app",
		DatasetPath:       dataPath,
		AnnotationBackend: "file",
		AnnotationPath:    filepath.Join(dir, "annotations.json"),
		DiffCacheSize:     4,
		DiffContextLines:  3,
	}
	res, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Dataset.Len() != 1 {
		t.Fatalf("Dataset.Len() = %d, want 1", res.Dataset.Len())
	}
	if res.Repository.Mode() != "file" {
		t.Fatalf("Repository.Mode() = %q, want file", res.Repository.Mode())
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	viewed, err := http.Post(ts.URL+"/v1/records/0/viewed?user=alice", "application/json", nil)
	if err != nil {
		t.Fatalf("POST viewed error = %v", err)
	}
	viewed.Body.Close()
	if viewed.StatusCode != http.StatusOK {
		t.Fatalf("POST viewed status = %d, want %d", viewed.StatusCode, http.StatusOK)
	}
	if _, err := os.Stat(cfg.AnnotationPath); err != nil {
		t.Fatalf("annotation file not written: %v", err)
	}
}

func TestBuildFailsWithoutDataset(t *testing.T) {
	cfg := config.Config{MetricsNamespace: "test_app_missing", AnnotationBackend: "memory"}
	if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("Build() error = nil, want error")
	}
}
