package summary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
)

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", DefaultPath)

	first := []models.MetricsRecord{{URL: "https://a.example/"}, {URL: "https://b.example/"}}
	if err := Write(path, first); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Write(path, []models.MetricsRecord{{URL: "https://c.example/"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://c.example/" {
		t.Fatalf("expected replaced content got %+v", got)
	}
}

func TestResetWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	if err := Reset(path); err != nil {
		t.Fatalf("reset: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected [] got %q", data)
	}
}

func TestReadMissing(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	if !failure.Is(err, failure.MissingArtifact) {
		t.Fatalf("expected missing-artifact got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice got %v", got)
	}
}
