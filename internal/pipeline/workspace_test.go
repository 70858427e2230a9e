package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/report"
	"github.com/shyim/lighthouse-report/internal/storage"
)

func TestOptionsUnder(t *testing.T) {
	opts := Options{
		OutputRoot:     ".lighthouseci",
		SummaryFile:    "/abs/lhci-summary.json",
		ResultsDir:     "results",
		MetadataInput:  "config.json",
		MetadataOutput: "githubconfigsFile.json",
	}.Under("/work/run-1")

	if opts.OutputRoot != filepath.Join("/work/run-1", ".lighthouseci") {
		t.Fatalf("expected rebased output root got %q", opts.OutputRoot)
	}
	if opts.SummaryFile != "/abs/lhci-summary.json" {
		t.Fatalf("expected absolute path untouched got %q", opts.SummaryFile)
	}
	if opts.MetricsDir != "" {
		t.Fatalf("expected empty path untouched got %q", opts.MetricsDir)
	}
	if opts.MetadataInput != "config.json" {
		t.Fatalf("expected metadata input shared across runs got %q", opts.MetadataInput)
	}
	if opts.HTML.Dir != "/work/run-1" {
		t.Fatalf("expected html dir to default to the run dir got %q", opts.HTML.Dir)
	}
}

func TestWorkspaceRun(t *testing.T) {
	clearMetadataEnv(t)
	t.Setenv(report.StepSummaryEnv, filepath.Join(t.TempDir(), "summary.md"))
	root := t.TempDir()
	store := &memStore{}

	opts := Options{
		OutputRoot:     ".lighthouseci",
		MetricsDir:     "metrics",
		SummaryFile:    "lhci-summary.json",
		ResultsDir:     "results",
		MetadataOutput: "githubconfigsFile.json",
		StepSummary:    true,
	}
	ws := NewWorkspace(root, &fakeRunner{}, opts, storage.NewPublisher(store, log.New(io.Discard)), nil, log.New(io.Discard))

	if _, err := ws.Run(context.Background(), "../escape", []string{"https://a.example/"}); err == nil {
		t.Fatalf("expected invalid id to be rejected")
	}

	res, err := ws.Run(context.Background(), "run-1", []string{"https://a.example/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records got %d", len(res.Records))
	}
	if !strings.HasPrefix(res.HTMLPath, filepath.Join(root, "run-1")) {
		t.Fatalf("expected html below the run dir got %q", res.HTMLPath)
	}
	if _, ok := store.objects[storage.BundleKey("run-1")]; !ok {
		t.Fatalf("expected bundle upload, got keys %v", len(store.objects))
	}
	if _, err := os.Stat(filepath.Join(root, "run-1")); !os.IsNotExist(err) {
		t.Fatalf("expected run dir removed, got %v", err)
	}
	if _, err := os.Stat(os.Getenv(report.StepSummaryEnv)); !os.IsNotExist(err) {
		t.Fatalf("expected no job summary in server mode, got %v", err)
	}
}
