package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/lighthouse"
	"github.com/shyim/lighthouse-report/internal/metadata"
	"github.com/shyim/lighthouse-report/internal/metrics"
	"github.com/shyim/lighthouse-report/internal/report"
	"github.com/shyim/lighthouse-report/internal/storage"
)

type fakeRunner struct {
	mu       sync.Mutex
	fail     map[string]bool
	settings map[lighthouse.FormFactor]lighthouse.Settings
}

func (f *fakeRunner) Run(ctx context.Context, req lighthouse.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if f.settings == nil {
		f.settings = map[lighthouse.FormFactor]lighthouse.Settings{}
	}
	f.settings[req.Settings.FormFactor] = req.Settings
	f.mu.Unlock()

	if f.fail[req.URL] {
		return errors.New("navigation timeout")
	}
	score := 0.95
	if req.Settings.FormFactor == lighthouse.Mobile {
		score = 0.80
	}
	lhr := fmt.Sprintf(`{"requestedUrl":%q,"configSettings":{"formFactor":%q},
		"categories":{"performance":{"score":%v},"seo":{"score":0.9},"accessibility":{"score":0.85}},
		"audits":{"largest-contentful-paint":{"displayValue":"1.0 s"}}}`, req.URL, req.Settings.FormFactor, score)
	return os.WriteFile(req.OutputPath, []byte(lhr), 0o644)
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) UploadFile(_ context.Context, key, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) DownloadFile(_ context.Context, key, destinationPath string) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return storage.ErrNotFound
	}
	return os.WriteFile(destinationPath, data, 0o644)
}

func (m *memStore) DeletePrefix(context.Context, string) (int, error) { return 0, nil }

func clearMetadataEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PROJECT_NAME", "CLIENT", "PROJECT_MANAGER", "QA_MANAGER", "EXPECTED_LOAD_TIME", metadata.StructuredEnv} {
		t.Setenv(k, "")
	}
}

func testOptions(dir string) Options {
	return Options{
		OutputRoot:     filepath.Join(dir, ".lighthouseci"),
		MetricsDir:     filepath.Join(dir, "metrics"),
		SummaryFile:    filepath.Join(dir, "lhci-summary.json"),
		ResultsDir:     filepath.Join(dir, "results"),
		MetadataInput:  filepath.Join(dir, "config.json"),
		MetadataOutput: filepath.Join(dir, "githubconfigsFile.json"),
		HTML:           report.HTMLOptions{Dir: filepath.Join(dir, "html")},
		StepSummary:    true,
	}
}

func TestRun(t *testing.T) {
	clearMetadataEnv(t)
	t.Setenv("PROJECT_NAME", "Storefront")
	dir := t.TempDir()
	stepSummary := filepath.Join(dir, "step-summary.md")
	t.Setenv(report.StepSummaryEnv, stepSummary)

	var pushed int
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed++
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	opts := testOptions(dir)
	opts.PushgatewayURL = gateway.URL

	runner := &fakeRunner{fail: map[string]bool{"https://broken.example/": true}}
	store := &memStore{}
	p := New(runner, opts, log.New(io.Discard)).
		WithPublisher(storage.NewPublisher(store, log.New(io.Discard))).
		WithMetrics(metrics.New()).
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) })

	res, err := p.Run(context.Background(), "run-1", []string{"https://a.example/", "https://broken.example/", "https://b.example/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(res.Records) != 4 {
		t.Fatalf("expected 4 records got %d", len(res.Records))
	}
	if n := res.Failures.Count(failure.PartialCollection); n != 2 {
		t.Fatalf("expected 2 partial-collection failures got %v", res.Failures.Strings())
	}
	if runner.settings[lighthouse.Desktop].Preset != "desktop" || runner.settings[lighthouse.Mobile].Preset != "" {
		t.Fatalf("expected per form factor settings got %+v", runner.settings)
	}

	csv, err := os.ReadFile(res.CSVPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(csv), "https://a.example/,95.00%,90.00%,85.00%,1.0 s,N/A,N/A,N/A,N/A,Yes,No,95.00%,80.00%") {
		t.Fatalf("unexpected csv:\n%s", csv)
	}

	html, err := os.ReadFile(res.HTMLPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(html), "Storefront") || !strings.Contains(string(html), "DefaultClient") {
		t.Fatalf("expected resolved metadata in html")
	}

	if _, err := os.Stat(opts.MetadataOutput); err != nil {
		t.Fatalf("expected hand-off file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.MetricsDir, "metrics_mobile_httpsaexamplecom.json")); err != nil {
		t.Fatalf("expected individual metrics file: %v", err)
	}

	md, err := os.ReadFile(stepSummary)
	if err != nil || !strings.Contains(string(md), "| https://b.example/ | mobile |") {
		t.Fatalf("expected job summary, got %q (%v)", md, err)
	}

	if len(res.Artifacts) != 5 || res.Artifacts[len(res.Artifacts)-1] != storage.BundleKey("run-1") {
		t.Fatalf("unexpected artifacts %v", res.Artifacts)
	}
	bundle := filepath.Join(t.TempDir(), "bundle.zip")
	if err := store.DownloadFile(context.Background(), storage.BundleKey("run-1"), bundle); err != nil {
		t.Fatalf("download bundle: %v", err)
	}
	archive, err := zip.OpenReader(bundle)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer archive.Close()
	names := map[string]bool{}
	for _, f := range archive.File {
		names[f.Name] = true
	}
	for _, want := range []string{"index.html", "lhci-summary.json", "githubconfigsFile.json", "reports/desktop/000-httpsaexamplecom/lhr.json", "metrics/metrics_desktop_httpsbexamplecom.json"} {
		if !names[want] {
			t.Fatalf("expected %s in bundle, got %v", want, names)
		}
	}

	if pushed != 1 {
		t.Fatalf("expected one metrics push got %d", pushed)
	}
}

func TestRunWithoutURLs(t *testing.T) {
	_, err := New(&fakeRunner{}, testOptions(t.TempDir()), log.New(io.Discard)).Run(context.Background(), "", nil)
	if !failure.Is(err, failure.FatalInput) {
		t.Fatalf("expected fatal-input got %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	clearMetadataEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(&fakeRunner{}, testOptions(t.TempDir()), log.New(io.Discard)).Run(ctx, "", []string{"https://a.example/"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled got %v", err)
	}
	if res.ID == "" {
		t.Fatalf("expected generated run id")
	}
}

func TestRunAllAuditsFail(t *testing.T) {
	clearMetadataEnv(t)
	dir := t.TempDir()
	runner := &fakeRunner{fail: map[string]bool{"https://a.example/": true}}

	res, err := New(runner, testOptions(dir), log.New(io.Discard)).Run(context.Background(), "x", []string{"https://a.example/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Records) != 0 || res.Failures.Count(failure.MissingArtifact) != 1 {
		t.Fatalf("expected empty records and a missing-artifact failure, got %d %v", len(res.Records), res.Failures.Strings())
	}
	csv, err := os.ReadFile(res.CSVPath)
	if err != nil || strings.Count(string(csv), "\n") != 1 {
		t.Fatalf("expected header-only csv got %q (%v)", csv, err)
	}
}

func TestRunKeepsPreparedFailures(t *testing.T) {
	clearMetadataEnv(t)
	t.Setenv(report.StepSummaryEnv, "")

	prepared := &failure.Report{}
	prepared.Add(failure.New(failure.PartialCollection, "validate url", "not-a-url", errors.New("invalid URL")))

	res, err := New(&fakeRunner{}, testOptions(t.TempDir()), log.New(io.Discard)).
		WithFailures(prepared).
		Run(context.Background(), "x", []string{"https://a.example/"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Failures != prepared {
		t.Fatalf("expected run to collect on the prepared report")
	}
	if n := res.Failures.Count(failure.PartialCollection); n != 1 {
		t.Fatalf("expected the prepared failure to survive, got %v", res.Failures.Strings())
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records got %d", len(res.Records))
	}
}
