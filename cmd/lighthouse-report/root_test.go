package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
	"github.com/shyim/lighthouse-report/internal/summary"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := fatal(inner)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFatal {
		t.Fatalf("expected exit code %d got %v", exitFatal, err)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped error")
	}
	if (&ExitError{Code: 3}).Error() != "exit status 3" {
		t.Fatalf("unexpected message %q", (&ExitError{Code: 3}).Error())
	}
}

func TestStrictCheck(t *testing.T) {
	failures := &failure.Report{}
	failures.Add(failure.New(failure.PartialCollection, "audit", "https://a.example/", errors.New("timeout")))

	strict = false
	if err := strictCheck(failures); err != nil {
		t.Fatalf("expected no error without --strict, got %v", err)
	}

	strict = true
	defer func() { strict = false }()
	var exitErr *ExitError
	if err := strictCheck(failures); !errors.As(err, &exitErr) || exitErr.Code != exitPartial {
		t.Fatalf("expected exit code %d got %v", exitPartial, err)
	}
	if err := strictCheck(&failure.Report{}); err != nil {
		t.Fatalf("expected no error without failures, got %v", err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Setenv("S3_SECRET_KEY", "topsecret")
	t.Setenv("AUTH_TOKEN", "token123")

	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "topsecret") || strings.Contains(out, "token123") {
		t.Fatalf("expected secrets to be masked, got %s", out)
	}
	if !strings.Contains(out, "********") {
		t.Fatalf("expected masked values in %s", out)
	}
}

func TestReportCSVCommand(t *testing.T) {
	dir := t.TempDir()
	summaryPath := filepath.Join(dir, summary.DefaultPath)
	records := []models.MetricsRecord{{
		URL:     "https://a.example/",
		RunType: models.RunTypeDesktop,
		Categories: models.Categories{
			Performance: 0.95,
		},
	}}
	if err := summary.Write(summaryPath, records); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	results := filepath.Join(dir, "results")

	out, err := execute(t, "report", "csv", "--summary-file", summaryPath, "--results-dir", results)
	if err != nil {
		t.Fatalf("report csv: %v", err)
	}

	entries, err := os.ReadDir(results)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one csv file got %v (%v)", entries, err)
	}
	if !strings.Contains(out, entries[0].Name()) {
		t.Fatalf("expected output to name %s, got %s", entries[0].Name(), out)
	}
	data, err := os.ReadFile(filepath.Join(results, entries[0].Name()))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(data), "https://a.example/,95.00%") {
		t.Fatalf("unexpected csv %s", data)
	}
}

func TestRunWithoutURLsIsFatal(t *testing.T) {
	t.Setenv("TESTFILES_LIST", "")
	t.Chdir(t.TempDir())

	_, err := execute(t, "run")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFatal {
		t.Fatalf("expected exit code %d got %v", exitFatal, err)
	}
	if !failure.Is(err, failure.FatalInput) {
		t.Fatalf("expected fatal-input failure got %v", err)
	}
}

func isolatedRun(t *testing.T, list string) {
	t.Helper()
	t.Setenv("TESTFILES_LIST", list)
	t.Setenv("LIGHTHOUSE_RUNNER", "exec")
	t.Setenv("LIGHTHOUSE_BIN", filepath.Join(t.TempDir(), "missing-lighthouse"))
	t.Setenv("GITHUB_STEP_SUMMARY", "")
	t.Setenv("PUSHGATEWAY_URL", "")
	t.Setenv("S3_SERVICE_URL", "")
	t.Setenv("S3_ACCESS_KEY", "")
	t.Setenv("S3_SECRET_KEY", "")
	t.Chdir(t.TempDir())
}

func TestRunSkipsInvalidURLs(t *testing.T) {
	isolatedRun(t, "https://a.example/ not-a-url")

	out, err := execute(t, "run")
	if err != nil {
		t.Fatalf("expected run to continue past invalid url, got %v", err)
	}
	if !strings.Contains(out, "partial-collection: validate url not-a-url") {
		t.Fatalf("expected invalid url to be reported, got %s", out)
	}
	if !strings.Contains(out, "https://a.example/") {
		t.Fatalf("expected valid url to be audited, got %s", out)
	}
}

func TestRunWithOnlyInvalidURLsIsFatal(t *testing.T) {
	isolatedRun(t, "not-a-url ftp://a.example/")

	_, err := execute(t, "run")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFatal {
		t.Fatalf("expected exit code %d got %v", exitFatal, err)
	}
}

func TestRunWithUnreachableStorage(t *testing.T) {
	isolatedRun(t, "https://a.example/")
	t.Setenv("S3_SERVICE_URL", "http://127.0.0.1:1")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("AWS_MAX_ATTEMPTS", "1")

	out, err := execute(t, "run")
	if err != nil {
		t.Fatalf("expected run to continue without storage, got %v", err)
	}
	if !strings.Contains(out, "missing-artifact: initialize storage") {
		t.Fatalf("expected storage failure to be reported, got %s", out)
	}
	if strings.Contains(out, "Uploaded") {
		t.Fatalf("expected no uploads, got %s", out)
	}
}
