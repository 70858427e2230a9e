// Package collector runs one form factor pass over a URL list.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/lighthouse"
	"github.com/shyim/lighthouse-report/internal/models"
)

// ReportFileName is the name of the report inside each per-URL directory.
const ReportFileName = "lhr.json"

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Sanitize strips every character that is not a word character or
// whitespace, so "https://example.com/" becomes "httpsexamplecom".
func Sanitize(url string) string {
	return nonWord.ReplaceAllString(url, "")
}

// ReportPath returns the isolated report location for the i-th URL of a pass.
func ReportPath(root string, ff lighthouse.FormFactor, i int, url string) string {
	slug := Sanitize(url)
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "url"
	}
	return filepath.Join(root, string(ff), fmt.Sprintf("%03d-%s", i, slug), ReportFileName)
}

// MetricsPath returns the individual metrics file for a URL and form factor.
func MetricsPath(dir string, ff lighthouse.FormFactor, url string) string {
	return filepath.Join(dir, fmt.Sprintf("metrics_%s_%s.json", ff, Sanitize(url)))
}

// Collector invokes the runner for every URL of a pass.
type Collector struct {
	runner     lighthouse.Runner
	outputRoot string
	metricsDir string
	logger     *log.Logger
	failures   *failure.Report
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates a collector writing reports below outputRoot and individual
// metrics files into metricsDir.
func New(runner lighthouse.Runner, outputRoot, metricsDir string, logger *log.Logger, failures *failure.Report) *Collector {
	if failures == nil {
		failures = &failure.Report{}
	}
	return &Collector{
		runner:     runner,
		outputRoot: outputRoot,
		metricsDir: metricsDir,
		logger:     logger,
		failures:   failures,
		tracer:     otel.Tracer("github.com/shyim/lighthouse-report/internal/collector"),
		now:        time.Now,
	}
}

// Collect audits urls sequentially with the given settings and returns one
// record per successful audit in input order. A failing URL is recorded as a
// partial-collection failure and skipped.
func (c *Collector) Collect(ctx context.Context, urls []string, settings lighthouse.Settings) ([]models.MetricsRecord, error) {
	ff := settings.FormFactor
	ctx, span := c.tracer.Start(ctx, "collector.pass", trace.WithAttributes(
		attribute.String("lighthouse.form_factor", string(ff)),
		attribute.Int("lighthouse.url_count", len(urls)),
	))
	defer span.End()

	passDir := filepath.Join(c.outputRoot, string(ff))
	if err := os.RemoveAll(passDir); err != nil {
		return nil, fmt.Errorf("reset %s: %w", passDir, err)
	}
	if err := os.MkdirAll(passDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", passDir, err)
	}
	if c.metricsDir != "" {
		if err := os.MkdirAll(c.metricsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", c.metricsDir, err)
		}
	}

	c.logger.Info("starting lighthouse collection", "formFactor", ff, "urls", len(urls))

	records := make([]models.MetricsRecord, 0, len(urls))
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return records, err
		}

		rec, err := c.collectOne(ctx, i, url, settings)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			c.failures.Add(failure.New(failure.PartialCollection, "audit "+string(ff), url, err))
			c.logger.Error("lighthouse collection failed", "url", url, "formFactor", ff, "error", err)
			continue
		}
		records = append(records, rec)
	}

	c.logger.Info("lighthouse collection finished", "formFactor", ff, "collected", len(records), "failed", len(urls)-len(records))
	return records, nil
}

func (c *Collector) collectOne(ctx context.Context, i int, url string, settings lighthouse.Settings) (models.MetricsRecord, error) {
	ctx, span := c.tracer.Start(ctx, "collector.audit", trace.WithAttributes(
		attribute.String("url.full", url),
		attribute.String("lighthouse.form_factor", string(settings.FormFactor)),
	))
	defer span.End()

	out := ReportPath(c.outputRoot, settings.FormFactor, i, url)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return models.MetricsRecord{}, fmt.Errorf("create output dir: %w", err)
	}

	c.logger.Info("running lighthouse", "url", url, "formFactor", settings.FormFactor)
	if err := c.runner.Run(ctx, lighthouse.Request{URL: url, Settings: settings, OutputPath: out}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit failed")
		return models.MetricsRecord{}, err
	}

	rec, err := c.process(out, url, settings.FormFactor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "report unreadable")
		return models.MetricsRecord{}, err
	}
	span.SetAttributes(attribute.Float64("lighthouse.performance", rec.Categories.Performance))
	return rec, nil
}

func (c *Collector) process(path, url string, ff lighthouse.FormFactor) (models.MetricsRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.MetricsRecord{}, fmt.Errorf("read report: %w", err)
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return models.MetricsRecord{}, fmt.Errorf("parse report: %w", err)
	}

	rel, err := filepath.Rel(c.outputRoot, path)
	if err != nil {
		rel = path
	}
	timestamp := c.now().UTC().Format(time.RFC3339)
	rec := report.ToRecord(filepath.ToSlash(rel), timestamp)

	if c.metricsDir != "" {
		individual := models.IndividualMetrics{
			Timestamp:  timestamp,
			URL:        url,
			FormFactor: string(ff),
			ReportFile: rec.ReportFile,
			Categories: make(map[string]models.IndividualCategory, len(report.Categories)),
			Audits:     rec.Audits,
		}
		for id, cat := range report.Categories {
			if cat == nil {
				continue
			}
			individual.Categories[id] = models.IndividualCategory{Title: cat.Title, Score: report.Score(id)}
		}
		if err := writeJSON(MetricsPath(c.metricsDir, ff, url), individual); err != nil {
			return models.MetricsRecord{}, err
		}
		c.logger.Debug("metrics logged", "file", MetricsPath(c.metricsDir, ff, url))
	}
	return rec, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
