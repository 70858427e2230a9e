// Package pipeline runs one complete audit: both collection passes, a single
// aggregation, metadata resolution, the reports and the optional publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shyim/lighthouse-report/internal/collector"
	"github.com/shyim/lighthouse-report/internal/extract"
	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/lighthouse"
	"github.com/shyim/lighthouse-report/internal/metadata"
	"github.com/shyim/lighthouse-report/internal/metrics"
	"github.com/shyim/lighthouse-report/internal/models"
	"github.com/shyim/lighthouse-report/internal/report"
	"github.com/shyim/lighthouse-report/internal/storage"
	"github.com/shyim/lighthouse-report/internal/summary"
	"github.com/shyim/lighthouse-report/internal/telemetry"
)

type Options struct {
	OutputRoot     string
	MetricsDir     string
	SummaryFile    string
	ResultsDir     string
	MetadataInput  string
	MetadataOutput string
	HTML           report.HTMLOptions

	// Settings returns the Lighthouse settings for each pass.
	Settings func(lighthouse.FormFactor) lighthouse.Settings

	// StepSummary appends the Markdown table to $GITHUB_STEP_SUMMARY.
	StepSummary bool

	PushgatewayURL string
	PushJob        string
}

// Result describes a finished run.
type Result struct {
	ID        string
	Records   []models.MetricsRecord
	Metadata  metadata.ConfigData
	CSVPath   string
	HTMLPath  string
	Markdown  string
	Artifacts []string
	Failures  *failure.Report
	Duration  time.Duration
}

type Pipeline struct {
	runner    lighthouse.Runner
	opts      Options
	logger    *log.Logger
	publisher *storage.Publisher
	recorder  *metrics.Recorder
	failures  *failure.Report
	tracer    trace.Tracer
	now       func() time.Time
}

func New(runner lighthouse.Runner, opts Options, logger *log.Logger) *Pipeline {
	if opts.Settings == nil {
		opts.Settings = lighthouse.SettingsFor
	}
	if opts.SummaryFile == "" {
		opts.SummaryFile = summary.DefaultPath
	}
	if opts.MetadataOutput == "" {
		opts.MetadataOutput = metadata.DefaultOutputFile
	}
	return &Pipeline{
		runner: runner,
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("github.com/shyim/lighthouse-report/internal/pipeline"),
		now:    time.Now,
	}
}

// WithPublisher uploads the run's artifacts after the reports are written.
func (p *Pipeline) WithPublisher(publisher *storage.Publisher) *Pipeline {
	p.publisher = publisher
	return p
}

// WithMetrics records scores and failures on the recorder.
func (p *Pipeline) WithMetrics(recorder *metrics.Recorder) *Pipeline {
	p.recorder = recorder
	return p
}

// WithFailures collects the run's failures on report, which may already
// hold failures found while preparing the run.
func (p *Pipeline) WithFailures(report *failure.Report) *Pipeline {
	p.failures = report
	return p
}

// WithClock replaces the clock used for report names and timings.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run executes the pipeline for urls. An empty id gets a random one. Partial
// failures are collected in Result.Failures; the returned error is reserved
// for cancellation and failures that prevent any report from being written.
func (p *Pipeline) Run(ctx context.Context, id string, urls []string) (*Result, error) {
	if id == "" {
		id = uuid.NewString()
	}
	start := p.now()
	failures := p.failures
	if failures == nil {
		failures = &failure.Report{}
	}
	res := &Result{ID: id, Failures: failures}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("lighthouse.run_id", id),
		attribute.Int("lighthouse.url_count", len(urls)),
	))
	defer span.End()

	logger := p.logger.With("run", id)
	if len(urls) == 0 {
		err := failure.New(failure.FatalInput, "run", id, errors.New("no URLs to audit"))
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if err := p.collect(ctx, urls, res.Failures, logger); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if _, err := extract.New(p.opts.OutputRoot, p.opts.SummaryFile, logger, res.Failures).Run(); err != nil {
		var fe *failure.Error
		if !errors.As(err, &fe) {
			return res, err
		}
		res.Failures.Add(fe)
		logger.Warn("continuing without reports", "error", err)
	}

	if err := p.reports(res, logger); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if p.publisher != nil {
		artifacts, err := p.publish(ctx, res)
		res.Artifacts = artifacts
		if err != nil {
			res.Failures.Add(failure.New(failure.MissingArtifact, "publish", id, err))
			logger.Error("failed to publish artifacts", "error", err)
		}
	}

	res.Duration = p.now().Sub(start)
	for _, fe := range res.Failures.Errors() {
		telemetry.CaptureFailure(fe)
	}
	p.observe(ctx, res, logger)

	logger.Info("run finished",
		"records", len(res.Records),
		"failures", len(res.Failures.Errors()),
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// collect runs the desktop and mobile passes concurrently. Each pass has its
// own output namespace so they never touch the same files.
func (p *Pipeline) collect(ctx context.Context, urls []string, failures *failure.Report, logger *log.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ff := range lighthouse.FormFactors {
		settings := p.opts.Settings(ff)
		g.Go(func() error {
			c := collector.New(p.runner, p.opts.OutputRoot, p.opts.MetricsDir, logger, failures)
			_, err := c.Collect(gctx, urls, settings)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	return nil
}

func (p *Pipeline) reports(res *Result, logger *log.Logger) error {
	records, err := summary.Read(p.opts.SummaryFile)
	if err != nil {
		var fe *failure.Error
		if !errors.As(err, &fe) {
			return err
		}
		res.Failures.Add(fe)
		logger.Warn("summary missing, reports will be empty", "file", p.opts.SummaryFile)
	}
	res.Records = records

	meta, err := metadata.Resolve(p.opts.MetadataInput, logger)
	if err != nil {
		return err
	}
	if err := metadata.Save(p.opts.MetadataOutput, meta); err != nil {
		return err
	}
	// The HTML generator reads the hand-off file, not the in-memory value.
	if res.Metadata, err = metadata.Load(p.opts.MetadataOutput); err != nil {
		return err
	}

	if res.CSVPath, err = report.NewCSV(p.opts.ResultsDir, logger).WithClock(p.now).Generate(records); err != nil {
		return fmt.Errorf("csv report: %w", err)
	}

	html, err := report.NewHTML(p.opts.HTML, logger)
	if err != nil {
		return fmt.Errorf("html report: %w", err)
	}
	if res.HTMLPath, err = html.WithClock(p.now).Generate(records, res.Metadata); err != nil {
		return fmt.Errorf("html report: %w", err)
	}

	res.Markdown = report.Markdown(records)
	if p.opts.StepSummary {
		if ok, err := report.AppendStepSummary(res.Markdown); err != nil {
			logger.Warn("failed to write job summary", "error", err)
		} else if ok {
			logger.Debug("job summary written")
		}
	}
	return nil
}

// publish stages a bundle with the HTML report as index.html next to the
// other artifacts and the raw reports, then uploads it.
func (p *Pipeline) publish(ctx context.Context, res *Result) ([]string, error) {
	stage, err := os.MkdirTemp("", "lighthouse-bundle-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)

	copies := map[string]string{
		res.HTMLPath:          "index.html",
		res.CSVPath:           filepath.Base(res.CSVPath),
		p.opts.SummaryFile:    filepath.Base(p.opts.SummaryFile),
		p.opts.MetadataOutput: filepath.Base(p.opts.MetadataOutput),
	}
	for src, name := range copies {
		if err := copyFile(src, filepath.Join(stage, name)); err != nil {
			return nil, err
		}
	}
	if err := copyDir(p.opts.OutputRoot, filepath.Join(stage, "reports")); err != nil {
		return nil, err
	}
	if p.opts.MetricsDir != "" {
		if err := copyDir(p.opts.MetricsDir, filepath.Join(stage, "metrics")); err != nil {
			return nil, err
		}
	}

	files := []string{res.HTMLPath, res.CSVPath, p.opts.SummaryFile, p.opts.MetadataOutput}
	return p.publisher.Publish(ctx, res.ID, stage, files)
}

func (p *Pipeline) observe(ctx context.Context, res *Result, logger *log.Logger) {
	if p.recorder == nil {
		return
	}
	p.recorder.ObserveRecords(res.Records)
	p.recorder.ObserveFailures(res.Failures.Errors())
	p.recorder.ObserveRun(res.Duration, p.now())

	if p.opts.PushgatewayURL == "" {
		return
	}
	if err := p.recorder.Push(ctx, p.opts.PushgatewayURL, p.opts.PushJob); err != nil {
		logger.Warn("failed to push metrics", "gateway", p.opts.PushgatewayURL, "error", err)
		return
	}
	logger.Debug("metrics pushed", "gateway", p.opts.PushgatewayURL)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("stage %s: %w", src, err)
	}
	return os.WriteFile(dst, data, 0o644)
}

// copyDir copies src into dst; a missing src is skipped.
func copyDir(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		return fmt.Errorf("stage %s: %w", src, err)
	}
	return nil
}
