package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/config"
	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/lighthouse"
	"github.com/shyim/lighthouse-report/internal/metadata"
	"github.com/shyim/lighthouse-report/internal/pipeline"
	"github.com/shyim/lighthouse-report/internal/report"
	"github.com/shyim/lighthouse-report/internal/storage"
	"github.com/shyim/lighthouse-report/internal/telemetry"
	"github.com/shyim/lighthouse-report/internal/urls"
)

// newRunner builds the configured runner backend. The returned close func is
// never nil.
func newRunner(ctx context.Context, rc config.RunnerConfig) (lighthouse.Runner, func(), error) {
	noop := func() {}
	switch rc.Kind {
	case config.RunnerDocker:
		r, err := lighthouse.NewDockerRunner(rc.DockerHost, rc.Image, rc.Options(), logger)
		if err != nil {
			return nil, noop, err
		}
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, noop, err
		}
		return r, func() { r.Close() }, nil
	case config.RunnerKubernetes:
		r, err := lighthouse.NewJobRunner(rc.Namespace, rc.Image, rc.Options(), logger)
		if err != nil {
			return nil, noop, err
		}
		return r, noop, nil
	default:
		return lighthouse.NewExecRunner(rc.Bin, rc.Options(), logger), noop, nil
	}
}

// newStore returns nil when no S3 endpoint is configured. A store that cannot
// be set up is recorded as a missing artifact and the run continues without
// uploads.
func newStore(ctx context.Context, failures *failure.Report) *storage.Service {
	settings := cfg.Storage.Settings()
	if !settings.Enabled() {
		return nil
	}
	svc, err := storage.NewService(ctx, settings)
	if err == nil {
		err = svc.EnsureBucket(ctx)
	}
	if err != nil {
		failures.Add(failure.New(failure.MissingArtifact, "initialize storage", settings.Bucket, err))
		logger.Error("storage unavailable, artifacts will not be uploaded", "bucket", settings.Bucket, "error", err)
		return nil
	}
	return svc
}

func setupTelemetry(ctx context.Context) telemetry.Shutdown {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Settings(Version), logger)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		OutputRoot:     cfg.Paths.OutputRoot,
		MetricsDir:     cfg.Paths.MetricsDir,
		SummaryFile:    cfg.Paths.SummaryFile,
		ResultsDir:     cfg.Paths.ResultsDir,
		MetadataInput:  cfg.Paths.MetadataInput,
		MetadataOutput: cfg.Paths.MetadataOutput,
		HTML: report.HTMLOptions{
			Dir:          cfg.Paths.HTMLDir,
			LogoPath:     cfg.Report.LogoPath,
			Organisation: cfg.Report.Organisation,
		},
		Settings:       cfg.Runner.Settings,
		StepSummary:    true,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		PushJob:        cfg.Metrics.Job,
	}
}

func addURLFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("urls", nil, "URLs to audit (default from "+urls.EnvVar+")")
	cmd.Flags().String("url-file", "", "file with one URL per line, or a CSV with URLs in the first column")
}

func addRunnerFlags(cmd *cobra.Command) {
	cmd.Flags().String("runner", "", "runner backend: exec, docker or kubernetes")
	cmd.Flags().Duration("timeout", 0, "timeout for a single audit")
	cmd.Flags().StringSlice("extra-flag", nil, "extra flag passed to lighthouse (repeatable)")
	cmd.Flags().String("output-dir", "", "directory receiving the raw Lighthouse reports")
	cmd.Flags().String("metrics-dir", "", "directory receiving the individual metrics files")
}

// resolveURLs applies the source precedence: --urls, then the URL file, then
// TESTFILES_LIST. Invalid entries are recorded and skipped.
func resolveURLs(cmd *cobra.Command, failures *failure.Report) ([]string, error) {
	explicit, _ := cmd.Flags().GetStringSlice("urls")
	src := urls.FromEnv()
	src.URLs = explicit
	src.File = cfg.Paths.URLFile

	list, err := src.Resolve()
	if err != nil {
		return nil, err
	}
	valid, invalid, err := urls.Partition(list)
	for _, fe := range invalid {
		failures.Add(fe)
		logger.Error("skipping invalid url", "url", fe.Resource, "error", fe.Err)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved urls", "count", len(valid), "skipped", len(invalid))
	return valid, nil
}

func metadataOutput() string {
	if cfg.Paths.MetadataOutput != "" {
		return cfg.Paths.MetadataOutput
	}
	return metadata.DefaultOutputFile
}
