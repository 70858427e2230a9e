package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/metrics"
	"github.com/shyim/lighthouse-report/internal/pipeline"
	"github.com/shyim/lighthouse-report/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Audit every URL for desktop and mobile and write all reports",
	Long: `Runs the complete pipeline: both collection passes in parallel, one
aggregation into the summary file, metadata resolution, the CSV, HTML and
Markdown reports and, when configured, the S3 upload and Pushgateway push.`,
	RunE: runPipeline,
}

func init() {
	addURLFlags(runCmd)
	addRunnerFlags(runCmd)
	runCmd.Flags().String("id", "", "result id used for uploaded artifacts (default random)")
	runCmd.Flags().String("summary-file", "", "aggregated summary file")
	runCmd.Flags().String("results-dir", "", "directory receiving the CSV report")
	runCmd.Flags().String("html-dir", "", "directory receiving the HTML report")
	runCmd.Flags().String("logo", "", "logo image embedded in the HTML report")
	runCmd.Flags().String("organisation", "", "organisation line of the HTML report")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	failures := &failure.Report{}
	list, err := resolveURLs(cmd, failures)
	if err != nil {
		return fatal(err)
	}

	shutdown := setupTelemetry(ctx)
	defer shutdown(ctx)

	runner, closeRunner, err := newRunner(ctx, cfg.Runner)
	if err != nil {
		return fatal(err)
	}
	defer closeRunner()

	p := pipeline.New(runner, pipelineOptions(), logger).
		WithMetrics(metrics.New()).
		WithFailures(failures)

	if svc := newStore(ctx, failures); svc != nil {
		p.WithPublisher(storage.NewPublisher(svc, logger))
	}

	id, _ := cmd.Flags().GetString("id")
	res, err := p.Run(ctx, id, list)
	if err != nil {
		return fatal(err)
	}

	printResult(cmd.OutOrStdout(), res)
	return strictCheck(res.Failures)
}

func strictCheck(failures *failure.Report) error {
	if !strict || failures.Empty() {
		return nil
	}
	return &ExitError{
		Code: exitPartial,
		Err:  fmt.Errorf("%d partial failure(s)", len(failures.Errors())),
	}
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, titleStyle.Render("Lighthouse run "+res.ID))
	fmt.Fprintln(w, labelStyle.Render("Records")+fmt.Sprint(len(res.Records)))
	fmt.Fprintln(w, labelStyle.Render("CSV")+res.CSVPath)
	fmt.Fprintln(w, labelStyle.Render("HTML")+res.HTMLPath)
	if len(res.Artifacts) > 0 {
		fmt.Fprintln(w, labelStyle.Render("Uploaded")+fmt.Sprintf("%d objects", len(res.Artifacts)))
	}
	fmt.Fprintln(w, labelStyle.Render("Duration")+res.Duration.String())
	printFailures(w, res.Failures)
}

func printFailures(w io.Writer, failures *failure.Report) {
	if failures.Empty() {
		fmt.Fprintln(w, successStyle.Render("✔ no failures"))
		return
	}
	fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("⚠ %d failure(s)", len(failures.Errors()))))
	for _, line := range failures.Strings() {
		fmt.Fprintln(w, "  "+errorStyle.Render("✗")+" "+line)
	}
}
