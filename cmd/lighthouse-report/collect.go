package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/collector"
	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/lighthouse"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Audit every URL for a single form factor",
	Long: `Runs one collection pass. Reports land in
<output-dir>/<form-factor>/<NNN>-<url>/lhr.json and one individual metrics
file per URL is written to the metrics directory. Run "extract" afterwards
to aggregate both passes.`,
	RunE: runCollect,
}

func init() {
	addURLFlags(collectCmd)
	addRunnerFlags(collectCmd)
	collectCmd.Flags().String("form-factor", string(lighthouse.Mobile), "desktop or mobile")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	name, _ := cmd.Flags().GetString("form-factor")
	ff, err := lighthouse.ParseFormFactor(name)
	if err != nil {
		return fatal(err)
	}
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

	records, err := collector.New(runner, cfg.Paths.OutputRoot, cfg.Paths.MetricsDir, logger, failures).
		Collect(ctx, list, cfg.Runner.Settings(ff))
	if err != nil {
		return fatal(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s pass", ff)))
	fmt.Fprintln(out, labelStyle.Render("Collected")+fmt.Sprintf("%d of %d", len(records), len(list)))
	printFailures(out, failures)
	return strictCheck(failures)
}
