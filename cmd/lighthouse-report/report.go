package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/metadata"
	"github.com/shyim/lighthouse-report/internal/models"
	"github.com/shyim/lighthouse-report/internal/report"
	"github.com/shyim/lighthouse-report/internal/summary"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a report from the summary file",
}

var reportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write the CSV report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := readSummary()
		if err != nil {
			return err
		}
		path, err := report.NewCSV(cfg.Paths.ResultsDir, logger).Generate(records)
		if err != nil {
			return fatal(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("CSV")+path)
		return nil
	},
}

var reportHTMLCmd = &cobra.Command{
	Use:   "html",
	Short: "Write the HTML report using the resolved metadata file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := readSummary()
		if err != nil {
			return err
		}
		meta, err := metadata.Load(metadataOutput())
		if err != nil {
			if !failure.Is(err, failure.MissingArtifact) {
				return fatal(err)
			}
			logger.Warn("metadata file missing, using defaults", "file", metadataOutput())
		}

		html, err := report.NewHTML(report.HTMLOptions{
			Dir:          cfg.Paths.HTMLDir,
			LogoPath:     cfg.Report.LogoPath,
			Organisation: cfg.Report.Organisation,
		}, logger)
		if err != nil {
			return fatal(err)
		}
		path, err := html.Generate(records, meta)
		if err != nil {
			return fatal(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("HTML")+path)
		return nil
	},
}

var reportMarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Print the Markdown table and append it to the GitHub job summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := readSummary()
		if err != nil {
			return err
		}
		md := report.Markdown(records)
		written, err := report.AppendStepSummary(md)
		if err != nil {
			return fatal(err)
		}
		if written {
			logger.Info("job summary written", "env", report.StepSummaryEnv)
		}
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	reportCmd.PersistentFlags().String("summary-file", "", "aggregated summary file")
	reportCSVCmd.Flags().String("results-dir", "", "directory receiving the CSV report")
	reportHTMLCmd.Flags().String("html-dir", "", "directory receiving the HTML report")
	reportHTMLCmd.Flags().String("logo", "", "logo image embedded in the HTML report")
	reportHTMLCmd.Flags().String("organisation", "", "organisation line of the HTML report")

	reportCmd.AddCommand(reportCSVCmd)
	reportCmd.AddCommand(reportHTMLCmd)
	reportCmd.AddCommand(reportMarkdownCmd)
}

// readSummary treats a missing summary file as an empty run.
func readSummary() ([]models.MetricsRecord, error) {
	records, err := summary.Read(cfg.Paths.SummaryFile)
	if err != nil {
		if !failure.Is(err, failure.MissingArtifact) {
			return nil, fatal(err)
		}
		logger.Warn("summary file missing, report will be empty", "file", cfg.Paths.SummaryFile)
	}
	return records, nil
}
