package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/extract"
	"github.com/shyim/lighthouse-report/internal/failure"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Merge every Lighthouse report into the summary file",
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().String("output-dir", "", "directory holding the raw Lighthouse reports")
	extractCmd.Flags().String("summary-file", "", "aggregated summary file")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	failures := &failure.Report{}
	records, err := extract.New(cfg.Paths.OutputRoot, cfg.Paths.SummaryFile, logger, failures).Run()
	if err != nil {
		var fe *failure.Error
		if !errors.As(err, &fe) {
			return fatal(err)
		}
		failures.Add(fe)
		logger.Warn("no reports to extract", "dir", cfg.Paths.OutputRoot)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, labelStyle.Render("Records")+fmt.Sprint(len(records)))
	fmt.Fprintln(out, labelStyle.Render("Summary")+cfg.Paths.SummaryFile)
	printFailures(out, failures)
	return strictCheck(failures)
}
