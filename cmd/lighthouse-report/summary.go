package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/report"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Render the summary file as a table in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := readSummary()
		if err != nil {
			return err
		}
		width, _ := cmd.Flags().GetInt("width")
		rendered, err := renderMarkdown(report.Markdown(records), width)
		if err != nil {
			return fatal(err)
		}
		fmt.Fprint(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	summaryCmd.Flags().String("summary-file", "", "aggregated summary file")
	summaryCmd.Flags().Int("width", 120, "word wrap width")
}

func renderMarkdown(md string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return renderer.Render(md)
}
