package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shyim/lighthouse-report/internal/metadata"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Resolve the project metadata and write the hand-off file",
	Long: `Resolves every metadata key from, in decreasing precedence, its own
environment variable (PROJECT_NAME, CLIENT, PROJECT_MANAGER, QA_MANAGER,
EXPECTED_LOAD_TIME), the LIGHTHOUSE_METADATA JSON object, the input file and
the defaults, then writes the result for "report html".`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		meta, err := metadata.Resolve(cfg.Paths.MetadataInput, logger)
		if err != nil {
			return fatal(err)
		}
		out := metadataOutput()
		if err := metadata.Save(out, meta); err != nil {
			return fatal(err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, titleStyle.Render("Metadata")+subtitleStyle.Render(" "+out))
		fmt.Fprintln(w, labelStyle.Render("Project")+meta.ProjectName)
		fmt.Fprintln(w, labelStyle.Render("Client")+meta.Client)
		fmt.Fprintln(w, labelStyle.Render("PM")+meta.ProjectManager)
		fmt.Fprintln(w, labelStyle.Render("QA")+meta.QAManager)
		fmt.Fprintln(w, labelStyle.Render("Load time")+meta.ExpectedLoadTime)
		return nil
	},
}
