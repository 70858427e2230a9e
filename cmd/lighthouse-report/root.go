package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shyim/lighthouse-report/internal/config"
)

var (
	// Version is set via -ldflags.
	Version = "dev"
	// Commit is set via -ldflags.
	Commit = "unknown"

	cfgFile string
	verbose bool
	strict  bool

	cfg *config.Config

	logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "lighthouse"})

	rootCmd = &cobra.Command{
		Use:   "lighthouse-report",
		Short: "Run Lighthouse audits and aggregate them into CSV, HTML and Markdown reports",
		Long: titleStyle.Render("lighthouse-report") + subtitleStyle.Render(" - Lighthouse audits for CI pipelines") + `

Audits every URL for the desktop and mobile form factors, merges the
results into lhci-summary.json and renders CSV, HTML and Markdown reports.

` + subtitleStyle.Render("Examples:") + `
  lighthouse-report run --urls https://example.com
  TESTFILES_LIST="https://a.example https://b.example" lighthouse-report run
  lighthouse-report collect --form-factor mobile --url-file urls.csv
  lighthouse-report report html
  lighthouse-report serve --port 8080`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// flagKeys maps config keys to the flags that override them. Commands that do
// not define a flag simply skip the binding.
var flagKeys = map[string]string{
	"paths.url_file":      "url-file",
	"paths.output_root":   "output-dir",
	"paths.metrics_dir":   "metrics-dir",
	"paths.summary_file":  "summary-file",
	"paths.results_dir":   "results-dir",
	"paths.html_dir":      "html-dir",
	"report.logo_path":    "logo",
	"report.organisation": "organisation",
	"runner.kind":         "runner",
	"runner.timeout":      "timeout",
	"runner.extra_flags":  "extra-flag",
	"server.port":         "port",
	"server.work_dir":     "work-dir",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lighthouse-report.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "exit with code 2 when any URL or report failed")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	flags := map[string]*pflag.Flag{}
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[key] = f
		}
	}

	loaded, file, err := config.Load(config.LoadOptions{ConfigFile: cfgFile, Flags: flags})
	if err != nil {
		return fatal(err)
	}
	cfg = loaded

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	logger.SetLevel(level)
	if file != "" {
		logger.Debug("loaded config", "file", file)
	}
	return nil
}
