package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/shyim/lighthouse-report/internal/models"
)

// StepSummaryEnv names the file GitHub Actions renders as the job summary.
const StepSummaryEnv = "GITHUB_STEP_SUMMARY"

// Markdown renders the per-record table followed by the per-URL averages.
func Markdown(records []models.MetricsRecord) string {
	groups := GroupByURL(records)

	var sb strings.Builder
	sb.WriteString("## Lighthouse Metrics\n\n")
	if len(records) == 0 {
		sb.WriteString("No audit results.\n")
		return sb.String()
	}

	sb.WriteString("| URL | Form factor | Performance | Accessibility | SEO | LCP | TBT | CLS |\n")
	sb.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, g := range groups {
		for _, r := range g.Rows() {
			fmt.Fprintf(&sb, "| %s | %s | %s %s | %s | %s | %s | %s | %s |\n",
				cell(r.URL),
				r.RunType,
				mark(r.Categories.Performance),
				Percent0(r.Categories.Performance),
				Percent0(r.Categories.Accessibility),
				Percent0(r.Categories.SEO),
				cell(orNA(r.Audits.LargestContentfulPaint)),
				cell(orNA(r.Audits.TotalBlockingTime)),
				cell(orNA(r.Audits.CumulativeLayoutShift)),
			)
		}
	}

	sb.WriteString("\n### Averages\n\n")
	sb.WriteString("| URL | Performance (Desktop) | Performance (Mobile) | SEO (Desktop) | SEO (Mobile) |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, g := range groups {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			cell(g.URL),
			Percent0(g.DesktopPerformance()),
			Percent0(g.MobilePerformance()),
			Percent0(g.DesktopSEO()),
			Percent0(g.MobileSEO()),
		)
	}
	return sb.String()
}

func mark(score float64) string {
	if Passed(score) {
		return "🟢"
	}
	return "🔴"
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// AppendStepSummary appends markdown to the file named by GITHUB_STEP_SUMMARY.
// It reports false when the variable is unset.
func AppendStepSummary(markdown string) (bool, error) {
	path := os.Getenv(StepSummaryEnv)
	if path == "" {
		return false, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open step summary: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(markdown + "\n"); err != nil {
		return false, fmt.Errorf("write step summary: %w", err)
	}
	return true, nil
}
