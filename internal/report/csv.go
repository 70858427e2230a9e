package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/models"
)

const DefaultResultsDir = "results"

var csvHeader = []string{
	"URL", "Performance", "SEO", "Accessibility",
	"LCP", "FCP", "TBT", "SpeedIndex", "CLS",
	"Desktop", "Mobile",
	"Performance Average (Desktop)", "Performance Average (Mobile)",
}

// CSVGenerator writes one row per summary record.
type CSVGenerator struct {
	dir    string
	logger *log.Logger
	now    func() time.Time
}

func NewCSV(dir string, logger *log.Logger) *CSVGenerator {
	if dir == "" {
		dir = DefaultResultsDir
	}
	return &CSVGenerator{dir: dir, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for the file name.
func (g *CSVGenerator) WithClock(now func() time.Time) *CSVGenerator {
	g.now = now
	return g
}

// Generate writes <dir>/lighthouse-metrics-<timestamp>.csv and returns its path.
func (g *CSVGenerator) Generate(records []models.MetricsRecord) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	path := filepath.Join(g.dir, fmt.Sprintf("lighthouse-metrics-%s.csv", fileStamp(g.now())))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := writeAndClose(f, func(w io.Writer) error { return WriteCSV(w, records) }); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	g.logger.Info("CSV report generated", "file", path, "rows", len(records))
	return path, nil
}

// writeAndClose runs write on wc and closes it. A failed close is returned
// when the write itself succeeded.
func writeAndClose(wc io.WriteCloser, write func(io.Writer) error) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return write(wc)
}

// WriteCSV writes the header and one row per record, in summary order.
func WriteCSV(w io.Writer, records []models.MetricsRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	groups := index(records)
	for _, r := range records {
		g := groups[r.URL]
		err := writer.Write([]string{
			r.URL,
			Percent2(r.Categories.Performance),
			Percent2(r.Categories.SEO),
			Percent2(r.Categories.Accessibility),
			orNA(r.Audits.LargestContentfulPaint),
			orNA(r.Audits.FirstContentfulPaint),
			orNA(r.Audits.TotalBlockingTime),
			orNA(r.Audits.SpeedIndex),
			orNA(r.Audits.CumulativeLayoutShift),
			yesNo(r.RunType == models.RunTypeDesktop),
			yesNo(r.RunType == models.RunTypeMobile),
			Percent2(g.DesktopPerformance()),
			Percent2(g.MobilePerformance()),
		})
		if err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func orNA(v string) string {
	if v == "" {
		return models.NotAvailable
	}
	return v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
