package report

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/metadata"
	"github.com/shyim/lighthouse-report/internal/models"
)

const DefaultOrganisation = "Lighthouse Report"

var (
	//go:embed assets/logo.svg
	defaultLogo []byte

	//go:embed assets/report.html.tmpl
	htmlSource string

	htmlTemplate = template.Must(template.New("report").Parse(htmlSource))
)

type HTMLOptions struct {
	// Dir receives the report, default ".".
	Dir string
	// LogoPath replaces the bundled logo when set.
	LogoPath     string
	Organisation string
}

// HTMLGenerator renders the styled per-URL report.
type HTMLGenerator struct {
	dir          string
	logo         template.URL
	organisation string
	logger       *log.Logger
	now          func() time.Time
}

func NewHTML(opts HTMLOptions, logger *log.Logger) (*HTMLGenerator, error) {
	logo, err := logoURI(opts.LogoPath)
	if err != nil {
		return nil, err
	}
	g := &HTMLGenerator{
		dir:          opts.Dir,
		logo:         logo,
		organisation: opts.Organisation,
		logger:       logger,
		now:          time.Now,
	}
	if g.dir == "" {
		g.dir = "."
	}
	if g.organisation == "" {
		g.organisation = DefaultOrganisation
	}
	return g, nil
}

// WithClock replaces the clock used for the file name and report dates.
func (g *HTMLGenerator) WithClock(now func() time.Time) *HTMLGenerator {
	g.now = now
	return g
}

func logoURI(path string) (template.URL, error) {
	data, contentType := defaultLogo, "image/svg+xml"
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read logo: %w", err)
		}
		contentType = mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
	}
	return template.URL("data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}

type scoreCell struct {
	Text  string
	Class string
}

func newScoreCell(score float64) scoreCell {
	class := "fail"
	if Passed(score) {
		class = "pass"
	}
	return scoreCell{Text: Percent0(score), Class: class}
}

type htmlRow struct {
	URL                string
	RunType            string
	Performance        scoreCell
	AveragePerformance string
	SEO                scoreCell
	AverageSEO         string
	Accessibility      scoreCell
	Desktop            string
	Mobile             string
	Audits             models.Audits
}

type htmlData struct {
	Logo         template.URL
	Organisation string
	Meta         metadata.ConfigData
	AuditDate    string
	ReportDate   string
	Rows         []htmlRow
}

func rows(records []models.MetricsRecord) []htmlRow {
	var out []htmlRow
	for _, g := range GroupByURL(records) {
		for _, r := range g.Rows() {
			avgPerf, avgSEO := g.DesktopPerformance(), g.DesktopSEO()
			if r.RunType == models.RunTypeMobile {
				avgPerf, avgSEO = g.MobilePerformance(), g.MobileSEO()
			}
			out = append(out, htmlRow{
				URL:                r.URL,
				RunType:            r.RunType,
				Performance:        newScoreCell(r.Categories.Performance),
				AveragePerformance: Percent0(avgPerf),
				SEO:                newScoreCell(r.Categories.SEO),
				AverageSEO:         Percent0(avgSEO),
				Accessibility:      newScoreCell(r.Categories.Accessibility),
				Desktop:            check(r.RunType == models.RunTypeDesktop),
				Mobile:             check(r.RunType == models.RunTypeMobile),
				Audits:             r.Audits,
			})
		}
	}
	return out
}

func check(b bool) string {
	if b {
		return "✔️"
	}
	return "❌"
}

// Render writes the report for the given records and metadata.
func (g *HTMLGenerator) Render(w io.Writer, records []models.MetricsRecord, meta metadata.ConfigData) error {
	now := g.now().UTC()
	data := htmlData{
		Logo:         g.logo,
		Organisation: g.organisation,
		Meta:         meta,
		AuditDate:    now.Format(time.DateOnly),
		ReportDate:   isoTimestamp(now),
		Rows:         rows(records),
	}
	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

// Generate writes <dir>/lighthouse-metrics-report-<timestamp>.html and
// returns its path.
func (g *HTMLGenerator) Generate(records []models.MetricsRecord, meta metadata.ConfigData) (string, error) {
	if g.dir != "." {
		if err := os.MkdirAll(g.dir, 0o755); err != nil {
			return "", fmt.Errorf("create html dir: %w", err)
		}
	}

	path := filepath.Join(g.dir, fmt.Sprintf("lighthouse-metrics-report-%s.html", fileStamp(g.now())))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := writeAndClose(f, func(w io.Writer) error { return g.Render(w, records, meta) }); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	g.logger.Info("HTML report saved", "file", path, "urls", len(GroupByURL(records)))
	return path, nil
}
