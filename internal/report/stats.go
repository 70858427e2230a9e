// Package report renders the summary records as CSV, HTML and Markdown.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shyim/lighthouse-report/internal/models"
)

// PassThreshold is the score at which a cell is rendered as passing. It is
// display-only and never affects the exit status.
const PassThreshold = 0.90

// Group holds the records of one URL split by form factor.
type Group struct {
	URL     string
	Desktop []models.MetricsRecord
	Mobile  []models.MetricsRecord
}

func (g *Group) DesktopPerformance() float64 { return mean(g.Desktop, performance) }
func (g *Group) MobilePerformance() float64  { return mean(g.Mobile, performance) }
func (g *Group) DesktopSEO() float64         { return mean(g.Desktop, seo) }
func (g *Group) MobileSEO() float64          { return mean(g.Mobile, seo) }

// Rows returns the desktop records followed by the mobile records.
func (g *Group) Rows() []models.MetricsRecord {
	rows := make([]models.MetricsRecord, 0, len(g.Desktop)+len(g.Mobile))
	rows = append(rows, g.Desktop...)
	return append(rows, g.Mobile...)
}

func performance(r models.MetricsRecord) float64 { return r.Categories.Performance }
func seo(r models.MetricsRecord) float64         { return r.Categories.SEO }

// mean is 0 for an empty group.
func mean(records []models.MetricsRecord, pick func(models.MetricsRecord) float64) float64 {
	if len(records) == 0 {
		return 0
	}
	var total float64
	for _, r := range records {
		total += pick(r)
	}
	return total / float64(len(records))
}

// index groups records by URL. Records of an unknown run type create the
// group but are not added to either side.
func index(records []models.MetricsRecord) map[string]*Group {
	groups := make(map[string]*Group)
	for _, r := range records {
		g, ok := groups[r.URL]
		if !ok {
			g = &Group{URL: r.URL}
			groups[r.URL] = g
		}
		switch r.RunType {
		case models.RunTypeDesktop:
			g.Desktop = append(g.Desktop, r)
		case models.RunTypeMobile:
			g.Mobile = append(g.Mobile, r)
		}
	}
	return groups
}

// GroupByURL returns one group per URL, sorted by URL.
func GroupByURL(records []models.MetricsRecord) []*Group {
	groups := index(records)
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Percent2 formats a score in [0,1] as a percentage with two decimals.
func Percent2(score float64) string {
	return fmt.Sprintf("%.2f%%", score*100)
}

// Percent0 formats a score in [0,1] as a whole percentage, rounding halves up.
func Percent0(score float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(score*100))
}

// Passed reports whether a score meets PassThreshold.
func Passed(score float64) bool {
	return score >= PassThreshold
}

// isoTimestamp matches the millisecond UTC form used in artifact names.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// fileStamp is isoTimestamp with ':' replaced for file-name safety.
func fileStamp(t time.Time) string {
	return strings.ReplaceAll(isoTimestamp(t), ":", "-")
}
