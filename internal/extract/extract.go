// Package extract turns the Lighthouse reports of a run into the summary file.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
	"github.com/shyim/lighthouse-report/internal/summary"
)

// ErrNoReports is returned when the report directory holds no JSON report.
var ErrNoReports = errors.New("no JSON Lighthouse reports found")

// Extractor reads every report below a root directory.
type Extractor struct {
	reportRoot  string
	summaryPath string
	logger      *log.Logger
	failures    *failure.Report
	now         func() time.Time
}

func New(reportRoot, summaryPath string, logger *log.Logger, failures *failure.Report) *Extractor {
	if failures == nil {
		failures = &failure.Report{}
	}
	return &Extractor{
		reportRoot:  reportRoot,
		summaryPath: summaryPath,
		logger:      logger,
		failures:    failures,
		now:         time.Now,
	}
}

// Run clears the summary file, parses every report and writes the complete
// record list. Unparseable reports are logged and excluded.
func (e *Extractor) Run() ([]models.MetricsRecord, error) {
	e.logger.Info("clearing previous summary data", "file", e.summaryPath)
	if err := summary.Reset(e.summaryPath); err != nil {
		return nil, err
	}

	files, err := e.reportFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []models.MetricsRecord{}, failure.New(failure.MissingArtifact, "extract", e.reportRoot, ErrNoReports)
	}
	e.logger.Info("extracting metrics", "reports", len(files))

	timestamp := e.now().UTC().Format(time.RFC3339)
	records := make([]models.MetricsRecord, 0, len(files))
	for _, rel := range files {
		rec, err := e.parse(rel, timestamp)
		if err != nil {
			e.failures.Add(failure.New(failure.PartialParse, "parse report", rel, err))
			e.logger.Error("error parsing report", "file", rel, "error", err)
			continue
		}
		records = append(records, rec)
	}

	if err := summary.Write(e.summaryPath, records); err != nil {
		return nil, err
	}
	e.logger.Info("metrics extracted", "file", e.summaryPath, "entries", len(records))
	return records, nil
}

func (e *Extractor) reportFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(e.reportRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == e.reportRoot {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(e.reportRoot, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return files, nil
}

func (e *Extractor) parse(rel, timestamp string) (models.MetricsRecord, error) {
	data, err := os.ReadFile(filepath.Join(e.reportRoot, filepath.FromSlash(rel)))
	if err != nil {
		return models.MetricsRecord{}, err
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return models.MetricsRecord{}, err
	}
	return report.ToRecord(rel, timestamp), nil
}
