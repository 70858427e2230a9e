// Package summary reads and writes the summary file, the JSON array of
// metrics records handed from the extractor to the report generators.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shyim/lighthouse-report/internal/failure"
	"github.com/shyim/lighthouse-report/internal/models"
)

// DefaultPath is the summary file location relative to the working directory.
const DefaultPath = "lhci-summary.json"

// Write replaces the summary file with records.
func Write(path string, records []models.MetricsRecord) error {
	if records == nil {
		records = []models.MetricsRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Reset truncates the summary file to an empty array.
func Reset(path string) error {
	return Write(path, nil)
}

// Read loads the summary file. A missing file yields an empty list and a
// missing-artifact error so callers can render blank reports and still log.
func Read(path string) ([]models.MetricsRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.MetricsRecord{}, failure.New(failure.MissingArtifact, "read summary", path, err)
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var records []models.MetricsRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse summary %s: %w", path, err)
	}
	if records == nil {
		records = []models.MetricsRecord{}
	}
	return records, nil
}
