// Package urls resolves the list of pages to audit.
package urls

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/shyim/lighthouse-report/internal/failure"
)

// EnvVar is the environment variable CI pipelines set with the URL list.
const EnvVar = "TESTFILES_LIST"

var (
	// ErrNoURLs is returned when no source produced a URL.
	ErrNoURLs = errors.New("no URLs provided")
	// ErrNoValidURLs is returned when every provided URL is invalid.
	ErrNoValidURLs = errors.New("no valid URLs provided")
)

// Source describes where URLs come from. The first non-empty source wins:
// explicit URLs, then the file, then the environment value.
type Source struct {
	URLs []string
	File string
	Env  string
}

// FromEnv builds a Source reading the list from TESTFILES_LIST.
func FromEnv() Source {
	return Source{Env: os.Getenv(EnvVar)}
}

// Resolve returns the URL list in input order with blanks removed.
func (s Source) Resolve() ([]string, error) {
	if list := Split(strings.Join(s.URLs, " ")); len(list) > 0 {
		return list, nil
	}
	if s.File != "" {
		list, err := ReadFile(s.File)
		if err != nil {
			return nil, failure.New(failure.FatalInput, "read url file", s.File, err)
		}
		if len(list) > 0 {
			return list, nil
		}
	}
	if list := Split(s.Env); len(list) > 0 {
		return list, nil
	}
	return nil, failure.New(failure.FatalInput, "resolve urls", EnvVar, ErrNoURLs)
}

// Split parses a whitespace or newline delimited list.
func Split(raw string) []string {
	return strings.Fields(raw)
}

// ReadFile reads URLs from a text file (one per line, # comments allowed) or a
// CSV file whose first column holds URLs below a header row.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return readCSV(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Fields(line)...)
	}
	return out, nil
}

func readCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read url csv: %w", err)
	}
	if len(records) < 1 {
		return nil, errors.New("url csv is empty or missing header")
	}

	var out []string
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		if u := strings.TrimSpace(row[0]); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// Validate checks that every entry is an absolute http(s) URL.
func Validate(list []string) error {
	for _, u := range list {
		if err := check(u); err != nil {
			return err
		}
	}
	return nil
}

// Partition keeps the valid URLs in order and returns one partial-collection
// failure per invalid entry. Only an empty result is fatal.
func Partition(list []string) ([]string, []*failure.Error, error) {
	valid := make([]string, 0, len(list))
	var invalid []*failure.Error
	for _, u := range list {
		if err := check(u); err != nil {
			invalid = append(invalid, failure.New(failure.PartialCollection, "validate url", u, err))
			continue
		}
		valid = append(valid, u)
	}
	if len(valid) == 0 {
		return nil, invalid, failure.New(failure.FatalInput, "validate urls", "", ErrNoValidURLs)
	}
	return valid, invalid, nil
}

func check(u string) error {
	parsed, err := url.ParseRequestURI(u)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", u, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: unsupported scheme %q", u, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", u)
	}
	return nil
}
