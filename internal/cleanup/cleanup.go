// Package cleanup removes browser profile and Lighthouse temp directories
// left behind by audits that crashed or were killed.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultMaxAge   = 5 * time.Minute
)

// stalePrefixes are the temp directory names created by Chrome and Lighthouse.
var stalePrefixes = []string{
	".org.chromium.Chromium.",
	"lighthouse.",
}

type Cleaner struct {
	dir    string
	maxAge time.Duration
	logger *log.Logger
	now    func() time.Time
}

// New returns a cleaner for dir; an empty dir means os.TempDir().
func New(dir string, maxAge time.Duration, logger *log.Logger) *Cleaner {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cleaner{dir: dir, maxAge: maxAge, logger: logger, now: time.Now}
}

// Start runs one pass immediately, then one per interval until ctx is done.
func (c *Cleaner) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c.logger.Info("temp file cleanup scheduled", "interval", interval, "dir", c.dir)
	c.Run()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Run()
			}
		}
	}()
}

// Run removes matching directories older than maxAge and returns how many
// were removed.
func (c *Cleaner) Run() int {
	now := c.now()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("failed to read temp dir for cleanup", "dir", c.dir, "error", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !stale(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if age <= c.maxAge {
			continue
		}

		fullPath := filepath.Join(c.dir, entry.Name())
		if err := os.RemoveAll(fullPath); err != nil {
			c.logger.Warn("failed to clean up", "path", fullPath, "error", err)
			continue
		}
		removed++
		c.logger.Debug("cleaned up temp directory", "path", fullPath, "age", age.Round(time.Minute))
	}
	return removed
}

func stale(name string) bool {
	for _, prefix := range stalePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
