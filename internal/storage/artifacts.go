package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/utils"
)

const BundleName = "result.zip"

// Store is the part of Service the publisher and the HTTP handler need.
type Store interface {
	UploadFile(ctx context.Context, key, filePath string) error
	DownloadFile(ctx context.Context, key, destinationPath string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// ValidID rejects ids that could escape the results/<id>/ prefix.
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, "..") && !strings.ContainsAny(id, `/\`)
}

func ResultPrefix(id string) string { return "results/" + id + "/" }

func BundleKey(id string) string { return ResultPrefix(id) + BundleName }

// Publisher uploads a run's artifacts below results/<id>/.
type Publisher struct {
	store  Store
	logger *log.Logger
}

func NewPublisher(store Store, logger *log.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// Publish uploads each file under its base name, then a zip of bundleDir.
// It returns the uploaded keys.
func (p *Publisher) Publish(ctx context.Context, id, bundleDir string, files []string) ([]string, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid result id %q", id)
	}

	var keys []string
	for _, file := range files {
		if file == "" {
			continue
		}
		key := ResultPrefix(id) + filepath.Base(file)
		if err := p.store.UploadFile(ctx, key, file); err != nil {
			return keys, fmt.Errorf("upload %s: %w", file, err)
		}
		p.logger.Debug("uploaded artifact", "key", key)
		keys = append(keys, key)
	}

	zipFile, err := os.CreateTemp("", "lighthouse-*.zip")
	if err != nil {
		return keys, err
	}
	zipPath := zipFile.Name()
	zipFile.Close()
	defer os.Remove(zipPath)

	if err := utils.ZipDirectory(bundleDir, zipPath); err != nil {
		return keys, fmt.Errorf("create bundle: %w", err)
	}
	if err := p.store.UploadFile(ctx, BundleKey(id), zipPath); err != nil {
		return keys, fmt.Errorf("upload bundle: %w", err)
	}
	keys = append(keys, BundleKey(id))

	p.logger.Info("artifacts published", "id", id, "objects", len(keys))
	return keys, nil
}

// Remove deletes every stored artifact of a run.
func (p *Publisher) Remove(ctx context.Context, id string) (int, error) {
	if !ValidID(id) {
		return 0, fmt.Errorf("invalid result id %q", id)
	}
	return p.store.DeletePrefix(ctx, ResultPrefix(id))
}
