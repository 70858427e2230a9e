package lighthouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrReportNotReady is returned when the report never became complete.
var ErrReportNotReady = errors.New("lighthouse report not ready")

// WaitForReport polls path until it holds a complete JSON document.
func WaitForReport(ctx context.Context, path string, interval, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, err
		}
		return len(bytes.TrimSpace(data)) > 0 && json.Valid(data), nil
	})
	if err != nil {
		if ctx.Err() == nil && wait.Interrupted(err) {
			return fmt.Errorf("%w: %s", ErrReportNotReady, path)
		}
		return fmt.Errorf("wait for report %s: %w", path, err)
	}
	return nil
}

// extractJSON trims log noise around the report object when stdout and
// stderr share one stream.
func extractJSON(data []byte) ([]byte, error) {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in output")
	}
	out := data[start : end+1]
	if !json.Valid(out) {
		return nil, errors.New("output is not a valid JSON report")
	}
	return out, nil
}
