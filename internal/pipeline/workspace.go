package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/shyim/lighthouse-report/internal/lighthouse"
	"github.com/shyim/lighthouse-report/internal/metrics"
	"github.com/shyim/lighthouse-report/internal/storage"
)

// Under returns a copy with every relative path moved below dir.
func (o Options) Under(dir string) Options {
	rebase := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	o.OutputRoot = rebase(o.OutputRoot)
	o.MetricsDir = rebase(o.MetricsDir)
	o.SummaryFile = rebase(o.SummaryFile)
	o.ResultsDir = rebase(o.ResultsDir)
	o.MetadataOutput = rebase(o.MetadataOutput)
	o.HTML.Dir = rebase(o.HTML.Dir)
	if o.HTML.Dir == "" {
		o.HTML.Dir = dir
	}
	return o
}

// Workspace runs each request in its own directory below root and removes
// it afterwards. Runs are serialized since every audit drives a browser.
type Workspace struct {
	mu        sync.Mutex
	root      string
	runner    lighthouse.Runner
	opts      Options
	publisher *storage.Publisher
	recorder  *metrics.Recorder
	logger    *log.Logger
}

func NewWorkspace(root string, runner lighthouse.Runner, opts Options, publisher *storage.Publisher, recorder *metrics.Recorder, logger *log.Logger) *Workspace {
	if root == "" {
		root = filepath.Join(os.TempDir(), "lighthouse-report")
	}
	opts.StepSummary = false
	opts.PushgatewayURL = ""
	return &Workspace{
		root:      root,
		runner:    runner,
		opts:      opts,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
	}
}

func (w *Workspace) Run(ctx context.Context, id string, urls []string) (*Result, error) {
	if !storage.ValidID(id) {
		return nil, fmt.Errorf("invalid result id %q", id)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.root, id)
	if err := os.RemoveAll(dir); err != nil {
		w.logger.Warn("failed to clean result dir", "dir", dir, "error", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	p := New(w.runner, w.opts.Under(dir), w.logger)
	if w.publisher != nil {
		p.WithPublisher(w.publisher)
	}
	if w.recorder != nil {
		p.WithMetrics(w.recorder)
	}
	return p.Run(ctx, id, urls)
}
