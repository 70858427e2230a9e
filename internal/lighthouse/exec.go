package lighthouse

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultBin is used when LIGHTHOUSE_BIN is not set.
const DefaultBin = "lighthouse"

// ExecRunner runs a locally installed Lighthouse CLI.
type ExecRunner struct {
	bin    string
	opts   Options
	logger *log.Logger
}

// NewExecRunner creates a runner for bin. bin may carry leading arguments
// ("npx lighthouse"); a path ending in .js is run through node.
func NewExecRunner(bin string, opts Options, logger *log.Logger) *ExecRunner {
	if strings.TrimSpace(bin) == "" {
		bin = DefaultBin
	}
	return &ExecRunner{bin: bin, opts: opts.withDefaults(), logger: logger}
}

func (r *ExecRunner) command(args []string) (string, []string) {
	parts := strings.Fields(r.bin)
	name, prefix := parts[0], parts[1:]
	if strings.HasSuffix(name, ".js") {
		prefix = append([]string{name}, prefix...)
		name = "node"
	}
	return name, append(prefix, args...)
}

func (r *ExecRunner) Run(ctx context.Context, req Request) error {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	name, args := r.command(req.Settings.Args(req.URL, req.OutputPath))
	cmd := exec.CommandContext(runCtx, name, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	r.logger.Debug("running lighthouse", "bin", name, "url", req.URL, "formFactor", req.Settings.FormFactor)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("lighthouse failed: %w: %s", err, tail(stderr.String(), 2000))
	}

	return WaitForReport(ctx, req.OutputPath, r.opts.PollInterval, r.opts.SettleTimeout)
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
