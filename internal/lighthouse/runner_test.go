package lighthouse

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestSettingsArgs(t *testing.T) {
	t.Run("desktop uses preset", func(t *testing.T) {
		args := SettingsFor(Desktop).Args("https://example.com/", "/tmp/out/lhr.json")
		if args[0] != "https://example.com/" {
			t.Fatalf("expected url first got %q", args[0])
		}
		for _, want := range []string{"--output=json", "--output-path=/tmp/out/lhr.json", "--preset=desktop"} {
			if !slices.Contains(args, want) {
				t.Fatalf("expected %q in %v", want, args)
			}
		}
		for _, a := range args {
			if strings.HasPrefix(a, "--form-factor") {
				t.Fatalf("desktop should not pass %q", a)
			}
		}
	})

	t.Run("mobile uses form factor", func(t *testing.T) {
		args := SettingsFor(Mobile).Args("https://example.com/", "stdout")
		if !slices.Contains(args, "--form-factor=mobile") {
			t.Fatalf("expected --form-factor=mobile in %v", args)
		}
		if !slices.Contains(args, "--output-path=stdout") {
			t.Fatalf("expected stdout output in %v", args)
		}
		for _, a := range args {
			if strings.HasPrefix(a, "--preset") {
				t.Fatalf("mobile should not pass %q", a)
			}
		}
	})

	t.Run("settings are independent", func(t *testing.T) {
		desktop := SettingsFor(Desktop)
		mobile := SettingsFor(Mobile)
		desktop.ChromeFlags[0] = "--changed"
		if mobile.ChromeFlags[0] == "--changed" {
			t.Fatalf("settings share chrome flag storage")
		}
	})
}

func TestParseFormFactor(t *testing.T) {
	if ff, err := ParseFormFactor(" Desktop "); err != nil || ff != Desktop {
		t.Fatalf("expected desktop got %q %v", ff, err)
	}
	if _, err := ParseFormFactor("tablet"); err == nil {
		t.Fatalf("expected error for tablet")
	}
}

func TestWaitForReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lhr.json")

	t.Run("times out on partial file", func(t *testing.T) {
		if err := os.WriteFile(path, []byte(`{"requestedUrl":`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		err := WaitForReport(context.Background(), path, 10*time.Millisecond, 60*time.Millisecond)
		if !errors.Is(err, ErrReportNotReady) {
			t.Fatalf("expected ErrReportNotReady got %v", err)
		}
	})

	t.Run("returns once complete", func(t *testing.T) {
		if err := os.Remove(path); err != nil {
			t.Fatalf("remove: %v", err)
		}
		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = os.WriteFile(path, []byte(`{"requestedUrl":"https://example.com/"}`), 0o644)
		}()
		if err := WaitForReport(context.Background(), path, 10*time.Millisecond, 2*time.Second); err != nil {
			t.Fatalf("expected report to be ready: %v", err)
		}
	})
}

func TestExtractJSON(t *testing.T) {
	out, err := extractJSON([]byte("Chrome warning\n{\"a\":{\"b\":1}}\ntrailing"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(out) != `{"a":{"b":1}}` {
		t.Fatalf("unexpected json %q", out)
	}
	if _, err := extractJSON([]byte("fake logs")); err == nil {
		t.Fatalf("expected error without json")
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-lighthouse")
	body := `#!/bin/sh
url="$1"
for a in "$@"; do
  case "$a" in
    --output-path=*) out="${a#--output-path=}" ;;
    --preset=desktop) ff=desktop ;;
    --form-factor=*) ff="${a#--form-factor=}" ;;
  esac
done
case "$url" in
  *fail*) echo "navigation failed" >&2; exit 3 ;;
esac
printf '{"requestedUrl":"%s","configSettings":{"formFactor":"%s"}}' "$url" "$ff" > "$out"
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	runner := NewExecRunner(script, Options{PollInterval: 10 * time.Millisecond, SettleTimeout: time.Second}, log.New(io.Discard))

	t.Run("writes report", func(t *testing.T) {
		out := filepath.Join(dir, "desktop", "000-x", "lhr.json")
		err := runner.Run(context.Background(), Request{URL: "https://example.com/", Settings: SettingsFor(Desktop), OutputPath: out})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read report: %v", err)
		}
		if !strings.Contains(string(data), `"formFactor":"desktop"`) {
			t.Fatalf("unexpected report %s", data)
		}
	})

	t.Run("surfaces stderr", func(t *testing.T) {
		out := filepath.Join(dir, "mobile", "001-x", "lhr.json")
		err := runner.Run(context.Background(), Request{URL: "https://fail.example/", Settings: SettingsFor(Mobile), OutputPath: out})
		if err == nil || !strings.Contains(err.Error(), "navigation failed") {
			t.Fatalf("expected stderr in error got %v", err)
		}
	})
}

func TestExecRunnerCommand(t *testing.T) {
	r := NewExecRunner("npx lighthouse", Options{}, log.New(io.Discard))
	name, args := r.command([]string{"https://example.com/"})
	if name != "npx" || args[0] != "lighthouse" || args[1] != "https://example.com/" {
		t.Fatalf("unexpected command %s %v", name, args)
	}

	r = NewExecRunner("/opt/lighthouse/cli/index.js", Options{}, log.New(io.Discard))
	name, args = r.command([]string{"https://example.com/"})
	if name != "node" || args[0] != "/opt/lighthouse/cli/index.js" {
		t.Fatalf("expected node wrapper got %s %v", name, args)
	}
}
