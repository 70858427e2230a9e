// Package lighthouse runs the Lighthouse CLI against a single URL and waits
// until its JSON report is complete. Each form factor is described by an
// explicit Settings value handed to the runner, so concurrent desktop and
// mobile passes never share configuration on disk.
package lighthouse

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FormFactor is the simulated device class for an audit run.
type FormFactor string

const (
	Desktop FormFactor = "desktop"
	Mobile  FormFactor = "mobile"
)

// FormFactors lists every supported form factor in collection order.
var FormFactors = []FormFactor{Desktop, Mobile}

// ParseFormFactor validates a form factor name.
func ParseFormFactor(s string) (FormFactor, error) {
	switch FormFactor(strings.ToLower(strings.TrimSpace(s))) {
	case Desktop:
		return Desktop, nil
	case Mobile:
		return Mobile, nil
	}
	return "", fmt.Errorf("unknown form factor %q (want desktop or mobile)", s)
}

var (
	defaultCategories  = []string{"performance", "accessibility", "seo", "best-practices"}
	defaultChromeFlags = []string{"--headless=new", "--no-sandbox", "--disable-gpu"}
)

// Settings is the per form factor Lighthouse configuration.
type Settings struct {
	FormFactor     FormFactor
	Preset         string
	OnlyCategories []string
	ChromeFlags    []string
	ExtraFlags     []string
}

// SettingsFor returns the default settings for a form factor. Desktop uses the
// desktop preset, mobile relies on Lighthouse's default mobile emulation.
func SettingsFor(ff FormFactor) Settings {
	s := Settings{
		FormFactor:     ff,
		OnlyCategories: append([]string(nil), defaultCategories...),
		ChromeFlags:    append([]string(nil), defaultChromeFlags...),
	}
	if ff == Desktop {
		s.Preset = "desktop"
	}
	return s
}

// Args renders the CLI arguments for one URL. outputPath may be "stdout".
func (s Settings) Args(url, outputPath string) []string {
	args := []string{
		url,
		"--output=json",
		"--output-path=" + outputPath,
		"--quiet",
	}
	if s.Preset != "" {
		args = append(args, "--preset="+s.Preset)
	} else {
		args = append(args, "--form-factor="+string(s.FormFactor))
	}
	if len(s.OnlyCategories) > 0 {
		args = append(args, "--only-categories="+strings.Join(s.OnlyCategories, ","))
	}
	if len(s.ChromeFlags) > 0 {
		args = append(args, "--chrome-flags="+strings.Join(s.ChromeFlags, " "))
	}
	return append(args, s.ExtraFlags...)
}

// Request is a single audit invocation.
type Request struct {
	URL        string
	Settings   Settings
	OutputPath string
}

// Runner executes Lighthouse and returns once the report at OutputPath is
// complete or the audit failed.
type Runner interface {
	Run(ctx context.Context, req Request) error
}

// Options holds the knobs shared by every runner backend.
type Options struct {
	// Timeout bounds a single audit, including waiting for the report.
	Timeout time.Duration
	// PollInterval is how often the report file is checked after the tool exits.
	PollInterval time.Duration
	// SettleTimeout bounds how long to wait for the report after the tool exits.
	SettleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 30 * time.Second
	}
	return o
}
