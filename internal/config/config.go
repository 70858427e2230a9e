// Package config loads the application settings from defaults, an optional
// lighthouse-report.yaml, environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shyim/lighthouse-report/internal/cleanup"
	"github.com/shyim/lighthouse-report/internal/lighthouse"
	"github.com/shyim/lighthouse-report/internal/metadata"
	"github.com/shyim/lighthouse-report/internal/report"
	"github.com/shyim/lighthouse-report/internal/storage"
	"github.com/shyim/lighthouse-report/internal/summary"
	"github.com/shyim/lighthouse-report/internal/telemetry"
)

const (
	AppName        = "lighthouse-report"
	ConfigFileName = "lighthouse-report"

	RunnerExec       = "exec"
	RunnerDocker     = "docker"
	RunnerKubernetes = "kubernetes"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Report    ReportConfig    `mapstructure:"report"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
}

type RunnerConfig struct {
	Kind           string        `mapstructure:"kind"`
	Bin            string        `mapstructure:"bin"`
	Image          string        `mapstructure:"image"`
	Namespace      string        `mapstructure:"namespace"`
	DockerHost     string        `mapstructure:"docker_host"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SettleTimeout  time.Duration `mapstructure:"settle_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	OnlyCategories []string      `mapstructure:"only_categories"`
	ChromeFlags    []string      `mapstructure:"chrome_flags"`
	ExtraFlags     []string      `mapstructure:"extra_flags"`
}

type PathsConfig struct {
	URLFile        string `mapstructure:"url_file"`
	OutputRoot     string `mapstructure:"output_root"`
	MetricsDir     string `mapstructure:"metrics_dir"`
	SummaryFile    string `mapstructure:"summary_file"`
	ResultsDir     string `mapstructure:"results_dir"`
	HTMLDir        string `mapstructure:"html_dir"`
	MetadataInput  string `mapstructure:"metadata_input"`
	MetadataOutput string `mapstructure:"metadata_output"`
}

type ReportConfig struct {
	Organisation string `mapstructure:"organisation"`
	LogoPath     string `mapstructure:"logo_path"`
}

type StorageConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Bucket     string `mapstructure:"bucket"`
	Region     string `mapstructure:"region"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	SentryDSN    string `mapstructure:"sentry_dsn"`
	Environment  string `mapstructure:"environment"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AuthToken       string        `mapstructure:"auth_token"`
	MaxURLs         int           `mapstructure:"max_urls"`
	WorkDir         string        `mapstructure:"work_dir"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string][]string{
	"log_level":               {"LOG_LEVEL"},
	"runner.kind":             {"LIGHTHOUSE_RUNNER"},
	"runner.bin":              {"LIGHTHOUSE_BIN"},
	"runner.image":            {"LIGHTHOUSE_IMAGE"},
	"runner.namespace":        {"LIGHTHOUSE_NAMESPACE"},
	"runner.docker_host":      {"DOCKER_HOST"},
	"runner.timeout":          {"LIGHTHOUSE_TIMEOUT"},
	"runner.extra_flags":      {"LIGHTHOUSE_EXTRA_FLAGS"},
	"paths.url_file":          {"TESTFILES_FILE"},
	"paths.output_root":       {"LIGHTHOUSE_OUTPUT_DIR"},
	"paths.results_dir":       {"RESULTS_DIR"},
	"paths.html_dir":          {"HTML_REPORT_DIR"},
	"paths.metadata_input":    {metadata.InputFileEnv},
	"paths.metadata_output":   {metadata.OutputFileEnv},
	"report.organisation":     {"REPORT_ORGANISATION"},
	"report.logo_path":        {"REPORT_LOGO"},
	"storage.service_url":     {"S3_SERVICE_URL"},
	"storage.access_key":      {"S3_ACCESS_KEY"},
	"storage.secret_key":      {"S3_SECRET_KEY"},
	"storage.bucket":          {"S3_BUCKET_NAME"},
	"storage.region":          {"S3_REGION", "AWS_REGION"},
	"telemetry.otlp_endpoint": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"telemetry.sentry_dsn":    {"SENTRY_DSN"},
	"telemetry.environment":   {"SENTRY_ENVIRONMENT"},
	"metrics.pushgateway_url": {"PUSHGATEWAY_URL"},
	"metrics.job":             {"PUSHGATEWAY_JOB"},
	"server.port":             {"PORT"},
	"server.auth_token":       {"AUTH_TOKEN"},
	"server.max_urls":         {"MAX_URLS"},
	"server.work_dir":         {"WORK_DIR"},
	"server.cleanup_interval": {"CLEANUP_INTERVAL"},
}

func DefaultConfig() Config {
	defaults := lighthouse.SettingsFor(lighthouse.Mobile)
	return Config{
		LogLevel: "info",
		Runner: RunnerConfig{
			Kind:           RunnerExec,
			Bin:            lighthouse.DefaultBin,
			Image:          lighthouse.DefaultImage,
			Namespace:      "default",
			Timeout:        3 * time.Minute,
			SettleTimeout:  30 * time.Second,
			PollInterval:   250 * time.Millisecond,
			OnlyCategories: defaults.OnlyCategories,
			ChromeFlags:    defaults.ChromeFlags,
		},
		Paths: PathsConfig{
			OutputRoot:     ".lighthouseci",
			MetricsDir:     "metrics",
			SummaryFile:    summary.DefaultPath,
			ResultsDir:     report.DefaultResultsDir,
			HTMLDir:        ".",
			MetadataInput:  metadata.DefaultInputFile,
			MetadataOutput: metadata.DefaultOutputFile,
		},
		Report: ReportConfig{
			Organisation: report.DefaultOrganisation,
		},
		Storage: StorageConfig{
			Bucket: storage.DefaultBucket,
		},
		Metrics: MetricsConfig{
			Job: "lighthouse_report",
		},
		Server: ServerConfig{
			Port:            "8080",
			MaxURLs:         5,
			CleanupInterval: cleanup.DefaultInterval,
		},
	}
}

type LoadOptions struct {
	// ConfigFile must exist when set; otherwise ./lighthouse-report.yaml is
	// read if present.
	ConfigFile string
	// Flags maps config keys to command-line flags overriding every other source.
	Flags map[string]*pflag.Flag
}

// Load returns the merged configuration and the config file used, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("runner.kind", defaults.Runner.Kind)
	v.SetDefault("runner.bin", defaults.Runner.Bin)
	v.SetDefault("runner.image", defaults.Runner.Image)
	v.SetDefault("runner.namespace", defaults.Runner.Namespace)
	v.SetDefault("runner.docker_host", defaults.Runner.DockerHost)
	v.SetDefault("runner.timeout", defaults.Runner.Timeout)
	v.SetDefault("runner.settle_timeout", defaults.Runner.SettleTimeout)
	v.SetDefault("runner.poll_interval", defaults.Runner.PollInterval)
	v.SetDefault("runner.only_categories", defaults.Runner.OnlyCategories)
	v.SetDefault("runner.chrome_flags", defaults.Runner.ChromeFlags)
	v.SetDefault("runner.extra_flags", defaults.Runner.ExtraFlags)
	v.SetDefault("paths.url_file", defaults.Paths.URLFile)
	v.SetDefault("paths.output_root", defaults.Paths.OutputRoot)
	v.SetDefault("paths.metrics_dir", defaults.Paths.MetricsDir)
	v.SetDefault("paths.summary_file", defaults.Paths.SummaryFile)
	v.SetDefault("paths.results_dir", defaults.Paths.ResultsDir)
	v.SetDefault("paths.html_dir", defaults.Paths.HTMLDir)
	v.SetDefault("paths.metadata_input", defaults.Paths.MetadataInput)
	v.SetDefault("paths.metadata_output", defaults.Paths.MetadataOutput)
	v.SetDefault("report.organisation", defaults.Report.Organisation)
	v.SetDefault("report.logo_path", defaults.Report.LogoPath)
	v.SetDefault("storage.service_url", defaults.Storage.ServiceURL)
	v.SetDefault("storage.access_key", defaults.Storage.AccessKey)
	v.SetDefault("storage.secret_key", defaults.Storage.SecretKey)
	v.SetDefault("storage.bucket", defaults.Storage.Bucket)
	v.SetDefault("storage.region", defaults.Storage.Region)
	v.SetDefault("telemetry.otlp_endpoint", defaults.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.sentry_dsn", defaults.Telemetry.SentryDSN)
	v.SetDefault("telemetry.environment", defaults.Telemetry.Environment)
	v.SetDefault("metrics.pushgateway_url", defaults.Metrics.PushgatewayURL)
	v.SetDefault("metrics.job", defaults.Metrics.Job)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.auth_token", defaults.Server.AuthToken)
	v.SetDefault("server.max_urls", defaults.Server.MaxURLs)
	v.SetDefault("server.work_dir", defaults.Server.WorkDir)
	v.SetDefault("server.cleanup_interval", defaults.Server.CleanupInterval)

	resolvedPath := ""
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
		resolvedPath = opts.ConfigFile
	} else {
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			resolvedPath = v.ConfigFileUsed()
		}
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, "", fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, "", fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolvedPath, nil
}

func (c *Config) Validate() error {
	switch c.Runner.Kind {
	case RunnerExec, RunnerDocker, RunnerKubernetes:
	default:
		return fmt.Errorf("unknown runner %q (want %s, %s or %s)", c.Runner.Kind, RunnerExec, RunnerDocker, RunnerKubernetes)
	}
	if c.Server.MaxURLs < 1 {
		return fmt.Errorf("server.max_urls must be positive, got %d", c.Server.MaxURLs)
	}
	return nil
}

// Settings returns the Lighthouse settings for a form factor with the
// configured categories and flags applied.
func (c RunnerConfig) Settings(ff lighthouse.FormFactor) lighthouse.Settings {
	s := lighthouse.SettingsFor(ff)
	if len(c.OnlyCategories) > 0 {
		s.OnlyCategories = append([]string(nil), c.OnlyCategories...)
	}
	if len(c.ChromeFlags) > 0 {
		s.ChromeFlags = append([]string(nil), c.ChromeFlags...)
	}
	s.ExtraFlags = append([]string(nil), c.ExtraFlags...)
	return s
}

func (c RunnerConfig) Options() lighthouse.Options {
	return lighthouse.Options{
		Timeout:       c.Timeout,
		PollInterval:  c.PollInterval,
		SettleTimeout: c.SettleTimeout,
	}
}

func (c StorageConfig) Settings() storage.Settings {
	return storage.Settings{
		ServiceURL: c.ServiceURL,
		AccessKey:  c.AccessKey,
		SecretKey:  c.SecretKey,
		Bucket:     c.Bucket,
		Region:     c.Region,
	}
}

func (c TelemetryConfig) Settings(version string) telemetry.Settings {
	return telemetry.Settings{
		ServiceName:  AppName,
		Version:      version,
		Environment:  c.Environment,
		OTLPEndpoint: c.OTLPEndpoint,
		SentryDSN:    c.SentryDSN,
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return strings.Repeat("*", 8)
	}
	c.Storage.SecretKey = mask(c.Storage.SecretKey)
	c.Storage.AccessKey = mask(c.Storage.AccessKey)
	c.Server.AuthToken = mask(c.Server.AuthToken)
	c.Telemetry.SentryDSN = mask(c.Telemetry.SentryDSN)
	return c
}
