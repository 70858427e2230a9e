// Package metadata resolves the project metadata shown in the HTML report
// header and persists it to the hand-off file.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/shyim/lighthouse-report/internal/failure"
)

const (
	DefaultInputFile  = "config.json"
	DefaultOutputFile = "githubconfigsFile.json"

	// StructuredEnv holds a JSON object with any of the ConfigData keys.
	StructuredEnv = "LIGHTHOUSE_METADATA"
	InputFileEnv  = "METADATA_INPUT_FILE"
	OutputFileEnv = "METADATA_OUTPUT_FILE"
)

// ConfigData is the run metadata rendered in the report header.
type ConfigData struct {
	ProjectName      string `json:"projectName" mapstructure:"projectName"`
	Client           string `json:"client" mapstructure:"client"`
	ProjectManager   string `json:"projectManager" mapstructure:"projectManager"`
	QAManager        string `json:"qaManager" mapstructure:"qaManager"`
	ExpectedLoadTime string `json:"expectedLoadTime" mapstructure:"expectedLoadTime"`
}

// Defaults returns the named fallback for every key.
func Defaults() ConfigData {
	return ConfigData{
		ProjectName:      "DefaultProject",
		Client:           "DefaultClient",
		ProjectManager:   "DefaultPM",
		QAManager:        "DefaultQA",
		ExpectedLoadTime: "3 seconds",
	}
}

// envKeys maps each key to its individual environment variable.
var envKeys = []struct{ key, env string }{
	{"projectName", "PROJECT_NAME"},
	{"client", "CLIENT"},
	{"projectManager", "PROJECT_MANAGER"},
	{"qaManager", "QA_MANAGER"},
	{"expectedLoadTime", "EXPECTED_LOAD_TIME"},
}

// InputFile returns the fallback file path, honoring METADATA_INPUT_FILE.
func InputFile() string {
	if v := os.Getenv(InputFileEnv); v != "" {
		return v
	}
	return DefaultInputFile
}

// OutputFile returns the hand-off file path, honoring METADATA_OUTPUT_FILE.
func OutputFile() string {
	if v := os.Getenv(OutputFileEnv); v != "" {
		return v
	}
	return DefaultOutputFile
}

// Resolve merges, per key and in decreasing precedence: the individual
// environment variable, the structured LIGHTHOUSE_METADATA object, the
// fallback JSON file and the defaults. Malformed inputs are logged and skipped.
func Resolve(inputFile string, logger *log.Logger) (ConfigData, error) {
	v := viper.New()
	v.SetConfigType("json")

	defaults := Defaults()
	v.SetDefault("projectName", defaults.ProjectName)
	v.SetDefault("client", defaults.Client)
	v.SetDefault("projectManager", defaults.ProjectManager)
	v.SetDefault("qaManager", defaults.QAManager)
	v.SetDefault("expectedLoadTime", defaults.ExpectedLoadTime)

	if inputFile != "" {
		if f, err := os.Open(inputFile); err == nil {
			if err := v.ReadConfig(f); err != nil {
				logger.Warn("ignoring unreadable metadata file", "file", inputFile, "error", err)
			}
			f.Close()
		} else if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("ignoring metadata file", "file", inputFile, "error", err)
		} else {
			logger.Debug("no metadata file, using environment and defaults", "file", inputFile)
		}
	}

	if raw := os.Getenv(StructuredEnv); raw != "" {
		var structured map[string]any
		if err := json.Unmarshal([]byte(raw), &structured); err != nil {
			logger.Warn("ignoring malformed structured metadata", "env", StructuredEnv, "error", err)
		} else if err := v.MergeConfigMap(structured); err != nil {
			logger.Warn("ignoring structured metadata", "env", StructuredEnv, "error", err)
		}
	}

	for _, k := range envKeys {
		if err := v.BindEnv(k.key, k.env); err != nil {
			return ConfigData{}, fmt.Errorf("bind %s: %w", k.env, err)
		}
	}

	var cfg ConfigData
	if err := v.Unmarshal(&cfg); err != nil {
		return ConfigData{}, fmt.Errorf("decode metadata: %w", err)
	}
	logger.Debug("resolved metadata",
		"projectName", cfg.ProjectName,
		"client", cfg.Client,
		"projectManager", cfg.ProjectManager,
		"qaManager", cfg.QAManager,
		"expectedLoadTime", cfg.ExpectedLoadTime,
	)
	return cfg, nil
}

// Save writes the hand-off file.
func Save(path string, cfg ConfigData) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metadata dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Load reads the hand-off file. Keys absent from the file keep their defaults;
// a missing file returns the defaults with a missing-artifact error.
func Load(path string) (ConfigData, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, failure.New(failure.MissingArtifact, "read metadata", path, err)
		}
		return cfg, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return cfg, nil
}
