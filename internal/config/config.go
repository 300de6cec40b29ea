// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/galaxyrun/internal/log"
	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/httpclient"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

// BackendGalaxy is the only supported backend.
const BackendGalaxy = "galaxy"

// Config is the complete galaxyrun configuration. It is loaded once and not
// modified afterwards.
type Config struct {
	Galaxy         GalaxyConfig    `yaml:"galaxy"`
	Templates      TemplatesConfig `yaml:"templates"`
	Upload         UploadConfig    `yaml:"upload"`
	Execution      ExecutionConfig `yaml:"execution"`
	SettleDelay    time.Duration   `yaml:"settle_delay"`
	Download       DownloadConfig  `yaml:"download"`
	DiagnosticPath string          `yaml:"diagnostic_path,omitempty"`
	HTTP           HTTPConfig      `yaml:"http"`
	Log            LogConfig       `yaml:"log"`
	Store          StoreConfig     `yaml:"store"`
}

// GalaxyConfig identifies the server.
type GalaxyConfig struct {
	// URL is the server base URL.
	// Environment: GALAXY_URL
	URL string `yaml:"url,omitempty"`

	// APIKey may be a literal key or a keyring:, env: or file: reference.
	// Environment: GALAXY_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// DefaultHistory names histories created for runs.
	// Environment: GALAXY_HISTORY
	DefaultHistory string `yaml:"default_history,omitempty"`

	// CredentialsFile is a properties, YAML or env file with galaxy.url,
	// galaxy.key and galaxy.history. Values in this section win.
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// Backend selects the engine implementation. Only "galaxy".
	Backend string `yaml:"backend,omitempty"`
}

// TemplatesConfig locates template documents and tool definitions.
type TemplatesConfig struct {
	Dir    string `yaml:"dir"`
	Suffix string `yaml:"suffix"`

	// ToolCatalog is the tool_conf.xml style catalog. Definition paths are
	// relative to its tool_path attribute, or to its own directory.
	ToolCatalog string `yaml:"tool_catalog,omitempty"`
}

// UploadConfig bounds the wait for uploads and picks their datatypes.
type UploadConfig struct {
	MaxAttempts int                     `yaml:"max_attempts"`
	Interval    time.Duration           `yaml:"interval"`
	DefaultType string                  `yaml:"default_type"`
	TypeRules   []orchestrator.TypeRule `yaml:"type_rules,omitempty"`
}

// ExecutionConfig bounds the wait for a launched workflow.
type ExecutionConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// DownloadConfig sets run output defaults.
type DownloadConfig struct {
	Auto bool   `yaml:"auto"`
	Dir  string `yaml:"dir,omitempty"`
}

// HTTPConfig configures the REST client.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	UserAgent         string        `yaml:"user_agent,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	// Path of the SQLite file. Empty means runs.db in the data directory.
	Path string `yaml:"path,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	orch := orchestrator.DefaultConfig()
	httpc := httpclient.DefaultConfig()
	return &Config{
		Galaxy: GalaxyConfig{Backend: BackendGalaxy},
		Templates: TemplatesConfig{
			Dir:    orch.TemplatesDir,
			Suffix: orch.TemplateSuffix,
		},
		Upload: UploadConfig{
			MaxAttempts: orch.UploadAttempts,
			Interval:    orch.UploadInterval,
			DefaultType: orch.DefaultType,
		},
		Execution: ExecutionConfig{
			MaxAttempts: orch.ExecutionAttempts,
			Interval:    orch.ExecutionInterval,
		},
		SettleDelay: 2 * time.Second,
		Download:    DownloadConfig{Auto: orch.AutoDownload},
		HTTP: HTTPConfig{
			Timeout:       httpc.Timeout,
			RetryAttempts: httpc.RetryAttempts,
			UserAgent:     httpc.UserAgent,
		},
		Log: LogConfig{Level: "info", Format: string(log.FormatText)},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty), and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &errors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file at DefaultPath when it exists, and only
// defaults and environment otherwise.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Load("")
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

// applyDefaults fills zero values so minimal files work.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Galaxy.Backend == "" {
		c.Galaxy.Backend = d.Galaxy.Backend
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = d.Templates.Dir
	}
	if c.Templates.Suffix == "" {
		c.Templates.Suffix = d.Templates.Suffix
	}
	if c.Upload.MaxAttempts == 0 {
		c.Upload.MaxAttempts = d.Upload.MaxAttempts
	}
	if c.Upload.DefaultType == "" {
		c.Upload.DefaultType = d.Upload.DefaultType
	}
	if c.Execution.MaxAttempts == 0 {
		c.Execution.MaxAttempts = d.Execution.MaxAttempts
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = d.HTTP.Timeout
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = d.HTTP.UserAgent
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("GALAXY_URL"); val != "" {
		c.Galaxy.URL = val
	}
	if val := os.Getenv("GALAXY_API_KEY"); val != "" {
		c.Galaxy.APIKey = val
	}
	if val := os.Getenv("GALAXY_HISTORY"); val != "" {
		c.Galaxy.DefaultHistory = val
	}
	if val := os.Getenv("GALAXYRUN_CREDENTIALS"); val != "" {
		c.Galaxy.CredentialsFile = val
	}
	if val := os.Getenv("GALAXYRUN_TEMPLATES_DIR"); val != "" {
		c.Templates.Dir = val
	}
	if val := os.Getenv("GALAXYRUN_DOWNLOAD_DIR"); val != "" {
		c.Download.Dir = val
	}
	if val := os.Getenv("GALAXYRUN_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("GALAXYRUN_EXECUTION_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Execution.MaxAttempts = n
		}
	}
	if val := os.Getenv("GALAXYRUN_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.HTTP.Timeout = d
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks the configuration. Galaxy credentials are checked
// separately by Credentials, since not every command needs them.
func (c *Config) Validate() error {
	var errs []string

	if c.Galaxy.Backend != BackendGalaxy {
		return &errors.ConfigError{
			Key:    "galaxy.backend",
			Reason: fmt.Sprintf("unsupported backend %q (supported: %s)", c.Galaxy.Backend, BackendGalaxy),
		}
	}
	if c.Upload.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("upload.max_attempts must be at least 1, got %d", c.Upload.MaxAttempts))
	}
	if c.Execution.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("execution.max_attempts must be at least 1, got %d", c.Execution.MaxAttempts))
	}
	if c.Upload.Interval < 0 || c.Execution.Interval < 0 || c.SettleDelay < 0 {
		errs = append(errs, "intervals and settle_delay must not be negative")
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("http.timeout must be positive, got %v", c.HTTP.Timeout))
	}
	if c.HTTP.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("http.retry_attempts must not be negative, got %d", c.HTTP.RetryAttempts))
	}
	if c.HTTP.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("http.requests_per_second must not be negative, got %v", c.HTTP.RequestsPerSecond))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	switch log.Format(c.Log.Format) {
	case log.FormatJSON, log.FormatText:
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}
	for i, rule := range c.Upload.TypeRules {
		if rule.When == "" || rule.Type == "" {
			errs = append(errs, fmt.Sprintf("upload.type_rules[%d] needs when and type", i))
		}
	}

	if len(errs) > 0 {
		return &errors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed: " + strings.Join(errs, "; "),
		}
	}
	return nil
}

// Orchestrator returns the orchestrator settings. history is the default
// history name from the credentials, used when the config sets none.
func (c *Config) Orchestrator(history string) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.ContainerName = c.Galaxy.DefaultHistory
	if cfg.ContainerName == "" {
		cfg.ContainerName = history
	}
	cfg.TemplatesDir = c.Templates.Dir
	cfg.TemplateSuffix = c.Templates.Suffix
	cfg.UploadAttempts = c.Upload.MaxAttempts
	cfg.UploadInterval = c.Upload.Interval
	cfg.ExecutionAttempts = c.Execution.MaxAttempts
	cfg.ExecutionInterval = c.Execution.Interval
	cfg.DefaultType = c.Upload.DefaultType
	cfg.TypeRules = c.Upload.TypeRules
	cfg.DiagnosticPath = c.DiagnosticPath
	cfg.AutoDownload = c.Download.Auto
	cfg.DownloadDir = c.Download.Dir
	return cfg
}

// HTTPClient returns the REST client settings for the given key.
func (c *Config) HTTPClient(apiKey string) httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.HTTP.Timeout
	cfg.RetryAttempts = c.HTTP.RetryAttempts
	cfg.RequestsPerSecond = c.HTTP.RequestsPerSecond
	cfg.UserAgent = c.HTTP.UserAgent
	cfg.APIKey = apiKey
	return cfg
}

// Logging returns the logger settings.
func (c *Config) Logging() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// StorePath returns the run history database path.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return expandHome(c.Store.Path)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
