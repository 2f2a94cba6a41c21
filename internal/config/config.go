// Package config loads chfile.yaml and job files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johndauphine/chfile/internal/blob"
	"github.com/johndauphine/chfile/internal/client"
	"github.com/johndauphine/chfile/internal/executor"
	"github.com/johndauphine/chfile/internal/logging"
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/secrets"
	"github.com/johndauphine/chfile/internal/sink"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "chfile.yaml"

// Environment overrides.
const (
	EnvBaseURL  = "CHFILE_BASE_URL"
	EnvLogLevel = "CHFILE_LOG_LEVEL"
	EnvStateDir = "CHFILE_STATE_DIR"
)

// Config is the tool configuration.
type Config struct {
	Server        ServerConfig           `yaml:"server"`
	ClickHouse    model.ConnectionConfig `yaml:"clickhouse"`
	File          model.FileConfig       `yaml:"file"`
	Execution     ExecutionConfig        `yaml:"execution"`
	Output        OutputConfig           `yaml:"output"`
	Logging       LoggingConfig          `yaml:"logging"`
	State         StateConfig            `yaml:"state"`
	Notifications NotificationsConfig    `yaml:"notifications"`

	path string
}

// ServerConfig locates the ingestion service.
type ServerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ExecutionConfig tunes the progress indicator shown during a transfer.
type ExecutionConfig struct {
	ProgressInterval time.Duration `yaml:"progress_interval"`
	ProgressStep     int           `yaml:"progress_step"`
	ProgressCeiling  int           `yaml:"progress_ceiling"`
}

// OutputConfig says where export payloads go.
type OutputConfig struct {
	Dir      string        `yaml:"dir"`
	Compress string        `yaml:"compress"`
	S3       sink.S3Config `yaml:"s3"`
}

// LoggingConfig sets the logger up.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StateConfig locates run history and saved profiles.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// NotificationsConfig enables completion messages.
type NotificationsConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig is the Slack webhook target. The webhook URL is normally
// kept in the secrets file.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	OnSuccess  bool   `yaml:"on_success"`
	OnFailure  bool   `yaml:"on_failure"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: client.DefaultBaseURL,
			Timeout: 5 * time.Minute,
		},
		ClickHouse: model.DefaultConnection(),
		File:       model.DefaultFileConfig(),
		Execution: ExecutionConfig{
			ProgressInterval: 500 * time.Millisecond,
			ProgressStep:     10,
			ProgressCeiling:  90,
		},
		Output: OutputConfig{
			Dir:      ".",
			Compress: string(sink.CompressNone),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Notifications: NotificationsConfig{
			Slack: SlackConfig{OnSuccess: true, OnFailure: true},
		},
	}
}

// Load reads path. An empty path loads ./chfile.yaml when present and
// the defaults otherwise. ${VAR} references in the file are expanded.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// LoadBytes parses a config document over the defaults.
func LoadBytes(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the config was read from, or "".
func (c *Config) Path() string { return c.path }

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		c.State.Dir = v
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url %q must be an http(s) URL", c.Server.BaseURL)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	e := c.Execution
	if e.ProgressInterval <= 0 {
		return fmt.Errorf("execution.progress_interval must be positive")
	}
	if e.ProgressStep <= 0 || e.ProgressStep >= 100 {
		return fmt.Errorf("execution.progress_step must be between 1 and 99")
	}
	if e.ProgressCeiling <= 0 || e.ProgressCeiling >= 100 {
		return fmt.Errorf("execution.progress_ceiling must be between 1 and 99")
	}
	if _, err := sink.ParseCompression(c.Output.Compress); err != nil {
		return fmt.Errorf("output.compress: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	if c.File.Encoding != "" {
		if _, err := blob.LookupEncoding(c.File.Encoding); err != nil {
			return fmt.Errorf("file.encoding: %w", err)
		}
	}
	return nil
}

// ApplySecrets fills credentials the config leaves empty.
func (c *Config) ApplySecrets(s *secrets.Config) {
	if s == nil {
		return
	}
	if c.ClickHouse.JWTToken == "" {
		c.ClickHouse.JWTToken = s.ClickHouse.JWTToken
	}
	if s.ClickHouse.User != "" && (c.ClickHouse.User == "" || c.ClickHouse.User == "default") {
		c.ClickHouse.User = s.ClickHouse.User
	}
	if c.Notifications.Slack.WebhookURL == "" {
		c.Notifications.Slack.WebhookURL = s.Notifications.Slack.WebhookURL
	}
	if c.Output.S3.AccessKey == "" {
		c.Output.S3.AccessKey = s.Storage.AccessKey
		c.Output.S3.SecretKey = s.Storage.SecretKey
	}
}

// Compression returns the parsed output compression.
func (c *Config) Compression() sink.Compression {
	comp, _ := sink.ParseCompression(c.Output.Compress)
	return comp
}

// Sink builds the export sink: S3 when a bucket is configured, the
// output directory otherwise.
func (c *Config) Sink() (sink.Sink, error) {
	if c.Output.S3.Enabled() {
		return sink.NewS3(c.Output.S3, c.Compression())
	}
	return sink.NewLocal(c.Output.Dir, c.Compression()), nil
}

// ExecutorOptions returns the progress settings.
func (c *Config) ExecutorOptions() executor.Options {
	return executor.Options{
		Interval: c.Execution.ProgressInterval,
		Step:     c.Execution.ProgressStep,
		Ceiling:  c.Execution.ProgressCeiling,
	}
}

// StateDir returns where history and profiles live, defaulting to
// ~/.chfile.
func (c *Config) StateDir() string {
	if c.State.Dir != "" {
		return c.State.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chfile"
	}
	return filepath.Join(home, ".chfile")
}

// Redacted renders the config as YAML with secrets masked.
func (c *Config) Redacted() string {
	cp := *c
	if cp.ClickHouse.JWTToken != "" {
		cp.ClickHouse.JWTToken = "****"
	}
	if cp.Output.S3.SecretKey != "" {
		cp.Output.S3.SecretKey = "****"
	}
	if cp.Notifications.Slack.WebhookURL != "" {
		cp.Notifications.Slack.WebhookURL = "****"
	}
	data, _ := yaml.Marshal(&cp)
	return string(data)
}
