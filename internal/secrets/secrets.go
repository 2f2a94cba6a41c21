// Package secrets loads credentials kept outside the project config: the
// default ClickHouse token, the profile encryption key, the Slack webhook
// and object storage keys.
package secrets

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSecretsDir is the default directory for secrets
	DefaultSecretsDir = ".secrets"
	// DefaultSecretsFile is the default filename for secrets
	DefaultSecretsFile = "chfile.yaml"
	// SecretsFileEnvVar allows overriding the secrets file location
	SecretsFileEnvVar = "CHFILE_SECRETS_FILE"
	// SecureDirMode is the permission mode for the secrets directory
	SecureDirMode = 0700
	// SecureFileMode is the permission mode for the secrets file
	SecureFileMode = 0600
)

// Config represents the complete secrets configuration
type Config struct {
	ClickHouse    ClickHouseSecrets   `yaml:"clickhouse"`
	Encryption    EncryptionConfig    `yaml:"encryption"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Storage       StorageSecrets      `yaml:"storage"`
}

// ClickHouseSecrets fill in connection fields a config or job leaves empty.
type ClickHouseSecrets struct {
	User     string `yaml:"user,omitempty"`
	JWTToken string `yaml:"jwt_token,omitempty"`
}

// EncryptionConfig holds encryption-related secrets
type EncryptionConfig struct {
	MasterKey string `yaml:"master_key"`
}

// NotificationsConfig holds notification service credentials
type NotificationsConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig holds Slack webhook configuration
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// StorageSecrets are the S3 keys for the export sink.
type StorageSecrets struct {
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configErr    error
)

// Load loads the secrets configuration from the default or override location.
// It caches the result and returns the same config on subsequent calls.
func Load() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, configErr = loadFromFile()
	})
	return globalConfig, configErr
}

// LoadOptional is Load, except a missing file yields an empty config.
func LoadOptional() (*Config, error) {
	cfg, err := Load()
	if _, ok := err.(*SecretsNotFoundError); ok {
		return &Config{}, nil
	}
	return cfg, err
}

// Reset clears the cached config (useful for testing)
func Reset() {
	configOnce = sync.Once{}
	globalConfig = nil
	configErr = nil
}

// GetSecretsPath returns the path to the secrets file
func GetSecretsPath() string {
	if envPath := os.Getenv(SecretsFileEnvVar); envPath != "" {
		return envPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultSecretsDir, DefaultSecretsFile)
	}
	return filepath.Join(homeDir, DefaultSecretsDir, DefaultSecretsFile)
}

// EnsureSecretsDir creates the secrets directory with secure permissions if it doesn't exist
func EnsureSecretsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	secretsDir := filepath.Join(homeDir, DefaultSecretsDir)

	info, err := os.Stat(secretsDir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(secretsDir, SecureDirMode); err != nil {
			return "", fmt.Errorf("creating secrets directory: %w", err)
		}
		return secretsDir, nil
	} else if err != nil {
		return "", fmt.Errorf("checking secrets directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%s exists but is not a directory", secretsDir)
	}

	return secretsDir, nil
}

func loadFromFile() (*Config, error) {
	path := GetSecretsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SecretsNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	// Reject files other users can read.
	info, err := os.Stat(path)
	if err == nil {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			return nil, fmt.Errorf("secrets file %s has insecure permissions (%04o). "+
				"Other users can read your tokens. Run: chmod 600 %s", path, mode, path)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if k := c.Encryption.MasterKey; k != "" && len(k) < 16 {
		return fmt.Errorf("encryption.master_key must be at least 16 characters")
	}
	if w := c.Notifications.Slack.WebhookURL; w != "" {
		u, err := url.Parse(w)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("notifications.slack.webhook_url must be an https URL")
		}
	}
	if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.access_key and storage.secret_key must be set together")
	}
	return nil
}

// GetMasterKey returns the encryption master key
func (c *Config) GetMasterKey() string {
	return c.Encryption.MasterKey
}

// SecretsNotFoundError is returned when the secrets file doesn't exist
type SecretsNotFoundError struct {
	Path string
}

func (e *SecretsNotFoundError) Error() string {
	return fmt.Sprintf(`secrets file not found: %s

To create a secrets file, run:
  chfile init-secrets

Or create %s manually with:

clickhouse:
  jwt_token: "your-token"

encryption:
  master_key: "your-master-key"
`, e.Path, e.Path)
}

// GenerateTemplate returns a template secrets file content
func GenerateTemplate() string {
	return `# chfile secrets
# Keep this file out of version control.
# Permissions must be restricted: chmod 600 ~/.secrets/chfile.yaml

clickhouse:
  # user: "default"
  jwt_token: ""        # used when a config or job omits one

encryption:
  master_key: ""       # encrypts saved profiles; generate with: openssl rand -base64 32

notifications:
  slack:
    webhook_url: ""    # posts a message when an ingestion finishes

storage:
  access_key: ""       # S3 keys for output.s3
  secret_key: ""
`
}
