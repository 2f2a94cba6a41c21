package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeSecrets(t *testing.T, content string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("Failed to write test secrets file: %v", err)
	}
	os.Chmod(path, mode)
	t.Setenv(SecretsFileEnvVar, path)
	Reset()
	t.Cleanup(Reset)
}

func TestLoadSecretsFile(t *testing.T) {
	writeSecrets(t, `
clickhouse:
  jwt_token: "tok-123"
encryption:
  master_key: "0123456789abcdef0123"
notifications:
  slack:
    webhook_url: "https://hooks.slack.com/services/T/B/X"
storage:
  access_key: "ak"
  secret_key: "sk"
`, 0600)

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load secrets: %v", err)
	}
	if config.ClickHouse.JWTToken != "tok-123" {
		t.Errorf("jwt_token = %q", config.ClickHouse.JWTToken)
	}
	if config.GetMasterKey() != "0123456789abcdef0123" {
		t.Errorf("master key = %q", config.GetMasterKey())
	}
	if config.Notifications.Slack.WebhookURL == "" {
		t.Error("webhook not loaded")
	}
	if config.Storage.AccessKey != "ak" {
		t.Errorf("access key = %q", config.Storage.AccessKey)
	}

	again, _ := Load()
	if again != config {
		t.Error("Load should return the cached config")
	}
}

func TestInsecurePermissions(t *testing.T) {
	writeSecrets(t, "encryption:\n  master_key: \"0123456789abcdef\"\n", 0644)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("expected insecure permissions error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty", "", false},
		{"short master key", "encryption:\n  master_key: short\n", true},
		{"http webhook", "notifications:\n  slack:\n    webhook_url: http://example.com/hook\n", true},
		{"half storage keys", "storage:\n  access_key: ak\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			if err := yaml.Unmarshal([]byte(tt.content), &c); err != nil {
				t.Fatal(err)
			}
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSecretsNotFound(t *testing.T) {
	t.Setenv(SecretsFileEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	Reset()
	t.Cleanup(Reset)

	_, err := Load()
	if _, ok := err.(*SecretsNotFoundError); !ok {
		t.Fatalf("expected SecretsNotFoundError, got %T: %v", err, err)
	}

	Reset()
	cfg, err := LoadOptional()
	if err != nil || cfg == nil {
		t.Fatalf("LoadOptional() = %v, %v", cfg, err)
	}
}

func TestGetSecretsPathOverride(t *testing.T) {
	t.Setenv(SecretsFileEnvVar, "/custom/path.yaml")
	if got := GetSecretsPath(); got != "/custom/path.yaml" {
		t.Errorf("GetSecretsPath() = %q", got)
	}
}

func TestGenerateTemplateParses(t *testing.T) {
	var c Config
	if err := yaml.Unmarshal([]byte(GenerateTemplate()), &c); err != nil {
		t.Fatalf("template is not valid YAML: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("template does not validate: %v", err)
	}
}
