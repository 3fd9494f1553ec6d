package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Server.Port != "4270" {
		t.Errorf("expected default port 4270, got %s", cfg.Server.Port)
	}
	if cfg.Jira.AuthType != "basic" {
		t.Errorf("expected default auth_type basic, got %s", cfg.Jira.AuthType)
	}
	if cfg.Dispatch.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Dispatch.MaxRetries)
	}
	if cfg.Dispatch.PageSize != 50 {
		t.Errorf("expected default page_size 50, got %d", cfg.Dispatch.PageSize)
	}
	if cfg.Dispatch.GetTimeout() != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.Dispatch.GetTimeout())
	}
	if cfg.Dispatch.GetPollInterval() != 2*time.Second {
		t.Errorf("expected default poll interval 2s, got %s", cfg.Dispatch.GetPollInterval())
	}
	if cfg.Dispatch.GetMaxWait() != 5*time.Minute {
		t.Errorf("expected default max wait 5m, got %s", cfg.Dispatch.GetMaxWait())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/jira-mcp.toml")
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Server.Port != "4270" {
		t.Errorf("expected default port 4270, got %s", cfg.Server.Port)
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = "9090"

[jira]
base_url = "https://example.atlassian.net"
email = "me@example.com"
api_token = "secret"

[dispatch]
timeout = "10s"
max_retries = 5
page_size = 100

[logging]
level = "debug"
`
	if err := os.WriteFile(tomlPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(tomlPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Jira.BaseURL != "https://example.atlassian.net" {
		t.Errorf("expected base URL from file, got %s", cfg.Jira.BaseURL)
	}
	if cfg.Dispatch.GetTimeout() != 10*time.Second {
		t.Errorf("expected timeout 10s, got %s", cfg.Dispatch.GetTimeout())
	}
	if cfg.Dispatch.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Dispatch.MaxRetries)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "partial.toml")

	// Only override the page size; everything else stays default.
	content := `
[dispatch]
page_size = 25
`
	if err := os.WriteFile(tomlPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(tomlPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Dispatch.PageSize != 25 {
		t.Errorf("expected page_size 25, got %d", cfg.Dispatch.PageSize)
	}
	if cfg.Dispatch.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Dispatch.MaxRetries)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "env.toml")

	content := `
[jira]
base_url = "https://file.atlassian.net"
email = "file@example.com"
api_token = "file-token"
`
	if err := os.WriteFile(tomlPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("JIRA_BASE_URL", "https://env.atlassian.net")
	t.Setenv("JIRA_API_TOKEN", "env-token")
	t.Setenv("JIRA_MCP_MAX_RETRIES", "7")

	cfg, err := LoadConfig(tomlPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Environment beats file.
	if cfg.Jira.BaseURL != "https://env.atlassian.net" {
		t.Errorf("expected env base URL, got %s", cfg.Jira.BaseURL)
	}
	if cfg.Jira.APIToken != "env-token" {
		t.Errorf("expected env token, got %s", cfg.Jira.APIToken)
	}
	if cfg.Dispatch.MaxRetries != 7 {
		t.Errorf("expected env max_retries 7, got %d", cfg.Dispatch.MaxRetries)
	}
	// Untouched values come from the file.
	if cfg.Jira.Email != "file@example.com" {
		t.Errorf("expected file email, got %s", cfg.Jira.Email)
	}
}

func TestLoadConfig_MalformedTOML(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(tomlPath, []byte("[jira\nbase_url = oops"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(tomlPath); err == nil {
		t.Error("expected error for malformed TOML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name: "valid basic",
			mutate: func(c *Config) {
				c.Jira.BaseURL = "https://example.atlassian.net"
				c.Jira.Email = "me@example.com"
				c.Jira.APIToken = "secret"
			},
		},
		{
			name: "valid bearer",
			mutate: func(c *Config) {
				c.Jira.BaseURL = "https://example.atlassian.net"
				c.Jira.AuthType = "bearer"
				c.Jira.APIToken = "secret"
			},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Jira.APIToken = "secret"; c.Jira.Email = "me@example.com" },
			wantErr: true,
		},
		{
			name: "basic without email",
			mutate: func(c *Config) {
				c.Jira.BaseURL = "https://example.atlassian.net"
				c.Jira.APIToken = "secret"
			},
			wantErr: true,
		},
		{
			name: "bearer without token",
			mutate: func(c *Config) {
				c.Jira.BaseURL = "https://example.atlassian.net"
				c.Jira.AuthType = "bearer"
			},
			wantErr: true,
		},
		{
			name: "unknown auth type",
			mutate: func(c *Config) {
				c.Jira.BaseURL = "https://example.atlassian.net"
				c.Jira.AuthType = "oauth"
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDispatchConfig_BadDurationFallsBack(t *testing.T) {
	c := DispatchConfig{Timeout: "soon", PollInterval: "", MaxWait: "later"}
	if c.GetTimeout() != 30*time.Second {
		t.Errorf("expected 30s fallback, got %s", c.GetTimeout())
	}
	if c.GetPollInterval() != 2*time.Second {
		t.Errorf("expected 2s fallback, got %s", c.GetPollInterval())
	}
	if c.GetMaxWait() != 5*time.Minute {
		t.Errorf("expected 5m fallback, got %s", c.GetMaxWait())
	}
}
