package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all jira-mcp configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Jira     JiraConfig     `toml:"jira"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Name string `toml:"name"`
	Port string `toml:"port"`
}

// JiraConfig holds the Jira Cloud connection settings. AuthType selects how
// credentials are attached: "basic" (email + API token) or "bearer".
type JiraConfig struct {
	BaseURL  string `toml:"base_url"`
	Email    string `toml:"email"`
	APIToken string `toml:"api_token"`
	AuthType string `toml:"auth_type"`
}

// DispatchConfig tunes the request executor and pagination/polling defaults.
type DispatchConfig struct {
	Timeout      string `toml:"timeout"`       // per HTTP call
	MaxRetries   int    `toml:"max_retries"`   // transient-error retry budget
	PageSize     int    `toml:"page_size"`     // default page size for paginated operations
	MaxPages     int    `toml:"max_pages"`     // safety cap for collected pagination walks
	PollInterval string `toml:"poll_interval"` // default async task poll interval
	MaxWait      string `toml:"max_wait"`      // default async task polling deadline
}

// GetTimeout parses and returns the per-request timeout duration.
func (c *DispatchConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetPollInterval parses and returns the default async poll interval.
func (c *DispatchConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetMaxWait parses and returns the default async polling deadline.
func (c *DispatchConfig) GetMaxWait() time.Duration {
	d, err := time.ParseDuration(c.MaxWait)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// CatalogConfig points at the operation catalogue document. An empty path
// selects the embedded default catalogue.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "Jira-MCP",
			Port: "4270",
		},
		Jira: JiraConfig{
			AuthType: "basic",
		},
		Dispatch: DispatchConfig{
			Timeout:      "30s",
			MaxRetries:   3,
			PageSize:     50,
			MaxPages:     20,
			PollInterval: "2s",
			MaxWait:      "5m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Outputs:    []string{"console", "file"},
			FilePath:   "logs/jira-mcp.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from a TOML file with defaults and
// environment overrides. A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Environment always beats file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JIRA_BASE_URL"); v != "" {
		cfg.Jira.BaseURL = v
	}
	if v := os.Getenv("JIRA_EMAIL"); v != "" {
		cfg.Jira.Email = v
	}
	if v := os.Getenv("JIRA_API_TOKEN"); v != "" {
		cfg.Jira.APIToken = v
	}
	if v := os.Getenv("JIRA_AUTH_TYPE"); v != "" {
		cfg.Jira.AuthType = v
	}
	if v := os.Getenv("JIRA_MCP_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("JIRA_MCP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("JIRA_MCP_CATALOG"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("JIRA_MCP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Dispatch.MaxRetries = n
		}
	}
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.Jira.BaseURL == "" {
		return fmt.Errorf("jira base_url is required (set jira.base_url or JIRA_BASE_URL)")
	}
	switch c.Jira.AuthType {
	case "basic":
		if c.Jira.Email == "" || c.Jira.APIToken == "" {
			return fmt.Errorf("basic auth requires jira.email and jira.api_token")
		}
	case "bearer":
		if c.Jira.APIToken == "" {
			return fmt.Errorf("bearer auth requires jira.api_token")
		}
	default:
		return fmt.Errorf("unsupported auth_type %q (expected basic or bearer)", c.Jira.AuthType)
	}
	return nil
}
