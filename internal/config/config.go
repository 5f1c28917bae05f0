package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models humantask.yml.
type Config struct {
	Server struct {
		HTTPAddr     string `yaml:"http_addr"`
		ProtocolAddr string `yaml:"protocol_addr"`
		BasePath     string `yaml:"base_path"`
	} `yaml:"server"`
	Lifecycle struct {
		// HoldUnassigned keeps tasks without potential owners in Created
		// until they are nominated or activated.
		HoldUnassigned bool `yaml:"hold_unassigned"`
	} `yaml:"lifecycle"`
	Auth struct {
		JWTSecret          string `yaml:"jwt_secret"`
		AllowHeaderActor   bool   `yaml:"allow_header_actor"`
		DevTokenTTLMinutes int    `yaml:"dev_token_ttl_minutes"`
	} `yaml:"auth"`
	Client struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"client"`
	Storage struct {
		BusyTimeoutMS int `yaml:"busy_timeout_ms"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is a process-engine endpoint notified of terminal task events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// ClientTimeout is how long blocking protocol calls wait for a response.
func (c *Config) ClientTimeout() time.Duration {
	if c.Client.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ht config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or defaults if the file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Client.TimeoutSeconds < 0 {
		return fmt.Errorf("config.client.timeout_seconds must not be negative")
	}
	if c.Storage.BusyTimeoutMS < 0 {
		return fmt.Errorf("config.storage.busy_timeout_ms must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is invalid", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format %q is invalid", c.Log.Format)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook %d has invalid url %q", i, hook.URL)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d timeout must not be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %d has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "humantask.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  http_addr: 127.0.0.1:8080
  protocol_addr: 127.0.0.1:9123
  base_path: /v1

lifecycle:
  hold_unassigned: false

auth:
  jwt_secret: ""
  allow_header_actor: false
  dev_token_ttl_minutes: 60

client:
  timeout_seconds: 10

storage:
  busy_timeout_ms: 10000

log:
  level: info
  format: text

webhooks: []
`
