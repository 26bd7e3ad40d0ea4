package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"maintline/internal/daterange"
)

// Config models maintline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Calendar struct {
		Timezone  string `yaml:"timezone"`
		WeekStart string `yaml:"week_start"`
	} `yaml:"calendar"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Telemetry struct {
		Metrics   bool   `yaml:"metrics"`
		Tracing   bool   `yaml:"tracing"`
		Namespace string `yaml:"namespace"`
	} `yaml:"telemetry"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var logLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with maintline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, ok := weekdays[strings.ToLower(c.Calendar.WeekStart)]; !ok {
		return fmt.Errorf("config.calendar.week_start %q is not a weekday", c.Calendar.WeekStart)
	}
	if !logLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("config.logging.level %q is not supported", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("config.logging.format must be 'json' or 'console'")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %s has negative timeout", hook.URL)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %s has empty event filter", hook.URL)
			}
		}
	}
	return nil
}

// Location resolves the configured timezone; empty means the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Calendar.Timezone == "" || strings.EqualFold(c.Calendar.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.calendar.timezone: %w", err)
	}
	return loc, nil
}

// BuildCalendar builds the range calculator the engine uses.
func (c *Config) BuildCalendar() (daterange.Calendar, error) {
	loc, err := c.Location()
	if err != nil {
		return daterange.Calendar{}, err
	}
	wd, ok := weekdays[strings.ToLower(c.Calendar.WeekStart)]
	if !ok {
		return daterange.Calendar{}, fmt.Errorf("config.calendar.week_start %q is not a weekday", c.Calendar.WeekStart)
	}
	return daterange.Calendar{Location: loc, WeekStart: wd}, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "maintline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from
// the document keep their default values.
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
  addr: 127.0.0.1:8080
  base_path: /v1

database:
  path: .maintline/maintline.db

calendar:
  timezone: Local
  week_start: sunday

logging:
  level: info
  format: console

telemetry:
  metrics: true
  tracing: false
  namespace: maintline

auth:
  jwt_secret: ""

webhooks: []
`
