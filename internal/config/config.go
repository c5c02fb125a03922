package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"missionctl/internal/domain"
)

const (
	defaultMissionType    = "document_retrieval"
	defaultPriority       = "medium"
	defaultRecentWindow   = 10
	defaultConfigFileName = "missionctl.yml"
)

// Config models missionctl.yml.
type Config struct {
	Defaults struct {
		MissionType string `yaml:"mission_type"`
		Priority    string `yaml:"priority"`
	} `yaml:"defaults"`
	Detail struct {
		RecentActivities int `yaml:"recent_activities"`
	} `yaml:"detail"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Types          []string `yaml:"types,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Defaults.MissionType = defaultMissionType
	cfg.Defaults.Priority = defaultPriority
	cfg.Detail.RecentActivities = defaultRecentWindow
	return cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".missionctl", defaultConfigFileName)
}

// Load reads config from the workspace, falling back to defaults when
// no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !domain.ValidMissionType(c.Defaults.MissionType) {
		return fmt.Errorf("config.defaults.mission_type %q is not a known mission type", c.Defaults.MissionType)
	}
	if !domain.ValidPriority(c.Defaults.Priority) {
		return fmt.Errorf("config.defaults.priority %q is not a known priority", c.Defaults.Priority)
	}
	if c.Detail.RecentActivities < 0 {
		return fmt.Errorf("config.detail.recent_activities must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, t := range hook.Types {
			if !domain.ValidActivityType(t) {
				return fmt.Errorf("config.webhooks[%d].types: %q is not a known activity type", i, t)
			}
		}
	}
	return nil
}

// DefaultMissionType returns the mission type used when a create
// request omits one.
func (c *Config) DefaultMissionType() string {
	if c == nil || c.Defaults.MissionType == "" {
		return defaultMissionType
	}
	return c.Defaults.MissionType
}

// DefaultPriority returns the priority used when a create request
// omits one.
func (c *Config) DefaultPriority() string {
	if c == nil || c.Defaults.Priority == "" {
		return defaultPriority
	}
	return c.Defaults.Priority
}

// RecentActivityWindow caps the activity list embedded in the mission
// detail view.
func (c *Config) RecentActivityWindow() int {
	if c == nil || c.Detail.RecentActivities <= 0 {
		return defaultRecentWindow
	}
	return c.Detail.RecentActivities
}
