package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Attribution policies for a completion issued by an actor who is not
// among the task's assigned members.
const (
	MissingMemberReject = "reject"
	MissingMemberZero   = "zero"
)

// Config models worktally.yml.
type Config struct {
	Attribution struct {
		// OnMissingMember is "reject" (fail the completion) or "zero"
		// (apply it at rate 0 and record an anomaly event).
		OnMissingMember string `yaml:"on_missing_member"`
	} `yaml:"attribution"`
	Tasks struct {
		// EnforcePrerequisites blocks completion while prerequisite
		// tasks are incomplete. Off by default: prerequisites are
		// advisory unless the team opts in.
		EnforcePrerequisites bool `yaml:"enforce_prerequisites"`
	} `yaml:"tasks"`
	Engine struct {
		// MaxUpdateAttempts bounds optimistic-concurrency retries per
		// completion intent.
		MaxUpdateAttempts int `yaml:"max_update_attempts"`
	} `yaml:"engine"`
	Server struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig registers a URL that receives the full project snapshot
// after every committed change.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Projects       []string `yaml:"projects,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

const defaultMaxUpdateAttempts = 5

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Attribution.OnMissingMember {
	case MissingMemberReject, MissingMemberZero:
	default:
		return fmt.Errorf("config.attribution.on_missing_member must be %q or %q", MissingMemberReject, MissingMemberZero)
	}
	if c.Engine.MaxUpdateAttempts <= 0 {
		return fmt.Errorf("config.engine.max_update_attempts must be > 0")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Attribution.OnMissingMember = MissingMemberReject
	cfg.Engine.MaxUpdateAttempts = defaultMaxUpdateAttempts
	return &cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "worktally.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
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

// FromYAML parses and validates config from raw YAML bytes. Fields the
// file omits keep their defaults.
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
