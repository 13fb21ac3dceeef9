package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "caregate.yml"

const (
	ScoringRecorded = "recorded"
	ScoringTenVs    = "tenvs"
)

// Config models caregate.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name,omitempty"`
	} `yaml:"org" json:"org"`
	Scoring struct {
		Mode string `yaml:"mode" json:"mode"`
	} `yaml:"scoring" json:"scoring"`
	Release struct {
		ReportKinds   []string `yaml:"report_kinds" json:"report_kinds"`
		AllowOverride bool     `yaml:"allow_override" json:"allow_override"`
	} `yaml:"release" json:"release"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
	Notify   struct {
		Redis RedisConfig `yaml:"redis" json:"redis"`
	} `yaml:"notify" json:"notify"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// RedisConfig enables the lockdown stream publisher when Addr is set.
type RedisConfig struct {
	Addr   string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Stream string `yaml:"stream,omitempty" json:"stream,omitempty"`
	MaxLen int64  `yaml:"max_len,omitempty" json:"max_len,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with cg config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Org.ID) == "" {
		return fmt.Errorf("config.org.id is required")
	}
	switch c.Scoring.Mode {
	case ScoringRecorded, ScoringTenVs:
	default:
		return fmt.Errorf("config.scoring.mode must be '%s' or '%s'", ScoringRecorded, ScoringTenVs)
	}
	if len(c.Release.ReportKinds) == 0 {
		return fmt.Errorf("config.release.report_kinds is required")
	}
	seen := map[string]bool{}
	for _, k := range c.Release.ReportKinds {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("config.release.report_kinds contains empty kind")
		}
		if seen[k] {
			return fmt.Errorf("config.release.report_kinds lists %s twice", k)
		}
		seen[k] = true
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	if c.Notify.Redis.MaxLen < 0 {
		return fmt.Errorf("config.notify.redis.max_len must be >= 0")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be 'json' or 'console'")
	}
	return nil
}

// ReportKindAllowed reports whether kind is a configured external report.
func (c *Config) ReportKindAllowed(kind string) bool {
	for _, k := range c.Release.ReportKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(orgID))).Decode(&cfg)
	cfg.Org.ID = orgID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  id: %s
  name: ""

scoring:
  # recorded: use the risk summary recorded on the case, falling back to
  # the 10-Vs engine when only an assessment exists.
  # tenvs: always derive risk from the latest assessment.
  mode: recorded

release:
  report_kinds:
    - attorney_summary
    - provider_report
    - payer_report
  allow_override: false

notify:
  redis:
    addr: ""
    stream: caregate:lockdown
    max_len: 10000

log:
  level: info
  format: json
`
