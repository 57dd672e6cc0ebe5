package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models buildline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Conversion struct {
		InitialContractStatus string `yaml:"initial_contract_status"`
		ContractNumberPrefix  string `yaml:"contract_number_prefix"`
	} `yaml:"conversion"`
	Profiles map[string]Profile       `yaml:"profiles"`
	Choices  map[string][]ChoiceEntry `yaml:"choices"`
	Webhooks []WebhookConfig          `yaml:"webhooks"`
}

type Profile struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type ChoiceEntry struct {
	Code   string `yaml:"code"`
	Label  string `yaml:"label"`
	Active *bool  `yaml:"active"`
}

// IsActive defaults to true when unset.
func (c ChoiceEntry) IsActive() bool {
	return c.Active == nil || *c.Active
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Permissions known to the API. Profiles may only reference these.
var Permissions = []string{
	"catalog.read",
	"catalog.write",
	"project.read",
	"project.write",
	"execution.write",
	"lead.read",
	"lead.write",
	"lead.convert",
	"contract.read",
	"contract.write",
	"user.admin",
	"events.read",
}

func knownPermission(p string) bool {
	for _, k := range Permissions {
		if k == p {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, ok := c.Profiles["admin"]; !ok {
		return fmt.Errorf("config.profiles must include admin")
	}
	for id, p := range c.Profiles {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.profiles contains empty profile id")
		}
		for _, perm := range p.Permissions {
			if !knownPermission(perm) {
				return fmt.Errorf("profile %s references unknown permission %q", id, perm)
			}
		}
	}
	for domain, entries := range c.Choices {
		seen := map[string]struct{}{}
		for _, e := range entries {
			if e.Code == "" {
				return fmt.Errorf("choices.%s has empty code", domain)
			}
			if _, dup := seen[e.Code]; dup {
				return fmt.Errorf("choices.%s repeats code %s", domain, e.Code)
			}
			seen[e.Code] = struct{}{}
		}
	}
	if c.Conversion.InitialContractStatus == "" {
		return fmt.Errorf("config.conversion.initial_contract_status is required")
	}
	if c.Conversion.ContractNumberPrefix == "" {
		return fmt.Errorf("config.conversion.contract_number_prefix is required")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "buildline.yml")
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/v1"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

log:
  mode: development

conversion:
  initial_contract_status: DRAFT
  contract_number_prefix: CTR

profiles:
  admin:
    description: "Full access"
    permissions: [catalog.read, catalog.write, project.read, project.write, execution.write,
      lead.read, lead.write, lead.convert, contract.read, contract.write, user.admin, events.read]
  manager:
    description: "Construction manager"
    permissions: [catalog.read, catalog.write, project.read, project.write, execution.write,
      lead.read, contract.read, events.read]
  sales:
    description: "Sales team"
    permissions: [catalog.read, project.read, lead.read, lead.write, lead.convert,
      contract.read, contract.write]
  field:
    description: "Field supervisor"
    permissions: [catalog.read, project.read, execution.write]
  viewer:
    description: "Read only"
    permissions: [catalog.read, project.read, lead.read, contract.read]

choices:
  contract_status:
    - {code: DRAFT, label: "Draft"}
    - {code: ACTIVE, label: "Active"}
    - {code: COMPLETED, label: "Completed"}
    - {code: CANCELLED, label: "Cancelled"}
  lead_source:
    - {code: WEBSITE, label: "Website"}
    - {code: REFERRAL, label: "Referral"}
    - {code: REALTOR, label: "Realtor"}
    - {code: WALK_IN, label: "Walk-in"}
    - {code: OTHER, label: "Other"}

webhooks: []
`
