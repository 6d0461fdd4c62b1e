package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const fileName = "consentwallet.yml"

// Config models consentwallet.yml. It is read-only once loaded.
type Config struct {
	API struct {
		BaseURL       string        `yaml:"base_url" validate:"required,url"`
		Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
		V31DeployDate string        `yaml:"v31_deploy_date"`
	} `yaml:"api"`
	Auth struct {
		ItemNames             []string          `yaml:"item_names" validate:"dive,notblank"`
		ClientIDs             map[string]string `yaml:"client_ids"`
		Scope                 string            `yaml:"scope"`
		RedirectURL           string            `yaml:"redirect_url" validate:"omitempty,url"`
		PostLogoutRedirectURL string            `yaml:"post_logout_redirect_url" validate:"omitempty,url"`
	} `yaml:"auth"`
	ExternalDomains []string         `yaml:"external_domains" validate:"dive,url"`
	Enroll          []EnrollEndpoint `yaml:"enroll" validate:"dive"`
	Cache           struct {
		Size      int           `yaml:"size" validate:"gte=0"`
		TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
		StaleTime time.Duration `yaml:"stale_time" validate:"gte=0"`
	} `yaml:"cache"`
	Logging struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
		Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	} `yaml:"logging"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Errors struct {
		LogoutOnContractViolation bool `yaml:"logout_on_contract_violation"`
	} `yaml:"errors"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks" validate:"dive"`
	} `yaml:"notifications"`
}

// EnrollEndpoint is an enroller backend that creates records for new users.
type EnrollEndpoint struct {
	Name string `yaml:"name" validate:"notblank"`
	URL  string `yaml:"url" validate:"required,url"`
}

// WebhookConfig forwards journal events to an external receiver.
type WebhookConfig struct {
	URL            string   `yaml:"url" validate:"required,url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" validate:"gte=0"`
	Enabled        *bool    `yaml:"enabled"`
}

const (
	DefaultScope         = "openid embedded_wallet wallet"
	DefaultV31DeployDate = "2023-09-08T00:00:00.000Z"
	DefaultStaleTime     = 15 * time.Minute
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cw config init --api <url>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); errors.Is(statErr, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %s", errorMessage(err))
	}
	seen := map[string]struct{}{}
	for _, e := range c.Enroll {
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("config.enroll has duplicate name %s", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	if c.API.V31DeployDate != "" {
		if _, err := time.Parse(time.RFC3339, c.API.V31DeployDate); err != nil {
			return fmt.Errorf("config.api.v31_deploy_date: %w", err)
		}
	}
	for idp, id := range c.Auth.ClientIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("client id for idp %s is empty", idp)
		}
	}
	return nil
}

// ClientID returns the OAuth2 client id of an identity provider.
func (c *Config) ClientID(idpID string) (string, bool) {
	id, ok := c.Auth.ClientIDs[idpID]
	return id, ok
}

// ExternalDomainAllowed reports whether rawURL starts with an allow-listed prefix.
func (c *Config) ExternalDomainAllowed(rawURL string) bool {
	for _, d := range c.ExternalDomains {
		if d != "" && strings.HasPrefix(rawURL, d) {
			return true
		}
	}
	return false
}

// LegacyCutoff is the instant before which history items lack detail.
func (c *Config) LegacyCutoff() time.Time {
	raw := c.API.V31DeployDate
	if raw == "" {
		raw = DefaultV31DeployDate
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Overlay applies values set through viper (environment or bound flags)
// on top of the file config and re-validates.
func (c *Config) Overlay(v *viper.Viper) error {
	if v == nil {
		return nil
	}
	if v.IsSet("api.base_url") {
		c.API.BaseURL = v.GetString("api.base_url")
	}
	if v.IsSet("api.timeout") {
		c.API.Timeout = v.GetDuration("api.timeout")
	}
	if v.IsSet("logging.level") {
		c.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("logging.format") {
		c.Logging.Format = v.GetString("logging.format")
	}
	if v.IsSet("server.addr") {
		c.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("external_domains") {
		c.ExternalDomains = v.GetStringSlice("external_domains")
	}
	if v.IsSet("auth.item_names") {
		c.Auth.ItemNames = v.GetStringSlice("auth.item_names")
	}
	if v.IsSet("errors.logout_on_contract_violation") {
		c.Errors.LogoutOnContractViolation = v.GetBool("errors.logout_on_contract_violation")
	}
	c.applyDefaults()
	return c.Validate()
}

func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.V31DeployDate == "" {
		c.API.V31DeployDate = DefaultV31DeployDate
	}
	if c.Auth.Scope == "" {
		c.Auth.Scope = DefaultScope
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 256
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.StaleTime == 0 {
		c.Cache.StaleTime = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(apiBaseURL string) string {
	return fmt.Sprintf(defaultTemplate, apiBaseURL)
}

// Default returns the default Config for an API base url.
func Default(apiBaseURL string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(apiBaseURL))).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
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

func errorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Namespace())
	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid url", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

const defaultTemplate = `api:
  base_url: %s
  timeout: 10s
  v31_deploy_date: "2023-09-08T00:00:00.000Z"

auth:
  item_names: [SUOMIFI]
  client_ids: {}
  scope: "openid embedded_wallet wallet"
  redirect_url: http://127.0.0.1:8080/auth/callback

external_domains: []

enroll: []

cache:
  size: 256
  ttl: 1h
  stale_time: 30s

logging:
  level: info
  format: text

server:
  addr: 127.0.0.1:8080

errors:
  logout_on_contract_violation: false
`
