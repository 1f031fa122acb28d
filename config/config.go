package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/viewstate/registry"
)

var (
	// ErrNoRules is returned when a configuration declares no rules at all.
	ErrNoRules = errors.New("config declares no rules")
	// ErrEmptyStart is returned for rules without a start event.
	ErrEmptyStart = errors.New("rule start event must not be empty")
	// ErrEmptyTarget is returned for blank reset or error event ids.
	ErrEmptyTarget = errors.New("rule target event must not be empty")
	// ErrPayloadWithoutError is returned when error_payload is set on a rule without error events.
	ErrPayloadWithoutError = errors.New("error_payload requires at least one error event")
	// ErrConflictingPayload is returned when two rules assign different payload expressions to one error event.
	ErrConflictingPayload = errors.New("conflicting error_payload expressions")
	// ErrInvalidMQTT is returned for an enabled MQTT source that cannot be used.
	ErrInvalidMQTT = errors.New("invalid mqtt source")
)

// Duration wraps time.Duration to support unmarshalling from strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	return d.parse(raw)
}

// UnmarshalJSON parses the same duration strings from JSON.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// ModuleReference captures the configuration source that defined an entry.
type ModuleReference struct {
	File        string `json:"file,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ModuleInclude describes a referenced configuration module.
type ModuleInclude struct {
	Path        string
	Name        string
	Description string
}

type rawModule struct {
	Path        string `yaml:"path" json:"path"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// UnmarshalYAML allows module includes to be declared either as scalar strings or structured objects.
func (m *ModuleInclude) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return errors.New("module include node is nil")
	}
	switch value.Kind {
	case yaml.ScalarNode:
		var path string
		if err := value.Decode(&path); err != nil {
			return fmt.Errorf("decode module path: %w", err)
		}
		m.Path = strings.TrimSpace(path)
		return nil
	case yaml.MappingNode:
		var raw rawModule
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("decode module include: %w", err)
		}
		return m.set(raw)
	default:
		return fmt.Errorf("unsupported module include node kind %d", value.Kind)
	}
}

// UnmarshalJSON accepts the same two shapes as UnmarshalYAML.
func (m *ModuleInclude) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		m.Path = strings.TrimSpace(path)
		return nil
	}
	var raw rawModule
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode module include: %w", err)
	}
	return m.set(raw)
}

func (m *ModuleInclude) set(raw rawModule) error {
	if strings.TrimSpace(raw.Path) == "" {
		return errors.New("module include missing path")
	}
	m.Path = strings.TrimSpace(raw.Path)
	m.Name = raw.Name
	m.Description = raw.Description
	return nil
}

// RuleConfig declares one correlation rule: the start event and the events
// that settle it.
type RuleConfig struct {
	Start        string          `yaml:"start" json:"start"`
	Reset        []string        `yaml:"reset,omitempty" json:"reset,omitempty"`
	Error        []string        `yaml:"error,omitempty" json:"error,omitempty"`
	ErrorPayload string          `yaml:"error_payload,omitempty" json:"error_payload,omitempty"`
	Description  string          `yaml:"description,omitempty" json:"description,omitempty"`
	Source       ModuleReference `yaml:"-" json:"-"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	URL     string            `yaml:"url" json:"url"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level" json:"level"`
	Format string     `yaml:"format,omitempty" json:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki" json:"loki"`
}

// TelemetryConfig configures telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// MQTTAuthConfig captures username/password authentication.
type MQTTAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// MQTTTLSConfig allows TLS connections to be configured.
type MQTTTLSConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	ServerName         string `yaml:"server_name,omitempty" json:"server_name,omitempty"`
}

// MQTTConfig subscribes to broker topics carrying JSON event records.
type MQTTConfig struct {
	Enabled        bool            `yaml:"enabled" json:"enabled"`
	Broker         string          `yaml:"broker" json:"broker"`
	ClientID       string          `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	Topics         []string        `yaml:"topics" json:"topics"`
	QoS            byte            `yaml:"qos,omitempty" json:"qos,omitempty"`
	CleanSession   *bool           `yaml:"clean_session,omitempty" json:"clean_session,omitempty"`
	KeepAlive      Duration        `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty"`
	ConnectTimeout Duration        `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
	Auth           *MQTTAuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
	TLS            *MQTTTLSConfig  `yaml:"tls,omitempty" json:"tls,omitempty"`
	TypeFromTopic  bool            `yaml:"type_from_topic,omitempty" json:"type_from_topic,omitempty"`
}

// SourcesConfig lists event sources besides the command line input.
type SourcesConfig struct {
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`
}

// Config is the root configuration structure.
type Config struct {
	Name           string          `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string          `yaml:"description,omitempty" json:"description,omitempty"`
	Logging        LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry      TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	HotReload      bool            `yaml:"hot_reload" json:"hot_reload"`
	ReloadInterval Duration        `yaml:"reload_interval" json:"reload_interval"`
	Sources        SourcesConfig   `yaml:"sources" json:"sources"`
	Modules        []ModuleInclude `yaml:"modules,omitempty" json:"modules,omitempty"`
	Rules          []RuleConfig    `yaml:"rules" json:"rules"`
	Source         ModuleReference `yaml:"-" json:"-"`
	// ModuleFiles lists every module file loaded through includes, nested
	// ones included, whether or not it declared rules.
	ModuleFiles []string `yaml:"-" json:"-"`
}

// Load reads a YAML or CUE configuration file, follows its module includes
// and validates the merged result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := loadFile(abs, make(map[string]struct{}))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	return cfg, nil
}

// ReloadEvery returns the polling interval used for hot reload.
func (c *Config) ReloadEvery() time.Duration {
	if c == nil || c.ReloadInterval.Duration <= 0 {
		return time.Second
	}
	return c.ReloadInterval.Duration
}

// RegistryRules converts the configured rules into registry rules.
func (c *Config) RegistryRules() []registry.Rule {
	if c == nil {
		return nil
	}
	rules := make([]registry.Rule, 0, len(c.Rules))
	for _, rule := range c.Rules {
		rules = append(rules, registry.Rule{
			Start: rule.Start,
			Reset: append([]string(nil), rule.Reset...),
			Error: append([]string(nil), rule.Error...),
		})
	}
	return rules
}

// PayloadExpressions maps each error event id to the expression extracting
// its payload.
func (c *Config) PayloadExpressions() map[string]string {
	result := make(map[string]string)
	if c == nil {
		return result
	}
	for _, rule := range c.Rules {
		if strings.TrimSpace(rule.ErrorPayload) == "" {
			continue
		}
		for _, id := range rule.Error {
			result[id] = rule.ErrorPayload
		}
	}
	return result
}

// Validate checks the rule set for structural mistakes.
func (c *Config) Validate() error {
	if c == nil || len(c.Rules) == 0 {
		return ErrNoRules
	}
	if c.ReloadInterval.Duration < 0 {
		return fmt.Errorf("reload_interval must not be negative, got %s", c.ReloadInterval.Duration)
	}
	if err := c.Sources.MQTT.Validate(); err != nil {
		return err
	}
	payloads := make(map[string]string)
	for i, rule := range c.Rules {
		if strings.TrimSpace(rule.Start) == "" {
			return fmt.Errorf("rule %d%s: %w", i, rule.Source.suffix(), ErrEmptyStart)
		}
		for _, id := range rule.Reset {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("rule %q reset%s: %w", rule.Start, rule.Source.suffix(), ErrEmptyTarget)
			}
		}
		for _, id := range rule.Error {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("rule %q error%s: %w", rule.Start, rule.Source.suffix(), ErrEmptyTarget)
			}
		}
		expr := strings.TrimSpace(rule.ErrorPayload)
		if expr == "" {
			continue
		}
		if len(rule.Error) == 0 {
			return fmt.Errorf("rule %q%s: %w", rule.Start, rule.Source.suffix(), ErrPayloadWithoutError)
		}
		for _, id := range rule.Error {
			if existing, ok := payloads[id]; ok && existing != expr {
				return fmt.Errorf("error event %q: %w", id, ErrConflictingPayload)
			}
			payloads[id] = expr
		}
	}
	return nil
}

// Validate checks an enabled MQTT source. Disabled sources are always valid.
func (m MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if strings.TrimSpace(m.Broker) == "" {
		return fmt.Errorf("%w: broker address is required", ErrInvalidMQTT)
	}
	if len(m.Topics) == 0 {
		return fmt.Errorf("%w: at least one topic is required", ErrInvalidMQTT)
	}
	for _, topic := range m.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("%w: topic must not be empty", ErrInvalidMQTT)
		}
	}
	if m.QoS > 2 {
		return fmt.Errorf("%w: qos must be 0, 1 or 2, got %d", ErrInvalidMQTT, m.QoS)
	}
	return nil
}

func (r ModuleReference) suffix() string {
	if r.File == "" {
		return ""
	}
	return " (" + r.File + ")"
}

func loadFile(path string, visited map[string]struct{}) (*Config, error) {
	if _, ok := visited[path]; ok {
		return nil, fmt.Errorf("config include cycle detected at %s", path)
	}
	visited[path] = struct{}{}
	defer delete(visited, path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		if err := decodeCUE(path, raw, &cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml", "":
		if err := decodeYAML(path, raw, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported file extension %q", path, filepath.Ext(path))
	}

	cfg.setSource(ModuleReference{File: path, Name: cfg.Name, Description: cfg.Description})

	modules := cfg.Modules
	cfg.Modules = nil
	baseDir := filepath.Dir(path)
	for _, module := range modules {
		if module.Path == "" {
			continue
		}
		modulePath := module.Path
		if !filepath.IsAbs(modulePath) {
			modulePath = filepath.Join(baseDir, module.Path)
		}
		child, err := loadFile(modulePath, visited)
		if err != nil {
			return nil, fmt.Errorf("load module %s: %w", module.Path, err)
		}
		child.applyModuleMetadata(module)
		cfg.Rules = append(cfg.Rules, child.Rules...)
		cfg.ModuleFiles = append(cfg.ModuleFiles, modulePath)
		cfg.ModuleFiles = append(cfg.ModuleFiles, child.ModuleFiles...)
	}
	return &cfg, nil
}

func decodeYAML(path string, raw []byte, cfg *Config) error {
	var document yaml.Node
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return fmt.Errorf("config %s is empty", path)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config %s: top-level YAML document must be a mapping", path)
	}
	if err := root.Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) setSource(ref ModuleReference) {
	c.Source = ref
	for i := range c.Rules {
		c.Rules[i].Source = ref
	}
}

func (c *Config) applyModuleMetadata(include ModuleInclude) {
	for i := range c.Rules {
		if include.Name != "" {
			c.Rules[i].Source.Name = include.Name
		}
		if include.Description != "" {
			c.Rules[i].Source.Description = include.Description
		}
	}
}
