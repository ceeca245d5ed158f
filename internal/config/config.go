// ABOUTME: Configuration loading and parsing for coven-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-relay configuration
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Agent     AgentConfig               `yaml:"agent"`
	Session   SessionConfig             `yaml:"session"`
	Queue     QueueConfig               `yaml:"queue"`
	Routing   RoutingConfig             `yaml:"routing"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Discord   DiscordConfig             `yaml:"discord"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// ServerConfig holds the inbound HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds session store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentConfig holds per-agent defaults applied to every turn
type AgentConfig struct {
	ID             string            `yaml:"id"`
	Workspace      string            `yaml:"workspace"`
	Dir            string            `yaml:"dir"`
	Model          string            `yaml:"model"`           // "provider/model" default for new sessions
	ModelAliases   map[string]string `yaml:"model_aliases"`   // alias -> "provider/model"
	HeartbeatModel string            `yaml:"heartbeat_model"` // overrides Model for heartbeat turns

	ThinkingDefault string `yaml:"thinking_default"`
	VerboseDefault  string `yaml:"verbose_default"`
	ElevatedDefault string `yaml:"elevated_default"`

	Elevated ElevatedConfig `yaml:"elevated"`

	ContextTokens         int  `yaml:"context_tokens"`
	TypingIntervalSeconds int  `yaml:"typing_interval_seconds"`
	SkipBootstrap         bool `yaml:"skip_bootstrap"`

	// RunnerAddr is the agent-run backend gRPC address (host:port).
	// Inference happens outside the relay; runs stream from here.
	RunnerAddr string `yaml:"runner_addr"`

	// Skills lists the skill names pinned into a session's snapshot on
	// first contact.
	Skills []string `yaml:"skills"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// ElevatedConfig gates privileged directives by sender identity
type ElevatedConfig struct {
	// Enabled defaults to true when unset
	Enabled *bool `yaml:"enabled"`
	// AllowFrom maps provider name to allow-list entries. Key presence
	// matters: an explicitly empty list denies everyone, while a missing
	// key may fall back (discord only) to the discord.dm.allow_from list.
	AllowFrom map[string][]string `yaml:"allow_from"`
}

// EnabledOrDefault reports whether elevated directives are enabled.
func (e ElevatedConfig) EnabledOrDefault() bool {
	if e.Enabled == nil {
		return true
	}
	return *e.Enabled
}

// SessionConfig holds session naming and typing cadence configuration
type SessionConfig struct {
	MainKey               string `yaml:"main_key"`
	TypingIntervalSeconds int    `yaml:"typing_interval_seconds"`
}

// QueueConfig holds queue policy defaults. The same shape is reused for
// the global default and for per-provider overrides.
type QueueConfig struct {
	Mode string `yaml:"mode"` // default, interrupt, steer, steer-backlog, followup, collect
	Cap  int    `yaml:"cap"`
	Drop string `yaml:"drop"` // drop-oldest, drop-new, reject

	Debounce    time.Duration `yaml:"-"`
	DebounceRaw string        `yaml:"debounce"`
}

// ProviderConfig holds per-provider overrides
type ProviderConfig struct {
	Queue *QueueConfig `yaml:"queue"`
}

// DiscordConfig holds discord-specific settings
type DiscordConfig struct {
	DM DiscordDMConfig `yaml:"dm"`
}

// DiscordDMConfig holds the DM allow-list used as the elevated fallback
type DiscordDMConfig struct {
	AllowFrom []string `yaml:"allow_from"`
}

// RoutingConfig holds inbound message handling toggles
type RoutingConfig struct {
	TranscribeAudio     bool  `yaml:"transcribe_audio"`
	GroupRequireMention *bool `yaml:"group_require_mention"`

	// FollowupWebhook receives replies produced by deferred (queued) runs.
	// Empty means deferred replies are only logged.
	FollowupWebhook string `yaml:"followup_webhook"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// IsEmpty reports whether the configuration carries no settings at all.
// A freshly-installed relay before onboarding runs with an empty config;
// some guards (the WhatsApp echo guard) only apply in that state.
func (c *Config) IsEmpty() bool {
	return c == nil || reflect.DeepEqual(*c, Config{})
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts raw duration strings into time.Duration fields.
func parseDurations(cfg *Config) error {
	var err error
	if cfg.Agent.Timeout, err = parseDuration(cfg.Agent.TimeoutRaw); err != nil {
		return fmt.Errorf("agent.timeout: %w", err)
	}
	if cfg.Queue.Debounce, err = parseDuration(cfg.Queue.DebounceRaw); err != nil {
		return fmt.Errorf("queue.debounce: %w", err)
	}
	for name, p := range cfg.Providers {
		if p.Queue == nil {
			continue
		}
		if p.Queue.Debounce, err = parseDuration(p.Queue.DebounceRaw); err != nil {
			return fmt.Errorf("providers.%s.queue.debounce: %w", name, err)
		}
		cfg.Providers[name] = p
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// Validate checks configured values for consistency.
func (c *Config) Validate() error {
	if c.Queue.Mode != "" && !validQueueMode(c.Queue.Mode) {
		return fmt.Errorf("unknown queue mode %q", c.Queue.Mode)
	}
	if c.Queue.Drop != "" && !validDropPolicy(c.Queue.Drop) {
		return fmt.Errorf("unknown queue drop policy %q", c.Queue.Drop)
	}
	for name, p := range c.Providers {
		if p.Queue == nil {
			continue
		}
		if p.Queue.Mode != "" && !validQueueMode(p.Queue.Mode) {
			return fmt.Errorf("providers.%s: unknown queue mode %q", name, p.Queue.Mode)
		}
		if p.Queue.Drop != "" && !validDropPolicy(p.Queue.Drop) {
			return fmt.Errorf("providers.%s: unknown queue drop policy %q", name, p.Queue.Drop)
		}
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

func validQueueMode(mode string) bool {
	switch mode {
	case "default", "interrupt", "steer", "steer-backlog", "followup", "collect":
		return true
	}
	return false
}

func validDropPolicy(policy string) bool {
	switch policy {
	case "drop-oldest", "drop-new", "reject":
		return true
	}
	return false
}
