// Package config handles Usher configuration loading.
//
// Each deployment (tenant) gets one YAML file. Secrets are never stored in
// the file itself — values like ${OPENAI_API_KEY} are expanded from the
// environment at load time.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Reference limits for the conversation engine. Used as defaults when the
// config file does not override them.
const (
	DefaultHistoryLimit = 5
	DefaultMaxRounds    = 3
)

// DefaultFallback is the reply used when the model produces nothing usable.
const DefaultFallback = "Unable to answer your question at this time"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./usher.yaml, ~/.config/usher/usher.yaml, /etc/usher/usher.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"usher.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "usher", "usher.yaml"))
	}

	paths = append(paths, "/etc/usher/usher.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Usher configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Model      ModelConfig      `yaml:"model"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Escalation EscalationConfig `yaml:"escalation"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AssistantConfig defines the assistant's scope and conversation limits.
type AssistantConfig struct {
	// Name identifies the assistant in logs and transports.
	Name string `yaml:"name"`

	// Scope is a plain-English description of the topics the assistant
	// covers. It is embedded verbatim in the system directive.
	Scope string `yaml:"scope"`

	// Timezone is the IANA zone used for wall-clock context in prompts
	// (e.g. "America/Los_Angeles"). Defaults to UTC when empty.
	Timezone string `yaml:"timezone"`

	// Fallback is the reply used when the model or a tool fails.
	Fallback string `yaml:"fallback"`

	// HistoryLimit caps persisted history entries per session.
	HistoryLimit int `yaml:"history_limit"`

	// MaxRounds bounds model-call rounds per turn.
	MaxRounds int `yaml:"max_rounds"`
}

// ModelConfig defines the model provider settings.
type ModelConfig struct {
	// Provider selects the backend: "openai" or "ollama".
	Provider string `yaml:"provider"`

	// Name is the model identifier (e.g. "gpt-4o-mini", "qwen3:4b").
	Name string `yaml:"name"`

	// APIKey is the provider API key. Supports environment variable
	// expansion via the config loader (e.g., ${OPENAI_API_KEY}).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible proxies,
	// local Ollama instances).
	BaseURL string `yaml:"base_url"`
}

// KnowledgeConfig points at the static knowledge document.
type KnowledgeConfig struct {
	// Path is the knowledge base file (.json, .md, or .html).
	Path string `yaml:"path"`

	// Model optionally overrides the model used for grounded lookups.
	Model string `yaml:"model"`
}

// EscalationConfig selects and configures the human-escalation channel.
// At most one channel is active; discord wins when both are set.
type EscalationConfig struct {
	Discord DiscordWebhookConfig `yaml:"discord_webhook"`
	Email   EmailConfig          `yaml:"email"`
}

// DiscordWebhookConfig defines a Discord webhook escalation target.
type DiscordWebhookConfig struct {
	// URL is the webhook endpoint. Supports env expansion.
	URL string `yaml:"url"`

	// RoleID, when set, is mentioned in the escalation message so the
	// right people get pinged.
	RoleID string `yaml:"role_id"`

	// MessagePrefix is prepended to every escalation (e.g. the tenant name).
	MessagePrefix string `yaml:"message_prefix"`
}

// Configured reports whether the webhook has enough settings to be used.
func (c DiscordWebhookConfig) Configured() bool {
	return c.URL != ""
}

// EmailConfig defines an SMTP escalation target.
type EmailConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`

	// From is the sender address (e.g. "Usher <usher@example.org>").
	From string `yaml:"from"`

	// To is the list of recipient addresses for escalations.
	To []string `yaml:"to"`

	// SubjectPrefix is prepended to the escalation subject line.
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Configured reports whether the email channel has enough settings to be used.
func (c EmailConfig) Configured() bool {
	return c.SMTP.Host != "" && c.From != "" && len(c.To) > 0
}

// SMTPConfig defines SMTP connection settings.
type SMTPConfig struct {
	// Host is the SMTP server hostname (e.g., "smtp.gmail.com").
	Host string `yaml:"host"`

	// Port is the SMTP server port. Default: 587 (submission with STARTTLS).
	Port int `yaml:"port"`

	// Username is the SMTP login username (typically the email address).
	Username string `yaml:"username"`

	// Password is the SMTP login password. Supports environment variable
	// expansion via the config loader (e.g., ${SMTP_PASSWORD}).
	Password string `yaml:"password"`

	// StartTLS upgrades a plain connection (port 587). When false, the
	// connection is implicit TLS from the start (port 465).
	StartTLS bool `yaml:"starttls"`
}

// SessionsConfig selects the conversation store backend.
type SessionsConfig struct {
	// Backend is "memory" (default) or "sqlite".
	Backend string `yaml:"backend"`

	// DBPath is the SQLite database file. Defaults to
	// <data_dir>/sessions.db when empty.
	DBPath string `yaml:"db_path"`
}

// MQTTConfig defines the optional MQTT chat bridge.
type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`

	// Broker is the broker URL (e.g. "mqtt://broker.local:1883").
	Broker string `yaml:"broker"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TopicPrefix is the root of the ask/reply topic tree. Default "usher".
	TopicPrefix string `yaml:"topic_prefix"`
}

// Configured reports whether the bridge should be started.
func (c MQTTConfig) Configured() bool {
	return c.Enabled && c.Broker != ""
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets stay out of the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Assistant: AssistantConfig{
			Name:         "usher",
			Fallback:     DefaultFallback,
			HistoryLimit: DefaultHistoryLimit,
			MaxRounds:    DefaultMaxRounds,
		},
		Model: ModelConfig{
			Provider: "openai",
			Name:     "gpt-4o-mini",
		},
		Sessions: SessionsConfig{Backend: "memory"},
		DataDir:  ".",
	}
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Assistant.Name == "" {
		c.Assistant.Name = "usher"
	}
	if c.Assistant.Fallback == "" {
		c.Assistant.Fallback = DefaultFallback
	}
	if c.Assistant.HistoryLimit <= 0 {
		c.Assistant.HistoryLimit = DefaultHistoryLimit
	}
	if c.Assistant.MaxRounds <= 0 {
		c.Assistant.MaxRounds = DefaultMaxRounds
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "openai"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.DBPath == "" {
		c.Sessions.DBPath = filepath.Join(c.DataDir, "sessions.db")
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "usher"
	}
	if c.Escalation.Email.SMTP.Port == 0 {
		c.Escalation.Email.SMTP.Port = 587
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}
