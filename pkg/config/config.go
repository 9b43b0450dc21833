// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the agent server configuration: YAML loading with
// environment expansion, defaults, validation and environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort              = 9999
	DefaultHeartbeatInterval = 60
	DefaultMaxSessions       = 256
	DefaultSystemPrompt      = "You are an expert Python developer"
	DefaultPermissionMode    = "acceptEdits"
	DefaultAPIModel          = "claude-sonnet-4-5"
	DefaultMaxTokens         = 4096
)

// Claude backends.
const (
	BackendCLI = "cli"
	BackendAPI = "api"
)

// Task store backends.
const (
	TaskStoreMemory = "memory"
	TaskStoreSQL    = "sql"
)

// Config is the root configuration of the agent server.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server,omitempty" jsonschema:"description=HTTP listener"`
	Agent         AgentConfig         `yaml:"agent" json:"agent,omitempty" jsonschema:"description=Agent card contents"`
	Claude        ClaudeConfig        `yaml:"claude" json:"claude,omitempty" jsonschema:"description=Claude backend"`
	Sessions      SessionsConfig      `yaml:"sessions" json:"sessions,omitempty"`
	Heartbeat     HeartbeatConfig     `yaml:"heartbeat" json:"heartbeat,omitempty"`
	TaskStore     TaskStoreConfig     `yaml:"task_store" json:"task_store,omitempty"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" json:"host,omitempty" jsonschema:"description=Bind address,default=0.0.0.0"`
	Port int    `yaml:"port" json:"port,omitempty" jsonschema:"description=Listen port,default=9999,minimum=1,maximum=65535"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AgentConfig describes the advertised agent card.
type AgentConfig struct {
	Name        string        `yaml:"name" json:"name,omitempty" jsonschema:"default=Agent"`
	Description string        `yaml:"description" json:"description,omitempty"`
	Version     string        `yaml:"version" json:"version,omitempty" jsonschema:"default=1.0.0"`
	Streaming   *bool         `yaml:"streaming" json:"streaming,omitempty" jsonschema:"description=Advertise streaming capability,default=true"`
	Skills      []SkillConfig `yaml:"skills" json:"skills,omitempty"`
}

// SkillConfig is one advertised skill.
type SkillConfig struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
	Examples    []string `yaml:"examples" json:"examples,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "Agent"
	}
	if c.Description == "" {
		c.Description = "Just an agent"
	}
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	if c.Streaming == nil {
		streaming := true
		c.Streaming = &streaming
	}
	if len(c.Skills) == 0 {
		c.Skills = []SkillConfig{{
			ID:          "reply",
			Name:        "Reply",
			Description: "responds to your message in a thoughtful manner",
		}}
	}
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	seen := make(map[string]bool, len(c.Skills))
	for i, s := range c.Skills {
		if s.ID == "" {
			return fmt.Errorf("agent.skills[%d]: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("agent.skills[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// ClaudeConfig selects and configures the agent backend.
type ClaudeConfig struct {
	Backend        string `yaml:"backend" json:"backend,omitempty" jsonschema:"enum=cli,enum=api,default=cli"`
	Binary         string `yaml:"binary" json:"binary,omitempty" jsonschema:"description=Claude Code CLI executable,default=claude"`
	SystemPrompt   string `yaml:"system_prompt" json:"system_prompt,omitempty"`
	PermissionMode string `yaml:"permission_mode" json:"permission_mode,omitempty" jsonschema:"enum=default,enum=acceptEdits,enum=plan,enum=bypassPermissions"`
	WorkDir        string `yaml:"work_dir" json:"work_dir,omitempty" jsonschema:"default=."`
	Model          string `yaml:"model" json:"model,omitempty"`
	MaxTokens      int    `yaml:"max_tokens" json:"max_tokens,omitempty" jsonschema:"description=API backend only"`
	APIKey         string `yaml:"api_key" json:"api_key,omitempty" jsonschema:"description=API backend only; falls back to ANTHROPIC_API_KEY"`
	BaseURL        string `yaml:"base_url" json:"base_url,omitempty"`
}

// SetDefaults applies default values.
func (c *ClaudeConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendCLI
	}
	if c.Binary == "" {
		c.Binary = "claude"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.PermissionMode == "" {
		c.PermissionMode = DefaultPermissionMode
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Backend == BackendAPI {
		if c.Model == "" {
			c.Model = DefaultAPIModel
		}
		if c.MaxTokens == 0 {
			c.MaxTokens = DefaultMaxTokens
		}
		if c.APIKey == "" {
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate checks the backend configuration.
func (c *ClaudeConfig) Validate() error {
	switch c.Backend {
	case BackendCLI:
	case BackendAPI:
		if c.APIKey == "" {
			return fmt.Errorf("claude.api_key (or ANTHROPIC_API_KEY) is required for the api backend")
		}
		if c.MaxTokens < 1 {
			return fmt.Errorf("claude.max_tokens must be positive")
		}
	default:
		return fmt.Errorf("claude.backend must be %q or %q, got %q", BackendCLI, BackendAPI, c.Backend)
	}
	return nil
}

// SessionsConfig bounds the per-context session cache.
type SessionsConfig struct {
	MaxSessions int `yaml:"max_sessions" json:"max_sessions,omitempty" jsonschema:"description=Live sessions kept before the least recently used is closed,default=256"`
}

// SetDefaults applies default values.
func (c *SessionsConfig) SetDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = DefaultMaxSessions
	}
}

// Validate checks the session configuration.
func (c *SessionsConfig) Validate() error {
	if c.MaxSessions < 1 {
		return fmt.Errorf("sessions.max_sessions must be positive")
	}
	return nil
}

// HeartbeatConfig configures the liveness reporter. An empty URL disables it.
type HeartbeatConfig struct {
	URL             string `yaml:"url" json:"url,omitempty"`
	IntervalSeconds int    `yaml:"interval_seconds" json:"interval_seconds,omitempty" jsonschema:"default=60"`
	SelfURL         string `yaml:"self_url" json:"self_url,omitempty"`
	SelfHost        string `yaml:"self_host" json:"self_host,omitempty"`
	SelfPort        int    `yaml:"self_port" json:"self_port,omitempty"`
}

// SetDefaults applies default values.
func (c *HeartbeatConfig) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = DefaultHeartbeatInterval
	}
}

// Validate checks the heartbeat configuration.
func (c *HeartbeatConfig) Validate() error {
	if c.IntervalSeconds < 1 {
		return fmt.Errorf("heartbeat.interval_seconds must be positive")
	}
	return nil
}

// Enabled reports whether a heartbeat endpoint is configured.
func (c *HeartbeatConfig) Enabled() bool {
	return c.URL != ""
}

// TaskStoreConfig selects where A2A tasks are kept.
type TaskStoreConfig struct {
	Backend string `yaml:"backend" json:"backend,omitempty" jsonschema:"enum=memory,enum=sql,default=memory"`
	Driver  string `yaml:"driver" json:"driver,omitempty" jsonschema:"enum=sqlite,enum=postgres,enum=mysql"`
	DSN     string `yaml:"dsn" json:"dsn,omitempty"`
}

// SetDefaults applies default values.
func (c *TaskStoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = TaskStoreMemory
	}
	if c.Backend == TaskStoreSQL && c.Driver == "" {
		c.Driver = "sqlite"
	}
}

// Validate checks the task store configuration.
func (c *TaskStoreConfig) Validate() error {
	switch c.Backend {
	case TaskStoreMemory:
		return nil
	case TaskStoreSQL:
	default:
		return fmt.Errorf("task_store.backend must be %q or %q, got %q", TaskStoreMemory, TaskStoreSQL, c.Backend)
	}
	switch c.Driver {
	case "sqlite", "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("task_store.driver %q is not supported", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("task_store.dsn is required for the sql backend")
	}
	return nil
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" json:"metrics,omitempty"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled,omitempty"`
	Namespace string `yaml:"namespace" json:"namespace,omitempty" jsonschema:"default=claude_a2a"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled,omitempty"`
	Exporter     string  `yaml:"exporter" json:"exporter,omitempty" jsonschema:"enum=otlp,enum=stdout,default=otlp"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint,omitempty" jsonschema:"default=localhost:4317"`
	Insecure     bool    `yaml:"insecure" json:"insecure,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate,omitempty" jsonschema:"minimum=0,maximum=1,default=1"`
}

// SetDefaults applies default values.
func (c *ObservabilityConfig) SetDefaults() {
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "claude_a2a"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlp"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
}

// Validate checks the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("observability.tracing.sampling_rate must be within [0, 1]")
	}
	switch c.Tracing.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("observability.tracing.exporter %q is not supported", c.Tracing.Exporter)
	}
	return nil
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Agent.SetDefaults()
	c.Claude.SetDefaults()
	c.Sessions.SetDefaults()
	c.Heartbeat.SetDefaults()
	c.TaskStore.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Server, &c.Agent, &c.Claude, &c.Sessions,
		&c.Heartbeat, &c.TaskStore, &c.Observability,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ProcessConfigPipeline applies environment overrides, defaults and
// validation in that order.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: config cannot be nil")
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded, err := yaml.Marshal(ExpandEnvVarsInData(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}

	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Load reads and processes a config file. An empty path yields the
// environment-driven default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}
	return ProcessConfigPipeline(cfg)
}
