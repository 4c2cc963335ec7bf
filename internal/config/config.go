// Package config implements configuration loading for the runtime (spec
// §6): YAML decoding with environment-variable expansion and auto-detected
// LLM API keys, plus file hot-reload. Grounded on the teacher's
// pkg/config/loader.go (mapstructure decode, env-expansion pass,
// load/validate pipeline) and pkg/config/provider/file.go (fsnotify-backed
// file watch with debounce), generalized from Hector's full multi-agent
// config schema down to the single-agent runtime shape spec §6 describes.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// AgentConfig is the agent{} block (spec §6).
type AgentConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	MaxSteps    int            `yaml:"max_steps"`
	Behavior    BehaviorConfig `yaml:"behavior"`
}

// BehaviorConfig is the agent.behavior{} block.
type BehaviorConfig struct {
	Memory MemoryConfig `yaml:"memory"`
}

// MemoryConfig is the agent.behavior.memory{} block.
type MemoryConfig struct {
	Policy           string `yaml:"policy"`
	MaxHistorySteps  int    `yaml:"max_history_steps"`
	Preserve         int    `yaml:"preserve_recent"`
	SummaryCachePath string `yaml:"summary_cache_path"` // optional; enables a persisted SQLite summary cache
}

// LLMConfig is the llm{} block.
type LLMConfig struct {
	Provider   string         `yaml:"provider"`
	Model      string         `yaml:"model"`
	Parameters map[string]any `yaml:"parameters"`
	Auth       LLMAuthConfig  `yaml:"auth"`
}

// LLMAuthConfig is the llm.auth{} block.
type LLMAuthConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// ResolveAPIKey returns the configured key, the custom env var, or the
// provider's conventional env var, in that order (spec §6 "Environment
// variables").
func (a LLMAuthConfig) ResolveAPIKey(provider string) string {
	if a.APIKey != "" {
		return a.APIKey
	}
	if a.APIKeyEnv != "" {
		return os.Getenv(a.APIKeyEnv)
	}
	return defaultAPIKeyEnv(provider)
}

func defaultAPIKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// ToolsConfig is the tools{} block: per-tool enable switches plus
// executor/calculator/rag wiring. Concrete tool construction lives in
// cmd/oversightd, which reads this purely as data.
type ToolsConfig struct {
	Calculator    bool              `yaml:"calculator"`
	RAGSearch     bool              `yaml:"rag_search"`
	CodeExecutor  ExecutorConfig    `yaml:"code_executor"`
	FailThreshold int               `yaml:"fail_threshold"`
	MCPServers    []MCPServerConfig `yaml:"mcp_servers"`
}

// ExecutorConfig is the tools.code_executor{} block.
type ExecutorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BinaryPath string `yaml:"binary_path"`
}

// MCPServerConfig is one entry of mcp_servers[].
type MCPServerConfig struct {
	Name     string   `yaml:"name"`
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	TokenCap int      `yaml:"token_budget"`
}

// LoggingConfig is the logging{} block.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig is the tracing{} block.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// ServerConfig is the server{} block for the HTTP surface.
type ServerConfig struct {
	Host           string     `yaml:"host"`
	Port           int        `yaml:"port"`
	AllowedOrigins []string   `yaml:"allowed_origins"`
	Auth           AuthConfig `yaml:"auth"`
}

// AuthConfig is the server.auth{} block.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	JWKSURL  string `yaml:"jwks_url"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// AuthorizationConfig is the authorization{} block: the per-tool-call HITL
// policy (spec §4.3), distinct from AuthConfig's bearer-token HTTP auth.
type AuthorizationConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // ask, always_allow, always_deny
	TimeoutSec int    `yaml:"timeout_seconds"`
}

// Config is the root configuration document (spec §6).
type Config struct {
	Agent         AgentConfig         `yaml:"agent"`
	LLM           LLMConfig           `yaml:"llm"`
	Prompts       map[string]string   `yaml:"prompts"`
	Tools         ToolsConfig         `yaml:"tools"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Environment   map[string]string   `yaml:"environment"`
	Logging       LoggingConfig       `yaml:"logging"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Server        ServerConfig        `yaml:"server"`
}

// SetDefaults fills unset fields with the runtime's defaults.
func (c *Config) SetDefaults() {
	if c.Agent.MaxSteps <= 0 {
		c.Agent.MaxSteps = 25
	}
	if c.Tools.FailThreshold <= 0 {
		c.Tools.FailThreshold = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Authorization.Mode == "" {
		c.Authorization.Mode = "ask"
	}
	if c.Authorization.TimeoutSec <= 0 {
		c.Authorization.TimeoutSec = 120
	}
}

// Validate checks the minimal set of invariants the runtime cannot recover
// from at startup.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Auth.ResolveAPIKey(c.LLM.Provider) == "" {
		return fmt.Errorf("no API key resolved for provider %q: set llm.auth.api_key, llm.auth.api_key_env, or the provider's default environment variable", c.LLM.Provider)
	}
	switch c.Authorization.Mode {
	case "ask", "always_allow", "always_deny":
	default:
		return fmt.Errorf("unsupported authorization.mode %q", c.Authorization.Mode)
	}
	return nil
}

// Parse decodes YAML bytes into a Config after expanding ${VAR}/$VAR
// references against the process environment.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	expanded := expandEnvVars(raw)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = expandValue(v)
	}
	return out
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		return expandEnvVars(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}
		return out
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if idx := strings.Index(inner, ":-"); idx != -1 {
				name, def := inner[:idx], inner[idx+2:]
				if val := os.Getenv(name); val != "" {
					return val
				}
				return def
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}
