package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/config"
)

func TestParse_ExpandsEnvVarsAndResolvesAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")

	yaml := []byte(`
agent:
  name: demo
  max_steps: 10
llm:
  provider: openai
  model: gpt-4o
prompts:
  system: "Answer as ${AGENT_PERSONA:-a helpful assistant}"
`)

	cfg, err := config.Parse(yaml)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Agent.Name)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test-123", cfg.LLM.Auth.ResolveAPIKey("openai"))
	assert.Equal(t, "Answer as a helpful assistant", cfg.Prompts["system"])
}

func TestParse_CustomAPIKeyEnv(t *testing.T) {
	t.Setenv("MY_CUSTOM_KEY", "custom-abc")

	yaml := []byte(`
llm:
  provider: anthropic
  model: claude-3
  auth:
    api_key_env: MY_CUSTOM_KEY
`)
	cfg, err := config.Parse(yaml)
	require.NoError(t, err)
	assert.Equal(t, "custom-abc", cfg.LLM.Auth.ResolveAPIKey("anthropic"))
}

func TestParse_MissingAPIKeyFails(t *testing.T) {
	os.Unsetenv("GEMINI_API_KEY")
	yaml := []byte(`
llm:
  provider: gemini
  model: gemini-1.5-pro
`)
	_, err := config.Parse(yaml)
	assert.Error(t, err)
}

func TestParse_UnsupportedProviderFails(t *testing.T) {
	yaml := []byte(`
llm:
  provider: bedrock
  model: whatever
`)
	_, err := config.Parse(yaml)
	assert.Error(t, err)
}

func TestParse_DefaultsApplied(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	yaml := []byte(`
llm:
  provider: openai
  model: gpt-4o
`)
	cfg, err := config.Parse(yaml)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Agent.MaxSteps)
	assert.Equal(t, 2, cfg.Tools.FailThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestParse_AuthorizationDefaultsAndValidation(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := config.Parse([]byte("llm:\n  provider: openai\n  model: gpt-4o\n"))
	require.NoError(t, err)
	assert.Equal(t, "ask", cfg.Authorization.Mode)
	assert.Equal(t, 120, cfg.Authorization.TimeoutSec)

	_, err = config.Parse([]byte("llm:\n  provider: openai\n  model: gpt-4o\nauthorization:\n  mode: maybe\n"))
	assert.Error(t, err)
}

func TestLoader_LoadFromDisk(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n  model: gpt-4o\n"), 0o644))

	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}
