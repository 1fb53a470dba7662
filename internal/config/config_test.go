package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/openflux/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openflux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent", "openflux.yaml"))
	require.Error(t, err, "explicit missing file must fail")

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "uv", cfg.ToolServer.Command)
	assert.Equal(t, []string{"run", "research-tool-server"}, cfg.ToolServer.Args)
	assert.Equal(t, 30*time.Second, cfg.ToolServer.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.ToolServer.StartupGrace)
	assert.Equal(t, 30*time.Second, cfg.ToolServer.HealthInterval)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Observability.Metrics.Path)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
tool_server:
  command: python
  args: ["-m", "research_server"]
  request_timeout: 10s
  startup_grace: 500ms
llm:
  primary:
    provider: ollama
    model: llama3.2:3b
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "python", cfg.ToolServer.Command)
	assert.Equal(t, []string{"-m", "research_server"}, cfg.ToolServer.Args)
	assert.Equal(t, 10*time.Second, cfg.ToolServer.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ToolServer.StartupGrace)
	assert.Equal(t, "ollama", cfg.LLM.Primary.Provider)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.ToolServer.IdleProbeAfter)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestSecretsResolvedFromEnvironment(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIATEST")
	t.Setenv("OPENFLUX_LLM_API_KEY", "sk-primary")

	path := writeConfig(t, `
tool_server:
  env:
    GITHUB_TOKEN: "${GITHUB_TOKEN}"
    AWS_REGION: us-west-2
llm:
  primary:
    provider: openai
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ghp_test", cfg.ToolServer.Env["GITHUB_TOKEN"], "placeholder resolves from env")
	assert.Equal(t, "AKIATEST", cfg.ToolServer.Env["AWS_ACCESS_KEY_ID"], "absent key resolves from env")
	assert.Equal(t, "us-west-2", cfg.ToolServer.Env["AWS_REGION"], "explicit value wins over env")
	assert.Equal(t, "sk-primary", cfg.LLM.Primary.APIKey)
}

func TestSecretsExplicitValueNotOverwritten(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_from_env")

	path := writeConfig(t, `
tool_server:
  env:
    GITHUB_TOKEN: ghp_from_file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ghp_from_file", cfg.ToolServer.Env["GITHUB_TOKEN"])
}

func TestValidateWarnings(t *testing.T) {
	cfg := &types.Config{}
	warnings := Validate(cfg)

	require.NotEmpty(t, warnings)
	joined := ""
	for _, w := range warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "tool_server.command is empty")
	assert.Contains(t, joined, "GITHUB_TOKEN")
	assert.Contains(t, joined, "AWS credentials")
	assert.Contains(t, joined, "no answer provider")
}

func TestValidateCleanConfig(t *testing.T) {
	cfg := &types.Config{
		ToolServer: types.ToolServerConfig{
			Command: "uv",
			Env: map[string]string{
				"GITHUB_TOKEN":          "t",
				"AWS_ACCESS_KEY_ID":     "k",
				"AWS_SECRET_ACCESS_KEY": "s",
			},
		},
		LLM: types.LLMConfig{
			Primary: types.LLMProviderConfig{Provider: "openai"},
		},
	}
	assert.Empty(t, Validate(cfg))
}
