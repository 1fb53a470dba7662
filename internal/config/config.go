package config

// Package config loads and validates the OpenFlux configuration.
// Environment resolution for secrets happens here and nowhere else:
// the tool server subprocess receives its environment via
// ToolServerConfig.Env, and protocol code never reads os.Getenv.
import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/openflux/openflux/pkg/types"
)

// Load reads configuration from the given file, or from the default
// search paths when path is empty.
func Load(path string) (*types.Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("openflux")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/openflux")
	}

	v.SetEnvPrefix("OPENFLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine when no explicit path was given;
		// defaults plus env vars are a complete configuration.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Info().Msg("No config file found, using defaults")
	} else {
		log.Info().Str("config", v.ConfigFileUsed()).Msg("Configuration loaded")
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveSecrets(&config)
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("tool_server.command", "uv")
	v.SetDefault("tool_server.args", []string{"run", "research-tool-server"})
	v.SetDefault("tool_server.request_timeout", 30*time.Second)
	v.SetDefault("tool_server.startup_grace", 2*time.Second)
	v.SetDefault("tool_server.shutdown_grace", 5*time.Second)
	v.SetDefault("tool_server.health_interval", 30*time.Second)
	v.SetDefault("tool_server.idle_probe_after", 5*time.Minute)
	v.SetDefault("tool_server.health_sweep_rate", time.Minute)

	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.logging.level", "info")
}

// resolveSecrets fills secret-bearing fields from the environment when
// the config carries a placeholder or nothing at all. The values land
// in config and flow to the subprocess through Env.
func resolveSecrets(config *types.Config) {
	if config.ToolServer.Env == nil {
		config.ToolServer.Env = map[string]string{}
	}

	for _, key := range []string{"GITHUB_TOKEN", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION"} {
		current := config.ToolServer.Env[key]
		if current == "" || current == "${"+key+"}" {
			if val := os.Getenv(key); val != "" {
				config.ToolServer.Env[key] = val
			}
		}
	}

	if config.LLM.Primary.APIKey == "" || strings.HasPrefix(config.LLM.Primary.APIKey, "${") {
		config.LLM.Primary.APIKey = os.Getenv("OPENFLUX_LLM_API_KEY")
	}
	if config.LLM.Fallback.APIKey == "" || strings.HasPrefix(config.LLM.Fallback.APIKey, "${") {
		config.LLM.Fallback.APIKey = os.Getenv("OPENFLUX_LLM_FALLBACK_API_KEY")
	}
}

// Validate reports configuration problems. Missing credentials are
// warnings, not errors: the tool server may still index public
// repositories without them.
func Validate(config *types.Config) []string {
	var warnings []string

	if config.ToolServer.Command == "" {
		warnings = append(warnings, "tool_server.command is empty; connect will fail")
	}
	if config.ToolServer.Env["GITHUB_TOKEN"] == "" {
		warnings = append(warnings, "GITHUB_TOKEN is not set; private repositories and higher rate limits are unavailable")
	}
	if config.ToolServer.Env["AWS_ACCESS_KEY_ID"] == "" || config.ToolServer.Env["AWS_SECRET_ACCESS_KEY"] == "" {
		warnings = append(warnings, "AWS credentials are not set; the tool server's embedding backend may be unavailable")
	}
	if config.LLM.Primary.Provider == "" && config.LLM.Fallback.Provider == "" {
		warnings = append(warnings, "no answer provider configured; chat responses degrade to raw search excerpts")
	}

	for _, w := range warnings {
		log.Warn().Msg(w)
	}
	return warnings
}
