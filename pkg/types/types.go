package types

// Package types provides shared type definitions for OpenFlux.
// Contains the JSON-RPC wire types spoken to the research tool server
// and the core data structures used across the application.
import (
	"time"
)

// MCP Types (JSON-RPC 2.0)

// MCPRequest represents a JSON-RPC 2.0 request. A request without an ID
// is a one-way notification and yields no response.
type MCPRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id,omitempty"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// MCPResponse represents a JSON-RPC 2.0 response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC 2.0 error
type MCPError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// MCP Error Codes (JSON-RPC 2.0 standard + custom)
const (
	MCPErrorParseError     = -32700
	MCPErrorInvalidRequest = -32600
	MCPErrorMethodNotFound = -32601
	MCPErrorInvalidParams  = -32602
	MCPErrorInternalError  = -32603
	MCPErrorServerError    = -32000
)

// MCPInitializeResult represents the initialize method result
type MCPInitializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	Capabilities    struct {
		Tools struct {
			ListChanged bool `json:"listChanged,omitempty"`
		} `json:"tools,omitempty"`
	} `json:"capabilities"`
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// Tool represents one entry in the tool catalog discovered from the
// connected server via tools/list. The catalog is rebuilt on every
// (re)connect and is only valid for the current connection.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Research result types

// SearchMatch is one semantic search hit from the tool server
type SearchMatch struct {
	FilePath string  `json:"file_path"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
}

// SearchResult is the typed outcome of a repository search. Empty
// Matches with Raw set means the server answered but nothing matched.
type SearchResult struct {
	Repository string        `json:"repository"`
	Query      string        `json:"query"`
	Matches    []SearchMatch `json:"matches"`
	Raw        string        `json:"raw,omitempty"`
}

// FileContent is the typed outcome of a file fetch
type FileContent struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Content    string `json:"content"`
}

// StructureListing is the typed outcome of a repository structure request
type StructureListing struct {
	Repository string   `json:"repository"`
	Entries    []string `json:"entries"`
	Raw        string   `json:"raw,omitempty"`
}

// Config Types

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	ToolServer    ToolServerConfig    `yaml:"tool_server" mapstructure:"tool_server"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ServerConfig represents HTTP gateway configuration
type ServerConfig struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port"`
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ToolServerConfig describes how to launch the external research tool
// server subprocess. Env holds the variables injected into its
// environment; protocol code never reads the ambient environment itself.
type ToolServerConfig struct {
	Command         string            `yaml:"command" mapstructure:"command"`
	Args            []string          `yaml:"args" mapstructure:"args"`
	Env             map[string]string `yaml:"env" mapstructure:"env"`
	RequestTimeout  time.Duration     `yaml:"request_timeout" mapstructure:"request_timeout"`
	StartupGrace    time.Duration     `yaml:"startup_grace" mapstructure:"startup_grace"`
	ShutdownGrace   time.Duration     `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
	HealthInterval  time.Duration     `yaml:"health_interval" mapstructure:"health_interval"`
	IdleProbeAfter  time.Duration     `yaml:"idle_probe_after" mapstructure:"idle_probe_after"`
	HealthSweepRate time.Duration     `yaml:"health_sweep_rate" mapstructure:"health_sweep_rate"`
}

// LLMConfig represents answer-generation provider configuration
type LLMConfig struct {
	Primary  LLMProviderConfig `yaml:"primary" mapstructure:"primary"`
	Fallback LLMProviderConfig `yaml:"fallback" mapstructure:"fallback"`
}

type LLMProviderConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	Model    string `yaml:"model" mapstructure:"model"`
	Timeout  string `yaml:"timeout" mapstructure:"timeout"`
}

// ObservabilityConfig represents observability configuration
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ErrorResponse represents a gateway error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
