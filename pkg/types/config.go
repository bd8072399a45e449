package types

// Config represents the chatsync configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Default provider and model used when a request names neither.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`

	// SystemPrompt is prepended to every generation.
	SystemPrompt string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`

	// SerializeSessions queues concurrent requests against one session.
	// nil means enabled.
	SerializeSessions *bool `json:"serializeSessions,omitempty" yaml:"serializeSessions,omitempty"`

	Server    ServerConfig              `json:"server,omitempty" yaml:"server,omitempty"`
	Storage   StorageConfig             `json:"storage,omitempty" yaml:"storage,omitempty"`
	Providers map[string]ProviderConfig `json:"providers,omitempty" yaml:"providers,omitempty"`

	// MCP server configs, keyed by server name.
	MCP map[string]MCPConfig `json:"mcp,omitempty" yaml:"mcp,omitempty"`

	// Tools is a list of glob patterns; only matching tool names are offered
	// to the model. Empty means all tools.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`

	Audio    AudioConfig    `json:"audio,omitempty" yaml:"audio,omitempty"`
	EventBus EventBusConfig `json:"eventBus,omitempty" yaml:"eventBus,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	Hostname   string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	EnableCORS *bool  `json:"enableCORS,omitempty" yaml:"enableCORS,omitempty"`

	// RateLimit is the sustained number of chat requests per second across
	// all clients. Zero disables limiting.
	RateLimit float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	RateBurst int     `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"` // "file"|"sqlite"|"pebble"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`

	// Model/Endpoint ID (for providers like ARK that require endpoint specification)
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	Disable bool `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Type        string            `json:"type,omitempty" yaml:"type,omitempty"` // "local"|"remote"
	Command     []string          `json:"command,omitempty" yaml:"command,omitempty"`
	URL         string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Timeout     int               `json:"timeout,omitempty" yaml:"timeout,omitempty"` // ms
}

// AudioConfig controls speech synthesis of finished assistant replies.
type AudioConfig struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Voice   string `json:"voice,omitempty" yaml:"voice,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
}

// EventBusConfig selects the live update bus backend.
// An empty RedisAddr keeps the bus in process.
type EventBusConfig struct {
	RedisAddr string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	Stream    string `json:"stream,omitempty" yaml:"stream,omitempty"`
}

// SessionsSerialized reports whether per-session serialization is on.
func (c *Config) SessionsSerialized() bool {
	return c.SerializeSessions == nil || *c.SerializeSessions
}
