package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opencode-ai/chatsync/pkg/types"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const appName = "chatsync"

// Defaults applied when no source sets a value.
const (
	DefaultProvider  = "groq"
	DefaultModel     = "llama-3.1-8b-instant"
	DefaultPort      = 48678
	DefaultHostname  = "127.0.0.1"
	DefaultDriver    = "file"
	DefaultMCPServer = "search"
)

// providerEnv maps provider names to the environment variable holding their API key.
var providerEnv = map[string]string{
	"groq":       "GROQ_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"ark":        "ARK_API_KEY",
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration for the given working directory.
// See the package documentation for the order of sources.
func Load(directory string) (*types.Config, error) {
	cfg := &types.Config{
		Providers: make(map[string]types.ProviderConfig),
	}

	globalDir := GetPaths().Config
	for _, name := range fileNames() {
		if err := loadConfigFile(filepath.Join(globalDir, name), cfg, globalDir); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		for _, name := range fileNames() {
			if err := loadConfigFile(filepath.Join(directory, name), cfg, directory); err != nil {
				return nil, err
			}
		}
	}

	if path := os.Getenv("CHATSYNC_CONFIG"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("CHATSYNC_CONFIG: %w", err)
		}
		if err := loadConfigFile(path, cfg, filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		// Existing environment variables win over .env entries.
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// LoadFile loads a single config file on top of the defaults and environment.
func LoadFile(path string) (*types.Config, error) {
	cfg := &types.Config{
		Providers: make(map[string]types.ProviderConfig),
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if err := loadConfigFile(path, cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func fileNames() []string {
	return []string{appName + ".json", appName + ".jsonc", appName + ".yaml", appName + ".yml"}
}

// loadConfigFile merges one file into cfg. A missing file is not an error.
func loadConfigFile(path string, cfg *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	data = interpolate(data, baseDir)

	var fileConfig types.Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &fileConfig); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	mergeConfig(cfg, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}

		// Escape for a JSON string; strconv.Quote output is also valid YAML.
		quoted := strconv.Quote(strings.TrimRight(string(content), "\n"))
		return quoted[1 : len(quoted)-1]
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Provider != "" {
		target.Provider = source.Provider
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SystemPrompt != "" {
		target.SystemPrompt = source.SystemPrompt
	}
	if source.SerializeSessions != nil {
		target.SerializeSessions = source.SerializeSessions
	}

	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if source.Server.Hostname != "" {
		target.Server.Hostname = source.Server.Hostname
	}
	if source.Server.EnableCORS != nil {
		target.Server.EnableCORS = source.Server.EnableCORS
	}
	if source.Server.RateLimit != 0 {
		target.Server.RateLimit = source.Server.RateLimit
	}
	if source.Server.RateBurst != 0 {
		target.Server.RateBurst = source.Server.RateBurst
	}

	if source.Storage.Driver != "" {
		target.Storage.Driver = source.Storage.Driver
	}
	if source.Storage.Path != "" {
		target.Storage.Path = source.Storage.Path
	}

	if source.Providers != nil {
		if target.Providers == nil {
			target.Providers = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Providers {
			target.Providers[k] = v
		}
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	if len(source.Tools) > 0 {
		target.Tools = append(target.Tools, source.Tools...)
	}

	if source.Audio.Enabled {
		target.Audio.Enabled = true
	}
	if source.Audio.Model != "" {
		target.Audio.Model = source.Audio.Model
	}
	if source.Audio.Voice != "" {
		target.Audio.Voice = source.Audio.Voice
	}
	if source.Audio.BaseURL != "" {
		target.Audio.BaseURL = source.Audio.BaseURL
	}
	if source.Audio.APIKey != "" {
		target.Audio.APIKey = source.Audio.APIKey
	}

	if source.EventBus.RedisAddr != "" {
		target.EventBus.RedisAddr = source.EventBus.RedisAddr
	}
	if source.EventBus.Stream != "" {
		target.EventBus.Stream = source.EventBus.Stream
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *types.Config) {
	for provider, envVar := range providerEnv {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if cfg.Providers == nil {
				cfg.Providers = make(map[string]types.ProviderConfig)
			}
			p := cfg.Providers[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				cfg.Providers[provider] = p
			}
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = n
		}
	}
	if provider := os.Getenv("CHATSYNC_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}
	if model := os.Getenv("CHATSYNC_MODEL"); model != "" {
		cfg.Model = model
	}
	if v := os.Getenv("CHATSYNC_ENABLE_TTS"); v != "" {
		cfg.Audio.Enabled, _ = strconv.ParseBool(v)
	}
	if addr := os.Getenv("CHATSYNC_REDIS_ADDR"); addr != "" {
		cfg.EventBus.RedisAddr = addr
	}
}

func applyDefaults(cfg *types.Config) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Hostname == "" {
		cfg.Server.Hostname = DefaultHostname
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = GetPaths().StoragePath()
	}
	if cfg.Audio.APIKey == "" {
		cfg.Audio.APIKey = cfg.Providers["openai"].APIKey
	}
	if cfg.EventBus.Stream == "" {
		cfg.EventBus.Stream = "chatsync.updates"
	}

	// The built-in search tools are served by this process.
	if cfg.MCP == nil {
		cfg.MCP = map[string]types.MCPConfig{
			DefaultMCPServer: {
				Type: "remote",
				URL:  fmt.Sprintf("http://localhost:%d/mcp/search", cfg.Server.Port),
			},
		}
	}
}

// Save writes the configuration to a file as indented JSON.
func Save(cfg *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
