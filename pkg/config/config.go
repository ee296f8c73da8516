package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Memories MemoriesConfig `json:"memories"`
	Backend  BackendConfig  `json:"backend"`
	Log      LogConfig      `json:"log"`
}

// MemoriesConfig controls the memory subsystem itself.
type MemoriesConfig struct {
	// StoreName is the display name of the backing vector store.
	StoreName string `json:"store_name" env:"MEMVAULT_STORE_NAME"`
	// StoreID, when set, skips the find-or-create resolution entirely.
	StoreID string `json:"store_id" env:"MEMVAULT_STORE_ID"`
	// MaxChars bounds the length of a single memory.
	MaxChars int `json:"max_chars" env:"MEMVAULT_MAX_CHARS"`
	// RedactSecrets is the default for per-save redaction.
	RedactSecrets bool `json:"redact_secrets" env:"MEMVAULT_REDACT_SECRETS"`
}

type BackendConfig struct {
	// Kind selects the vector store backend: "openai" or "local".
	Kind   string       `json:"kind" env:"MEMVAULT_BACKEND"`
	OpenAI OpenAIConfig `json:"openai"`
	Local  LocalConfig  `json:"local"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" env:"OPENAI_API_KEY"`
	APIBase string `json:"api_base" env:"OPENAI_API_BASE"`
}

type LocalConfig struct {
	DBPath string `json:"db_path" env:"MEMVAULT_LOCAL_DB_PATH"`
}

type LogConfig struct {
	Level string `json:"level" env:"MEMVAULT_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Memories: MemoriesConfig{
			StoreName:     "MEMORIES_STORE",
			StoreID:       "",
			MaxChars:      8000,
			RedactSecrets: true,
		},
		Backend: BackendConfig{
			Kind:   "openai",
			OpenAI: OpenAIConfig{},
			Local: LocalConfig{
				DBPath: "~/.memvault/state/memvault.db",
			},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// LoadConfig reads the JSON config at path (missing file is fine) and then
// applies environment overrides. Configuration is read once at startup.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultPath is ~/.memvault/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".memvault", "config.json")
}

func (c *Config) LocalDBPath() string {
	return expandHome(c.Backend.Local.DBPath)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
