package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Default returns a Config populated with the environment's recognized
// defaults (§6.5).
func Default() *Config {
	return &Config{
		ArchonHome:                 "~/.archon",
		MaxConcurrentConversations: 10,
		MaxWorktreesPerCodebase:    25,
		StaleThresholdDays:         14,
		CleanupIntervalHours:       6,
		DefaultAIAssistant:         DefaultAIAssistant,
	}
}

// Load reads config from a JSON file (if present) and overlays environment
// variables, mirroring the teacher's "file then env, env wins" convention.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	envStr("ARCHON_HOME", &c.ArchonHome)
	envInt("MAX_CONCURRENT_CONVERSATIONS", &c.MaxConcurrentConversations)
	envInt("MAX_WORKTREES_PER_CODEBASE", &c.MaxWorktreesPerCodebase)
	envInt("STALE_THRESHOLD_DAYS", &c.StaleThresholdDays)
	envInt("CLEANUP_INTERVAL_HOURS", &c.CleanupIntervalHours)
	envStr("DEFAULT_AI_ASSISTANT", &c.DefaultAIAssistant)

	envStr("ARCHON_POSTGRES_DSN", &c.PostgresDSN)
	envStr("GH_TOKEN", &c.GitHubToken)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
