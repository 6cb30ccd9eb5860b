// Package config loads the Archon core's process-wide configuration: the
// workspace root, concurrency and reclamation limits, and the secrets the
// bootstrap layer (outside this module's scope) must hand to the core's
// constructors.
package config

import (
	"sync"
	"time"
)

// DefaultAIAssistant is used when inferring a brand-new conversation that has
// no codebase linked yet.
const DefaultAIAssistant = "claude"

// Config is the root configuration for the Archon core.
type Config struct {
	// ArchonHome is the root directory under which clones and worktrees live
	// ({ArchonHome}/workspaces/{owner}/{repo}[/worktrees/{branch}]).
	ArchonHome string `json:"archon_home"`

	MaxConcurrentConversations int `json:"max_concurrent_conversations"`
	MaxWorktreesPerCodebase    int `json:"max_worktrees_per_codebase"`
	StaleThresholdDays         int `json:"stale_threshold_days"`
	CleanupIntervalHours       int `json:"cleanup_interval_hours"`

	DefaultAIAssistant string `json:"default_ai_assistant"`

	// PostgresDSN is never read from the config file — only from the
	// ARCHON_POSTGRES_DSN environment variable, since it's a secret.
	PostgresDSN string `json:"-"`

	// GitHubToken is injected into clone URLs when present, from env only.
	GitHubToken string `json:"-"`

	mu sync.RWMutex
}

// WorkspaceRoot returns the expanded {ArchonHome}/workspaces directory.
func (c *Config) WorkspaceRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.ArchonHome) + "/workspaces"
}

// CleanupInterval returns the configured cleanup cadence as a duration.
func (c *Config) CleanupInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// StaleThreshold returns the configured staleness window as a duration.
func (c *Config) StaleThreshold() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.StaleThresholdDays) * 24 * time.Hour
}
