package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/tabaret/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	DataDir       string          `mapstructure:"data_dir" yaml:"data_dir"`
	ClaudeDir     string          `mapstructure:"claude_dir" yaml:"claude_dir"`
	Agent         AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Terminal      TerminalConfig  `mapstructure:"terminal" yaml:"terminal"`
	Discovery     DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Usage         UsageConfig     `mapstructure:"usage" yaml:"usage"`
	Store         StoreConfig     `mapstructure:"store" yaml:"store"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// AgentConfig controls how agent sessions are launched.
type AgentConfig struct {
	// Binary is the agent CLI to spawn inside terminal tabs.
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Shell wraps the agent command so the child sees a login-ish
	// environment (GPG_TTY etc).
	Shell string `mapstructure:"shell" yaml:"shell"`
}

// TerminalConfig controls the embedded terminal subsystem.
type TerminalConfig struct {
	ScrollbackLines int `mapstructure:"scrollback_lines" yaml:"scrollback_lines"`
	KillGraceMillis int `mapstructure:"kill_grace_ms" yaml:"kill_grace_ms"`
}

// DiscoveryConfig controls conversation log scanning.
type DiscoveryConfig struct {
	RefreshSeconds   int `mapstructure:"refresh_seconds" yaml:"refresh_seconds"`
	HungAfterMinutes int `mapstructure:"hung_after_minutes" yaml:"hung_after_minutes"`
}

// UsageConfig controls the subscription usage fetcher.
type UsageConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

// StoreConfig configures the session history database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		DataDir:       filepath.Join(home, ".tabaret"),
		ClaudeDir:     filepath.Join(home, ".claude"),
		Agent: AgentConfig{
			Binary: "claude",
			Shell:  "bash",
		},
		Terminal: TerminalConfig{
			ScrollbackLines: schema.DefaultScrollbackLines,
			KillGraceMillis: schema.DefaultKillGraceMillis,
		},
		Discovery: DiscoveryConfig{
			RefreshSeconds:   5,
			HungAfterMinutes: 5,
		},
		Usage: UsageConfig{
			TTLSeconds: 60,
		},
		Store: StoreConfig{
			Path: filepath.Join(home, ".tabaret", "data.db"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabaret", "config.yaml"), nil
}
