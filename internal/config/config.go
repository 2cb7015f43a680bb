package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultStateDir is the state directory used when none is configured.
const DefaultStateDir = ".ai"

// Config is the complete drover configuration.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Registry RegistryConfig `mapstructure:"registry"`
	Swarm    SwarmConfig    `mapstructure:"swarm"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig controls where drover stores state.
type PathsConfig struct {
	// StateDir holds the registries, plan artifacts, and the audit log.
	// A relative path resolves against the project root. Supports ~ for
	// home directory expansion.
	StateDir string `mapstructure:"state_dir"`

	// AgentsDir holds persona manifests. If empty, defaults to "agents"
	// inside the state directory.
	AgentsDir string `mapstructure:"agents_dir"`
}

// RegistryConfig controls registry behavior.
type RegistryConfig struct {
	// SessionKeyLength is how many leading characters of a session
	// identifier form its registry key (default: 8)
	SessionKeyLength int `mapstructure:"session_key_length"`
}

// SwarmConfig controls batch dispatch behavior.
type SwarmConfig struct {
	// MaxRecords is how many swarm records the registry retains; older
	// records are pruned (default: 50)
	MaxRecords int `mapstructure:"max_records"`

	// MaxParallel is the maximum number of concurrent worker sessions
	// (default: 4)
	MaxParallel int `mapstructure:"max_parallel"`

	// Worktrees asks the host to run each task in an isolated filesystem
	// copy (default: false)
	Worktrees bool `mapstructure:"worktrees"`
}

// WorkerConfig controls the session host connection.
type WorkerConfig struct {
	// BaseURL is the session host's RPC endpoint
	BaseURL string `mapstructure:"base_url"`

	// Token is the bearer token sent with every request; empty disables
	// authentication
	Token string `mapstructure:"token"`

	// TimeoutSeconds bounds each RPC round trip (default: 300)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls diagnostic logging.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`

	// File is where log lines go. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// Timeout returns the worker RPC timeout as a time.Duration.
func (w *WorkerConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// ResolveStateDir returns the resolved state directory path. An empty or
// relative StateDir resolves against baseDir; ~ expands to the home
// directory.
func (p *PathsConfig) ResolveStateDir(baseDir string) string {
	path := p.StateDir
	if path == "" {
		path = DefaultStateDir
	}
	return resolvePath(path, baseDir)
}

// ResolveAgentsDir returns the resolved persona manifest directory. An empty
// AgentsDir defaults to "agents" inside the state directory.
func (p *PathsConfig) ResolveAgentsDir(baseDir string) string {
	if p.AgentsDir == "" {
		return filepath.Join(p.ResolveStateDir(baseDir), "agents")
	}
	return resolvePath(p.AgentsDir, baseDir)
}

func resolvePath(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir:  DefaultStateDir,
			AgentsDir: "", // Empty means <state_dir>/agents
		},
		Registry: RegistryConfig{
			SessionKeyLength: 8,
		},
		Swarm: SwarmConfig{
			MaxRecords:  50,
			MaxParallel: 4,
			Worktrees:   false,
		},
		Worker: WorkerConfig{
			BaseURL:        "http://127.0.0.1:4096",
			Token:          "",
			TimeoutSeconds: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.agents_dir", defaults.Paths.AgentsDir)

	viper.SetDefault("registry.session_key_length", defaults.Registry.SessionKeyLength)

	viper.SetDefault("swarm.max_records", defaults.Swarm.MaxRecords)
	viper.SetDefault("swarm.max_parallel", defaults.Swarm.MaxParallel)
	viper.SetDefault("swarm.worktrees", defaults.Swarm.Worktrees)

	viper.SetDefault("worker.base_url", defaults.Worker.BaseURL)
	viper.SetDefault("worker.token", defaults.Worker.Token)
	viper.SetDefault("worker.timeout_seconds", defaults.Worker.TimeoutSeconds)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from viper into a Config struct and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// loading fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "drover")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drover"
	}
	return filepath.Join(home, ".config", "drover")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
