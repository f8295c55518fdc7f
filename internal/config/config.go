// Package config handles loading, validating, and hot-reloading
// papercast configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/papercast/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, env bindings, and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("reasoner_providers", defaults.ReasonerProviders)
	viper.SetDefault("embedder_providers", defaults.EmbedderProviders)
	viper.SetDefault("synth_providers", defaults.SynthProviders)
	viper.SetDefault("defaults", defaults.Defaults)
	viper.SetDefault("budget", defaults.Budget)
	viper.SetDefault("pipeline", defaults.Pipeline)
	viper.SetDefault("orchestrator", defaults.Orchestrator)
	viper.SetDefault("retriever", defaults.Retriever)
	viper.SetDefault("audio", defaults.Audio)
	viper.SetDefault("data_dir", defaults.DataDir)

	// Environment variables with PAPERCAST_ prefix
	viper.SetEnvPrefix("PAPERCAST")
	viper.AutomaticEnv()

	// Flat env var aliases used by the batch tool (MAX_COST_USD, ACC_THRESHOLD, ...)
	for env, key := range envAliases {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env var %s: %w", env, err)
		}
	}

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.papercast")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Reasoners: make(map[string]providers.ReasonerConfig),
		Embedders: make(map[string]providers.EmbedderConfig),
		Synths:    make(map[string]providers.SynthConfig),
	}

	for name, r := range c.ReasonerProviders {
		cfg.Reasoners[name] = providers.ReasonerConfig{
			Type:       r.Type,
			Model:      r.Model,
			APIKey:     ResolveEnvVars(r.APIKey),
			BaseURL:    r.BaseURL,
			RateLimit:  r.RateLimit,
			Timeout:    r.Timeout,
			MaxRetries: r.MaxRetries,
			Enabled:    r.Enabled,
		}
	}

	for name, e := range c.EmbedderProviders {
		cfg.Embedders[name] = providers.EmbedderConfig{
			Type:       e.Type,
			Model:      e.Model,
			APIKey:     ResolveEnvVars(e.APIKey),
			Dimension:  e.Dimension,
			BatchSize:  e.BatchSize,
			BatchDelay: e.BatchDelay,
			RateLimit:  e.RateLimit,
			Enabled:    e.Enabled,
		}
	}

	for name, s := range c.SynthProviders {
		cfg.Synths[name] = providers.SynthConfig{
			Type:       s.Type,
			Model:      s.Model,
			APIKey:     ResolveEnvVars(s.APIKey),
			Format:     s.Format,
			Speed:      s.Speed,
			RateLimit:  s.RateLimit,
			MaxRetries: s.MaxRetries,
			Enabled:    s.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Papercast configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
