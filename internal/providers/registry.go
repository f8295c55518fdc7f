package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds references to reasoner, embedder, and TTS backends.
// It supports config-driven instantiation, hot-reload, and provides
// thread-safe access.
type Registry struct {
	mu        sync.RWMutex
	reasoners map[string]Reasoner
	embedders map[string]Embedder
	synths    map[string]TTSProvider
	logger    *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		reasoners: make(map[string]Reasoner),
		embedders: make(map[string]Embedder),
		synths:    make(map[string]TTSProvider),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterReasoner registers a reasoner by name.
func (r *Registry) RegisterReasoner(name string, client Reasoner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasoners[name] = client
	if r.logger != nil {
		r.logger.Info("registered reasoner", "name", name)
	}
}

// RegisterEmbedder registers an embedder by name.
func (r *Registry) RegisterEmbedder(name string, client Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[name] = client
	if r.logger != nil {
		r.logger.Info("registered embedder", "name", name)
	}
}

// RegisterSynth registers a TTS provider by name.
func (r *Registry) RegisterSynth(name string, provider TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synths[name] = provider
	if r.logger != nil {
		r.logger.Info("registered synth provider", "name", name)
	}
}

// GetReasoner returns a reasoner by name.
func (r *Registry) GetReasoner(name string) (Reasoner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.reasoners[name]
	if !ok {
		return nil, fmt.Errorf("reasoner not found: %s", name)
	}
	return client, nil
}

// GetEmbedder returns an embedder by name.
func (r *Registry) GetEmbedder(name string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.embedders[name]
	if !ok {
		return nil, fmt.Errorf("embedder not found: %s", name)
	}
	return client, nil
}

// GetSynth returns a TTS provider by name.
func (r *Registry) GetSynth(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.synths[name]
	if !ok {
		return nil, fmt.Errorf("synth provider not found: %s", name)
	}
	return provider, nil
}

// ListReasoners returns all registered reasoner names.
func (r *Registry) ListReasoners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.reasoners))
	for name := range r.reasoners {
		names = append(names, name)
	}
	return names
}

// ListEmbedders returns all registered embedder names.
func (r *Registry) ListEmbedders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.embedders))
	for name := range r.embedders {
		names = append(names, name)
	}
	return names
}

// ListSynths returns all registered TTS provider names.
func (r *Registry) ListSynths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.synths))
	for name := range r.synths {
		names = append(names, name)
	}
	return names
}

// HasReasoner checks if a reasoner is registered.
func (r *Registry) HasReasoner(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.reasoners[name]
	return ok
}

// HasSynth checks if a TTS provider is registered.
func (r *Registry) HasSynth(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.synths[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
// This mirrors the config.Config structure for provider setup.
type RegistryConfig struct {
	// Reasoners maps provider names to their config
	Reasoners map[string]ReasonerConfig

	// Embedders maps provider names to their config
	Embedders map[string]EmbedderConfig

	// Synths maps provider names to their config
	Synths map[string]SynthConfig
}

// ReasonerConfig matches config.ReasonerProviderCfg with resolved API key.
type ReasonerConfig struct {
	Type       string // "openai", "mock"
	Model      string
	APIKey     string // Resolved API key
	BaseURL    string
	RateLimit  float64 // Requests per second
	Timeout    time.Duration
	MaxRetries int
	Enabled    bool
}

// EmbedderConfig matches config.EmbedderProviderCfg with resolved API key.
type EmbedderConfig struct {
	Type       string // "openai", "mock"
	Model      string
	APIKey     string // Resolved API key
	Dimension  int
	BatchSize  int
	BatchDelay time.Duration
	RateLimit  float64
	Enabled    bool
}

// SynthConfig matches config.SynthProviderCfg with resolved API key.
type SynthConfig struct {
	Type       string // "openai", "mock"
	Model      string
	APIKey     string // Resolved API key
	Format     string
	Speed      float64
	RateLimit  float64
	MaxRetries int
	Enabled    bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers will be registered; non-mock providers additionally
// require an API key.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.applyConfig(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Track which providers should exist
	wantReasoner := make(map[string]bool)
	wantEmbedder := make(map[string]bool)
	wantSynth := make(map[string]bool)

	for name, provCfg := range cfg.Reasoners {
		if !usable(provCfg.Type, provCfg.Enabled, provCfg.APIKey) {
			continue
		}
		wantReasoner[name] = true

		existing, hasExisting := r.reasoners[name]
		if !hasExisting || needsReasonerUpdate(existing, provCfg) {
			client := createReasoner(provCfg)
			if client != nil {
				r.reasoners[name] = client
				r.logChange(hasExisting, "reasoner", name, provCfg.Type)
			}
		}
	}

	for name, provCfg := range cfg.Embedders {
		if !usable(provCfg.Type, provCfg.Enabled, provCfg.APIKey) {
			continue
		}
		wantEmbedder[name] = true

		existing, hasExisting := r.embedders[name]
		if !hasExisting || needsEmbedderUpdate(existing, provCfg) {
			client := createEmbedder(provCfg)
			if client != nil {
				r.embedders[name] = client
				r.logChange(hasExisting, "embedder", name, provCfg.Type)
			}
		}
	}

	for name, provCfg := range cfg.Synths {
		if !usable(provCfg.Type, provCfg.Enabled, provCfg.APIKey) {
			continue
		}
		wantSynth[name] = true

		existing, hasExisting := r.synths[name]
		if !hasExisting || needsSynthUpdate(existing, provCfg) {
			provider := createSynth(provCfg)
			if provider != nil {
				r.synths[name] = provider
				r.logChange(hasExisting, "synth provider", name, provCfg.Type)
			}
		}
	}

	// Remove providers that are no longer configured
	for name := range r.reasoners {
		if !wantReasoner[name] {
			delete(r.reasoners, name)
			if r.logger != nil {
				r.logger.Info("unregistered reasoner", "name", name)
			}
		}
	}
	for name := range r.embedders {
		if !wantEmbedder[name] {
			delete(r.embedders, name)
			if r.logger != nil {
				r.logger.Info("unregistered embedder", "name", name)
			}
		}
	}
	for name := range r.synths {
		if !wantSynth[name] {
			delete(r.synths, name)
			if r.logger != nil {
				r.logger.Info("unregistered synth provider", "name", name)
			}
		}
	}
}

func (r *Registry) logChange(hasExisting bool, kind, name, typ string) {
	if r.logger == nil {
		return
	}
	if hasExisting {
		r.logger.Info("updated "+kind, "name", name, "type", typ)
	} else {
		r.logger.Info("registered "+kind, "name", name, "type", typ)
	}
}

// usable reports whether a provider config should be instantiated.
// Mock providers never need an API key.
func usable(typ string, enabled bool, apiKey string) bool {
	if !enabled {
		return false
	}
	if typ == "mock" {
		return true
	}
	return apiKey != ""
}

// applyConfig applies configuration without locking (used during init).
func (r *Registry) applyConfig(cfg RegistryConfig) {
	for name, provCfg := range cfg.Reasoners {
		if !usable(provCfg.Type, provCfg.Enabled, provCfg.APIKey) {
			continue
		}
		if client := createReasoner(provCfg); client != nil {
			r.reasoners[name] = client
		}
	}

	for name, provCfg := range cfg.Embedders {
		if !usable(provCfg.Type, provCfg.Enabled, provCfg.APIKey) {
			continue
		}
		if client := createEmbedder(provCfg); client != nil {
			r.embedders[name] = client
		}
	}

	for name, provCfg := range cfg.Synths {
		if !usable(provCfg.Type, provCfg.Enabled, provCfg.APIKey) {
			continue
		}
		if provider := createSynth(provCfg); provider != nil {
			r.synths[name] = provider
		}
	}
}

// createReasoner creates a reasoner based on provider type.
func createReasoner(cfg ReasonerConfig) Reasoner {
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
			RPS:          cfg.RateLimit,
			MaxRetries:   cfg.MaxRetries,
		})
	case "mock":
		return NewMockReasoner()
	default:
		return nil
	}
}

// createEmbedder creates an embedder based on provider type.
func createEmbedder(cfg EmbedderConfig) Embedder {
	switch cfg.Type {
	case "openai":
		return NewOpenAIEmbedClient(OpenAIEmbedConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "mock":
		e := NewMockEmbedder()
		if cfg.Dimension > 0 {
			e.Dimensions = cfg.Dimension
		}
		return e
	default:
		return nil
	}
}

// createSynth creates a TTS provider based on provider type.
func createSynth(cfg SynthConfig) TTSProvider {
	switch cfg.Type {
	case "openai":
		return NewOpenAITTSClient(OpenAITTSConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Speed:      cfg.Speed,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
		})
	case "mock":
		return NewMockTTSProvider()
	default:
		return nil
	}
}

// needsReasonerUpdate checks if a reasoner needs to be recreated.
func needsReasonerUpdate(client Reasoner, cfg ReasonerConfig) bool {
	switch c := client.(type) {
	case *OpenAIClient:
		return c.apiKey != cfg.APIKey ||
			c.defaultModel != cfg.Model ||
			c.rps != cfg.RateLimit
	case *MockReasoner:
		return false
	default:
		return true
	}
}

// needsEmbedderUpdate checks if an embedder needs to be recreated.
func needsEmbedderUpdate(client Embedder, cfg EmbedderConfig) bool {
	switch c := client.(type) {
	case *OpenAIEmbedClient:
		return c.apiKey != cfg.APIKey ||
			c.model != cfg.Model ||
			c.dimension != cfg.Dimension
	case *MockEmbedder:
		return false
	default:
		return true
	}
}

// needsSynthUpdate checks if a TTS provider needs to be recreated.
func needsSynthUpdate(provider TTSProvider, cfg SynthConfig) bool {
	switch p := provider.(type) {
	case *OpenAITTSClient:
		return p.apiKey != cfg.APIKey ||
			p.model != cfg.Model ||
			p.rateLimit != cfg.RateLimit
	case *MockTTSProvider:
		return false
	default:
		return true
	}
}
