package config

import "time"

// Config holds papercast configuration.
// Stored at: ./config.yaml or ~/.papercast/config.yaml
type Config struct {
	ReasonerProviders map[string]ReasonerProviderCfg `mapstructure:"reasoner_providers" yaml:"reasoner_providers"`
	EmbedderProviders map[string]EmbedderProviderCfg `mapstructure:"embedder_providers" yaml:"embedder_providers"`
	SynthProviders    map[string]SynthProviderCfg    `mapstructure:"synth_providers" yaml:"synth_providers"`

	Defaults     DefaultsCfg     `mapstructure:"defaults" yaml:"defaults"`
	Budget       BudgetCfg       `mapstructure:"budget" yaml:"budget"`
	Pipeline     PipelineCfg     `mapstructure:"pipeline" yaml:"pipeline"`
	Orchestrator OrchestratorCfg `mapstructure:"orchestrator" yaml:"orchestrator"`
	Retriever    RetrieverCfg    `mapstructure:"retriever" yaml:"retriever"`
	Audio        AudioCfg        `mapstructure:"audio" yaml:"audio"`
	DataDir      string          `mapstructure:"data_dir" yaml:"data_dir"`
}

// ReasonerProviderCfg configures a structured-JSON LLM backend.
type ReasonerProviderCfg struct {
	Type       string        `mapstructure:"type" yaml:"type"`   // "openai", "mock"
	Model      string        `mapstructure:"model" yaml:"model"` // Model name
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
}

// EmbedderProviderCfg configures a vector embedding backend.
type EmbedderProviderCfg struct {
	Type       string  `mapstructure:"type" yaml:"type"` // "openai", "mock"
	Model      string  `mapstructure:"model" yaml:"model"`
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`
	Dimension  int     `mapstructure:"dimension" yaml:"dimension"`
	BatchSize  int     `mapstructure:"batch_size" yaml:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay" yaml:"batch_delay"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
}

// SynthProviderCfg configures a TTS backend.
type SynthProviderCfg struct {
	Type       string  `mapstructure:"type" yaml:"type"` // "openai", "mock"
	Model      string  `mapstructure:"model" yaml:"model"`
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`
	Format     string  `mapstructure:"format" yaml:"format"`
	Speed      float64 `mapstructure:"speed" yaml:"speed"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"`
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg selects default providers and style.
type DefaultsCfg struct {
	ReasonerProvider string  `mapstructure:"reasoner_provider" yaml:"reasoner_provider"`
	EmbedderProvider string  `mapstructure:"embedder_provider" yaml:"embedder_provider"`
	SynthProvider    string  `mapstructure:"synth_provider" yaml:"synth_provider"`
	Style            string  `mapstructure:"style" yaml:"style"`
	TargetDurationS  float64 `mapstructure:"target_duration_s" yaml:"target_duration_s"`
}

// BudgetCfg holds per-job budget limits.
type BudgetCfg struct {
	MaxCostUSD        float64 `mapstructure:"max_cost_usd" yaml:"max_cost_usd"`
	AlertThreshold    float64 `mapstructure:"alert_threshold" yaml:"alert_threshold"`
	MaxTokensPerPaper int64   `mapstructure:"max_tokens_per_paper" yaml:"max_tokens_per_paper"`
	MaxProcessingS    int     `mapstructure:"max_processing_time_s" yaml:"max_processing_time_s"`

	// Token-to-cost rates per operation class.
	ReasoningCostPer1KTokens float64 `mapstructure:"reasoning_cost_per_1k_tokens" yaml:"reasoning_cost_per_1k_tokens"`
	EmbeddingCostPer1KTokens float64 `mapstructure:"embedding_cost_per_1k_tokens" yaml:"embedding_cost_per_1k_tokens"`
	SynthesisCostPer1KChars  float64 `mapstructure:"synthesis_cost_per_1k_chars" yaml:"synthesis_cost_per_1k_chars"`
}

// PipelineCfg holds per-segment pipeline tuning.
type PipelineCfg struct {
	AccuracyThreshold      float64 `mapstructure:"accuracy_threshold" yaml:"accuracy_threshold"`
	MaxRewrites            int     `mapstructure:"max_rewrites" yaml:"max_rewrites"`
	MaxSegmentRetries      int     `mapstructure:"max_segment_retries" yaml:"max_segment_retries"`
	MaxSegmentParallelism  int     `mapstructure:"max_segment_parallelism" yaml:"max_segment_parallelism"`
	RetrievalK             int     `mapstructure:"retrieval_k" yaml:"retrieval_k"`
	CallTimeout            time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// OrchestratorCfg holds job state machine tuning.
type OrchestratorCfg struct {
	MaxStateRetries       int `mapstructure:"max_state_retries" yaml:"max_state_retries"`
	MaxWorkflowIterations int `mapstructure:"max_workflow_iterations" yaml:"max_workflow_iterations"`
	MaxConcurrentJobs     int `mapstructure:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
}

// RetrieverCfg holds chunking and index tuning.
type RetrieverCfg struct {
	ChunkWords        int     `mapstructure:"chunk_words" yaml:"chunk_words"`
	ChunkOverlapWords int     `mapstructure:"chunk_overlap_words" yaml:"chunk_overlap_words"`
	MinChunkWords     int     `mapstructure:"min_chunk_words" yaml:"min_chunk_words"`
	MinIndexCoverage  float64 `mapstructure:"min_index_coverage" yaml:"min_index_coverage"`

	// Index backend: "memory" or "pgvector".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

// AudioCfg holds stitching parameters.
type AudioCfg struct {
	InterLineGapMS    int `mapstructure:"inter_line_gap_ms" yaml:"inter_line_gap_ms"`
	InterSegmentGapMS int `mapstructure:"inter_segment_gap_ms" yaml:"inter_segment_gap_ms"`
	LeadInMS          int `mapstructure:"lead_in_ms" yaml:"lead_in_ms"`
	LeadOutMS         int `mapstructure:"lead_out_ms" yaml:"lead_out_ms"`
}

// GetReasonerProvider returns a reasoner provider config by name.
func (c *Config) GetReasonerProvider(name string) (ReasonerProviderCfg, bool) {
	p, ok := c.ReasonerProviders[name]
	return p, ok
}

// GetEmbedderProvider returns an embedder provider config by name.
func (c *Config) GetEmbedderProvider(name string) (EmbedderProviderCfg, bool) {
	p, ok := c.EmbedderProviders[name]
	return p, ok
}

// GetSynthProvider returns a synth provider config by name.
func (c *Config) GetSynthProvider(name string) (SynthProviderCfg, bool) {
	p, ok := c.SynthProviders[name]
	return p, ok
}
