package config

import "time"

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReasonerProviders: map[string]ReasonerProviderCfg{
			"openai": {
				Type:       "openai",
				Model:      "gpt-4o",
				APIKey:     "${OPENAI_API_KEY}",
				RateLimit:  8.0,
				Timeout:    60 * time.Second,
				MaxRetries: 3,
				Enabled:    true,
			},
		},
		EmbedderProviders: map[string]EmbedderProviderCfg{
			"openai": {
				Type:       "openai",
				Model:      "text-embedding-3-small",
				APIKey:     "${OPENAI_API_KEY}",
				Dimension:  1536,
				BatchSize:  64,
				BatchDelay: 200 * time.Millisecond,
				RateLimit:  10.0,
				Enabled:    true,
			},
		},
		SynthProviders: map[string]SynthProviderCfg{
			"openai": {
				Type:       "openai",
				Model:      "tts-1-hd",
				APIKey:     "${OPENAI_API_KEY}",
				Format:     "mp3",
				Speed:      1.0,
				RateLimit:  8.0,
				MaxRetries: 3,
				Enabled:    true,
			},
		},
		Defaults: DefaultsCfg{
			ReasonerProvider: "openai",
			EmbedderProvider: "openai",
			SynthProvider:    "openai",
			Style:            "npr_calm",
			TargetDurationS:  900,
		},
		Budget: BudgetCfg{
			MaxCostUSD:               5.00,
			AlertThreshold:           0.8,
			MaxTokensPerPaper:        2_000_000,
			MaxProcessingS:           3600,
			ReasoningCostPer1KTokens: 0.01,
			EmbeddingCostPer1KTokens: 0.0001,
			SynthesisCostPer1KChars:  0.015,
		},
		Pipeline: PipelineCfg{
			AccuracyThreshold:     0.75,
			MaxRewrites:           2,
			MaxSegmentRetries:     2,
			MaxSegmentParallelism: 3,
			RetrievalK:            5,
			CallTimeout:           60 * time.Second,
		},
		Orchestrator: OrchestratorCfg{
			MaxStateRetries:       3,
			MaxWorkflowIterations: 50,
			MaxConcurrentJobs:     2,
		},
		Retriever: RetrieverCfg{
			ChunkWords:        300,
			ChunkOverlapWords: 100,
			MinChunkWords:     50,
			MinIndexCoverage:  0.5,
			Backend:           "memory",
		},
		Audio: AudioCfg{
			InterLineGapMS:    250,
			InterSegmentGapMS: 800,
			LeadInMS:          500,
			LeadOutMS:         1200,
		},
		DataDir: "",
	}
}

// envAliases maps the flat environment variables recognized by the batch
// tool onto viper config keys. These take effect in addition to the
// PAPERCAST_ prefixed bindings.
var envAliases = map[string]string{
	"REASONER_PROVIDER":         "defaults.reasoner_provider",
	"EMBEDDER_PROVIDER":         "defaults.embedder_provider",
	"SYNTH_PROVIDER":            "defaults.synth_provider",
	"MAX_CONCURRENT_JOBS":       "orchestrator.max_concurrent_jobs",
	"MAX_WORKFLOW_ITERATIONS":   "orchestrator.max_workflow_iterations",
	"MAX_STATE_RETRIES":         "orchestrator.max_state_retries",
	"MAX_SEGMENT_PARALLELISM":   "pipeline.max_segment_parallelism",
	"MAX_SEGMENT_RETRIES":       "pipeline.max_segment_retries",
	"MAX_REWRITES":              "pipeline.max_rewrites",
	"ACC_THRESHOLD":             "pipeline.accuracy_threshold",
	"MAX_COST_USD":              "budget.max_cost_usd",
	"MAX_TOKENS_PER_PAPER":      "budget.max_tokens_per_paper",
	"MAX_PROCESSING_TIME_S":     "budget.max_processing_time_s",
	"MIN_INDEX_COVERAGE":        "retriever.min_index_coverage",
	"CHUNK_WORDS":               "retriever.chunk_words",
	"CHUNK_OVERLAP_WORDS":       "retriever.chunk_overlap_words",
	"DEFAULT_STYLE":             "defaults.style",
	"DEFAULT_TARGET_DURATION_S": "defaults.target_duration_s",
}
