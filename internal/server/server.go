// Package server wires the podcast pipeline together and serves the HTTP
// API. Services are built on Start and flow to endpoints through the
// request context.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackzampolin/papercast/internal/api"
	"github.com/jackzampolin/papercast/internal/budget"
	"github.com/jackzampolin/papercast/internal/config"
	"github.com/jackzampolin/papercast/internal/episode"
	"github.com/jackzampolin/papercast/internal/jobstore"
	"github.com/jackzampolin/papercast/internal/orchestrator"
	"github.com/jackzampolin/papercast/internal/providers"
	"github.com/jackzampolin/papercast/internal/reasoner"
	"github.com/jackzampolin/papercast/internal/retriever"
	"github.com/jackzampolin/papercast/internal/segment"
	"github.com/jackzampolin/papercast/internal/server/endpoints"
	"github.com/jackzampolin/papercast/internal/style"
	"github.com/jackzampolin/papercast/internal/svcctx"
	"github.com/jackzampolin/papercast/internal/synth"
)

// Server is the papercast HTTP server.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	configMgr  *config.Manager
	logger     *slog.Logger
	dataDir    string

	// services holds all core services for context enrichment. Set during
	// Start; endpoints gated on requireInit see 503 until then.
	services *svcctx.Services

	// pool is the pgvector connection pool, nil for the memory backend.
	pool *pgxpool.Pool

	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// DataDir is where audio artifacts live (default: ~/.papercast)
	DataDir string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".papercast")
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	// If config manager provided, set up providers and hot reload
	if cfg.ConfigManager != nil {
		registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())

		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  120 * time.Second,
		// No WriteTimeout: SSE event streams and audio downloads are
		// long-lived.
	}

	s.dataDir = cfg.DataDir
	return s, nil
}

// Start builds the pipeline services and runs the HTTP server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.InitServices(ctx); err != nil {
		s.setNotRunning()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// InitServices wires the full paper-to-episode pipeline from configuration.
// Start calls this; the batch command calls it directly to run jobs without
// the HTTP listener. Calling it twice is an error.
func (s *Server) InitServices(ctx context.Context) error {
	if s.services != nil {
		return errors.New("services already initialized")
	}
	appCfg := config.DefaultConfig()
	if s.configMgr != nil {
		appCfg = s.configMgr.Get()
	}

	governor := budget.NewGovernor(budget.Limits{
		MaxCostUSD:               appCfg.Budget.MaxCostUSD,
		AlertThreshold:           appCfg.Budget.AlertThreshold,
		MaxTokensPerPaper:        appCfg.Budget.MaxTokensPerPaper,
		MaxProcessing:            time.Duration(appCfg.Budget.MaxProcessingS) * time.Second,
		ReasoningCostPer1KTokens: appCfg.Budget.ReasoningCostPer1KTokens,
		EmbeddingCostPer1KTokens: appCfg.Budget.EmbeddingCostPer1KTokens,
		SynthesisCostPer1KChars:  appCfg.Budget.SynthesisCostPer1KChars,
	}, s.logger)

	store := jobstore.NewStore(s.logger)

	reasonerProv, err := s.registry.GetReasoner(appCfg.Defaults.ReasonerProvider)
	if err != nil {
		return fmt.Errorf("reasoner provider: %w", err)
	}
	embedderProv, err := s.registry.GetEmbedder(appCfg.Defaults.EmbedderProvider)
	if err != nil {
		return fmt.Errorf("embedder provider: %w", err)
	}
	ttsProv, err := s.registry.GetSynth(appCfg.Defaults.SynthProvider)
	if err != nil {
		return fmt.Errorf("synth provider: %w", err)
	}

	index, err := s.buildIndex(ctx, appCfg)
	if err != nil {
		return err
	}

	eCfg, _ := appCfg.GetEmbedderProvider(appCfg.Defaults.EmbedderProvider)
	retrieverGW := retriever.NewGateway(index, embedderProv, governor, s.logger, retriever.GatewayConfig{
		Chunker: retriever.ChunkerConfig{
			ChunkWords:   appCfg.Retriever.ChunkWords,
			OverlapWords: appCfg.Retriever.ChunkOverlapWords,
			MinWords:     appCfg.Retriever.MinChunkWords,
		},
		BatchSize:        eCfg.BatchSize,
		BatchDelay:       eCfg.BatchDelay,
		RetrievalK:       appCfg.Pipeline.RetrievalK,
		MinIndexCoverage: appCfg.Retriever.MinIndexCoverage,
	})

	catalog, err := style.LoadCatalog()
	if err != nil {
		return fmt.Errorf("style catalog: %w", err)
	}
	engine := style.NewEngine(catalog, s.logger, style.EngineConfig{})

	voices, err := synth.LoadVoiceMap()
	if err != nil {
		return fmt.Errorf("voice map: %w", err)
	}
	audioStore, err := synth.NewStore(filepath.Join(s.dataDir, "audio"))
	if err != nil {
		return fmt.Errorf("audio store: %w", err)
	}

	// Mock synthesis emits marker bytes, not audio; pair it with the
	// byte-concat stitcher.
	sCfg, _ := appCfg.GetSynthProvider(appCfg.Defaults.SynthProvider)
	var stitcher synth.Stitcher = &synth.FFmpegStitcher{}
	if sCfg.Type == "mock" {
		stitcher = synth.NewMockStitcher()
	} else if err := synth.CheckFFmpegAvailable(); err != nil {
		s.logger.Warn("ffmpeg unavailable, using byte-concat stitcher", "error", err)
		stitcher = synth.NewMockStitcher()
	}

	synthGW := synth.NewGateway(ttsProv, voices, audioStore, stitcher, governor, s.logger, synth.Config{
		Format:            audioFormat(appCfg),
		Speed:             synthSpeed(appCfg),
		InterLineGapMS:    appCfg.Audio.InterLineGapMS,
		InterSegmentGapMS: appCfg.Audio.InterSegmentGapMS,
		LeadInMS:          appCfg.Audio.LeadInMS,
		LeadOutMS:         appCfg.Audio.LeadOutMS,
	})

	rCfg, _ := appCfg.GetReasonerProvider(appCfg.Defaults.ReasonerProvider)
	reasonerGW := reasoner.NewGateway(reasonerProv, governor, s.logger, reasoner.Config{
		Model:       rCfg.Model,
		CallTimeout: appCfg.Pipeline.CallTimeout,
		RateLimit:   int(rCfg.RateLimit * 60),
	})

	pipeline := segment.NewPipeline(reasonerGW, retrieverGW, engine, synthGW, s.logger, segment.Config{
		AccuracyThreshold: appCfg.Pipeline.AccuracyThreshold,
		MaxRewrites:       appCfg.Pipeline.MaxRewrites,
		MaxRetries:        appCfg.Pipeline.MaxSegmentRetries,
		RetrievalK:        appCfg.Pipeline.RetrievalK,
	})
	assembler := episode.NewAssembler(synthGW, governor, s.logger)

	orch := orchestrator.NewOrchestrator(store, governor, retrieverGW, reasonerGW, catalog, pipeline, assembler, s.logger, orchestrator.Config{
		MaxStateRetries:    appCfg.Orchestrator.MaxStateRetries,
		MaxIterations:      appCfg.Orchestrator.MaxWorkflowIterations,
		SegmentParallelism: appCfg.Pipeline.MaxSegmentParallelism,
	})
	manager := orchestrator.NewManager(orch, appCfg.Orchestrator.MaxConcurrentJobs, s.logger)

	s.services = &svcctx.Services{
		Store:     store,
		Manager:   manager,
		Governor:  governor,
		Styles:    catalog,
		Synth:     synthGW,
		ConfigMgr: s.configMgr,
		Logger:    s.logger,
	}
	s.logger.Info("pipeline services initialized",
		"reasoner", appCfg.Defaults.ReasonerProvider,
		"embedder", appCfg.Defaults.EmbedderProvider,
		"synth", appCfg.Defaults.SynthProvider,
		"index", appCfg.Retriever.Backend)
	return nil
}

// buildIndex creates the chunk index, connecting to Postgres for the
// pgvector backend.
func (s *Server) buildIndex(ctx context.Context, appCfg *config.Config) (retriever.Index, error) {
	switch appCfg.Retriever.Backend {
	case "", "memory":
		return retriever.NewMemoryIndex(), nil
	case "pgvector":
		url := config.ResolveEnvVars(appCfg.Retriever.PostgresURL)
		if url == "" {
			return nil, errors.New("retriever.postgres_url is required for the pgvector backend")
		}
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("pgvector pool: %w", err)
		}
		dim := 1536
		if e, ok := appCfg.GetEmbedderProvider(appCfg.Defaults.EmbedderProvider); ok && e.Dimension > 0 {
			dim = e.Dimension
		}
		idx := retriever.NewPgvectorIndex(pool, dim)
		if err := idx.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgvector migrate: %w", err)
		}
		s.pool = pool
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown retriever backend %q", appCfg.Retriever.Backend)
	}
}

func audioFormat(appCfg *config.Config) string {
	if p, ok := appCfg.GetSynthProvider(appCfg.Defaults.SynthProvider); ok && p.Format != "" {
		return p.Format
	}
	return "mp3"
}

func synthSpeed(appCfg *config.Config) float64 {
	if p, ok := appCfg.GetSynthProvider(appCfg.Defaults.SynthProvider); ok && p.Speed > 0 {
		return p.Speed
	}
	return 1.0
}

// shutdown performs graceful shutdown: stop accepting requests, wait for
// in-flight jobs, release the index pool.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.services != nil && s.services.Manager != nil {
		s.logger.Info("waiting for running jobs")
		s.services.Manager.Wait()
	}
	if s.pool != nil {
		s.pool.Close()
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Services returns the wired service set. Nil until Start has run.
func (s *Server) Services() *svcctx.Services {
	return s.services
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the pipeline services are wired.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
