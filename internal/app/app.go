package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/handlers"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/services/answers"
	"github.com/ternarybob/respondeo/internal/services/chunker"
	"github.com/ternarybob/respondeo/internal/services/embed"
	"github.com/ternarybob/respondeo/internal/services/index"
	"github.com/ternarybob/respondeo/internal/services/llm"
	"github.com/ternarybob/respondeo/internal/services/pipeline"
	"github.com/ternarybob/respondeo/internal/services/prompt"
	"github.com/ternarybob/respondeo/internal/services/retrieval"
	"github.com/ternarybob/respondeo/internal/services/scheduler"
	"github.com/ternarybob/respondeo/internal/services/verify"
	badgerstore "github.com/ternarybob/respondeo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	LLMService       interfaces.LLMService
	EmbeddingService interfaces.EmbeddingService
	ChunkerService   *chunker.Service
	Index            *index.Index
	IndexBuilder     *index.Builder
	Retriever        *retrieval.Retriever
	Assembler        *prompt.Assembler
	Verifier         *verify.Verifier
	AnswerCache      *answers.Cache

	// Pipelines
	QueryService  interfaces.QueryService
	IngestService interfaces.IngestService

	// Background reindex
	Scheduler *scheduler.Scheduler

	// HTTP handlers
	QueryHandler  *handlers.QueryHandler
	IngestHandler *handlers.IngestHandler
	StatusHandler *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Rebuild the index from persisted chunks so restarts come back up
	// serving the prior corpus.
	app.restoreIndex()

	app.Scheduler.Start()

	logger.Info().
		Str("llm_provider", string(cfg.LLM.DefaultProvider)).
		Int64("index_version", int64(app.Index.Version())).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	return nil
}

func (a *App) initServices() error {
	llmService, err := llm.NewLLMService(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.LLMService = llmService

	embedder, err := embed.NewService(llmService, &a.Config.Index, a.Logger)
	if err != nil {
		return err
	}
	a.EmbeddingService = embedder

	chunkerService, err := chunker.NewService(&a.Config.Chunking, chunker.DefaultPolicy(), a.Logger)
	if err != nil {
		return err
	}
	a.ChunkerService = chunkerService

	a.Index = index.New()
	builder, err := index.NewBuilder(&a.Config.Index, a.Logger)
	if err != nil {
		return err
	}
	a.IndexBuilder = builder

	retriever, err := retrieval.NewRetriever(embedder, a.Index, &a.Config.Retrieval, &a.Config.Index, a.Logger)
	if err != nil {
		return err
	}
	a.Retriever = retriever

	assembler, err := prompt.NewAssembler(&a.Config.Prompt, a.Logger)
	if err != nil {
		return err
	}
	a.Assembler = assembler

	verifier, err := verify.NewVerifier(&a.Config.Verify, a.Logger)
	if err != nil {
		return err
	}
	a.Verifier = verifier

	a.AnswerCache = answers.NewCache(a.StorageManager.AnswerCacheStorage(), a.Logger)

	a.QueryService = pipeline.NewQueryPipeline(
		retriever, assembler, llmService, verifier,
		a.AnswerCache, a.Index, &a.Config.Retrieval, a.Logger,
	)
	a.IngestService = pipeline.NewIngester(
		chunkerService, embedder, builder, a.Index,
		a.StorageManager, a.AnswerCache, a.Logger,
	)

	sched, err := scheduler.NewScheduler(a.IngestService, &a.Config.Reindex, a.Logger)
	if err != nil {
		return err
	}
	a.Scheduler = sched

	return nil
}

func (a *App) initHandlers() {
	a.QueryHandler = handlers.NewQueryHandler(a.QueryService, a.Logger)
	a.IngestHandler = handlers.NewIngestHandler(a.IngestService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.Index, a.LLMService, a.Logger)
}

func (a *App) restoreIndex() {
	count, err := a.StorageManager.ChunkStorage().CountChunks()
	if err != nil || count == 0 {
		return
	}
	if _, err := a.IngestService.Reindex(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to restore index from storage")
	}
}

// Shutdown stops background work and closes the storage layer
func (a *App) Shutdown() error {
	a.Scheduler.Stop()

	if err := a.LLMService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service close failed")
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
