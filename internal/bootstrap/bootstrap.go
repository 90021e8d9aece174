package bootstrap

import (
	"context"
	"fmt"

	"github.com/seojinpark/campus-knowledge/internal/config"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
	"github.com/seojinpark/campus-knowledge/internal/core/usecase"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/lexical"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/llm/ollama"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/queue/nats"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/repository/postgres"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/resilience"
	"github.com/seojinpark/campus-knowledge/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	Store      ports.KnowledgeStore
	IngestUC   ports.RecordIngestor
	ProcessUC  ports.RecordProcessor
	RetrieveUC ports.ContextRetriever
	MaintainUC ports.Maintainer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewRecordRepository(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	// One executor so all upstreams share retry policy and breakers are
	// still isolated per operation name.
	exec := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Executor: exec})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, exec)
	structurer := ollama.NewStructurer(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	semanticIndex := qdrant.NewIndex(cfg.QdrantURL, cfg.QdrantCollection, embedder, exec)
	lexicalIndex := lexical.NewIndex()

	ingestUC := usecase.NewIngestRecordsUseCase(store, queue)
	processUC := usecase.NewProcessRecordUseCase(store, usecase.NewFactExtractor(structurer), semanticIndex, lexicalIndex)
	retrieveUC := usecase.NewRetrieveUseCase(
		semanticIndex,
		lexicalIndex,
		store,
		generator,
		usecase.FusionWeights{Semantic: cfg.FusionSemanticWeight, Lexical: cfg.FusionLexicalWeight},
		cfg.OverfetchFactor,
	)
	maintainUC := usecase.NewMaintainUseCase(store, processUC, semanticIndex, lexicalIndex)

	return &App{
		Config: cfg,
		Queue:  queue,
		Store:  store,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		RetrieveUC: retrieveUC,
		MaintainUC: maintainUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
