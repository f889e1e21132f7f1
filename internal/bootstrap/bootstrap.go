package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docintel/internal/analysis"
	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/core/usecase"
	"github.com/kirillkom/docintel/internal/infrastructure/chunking"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor"
	neo4jgraph "github.com/kirillkom/docintel/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/docintel/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docintel/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
	"github.com/kirillkom/docintel/internal/infrastructure/storage/localfs"
)

// Options carries process-specific collaborators: the api and the worker observe different metrics.
type Options struct {
	Logger          *slog.Logger
	BreakerObserver resilience.StateObserver
	Observer        ports.ProcessingObserver
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    *nats.Queue
	Repo     ports.DocumentRepository
	Rulebook *analysis.Rulebook

	IngestUC    ports.DocumentIngestor
	ProcessUC   ports.DocumentProcessor
	DocumentsUC ports.DocumentReader
	SearchUC    ports.DocumentSearcher
	DashboardUC ports.DashboardReader
	InsightsUC  ports.InsightsReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	book, err := analysis.LoadRulebook(cfg.RulebookPath)
	if err != nil {
		return nil, fmt.Errorf("load rulebook: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	findings := postgres.NewFindingRepository(db)
	index := postgres.NewChunkIndex(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	policy := resilienceConfig(cfg)
	logger.Info("resilience_policy", "policy", policy)
	executor := resilience.NewExecutor(policy,
		resilience.WithLogger(logger),
		resilience.WithStateObserver(opts.BreakerObserver),
	)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var related ports.RelatedDocumentFinder = findings
	var graph *neo4jgraph.Projector
	if cfg.Neo4jEnabled() {
		graph, err = neo4jgraph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, neo4jgraph.Options{
			Database:           cfg.Neo4jDatabase,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			queue.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init graph store: %w", err)
		}
		related = graph
	}

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, cfg.MaxUploadBytes)
	processUC := usecase.NewProcessDocumentUseCase(
		repo,
		extractor.NewDefault(storage, cfg.MaxExtractBytes),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		analysis.NewAnalyzer(book),
		index,
	).WithLogger(logger)
	if graph != nil {
		processUC = processUC.WithGraph(graph)
	}
	if opts.Observer != nil {
		processUC = processUC.WithObserver(opts.Observer)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Queue:    queue,
		Repo:     repo,
		Rulebook: book,

		IngestUC:    ingestUC,
		ProcessUC:   processUC,
		DocumentsUC: usecase.NewDocumentsUseCase(repo, findings, related).WithLogger(logger),
		SearchUC:    usecase.NewSearchUseCase(index),
		DashboardUC: usecase.NewDashboardUseCase(repo, findings),
		InsightsUC:  usecase.NewInsightsUseCase(findings, book),

		closeFn: func() {
			queue.Close()
			if graph != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := graph.Close(closeCtx); err != nil {
					logger.Warn("neo4j_close_failed", "error", err)
				}
			}
			closeDB(db, logger)
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("postgres_close_failed", "error", err)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	rc.RetryInitialBackoff = time.Duration(cfg.ResilienceRetryInitialBackoff) * time.Millisecond
	rc.RetryMaxBackoff = time.Duration(cfg.ResilienceRetryMaxBackoff) * time.Millisecond
	rc.RetryMultiplier = cfg.ResilienceRetryMultiplier
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	rc.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	rc.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	rc.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenTimeout) * time.Millisecond
	rc.BreakerHalfOpenMaxCalls = uint32(cfg.ResilienceBreakerHalfOpenMax)
	return rc
}
