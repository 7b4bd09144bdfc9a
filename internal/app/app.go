// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/config"
	"github.com/paperbase-io/paperbase/internal/core"
	db "github.com/paperbase-io/paperbase/internal/core/database"
	"github.com/paperbase-io/paperbase/internal/core/extraction"
	"github.com/paperbase-io/paperbase/internal/core/llm"
	objectclient "github.com/paperbase-io/paperbase/internal/core/object-client"
	"github.com/paperbase-io/paperbase/internal/core/queue"
	"github.com/paperbase-io/paperbase/internal/core/vectorstore"
	"github.com/paperbase-io/paperbase/internal/index"
	"github.com/paperbase-io/paperbase/internal/ingest"
	"github.com/paperbase-io/paperbase/internal/metrics"
	"github.com/paperbase-io/paperbase/internal/retrieval"
)

// App wires the full pipeline: storage, queue, extraction, indexing,
// retrieval and the HTTP server.
type App struct {
	DBClient *db.DatabaseClient
	Queue    *queue.RedisQueue
	Worker   *ingest.Worker
	Monitor  *ingest.Monitor
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("database initialized and ready")

	vectors := vectorstore.NewPgVectorStore(dbClient.DB())
	if err := vectors.EnsureCollection(appCtx, cfg.EmbedDim); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object client: %w", err)
	}
	log.Info("object client initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	jobQueue, err := queue.NewRedisQueue(appCtx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	var cloud core.CloudExtractor
	if cfg.ExtractAPIURL != "" {
		cloud = extraction.NewHTTPCloudExtractor(cfg.ExtractAPIURL, cfg.ExtractAPIToken)
	} else {
		log.Info("cloud extraction unconfigured, using local parser only")
	}
	orch := extraction.NewOrchestrator(extraction.Options{
		Cloud:         cloud,
		Renderer:      extraction.NewPDFRenderer(),
		Plain:         extraction.DocconvConverter{},
		Logger:        log,
		PollInterval:  cfg.PollInterval,
		PollTimeout:   cfg.PollTimeout,
		MinBlockWords: cfg.MinBlockWords,
	})

	m := metrics.New(prometheus.DefaultRegisterer)

	indexer := index.NewIndexer(embedder, vectors, log)
	retriever := retrieval.NewRetriever(embedder, vectors, log)
	intake := ingest.NewIntake(dbClient, objClient, jobQueue, vectors, log)
	persister := ingest.NewPersister(dbClient)
	worker := ingest.NewWorker(dbClient, objClient, jobQueue, orch, persister, indexer, cfg.ChunkSize, m, log)
	monitor := ingest.NewMonitor(dbClient, jobQueue, cfg.StuckTimeout, m, log)

	server := NewServer(cfg, dbClient, intake, retriever, worker, log)

	return &App{
		DBClient: dbClient,
		Queue:    jobQueue,
		Worker:   worker,
		Monitor:  monitor,
		Server:   server,
	}, nil
}

func (a *App) Close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
