// Command tabulad is the knowledge-base backend server. It assembles every
// store and pipeline from configuration and serves the HTTP surface; there
// are no package-level singletons, only this composition root.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/praxisworks/tabula/catalog"
	"github.com/praxisworks/tabula/config"
	"github.com/praxisworks/tabula/conversation"
	"github.com/praxisworks/tabula/graph"
	"github.com/praxisworks/tabula/ingest"
	"github.com/praxisworks/tabula/inverted"
	"github.com/praxisworks/tabula/llm/openai"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/retrieval"
	"github.com/praxisworks/tabula/server"
	"github.com/praxisworks/tabula/sqlflow"
	"github.com/praxisworks/tabula/stream"
	"github.com/praxisworks/tabula/supervisor"
	"github.com/praxisworks/tabula/tablefile"
	"github.com/praxisworks/tabula/vector"
)

func main() {
	logger := o11y.NewLogger(o11y.WithJSON())
	ctx := o11y.WithLogger(context.Background(), logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error(ctx, "configuration invalid", "error", err)
		os.Exit(1)
	}
	if err := o11y.InitMeter("tabulad"); err != nil {
		logger.Warn(ctx, "metrics unavailable", "error", err)
	}

	cat, err := catalog.Open(cfg.Catalog.Path, catalog.WithLogger(logger))
	if err != nil {
		logger.Error(ctx, "catalog open failed", "error", err)
		os.Exit(1)
	}
	defer cat.Close()

	var vectorOpts []vector.Option
	if !cfg.Milvus.Enabled {
		vectorOpts = append(vectorOpts, vector.WithDisabled())
	}
	vectors := vector.New(cfg.Milvus.BaseURL, append(vectorOpts, vector.WithLogger(logger))...)

	var invertedOpts []inverted.Option
	if !cfg.Elasticsearch.Enabled {
		invertedOpts = append(invertedOpts, inverted.WithDisabled())
	}
	invertedOpts = append(invertedOpts,
		inverted.WithIndex(cfg.Elasticsearch.Index),
		inverted.WithDimension(cfg.LLM.EmbeddingDim),
		inverted.WithLogger(logger),
	)
	texts := inverted.New(cfg.Elasticsearch.BaseURL, invertedOpts...)

	var graphOpts []graph.Option
	if !cfg.Neo4j.Enabled {
		graphOpts = append(graphOpts, graph.WithDisabled())
	}
	graphs, err := graph.New(graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, append(graphOpts, graph.WithLogger(logger))...)
	if err != nil {
		logger.Error(ctx, "graph store unavailable", "error", err)
		os.Exit(1)
	}
	defer graphs.Close(ctx)

	kv := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer kv.Close()

	chat := openai.NewModel(cfg.LLM.ChatModel,
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithAPIKey(cfg.LLM.APIKey),
	)
	embedder := openai.NewEmbedder(cfg.LLM.EmbeddingModel,
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithAPIKey(cfg.LLM.APIKey),
	)

	if cfg.Milvus.Enabled {
		if err := vectors.EnsureSchemaNodeCollection(ctx, cfg.LLM.EmbeddingDim); err != nil {
			logger.Warn(ctx, "schema-node collection bootstrap failed", "error", err)
		}
	}
	if cfg.Elasticsearch.Enabled {
		if err := texts.EnsureIndex(ctx); err != nil {
			logger.Warn(ctx, "inverted index bootstrap failed", "error", err)
		}
	}

	health := o11y.NewHealthRegistry()
	health.Register("catalog", cat)
	health.Register("milvus", vectors)
	health.Register("elasticsearch", texts)
	health.Register("neo4j", graphs)

	conversations := conversation.New(cat, kv,
		conversation.WithLogger(logger),
		conversation.WithDiscussionDir(cfg.Paths.DiscussionDir),
	)
	search := retrieval.New(cat, vectors, texts, graphs, embedder, chat, retrieval.WithLogger(logger))
	files := ingest.New(cat, vectors, texts, graphs, embedder, cfg.LLM.EmbeddingDim,
		ingest.WithLogger(logger),
		ingest.WithFileDir(cfg.Paths.FileDir),
	)
	sqlPipeline := sqlflow.New(cat, vectors, embedder, chat, sqlflow.NewSQLExecutor(),
		cfg.Pipeline.MaxRetries, sqlflow.WithLogger(logger))
	analyzer := sqlflow.NewAnalyzer(cat, graphs, vectors, embedder, chat, logger)
	tablePipeline := tablefile.New(chat, supervisor.New(chat, supervisor.WithLogger(logger)),
		tablefile.WithLogger(logger))

	srv := server.New(server.Deps{
		Config:        cfg,
		Catalog:       cat,
		Conversations: conversations,
		Retrieval:     search,
		Ingest:        files,
		SQLPipeline:   sqlPipeline,
		Analyzer:      analyzer,
		TablePipeline: tablePipeline,
		Chat:          chat,
		Health:        health,
		Logger:        logger,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "tabulad listening", "addr", cfg.Server.Addr,
		"heartbeat", stream.DefaultHeartbeatInterval)
	if err := srv.Run(runCtx); err != nil {
		logger.Error(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}
