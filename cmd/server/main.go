package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/katakuxiko/finqa/internal/api"
	"github.com/katakuxiko/finqa/internal/cache"
	"github.com/katakuxiko/finqa/internal/config"
	"github.com/katakuxiko/finqa/internal/pdf"
	"github.com/katakuxiko/finqa/internal/service"
	"github.com/katakuxiko/finqa/internal/store"
)

func main() {
	// config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// store: одна база на драйвер, даже если её делят индекс и беседы
	dbs := map[string]*sql.DB{}
	defer func() {
		for _, db := range dbs {
			db.Close()
		}
	}()
	open := func(driver string) *sql.DB {
		if db, ok := dbs[driver]; ok {
			return db
		}
		dsn := cfg.PgConn
		if driver == store.DriverSQLite {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				log.Fatalf("sqlite dir: %v", err)
			}
			dsn = cfg.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
		db, err := store.Open(driver, dsn)
		if err != nil {
			log.Fatalf("open %s: %v", driver, err)
		}
		dbs[driver] = db
		return db
	}

	var backend store.Backend
	switch cfg.VectorBackend {
	case config.BackendPgVector:
		backend, err = store.NewPgVectorBackend(open(store.DriverPostgres), cfg.EmbeddingDim)
	default:
		backend, err = store.NewSQLiteBackend(open(store.DriverSQLite))
	}
	if err != nil {
		log.Fatalf("vector backend: %v", err)
	}
	convs, err := store.NewConversationStore(open(cfg.DBDriver), cfg.DBDriver)
	if err != nil {
		log.Fatalf("conversation store: %v", err)
	}

	// services
	llm := service.NewLLMClient(cfg)
	embedder := cache.NewEmbedder(llm, newEmbedCache(ctx, cfg), llm.EmbedModel())
	index := store.NewVectorIndex(backend, embedder, cfg.UploadDir)

	ingestor, err := pdf.NewIngestor(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("ingestor: %v", err)
	}
	rag := service.NewRAGService(index, llm, cfg.RetrievalK, cfg.SimilarityThreshold, cfg.Debug)
	chat := service.NewChatService(rag, llm, convs)
	docs := service.NewDocumentService(ingestor, index, cfg.Debug)

	// api
	app := api.NewApp(api.NewHandler(chat, docs, llm, cfg.UploadDir), cfg.AllowedOrigins)

	go func() {
		<-ctx.Done()
		log.Printf("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server started at %s (vector backend: %s, conversations: %s)", cfg.ServerAddr(), cfg.VectorBackend, cfg.DBDriver)
	if err := app.Listen(cfg.ServerAddr()); err != nil {
		log.Printf("listen: %v", err)
	}
}

// newEmbedCache — Redis, если задан REDIS_ADDR и он доступен, иначе LRU в памяти.
func newEmbedCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			log.Printf("embedding cache: redis %s", cfg.RedisAddr)
			return cache.NewRedisCache(client, cfg.EmbedCacheTTL)
		}
		log.Printf("embedding cache: %v, falling back to memory", err)
	}
	return cache.NewLRU(cfg.EmbedCacheSize)
}
