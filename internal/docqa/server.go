// Package docqa provides the docqa server: a document question-answering
// service with HTTP and Telegram front-ends.
package docqa

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/mymmrac/telego"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/bot"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/history"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/docqa/watcher"
	"github.com/kart-io/docqa/internal/pkg/extract"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/infra/app"
	"github.com/kart-io/docqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docqa/pkg/llm/ollama"
	_ "github.com/kart-io/docqa/pkg/llm/openai"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	docqaopts "github.com/kart-io/docqa/pkg/options/docqa"
	historyopts "github.com/kart-io/docqa/pkg/options/history"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
	indexopts "github.com/kart-io/docqa/pkg/options/index"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	telegramopts "github.com/kart-io/docqa/pkg/options/telegram"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// Name is the name of the application.
const Name = "docqa"

// Config contains application-related configurations.
type Config struct {
	LogOptions       *logopts.Options
	HTTPOptions      *httpopts.Options
	EmbeddingOptions *llmopts.EmbeddingOptions
	ChatOptions      *llmopts.ChatOptions
	DocQAOptions     *docqaopts.Options
	IndexOptions     *indexopts.Options
	MilvusOptions    *milvusopts.Options
	HistoryOptions   *historyopts.Options
	RedisOptions     *redisopts.Options
	CacheOptions     *cacheopts.Options
	TelegramOptions  *telegramopts.Options
	ShutdownTimeout  time.Duration
}

// Pipeline is the retrieval service together with the resources it owns.
type Pipeline struct {
	Service *biz.RetrievalService

	closers []func()
}

// Close releases the pipeline resources in reverse creation order.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

// Server represents the docqa server.
type Server struct {
	cfg      *Config
	pipeline *Pipeline

	httpServer *stdhttp.Server
	bot        *bot.Bot
	telegram   *telego.Bot
	watcher    *watcher.Watcher
}

// InitLogger initializes the global logger from LogOptions.
func (cfg *Config) InitLogger() error {
	if err := cfg.LogOptions.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	fmt.Printf("Starting %s...\n", Name)

	// 1. 初始化日志
	if err := cfg.InitLogger(); err != nil {
		return nil, err
	}
	logger.Infow("Starting docqa service...", "version", app.Version())

	// 2. 初始化检索服务
	pipeline, err := cfg.NewPipeline(ctx)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, pipeline: pipeline}

	// 3. 初始化 HTTP
	if cfg.HTTPOptions.Enabled {
		h := handler.NewDocQAHandler(pipeline.Service, cfg.HTTPOptions.MaxUploadSize)
		s.httpServer = cfg.HTTPOptions.NewServer(router.New(h, pipeline.Service.Metrics()))
		logger.Infow("HTTP server initialized", "addr", cfg.HTTPOptions.Addr)
	}

	// 4. 初始化 Telegram
	if cfg.TelegramOptions.Enabled {
		b, tb, err := bot.NewTelegram(cfg.TelegramOptions.Token, pipeline.Service, bot.Config{
			AcceptUploads: cfg.TelegramOptions.AcceptUploads,
			PollTimeout:   cfg.TelegramOptions.PollTimeout,
		})
		if err != nil {
			pipeline.Close()
			return nil, err
		}
		s.bot, s.telegram = b, tb
		logger.Info("Telegram bot initialized")
	}

	// 5. 初始化目录监听
	if cfg.DocQAOptions.Watch {
		loader := pipeline.Service.Loader()
		s.watcher = watcher.New(loader.Dir(), cfg.DocQAOptions.WatchDebounce, func(ctx context.Context) error {
			_, err := pipeline.Service.Reload(ctx)
			return err
		}, loader.Supported)
		logger.Infow("Document watcher initialized", "dir", loader.Dir())
	}

	if s.httpServer == nil && s.bot == nil {
		logger.Warn("Neither HTTP nor Telegram front-end is enabled")
	}
	return s, nil
}

// NewPipeline builds the retrieval service and its storage, without front-ends.
func (cfg *Config) NewPipeline(ctx context.Context) (*Pipeline, error) {
	p := &Pipeline{}
	fail := func(err error) (*Pipeline, error) {
		p.Close()
		return nil, err
	}

	// Redis（历史或向量缓存需要时）
	var redisClient *redis.Client
	if cfg.HistoryOptions.Backend == historyopts.BackendRedis || cfg.CacheOptions.Backend == cacheopts.BackendRedis {
		c, err := redis.NewWithContext(ctx, cfg.RedisOptions)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize redis: %w", err))
		}
		redisClient = c
		p.closers = append(p.closers, func() { _ = c.Close() })
		logger.Infow("Redis client initialized", "addr", cfg.RedisOptions.Addr())
	}

	// LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, providerSettings(&cfg.EmbeddingOptions.ProviderOptions))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize embedding provider: %w", err))
	}
	embedder, err := llm.NewBatchEmbedder(embedProvider, llm.BatchConfig{
		BatchSize:   cfg.EmbeddingOptions.BatchSize,
		Interval:    cfg.EmbeddingOptions.BatchInterval,
		Timeout:     cfg.EmbeddingOptions.Timeout,
		Concurrency: cfg.EmbeddingOptions.Concurrency,
		Retry:       retryPolicy(cfg.EmbeddingOptions.MaxRetries),
	})
	if err != nil {
		return fail(err)
	}
	p.closers = append(p.closers, embedder.Close)

	var indexEmbedder llm.EmbeddingProvider = embedder
	switch cfg.CacheOptions.Backend {
	case cacheopts.BackendLRU:
		cache, err := llm.NewLRUEmbeddingCache(cfg.CacheOptions.Size)
		if err != nil {
			return fail(err)
		}
		indexEmbedder = llm.NewCachedEmbeddingProvider(embedder, cache)
	case cacheopts.BackendRedis:
		cache := llm.NewRedisEmbeddingCache(redisClient.Client(), cacheKeyPrefix(cfg), cfg.CacheOptions.TTL)
		indexEmbedder = llm.NewCachedEmbeddingProvider(embedder, cache)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cache", cfg.CacheOptions.Backend,
	)

	chatSettings := providerSettings(&cfg.ChatOptions.ProviderOptions)
	chatSettings.Temperature = cfg.ChatOptions.Temperature
	chatSettings.MaxTokens = cfg.ChatOptions.MaxTokens
	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, chatSettings)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize chat provider: %w", err))
	}
	chatProvider = llm.NewResilientChatProvider(chatProvider, retryPolicy(cfg.ChatOptions.MaxRetries), nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
		"temperature", cfg.ChatOptions.Temperature,
		"max_tokens", cfg.ChatOptions.MaxTokens,
	)

	// 向量索引
	index, err := cfg.newIndex(ctx, indexEmbedder)
	if err != nil {
		return fail(err)
	}
	p.closers = append(p.closers, func() { _ = index.Close() })

	// 会话历史
	var hist history.Store
	if cfg.HistoryOptions.Backend == historyopts.BackendRedis {
		hist = history.NewRedisStore(redisClient.Client(), cfg.HistoryOptions.KeyPrefix, cfg.DocQAOptions.HistoryLimit, cfg.HistoryOptions.TTL)
	} else {
		hist = history.NewMemoryStore(cfg.DocQAOptions.HistoryLimit)
	}
	logger.Infow("Conversation history initialized", "backend", cfg.HistoryOptions.Backend, "limit", history.NormalizeLimit(cfg.DocQAOptions.HistoryLimit))

	// Biz 层
	chunker, err := biz.NewChunker(cfg.DocQAOptions.ChunkSize, cfg.DocQAOptions.ChunkOverlap)
	if err != nil {
		return fail(err)
	}
	locale := biz.LocaleFor(cfg.DocQAOptions.Language)
	loader := biz.NewDocumentLoader(cfg.DocQAOptions.DocumentsDir, extract.NewDefaultRegistry(), chunker)
	generator := biz.NewGenerator(chatProvider, &biz.GeneratorConfig{
		Locale:        locale,
		HistoryWindow: cfg.DocQAOptions.HistoryWindow,
	})
	p.Service = biz.NewRetrievalService(loader, index, hist, generator, &biz.ServiceConfig{
		TopK:   cfg.DocQAOptions.TopK,
		Locale: locale,
	})
	logger.Infow("Retrieval service initialized",
		"documents_dir", cfg.DocQAOptions.DocumentsDir,
		"chunk_size", cfg.DocQAOptions.ChunkSize,
		"chunk_overlap", cfg.DocQAOptions.ChunkOverlap,
		"top_k", cfg.DocQAOptions.TopK,
		"language", locale.Name,
		"chunks", index.Count(),
	)
	return p, nil
}

func (cfg *Config) newIndex(ctx context.Context, embedder llm.EmbeddingProvider) (store.VectorIndex, error) {
	switch cfg.IndexOptions.Backend {
	case indexopts.BackendMilvus:
		client, err := milvus.NewWithContext(ctx, cfg.MilvusOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		idx, err := store.NewMilvusIndex(ctx, client, embedder, store.MilvusConfig{
			Collection: cfg.IndexOptions.Collection,
			Dimension:  cfg.IndexOptions.Dimension,
		})
		if err != nil {
			_ = client.Close(context.Background())
			return nil, err
		}
		logger.Infow("Milvus index initialized", "collection", cfg.IndexOptions.Collection)
		return idx, nil
	default:
		idx, err := store.NewFlatIndex(embedder, store.FlatConfig{Dir: cfg.IndexOptions.Dir})
		if err != nil {
			return nil, err
		}
		logger.Infow("Flat index initialized", "dir", cfg.IndexOptions.Dir)
		return idx, nil
	}
}

func providerSettings(o *llmopts.ProviderOptions) llm.Settings {
	return llm.Settings{
		BaseURL:      o.BaseURL,
		APIKey:       o.APIKey,
		Organization: o.Organization,
		Model:        o.Model,
		Timeout:      o.Timeout,
	}
}

func retryPolicy(maxRetries int) resilience.Policy {
	return resilience.DefaultPolicy().WithAttempts(maxRetries + 1)
}

// cacheKeyPrefix scopes cached vectors to the embedding model.
func cacheKeyPrefix(cfg *Config) string {
	return cfg.CacheOptions.KeyPrefix + strings.ReplaceAll(cfg.EmbeddingOptions.Model, ":", "_") + ":"
}

// Service returns the retrieval service.
func (s *Server) Service() *biz.RetrievalService {
	return s.pipeline.Service
}

// Run starts the front-ends and blocks until ctx is done or a front-end fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.pipeline.Close()

	if s.cfg.DocQAOptions.ReloadOnStart {
		n, err := s.pipeline.Service.Reload(ctx)
		switch {
		case err == nil:
			logger.Infow("Initial document load finished", "chunks", n)
		case errors.Is(err, errors.ErrNoDocuments):
			logger.Warnw("No documents found on startup", "dir", s.cfg.DocQAOptions.DocumentsDir)
		default:
			logger.Errorw("Initial document load failed", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	if s.httpServer != nil {
		run("http", func() error {
			logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				return err
			}
			return nil
		})
	}
	if s.bot != nil {
		run("telegram", func() error { return s.bot.Run(ctx, s.telegram) })
	}
	if s.watcher != nil {
		run("watcher", func() error { return s.watcher.Run(ctx) })
	}

	logger.Info("docqa service is ready")
	<-ctx.Done()

	if s.httpServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("HTTP server shutdown failed", "error", err)
		}
		done()
	}
	wg.Wait()
	close(errCh)

	logger.Info("docqa service stopped")
	return <-errCh
}
