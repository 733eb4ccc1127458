package biz

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/history"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// DefaultTopK 每个问题检索的文档块数。
const DefaultTopK = 3

// AskResult 一次问答的结果。
// Success 为 false 且 error 为 nil 表示没有检索到相关文档。
type AskResult struct {
	Success   bool     `json:"success"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	FoundDocs int      `json:"found_docs"`
	// Context 发送给模型的上下文，仅用于评估。
	Context string `json:"-"`
}

// Stats 索引统计。
type Stats struct {
	TotalChunks  int      `json:"total_chunks"`
	TotalSources int      `json:"total_sources"`
	Sources      []string `json:"sources"`
}

// ServiceConfig RetrievalService 配置。
type ServiceConfig struct {
	// TopK 检索数量，<=0 时使用 DefaultTopK。
	TopK int
	// Locale 面向用户的文案。
	Locale *Locale
	// Metrics 业务指标，nil 时使用全局实例。
	Metrics *metrics.DocQAMetrics
}

// RetrievalService 组合文档加载、向量索引、会话历史和答案生成。
type RetrievalService struct {
	loader    *DocumentLoader
	index     store.VectorIndex
	history   history.Store
	generator *Generator
	assembler *Assembler
	metrics   *metrics.DocQAMetrics
	config    ServiceConfig

	reloadMu sync.Mutex
	users    *keyedMutex
}

// NewRetrievalService 创建服务实例。
func NewRetrievalService(
	loader *DocumentLoader,
	index store.VectorIndex,
	hist history.Store,
	generator *Generator,
	config *ServiceConfig,
) *RetrievalService {
	cfg := ServiceConfig{TopK: DefaultTopK, Locale: &Russian}
	if config != nil {
		if config.TopK > 0 {
			cfg.TopK = config.TopK
		}
		if config.Locale != nil {
			cfg.Locale = config.Locale
		}
		cfg.Metrics = config.Metrics
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	cfg.Metrics.SetChunks(index.Count())

	return &RetrievalService{
		loader:    loader,
		index:     index,
		history:   hist,
		generator: generator,
		assembler: NewAssembler(cfg.Locale),
		metrics:   cfg.Metrics,
		config:    cfg,
		users:     newKeyedMutex(),
	}
}

// Loader 返回文档加载器。
func (s *RetrievalService) Loader() *DocumentLoader { return s.loader }

// Locale 返回服务使用的文案。
func (s *RetrievalService) Locale() *Locale { return s.config.Locale }

// Metrics 返回服务的业务指标。
func (s *RetrievalService) Metrics() *metrics.DocQAMetrics { return s.metrics }

// Reload 重新加载文档目录并整体替换索引，返回文档块数量。
// 目录中没有可用文档时清空索引并返回 ErrNoDocuments；
// 已有重新加载在执行时返回 ErrReloadInProgress。
func (s *RetrievalService) Reload(ctx context.Context) (int, error) {
	if !s.reloadMu.TryLock() {
		return 0, errors.ErrReloadInProgress
	}
	defer s.reloadMu.Unlock()

	n, err := s.reload(ctx)
	switch {
	case err == nil:
		s.metrics.RecordReload(metrics.ReloadOK, n)
	case errors.Is(err, errors.ErrNoDocuments):
		s.metrics.RecordReload(metrics.ReloadNoDocuments, 0)
	default:
		s.metrics.RecordReload(metrics.ReloadError, 0)
	}
	return n, err
}

func (s *RetrievalService) reload(ctx context.Context) (int, error) {
	chunks, report, err := s.loader.Load(ctx)
	if err != nil {
		return 0, err
	}

	if len(chunks) == 0 {
		if err := s.index.Clear(ctx); err != nil {
			return 0, err
		}
		msg := fmt.Sprintf(s.config.Locale.NoDocuments, s.loader.Dir())
		logger.Warnw("No documents to index", "dir", s.loader.Dir(), "skipped", len(report.Skipped))
		return 0, errors.ErrNoDocuments.WithMessages(msg, fmt.Sprintf(Russian.NoDocuments, s.loader.Dir()))
	}

	if err := s.index.Replace(ctx, chunks); err != nil {
		logger.Errorw("Failed to rebuild index", "chunks", len(chunks), "error", err)
		return 0, err
	}

	logger.Infow("Documents reloaded", "files", report.Files, "chunks", len(chunks), "skipped", len(report.Skipped))
	return len(chunks), nil
}

// ReloadMessage 返回重新加载成功时展示给用户的文案。
func (s *RetrievalService) ReloadMessage(n int) string {
	return fmt.Sprintf(s.config.Locale.Loaded, n)
}

// Ask 检索相关文档并生成答案。同一用户的提问串行执行，历史顺序与提问顺序一致。
func (s *RetrievalService) Ask(ctx context.Context, userID, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("question is required")
	}
	if userID == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("user id is required")
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	start := time.Now()
	res, err := s.ask(ctx, userID, question)
	switch {
	case err != nil:
		s.metrics.RecordAsk(metrics.AskError, time.Since(start))
	case !res.Success:
		s.metrics.RecordAsk(metrics.AskNoContext, time.Since(start))
	default:
		s.metrics.RecordAsk(metrics.AskAnswered, time.Since(start))
	}
	return res, err
}

func (s *RetrievalService) ask(ctx context.Context, userID, question string) (*AskResult, error) {
	searchStart := time.Now()
	results, err := s.index.Search(ctx, question, s.config.TopK)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordRetrieval(time.Since(searchStart))
	if len(results) == 0 {
		logger.Debugw("No relevant chunks", "user_id", userID)
		return &AskResult{Success: false, Answer: s.config.Locale.NoRelevantInfo, Sources: []string{}}, nil
	}

	contextText, sources := s.assembler.Assemble(results)

	hist, err := s.history.Get(ctx, userID)
	if err != nil {
		logger.Warnw("Conversation history unavailable, answering without it", "user_id", userID, "error", err)
		hist = nil
	}

	genStart := time.Now()
	answer, err := s.generator.Generate(ctx, question, contextText, hist)
	s.metrics.RecordGeneration(time.Since(genStart), err)
	if err != nil {
		return nil, err
	}

	if err := s.history.Append(ctx, userID, question, answer); err != nil {
		logger.Warnw("Failed to save conversation history", "user_id", userID, "error", err)
	}

	return &AskResult{
		Success:   true,
		Answer:    answer,
		Sources:   sources,
		FoundDocs: len(results),
		Context:   contextText,
	}, nil
}

// Stats 返回索引统计。
func (s *RetrievalService) Stats(_ context.Context) *Stats {
	sources := s.index.Sources()
	if sources == nil {
		sources = []string{}
	}
	return &Stats{
		TotalChunks:  s.index.Count(),
		TotalSources: len(sources),
		Sources:      sources,
	}
}

// ClearHistory 清除用户的会话历史。
func (s *RetrievalService) ClearHistory(ctx context.Context, userID string) error {
	return s.history.Clear(ctx, userID)
}

// Ready 判断索引中是否已有文档。
func (s *RetrievalService) Ready() bool {
	return s.index.Count() > 0
}

// keyedMutex 按键加锁，键上没有等待者时释放对应条目。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock 锁定 key 并返回解锁函数。
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// SaveDocument 将上传的文档保存到文档目录，返回保存后的文件名。
// 保存不会触发重新加载。
func (s *RetrievalService) SaveDocument(name string, r io.Reader, maxBytes int64) (string, error) {
	dest, err := s.loader.Save(name, r, maxBytes)
	if err != nil {
		return "", err
	}
	return filepath.Base(dest), nil
}

// DocumentPath 校验文件名并返回其在文档目录下的保存路径。
func (s *RetrievalService) DocumentPath(name string) (string, error) {
	return s.loader.Target(name)
}

// Extensions 返回支持的文档扩展名。
func (s *RetrievalService) Extensions() []string {
	return s.loader.Extensions()
}
