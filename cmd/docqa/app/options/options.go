// Package options contains flags and options for initializing the docqa server.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/docqa/internal/docqa"
	cliflag "github.com/kart-io/docqa/pkg/app/cliflag"
	genericoptions "github.com/kart-io/docqa/pkg/options"
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
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// HTTPOptions contains HTTP front-end configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// TelegramOptions contains Telegram bot configuration.
	TelegramOptions *telegramopts.Options `json:"telegram" mapstructure:"telegram"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.EmbeddingOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ChatOptions `json:"chat" mapstructure:"chat"`

	// DocQAOptions contains chunking, retrieval and answering configuration.
	DocQAOptions *docqaopts.Options `json:"docqa" mapstructure:"docqa"`

	// IndexOptions selects and configures the vector index backend.
	IndexOptions *indexopts.Options `json:"index" mapstructure:"index"`

	// MilvusOptions contains Milvus connection configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// HistoryOptions selects the conversation history backend.
	HistoryOptions *historyopts.Options `json:"history" mapstructure:"history"`

	// RedisOptions contains Redis connection configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// CacheOptions contains embedding cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		LogOptions:       logopts.NewOptions(),
		HTTPOptions:      httpopts.NewOptions(),
		TelegramOptions:  telegramopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		DocQAOptions:     docqaopts.NewOptions(),
		IndexOptions:     indexopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		HistoryOptions:   historyopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.TelegramOptions.AddFlags(fss.FlagSet("telegram"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"))
	o.DocQAOptions.AddFlags(fss.FlagSet("docqa"))
	o.IndexOptions.AddFlags(fss.FlagSet("index"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.HistoryOptions.AddFlags(fss.FlagSet("history"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// sections lists the option groups that are always in effect.
func (o *ServerOptions) sections() []genericoptions.Section {
	return []genericoptions.Section{
		{Name: "log", IOptions: o.LogOptions},
		{Name: "http", IOptions: o.HTTPOptions},
		{Name: "telegram", IOptions: o.TelegramOptions},
		{Name: "embedding", IOptions: o.EmbeddingOptions},
		{Name: "chat", IOptions: o.ChatOptions},
		{Name: "docqa", IOptions: o.DocQAOptions},
		{Name: "index", IOptions: o.IndexOptions},
		{Name: "history", IOptions: o.HistoryOptions},
		{Name: "cache", IOptions: o.CacheOptions},
	}
}

// backendSections lists the connection groups required by the selected
// index, history and cache backends.
func (o *ServerOptions) backendSections() []genericoptions.Section {
	var out []genericoptions.Section
	if o.IndexOptions.Backend == indexopts.BackendMilvus {
		out = append(out, genericoptions.Section{Name: "milvus", IOptions: o.MilvusOptions})
	}
	if o.HistoryOptions.Backend == historyopts.BackendRedis || o.CacheOptions.Backend == cacheopts.BackendRedis {
		out = append(out, genericoptions.Section{Name: "redis", IOptions: o.RedisOptions})
	}
	return out
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	return genericoptions.CompleteAll(append(o.sections(), o.backendSections()...)...)
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := genericoptions.ValidateAll(append(o.sections(), o.backendSections()...)...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive, got %s", o.ShutdownTimeout))
	}
	return utilerrors.NewAggregate(errs)
}

// Config returns a docqa config built from the options.
func (o *ServerOptions) Config() (*docqa.Config, error) {
	return &docqa.Config{
		LogOptions:       o.LogOptions,
		HTTPOptions:      o.HTTPOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		DocQAOptions:     o.DocQAOptions,
		IndexOptions:     o.IndexOptions,
		MilvusOptions:    o.MilvusOptions,
		HistoryOptions:   o.HistoryOptions,
		RedisOptions:     o.RedisOptions,
		CacheOptions:     o.CacheOptions,
		TelegramOptions:  o.TelegramOptions,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}
