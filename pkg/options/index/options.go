// Package index provides vector index configuration options.
package index

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

const (
	// BackendFlat is the exact in-process index persisted to files.
	BackendFlat = "flat"
	// BackendMilvus stores vectors in a Milvus collection.
	BackendMilvus = "milvus"
)

// Options 向量索引配置。
type Options struct {
	// Backend 索引后端（flat, milvus）。
	Backend string `json:"backend" mapstructure:"backend"`

	// Dir flat 后端的持久化目录。
	Dir string `json:"dir" mapstructure:"dir"`

	// Collection milvus 后端的集合名称。
	Collection string `json:"collection" mapstructure:"collection"`

	// Dimension 向量维度，milvus 建表时使用。
	Dimension int `json:"dimension" mapstructure:"dimension"`
}

// NewOptions 创建默认索引配置。
func NewOptions() *Options {
	return &Options{
		Backend:    BackendFlat,
		Dir:        "data/index",
		Collection: "docqa_chunks",
		Dimension:  1536,
	}
}

// AddFlags adds flags for index options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"index.backend", o.Backend, "Vector index backend (flat, milvus).")
	fs.StringVar(&o.Dir, options.Join(prefixes...)+"index.dir", o.Dir, "Directory for the flat index files.")
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"index.collection", o.Collection, "Milvus collection name.")
	fs.IntVar(&o.Dimension, options.Join(prefixes...)+"index.dimension", o.Dimension, "Embedding dimension (milvus backend).")
}

// Validate validates the index options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendFlat:
		if o.Dir == "" {
			errs = append(errs, fmt.Errorf("index.dir is required for the flat backend"))
		}
	case BackendMilvus:
		if o.Collection == "" {
			errs = append(errs, fmt.Errorf("index.collection is required for the milvus backend"))
		}
		if o.Dimension <= 0 {
			errs = append(errs, fmt.Errorf("index.dimension must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("index.backend must be flat or milvus, got %q", o.Backend))
	}
	return errs
}
