// Package cache provides embedding cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Cache backends.
const (
	BackendNone  = "none"
	BackendLRU   = "lru"
	BackendRedis = "redis"
)

// Options 向量缓存配置。
type Options struct {
	// Backend 缓存后端（none, lru, redis）。
	Backend string `json:"backend" mapstructure:"backend"`

	// Size lru 后端的最大条目数。
	Size int `json:"size" mapstructure:"size"`

	// TTL redis 后端的过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Backend:   BackendLRU,
		Size:      1024,
		TTL:       24 * time.Hour,
		KeyPrefix: "docqa:emb:",
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"cache.backend", o.Backend, "Query embedding cache (none, lru, redis).")
	fs.IntVar(&o.Size, options.Join(prefixes...)+"cache.size", o.Size, "Maximum entries of the lru cache.")
	fs.DurationVar(&o.TTL, options.Join(prefixes...)+"cache.ttl", o.TTL, "Cache TTL duration (redis).")
	fs.StringVar(&o.KeyPrefix, options.Join(prefixes...)+"cache.key-prefix", o.KeyPrefix, "Cache key prefix (redis).")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendNone:
	case BackendLRU:
		if o.Size <= 0 {
			errs = append(errs, fmt.Errorf("cache.size must be positive"))
		}
	case BackendRedis:
		if o.TTL < 0 {
			errs = append(errs, fmt.Errorf("cache.ttl must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be none, lru or redis, got %q", o.Backend))
	}
	return errs
}
