// Package history provides conversation history store options.
package history

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 支持的历史后端。
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options 对话历史存储配置。
type Options struct {
	// Backend 存储后端（memory, redis）。
	Backend string `json:"backend" mapstructure:"backend"`

	// TTL redis 中历史的过期时间，0 表示不过期。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix redis 键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		Backend:   BackendMemory,
		TTL:       24 * time.Hour,
		KeyPrefix: "docqa:history:",
	}
}

// AddFlags adds flags for history options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"history.backend", o.Backend, "Conversation history backend (memory, redis).")
	fs.DurationVar(&o.TTL, options.Join(prefixes...)+"history.ttl", o.TTL, "Expiry of a user's history in redis, 0 disables.")
	fs.StringVar(&o.KeyPrefix, options.Join(prefixes...)+"history.key-prefix", o.KeyPrefix, "Redis key prefix for history lists.")
}

// Validate validates the history options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("history.backend must be memory or redis, got %q", o.Backend))
	}
	if o.TTL < 0 {
		errs = append(errs, fmt.Errorf("history.ttl must not be negative"))
	}
	return errs
}
