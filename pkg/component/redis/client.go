// Package redis opens the Redis connection shared by the conversation
// history store and the embedding cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/docqa/pkg/options/redis"
)

const pingTimeout = 3 * time.Second

func init() {
	goredis.SetLogger(redisLogger{})
}

// redisLogger routes go-redis internal messages (reconnects, pool events)
// to the global logger at debug level.
type redisLogger struct{}

func (redisLogger) Printf(ctx context.Context, format string, v ...interface{}) {
	logger.Global().WithCtx(ctx).Debugw(fmt.Sprintf(format, v...), "component", "redis")
}

// Client is a connected go-redis client.
type Client struct {
	rdb  *goredis.Client
	addr string
}

// NewWithContext validates opts, dials Redis and pings it within ctx.
// The connection is closed again when the ping fails.
func NewWithContext(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, errors.New("redis: nil options")
	}
	if err := utilerrors.NewAggregate(opts.Validate()); err != nil {
		return nil, fmt.Errorf("redis: invalid options: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr(), err)
	}
	return &Client{rdb: rdb, addr: opts.Addr()}, nil
}

// Addr is the host:port the client is connected to.
func (c *Client) Addr() string { return c.addr }

// Check pings the server with a short timeout; suitable for readiness probes.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *goredis.Client { return c.rdb }

func (c *Client) Close() error { return c.rdb.Close() }
