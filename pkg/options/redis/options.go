// Package redis holds the Redis settings shared by the history store and the
// embedding cache.
package redis

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options Redis 连接配置。URL 非空时覆盖 host/port/password/database。
type Options struct {
	URL      string `json:"-" mapstructure:"url"`
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Password string `json:"-" mapstructure:"password"`
	Database int    `json:"database" mapstructure:"database"`

	MaxRetries   int           `json:"max-retries" mapstructure:"max-retries"`
	PoolSize     int           `json:"pool-size" mapstructure:"pool-size"`
	MinIdleConns int           `json:"min-idle-conns" mapstructure:"min-idle-conns"`
	DialTimeout  time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
}

func NewOptions() *Options {
	return &Options{
		Host:         "127.0.0.1",
		Port:         6379,
		MaxRetries:   3,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// String 不输出密码。
func (o *Options) String() string {
	auth := "none"
	if o.Password != "" {
		auth = "password"
	}
	return fmt.Sprintf("redis://%s/%d (auth=%s)", o.Addr(), o.Database, auth)
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "redis."
	fs.StringVar(&o.URL, p+"url", o.URL, "Redis URL (redis://[:password@]host:port/db), overrides host, port, password and database.")
	fs.StringVar(&o.Host, p+"host", o.Host, "Redis host.")
	fs.IntVar(&o.Port, p+"port", o.Port, "Redis port.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Redis password, defaults to $REDIS_PASSWORD.")
	fs.IntVar(&o.Database, p+"database", o.Database, "Redis logical database.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Command retries, -1 disables.")
	fs.IntVar(&o.PoolSize, p+"pool-size", o.PoolSize, "Connection pool size.")
	fs.IntVar(&o.MinIdleConns, p+"min-idle-conns", o.MinIdleConns, "Idle connections kept open.")
	fs.DurationVar(&o.DialTimeout, p+"dial-timeout", o.DialTimeout, "Dial timeout.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Read timeout.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Write timeout.")
}

// Complete 解析 URL，并在未配置密码时读取 REDIS_PASSWORD。
func (o *Options) Complete() error {
	if o.URL != "" {
		u, err := goredis.ParseURL(o.URL)
		if err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
		host, port, err := net.SplitHostPort(u.Addr)
		if err != nil {
			return fmt.Errorf("redis.url: %w", err)
		}
		o.Host = host
		if o.Port, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("redis.url: port %q: %w", port, err)
		}
		o.Password = u.Password
		o.Database = u.DB
	}
	if o.Password == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	}
	return nil
}

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("redis.host is required"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port must be in 1-65535"))
	}
	if o.Database < 0 {
		errs = append(errs, fmt.Errorf("redis.database must not be negative"))
	}
	return errs
}
