// Package milvus holds the connection settings for the Milvus index backend.
package milvus

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options Milvus 连接配置。
type Options struct {
	// Address host:port of the Milvus proxy.
	Address  string `json:"address" mapstructure:"address"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	// Password falls back to $MILVUS_PASSWORD.
	Password string `json:"-" mapstructure:"password"`
	// APIKey authenticates against managed deployments instead of username/password.
	APIKey string `json:"-" mapstructure:"api-key"`
	TLS    bool   `json:"tls" mapstructure:"tls"`
	// Timeout bounds connecting and each index operation.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus user.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password, defaults to $MILVUS_PASSWORD.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Milvus API key (managed deployments).")
	fs.BoolVar(&o.TLS, p+"tls", o.TLS, "Connect with TLS.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Connect and per-operation timeout.")
}

func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("MILVUS_PASSWORD")
	}
	return nil
}

func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(o.Address); err != nil {
		errs = append(errs, fmt.Errorf("milvus.address must be host:port: %w", err))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus.timeout must be positive"))
	}
	if o.APIKey != "" && o.Username != "" {
		errs = append(errs, fmt.Errorf("milvus.api-key and milvus.username are mutually exclusive"))
	}
	return errs
}
