// Package http configures the docqa HTTP API listener.
package http

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

type Options struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
	// Mode is the gin mode: release, debug or test.
	Mode        string        `json:"mode" mapstructure:"mode"`
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	// WriteTimeout covers answer generation, keep it above chat.timeout.
	WriteTimeout  time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout   time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	MaxUploadSize int64         `json:"max-upload-size" mapstructure:"max-upload-size"`
}

func NewOptions() *Options {
	return &Options{
		Enabled:       true,
		Addr:          ":8080",
		Mode:          gin.ReleaseMode,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  3 * time.Minute,
		IdleTimeout:   time.Minute,
		MaxUploadSize: 32 << 20,
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Serve the HTTP API.")
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Listen address.")
	fs.StringVar(&o.Mode, p+"mode", o.Mode, "Gin mode: release, debug or test.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Request read timeout.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Response write timeout, includes answer generation.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "Keep-alive idle timeout.")
	fs.Int64Var(&o.MaxUploadSize, p+"max-upload-size", o.MaxUploadSize, "Largest accepted document upload, in bytes.")
}

func (o *Options) Complete() error {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = o.ReadTimeout
	}
	return nil
}

func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr cannot be empty"))
	}
	if !slices.Contains([]string{gin.ReleaseMode, gin.DebugMode, gin.TestMode}, o.Mode) {
		errs = append(errs, fmt.Errorf("http.mode %q is not one of release, debug, test", o.Mode))
	}
	if o.ReadTimeout <= 0 || o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout and http.write-timeout must be positive"))
	}
	if o.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("http.max-upload-size must be positive"))
	}
	return errs
}

// NewServer applies the gin mode and returns a server for h bound to Addr.
func (o *Options) NewServer(h http.Handler) *http.Server {
	gin.SetMode(o.Mode)
	return &http.Server{
		Addr:              o.Addr,
		Handler:           h,
		ReadHeaderTimeout: o.ReadTimeout,
		ReadTimeout:       o.ReadTimeout,
		WriteTimeout:      o.WriteTimeout,
		IdleTimeout:       o.IdleTimeout,
	}
}
