// Package telegram provides Telegram bot options.
package telegram

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Telegram bot configuration.
type Options struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Token defaults to $BOT_TOKEN.
	Token string `json:"-" mapstructure:"token"`
	// PollTimeout is the long polling timeout.
	PollTimeout time.Duration `json:"poll-timeout" mapstructure:"poll-timeout"`
	// AcceptUploads saves documents sent to the bot into the documents directory.
	AcceptUploads bool `json:"accept-uploads" mapstructure:"accept-uploads"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Enabled:       false,
		PollTimeout:   30 * time.Second,
		AcceptUploads: true,
	}
}

// AddFlags adds flags for Telegram options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, options.Join(prefixes...)+"telegram.enabled", o.Enabled, "Enable the Telegram bot.")
	fs.StringVar(&o.Token, options.Join(prefixes...)+"telegram.token", o.Token, "Bot token, defaults to $BOT_TOKEN.")
	fs.DurationVar(&o.PollTimeout, options.Join(prefixes...)+"telegram.poll-timeout", o.PollTimeout, "Long polling timeout.")
	fs.BoolVar(&o.AcceptUploads, options.Join(prefixes...)+"telegram.accept-uploads", o.AcceptUploads, "Save documents sent to the bot.")
}

// Validate validates the Telegram options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.Token == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required when the bot is enabled"))
	}
	if o.PollTimeout < time.Second {
		errs = append(errs, fmt.Errorf("telegram.poll-timeout must be at least 1s"))
	}
	return errs
}

// Complete completes the Telegram options with defaults.
func (o *Options) Complete() error {
	if o.Token == "" {
		o.Token = os.Getenv("BOT_TOKEN")
	}
	return nil
}
