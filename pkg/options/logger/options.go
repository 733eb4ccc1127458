// Package logger provides logger configuration options.
package logger

import (
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains the subset of logger settings exposed on the command line.
type Options struct {
	Engine      string   `json:"engine" mapstructure:"engine"`
	Level       string   `json:"level" mapstructure:"level"`
	Format      string   `json:"format" mapstructure:"format"`
	OutputPaths []string `json:"output-paths" mapstructure:"output-paths"`
	Development bool     `json:"development" mapstructure:"development"`
}

// NewOptions creates new Options with defaults taken from the logger package.
func NewOptions() *Options {
	def := option.DefaultLogOption()
	return &Options{
		Engine:      def.Engine,
		Level:       def.Level,
		Format:      def.Format,
		OutputPaths: def.OutputPaths,
		Development: def.Development,
	}
}

// AddFlags adds flags for logger options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Engine, options.Join(prefixes...)+"log.engine", o.Engine, "Logging engine (zap|slog).")
	fs.StringVar(&o.Level, options.Join(prefixes...)+"log.level", o.Level, "Log level (DEBUG|INFO|WARN|ERROR|FATAL).")
	fs.StringVar(&o.Format, options.Join(prefixes...)+"log.format", o.Format, "Log format (json|console).")
	fs.StringSliceVar(&o.OutputPaths, options.Join(prefixes...)+"log.output-paths", o.OutputPaths, "Output paths for logs.")
	fs.BoolVar(&o.Development, options.Join(prefixes...)+"log.development", o.Development, "Enable development mode.")
}

// Validate validates the logger options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch strings.ToLower(o.Engine) {
	case "", "zap", "slog":
	default:
		errs = append(errs, fmt.Errorf("log.engine must be zap or slog, got %q", o.Engine))
	}
	switch strings.ToLower(o.Format) {
	case "", "json", "console", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", o.Format))
	}
	return errs
}

// Complete completes the logger options with defaults.
func (o *Options) Complete() error {
	if len(o.OutputPaths) == 0 {
		o.OutputPaths = []string{"stdout"}
	}
	return nil
}

// LogOption converts to the logger package option.
func (o *Options) LogOption() *option.LogOption {
	opt := option.DefaultLogOption()
	opt.Engine = o.Engine
	opt.Level = o.Level
	opt.Format = o.Format
	opt.OutputPaths = o.OutputPaths
	opt.Development = o.Development
	return opt
}

// CreateLogger creates a new logger instance based on the options.
func (o *Options) CreateLogger() (core.Logger, error) {
	return logger.New(o.LogOption())
}

// Init initializes the global logger with the options.
func (o *Options) Init() error {
	log, err := o.CreateLogger()
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}
