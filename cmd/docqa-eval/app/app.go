// Package app provides the docqa evaluation runner.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/cmd/docqa/app/options"
	"github.com/kart-io/docqa/internal/docqa/biz"
	cliflag "github.com/kart-io/docqa/pkg/app/cliflag"
	"github.com/kart-io/docqa/pkg/infra/app"
)

const (
	// Name is the name of the application. Config is read from docqa-eval.yaml
	// (same layout as docqa.yaml plus cases/output) and DOCQA_EVAL_* variables.
	Name = "docqa-eval"

	commandDesc = `docqa-eval runs a question set against the document index and
reports the answers, their sources, latency and keyword recall.

Every case is asked with a fresh conversation. The documents directory is
reloaded before the run.`
)

// Options are the server options plus the evaluation inputs.
type Options struct {
	options.ServerOptions `mapstructure:",squash"`

	// Cases is the path of the JSON question set.
	Cases string `json:"cases" mapstructure:"cases"`

	// Output is the path the JSON report is written to.
	Output string `json:"output" mapstructure:"output"`
}

// NewOptions creates Options with default values.
func NewOptions() *Options {
	return &Options{
		ServerOptions: *options.NewServerOptions(),
		Cases:         "eval/cases.json",
		Output:        "eval/report.json",
	}
}

// Flags returns the server flag sets plus the "eval" section.
func (o *Options) Flags() cliflag.NamedFlagSets {
	fss := o.ServerOptions.Flags()
	fs := fss.FlagSet("eval")
	fs.StringVar(&o.Cases, "cases", o.Cases, "Path of the JSON question set.")
	fs.StringVar(&o.Output, "output", o.Output, "Path of the JSON report.")
	return fss
}

// Validate checks the server options and the evaluation inputs.
func (o *Options) Validate() error {
	if err := o.ServerOptions.Validate(); err != nil {
		return err
	}
	if o.Cases == "" {
		return fmt.Errorf("--cases is required")
	}
	if o.Output == "" {
		return fmt.Errorf("--output is required")
	}
	return nil
}

// NewApp creates the evaluation runner.
func NewApp() *app.App {
	opts := NewOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(func(ctx context.Context) error {
			return Run(ctx, opts)
		}),
	)
}

// Run loads the documents, asks every case and writes the report.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// 评测只需要检索服务，不启动任何前端
	if err := cfg.InitLogger(); err != nil {
		return err
	}

	cases, err := biz.LoadEvalCases(opts.Cases)
	if err != nil {
		return err
	}

	pipeline, err := cfg.NewPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	n, err := pipeline.Service.Reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}
	logger.Infow("Documents loaded", "chunks", n, "cases", len(cases))

	report, err := biz.NewEvaluator(pipeline.Service).Run(ctx, cases)
	if err != nil {
		return err
	}
	if err := biz.WriteEvalReport(opts.Output, report); err != nil {
		return err
	}

	s := report.Summary
	logger.Infow("Evaluation finished",
		"run_id", report.RunID,
		"total", s.Total,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"keyword_recall", s.MeanKeywordRecall,
		"context_recall", s.MeanContextRecall,
		"latency_ms", s.MeanLatencyMS,
		"output", opts.Output,
	)
	return nil
}
