// Package docqa provides retrieval pipeline configuration options.
package docqa

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains the retrieval and answering settings.
type Options struct {
	// DocumentsDir is scanned on reload.
	DocumentsDir string `json:"documents-dir" mapstructure:"documents-dir"`

	// ChunkSize is the chunk window in words.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the number of words shared by neighbouring chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of chunks retrieved per question.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// HistoryLimit is the number of history entries kept per user.
	HistoryLimit int `json:"history-limit" mapstructure:"history-limit"`

	// HistoryWindow is the number of history entries passed to the model.
	// Odd values are rounded down so question/answer pairs stay intact.
	HistoryWindow int `json:"history-window" mapstructure:"history-window"`

	// Language selects prompt and reply templates (ru, en).
	Language string `json:"language" mapstructure:"language"`

	// ReloadOnStart indexes the documents directory when the index is empty at startup.
	ReloadOnStart bool `json:"reload-on-start" mapstructure:"reload-on-start"`

	// Watch reloads automatically when the documents directory changes.
	Watch bool `json:"watch" mapstructure:"watch"`

	// WatchDebounce is the quiet period before a watch-triggered reload.
	WatchDebounce time.Duration `json:"watch-debounce" mapstructure:"watch-debounce"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		DocumentsDir:  "data/documents",
		ChunkSize:     1000,
		ChunkOverlap:  200,
		TopK:          3,
		HistoryLimit:  10,
		HistoryWindow: 4,
		Language:      "ru",
		ReloadOnStart: true,
		WatchDebounce: 2 * time.Second,
	}
}

// AddFlags adds flags for retrieval options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DocumentsDir, options.Join(prefixes...)+"docqa.documents-dir", o.DocumentsDir, "Directory with pdf, docx and txt documents.")
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"docqa.chunk-size", o.ChunkSize, "Chunk size in words.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"docqa.chunk-overlap", o.ChunkOverlap, "Overlap between chunks in words.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"docqa.top-k", o.TopK, "Number of chunks retrieved per question.")
	fs.IntVar(&o.HistoryLimit, options.Join(prefixes...)+"docqa.history-limit", o.HistoryLimit, "History entries kept per user (even).")
	fs.IntVar(&o.HistoryWindow, options.Join(prefixes...)+"docqa.history-window", o.HistoryWindow, "History entries passed to the model.")
	fs.StringVar(&o.Language, options.Join(prefixes...)+"docqa.language", o.Language, "Prompt and reply language (ru, en).")
	fs.BoolVar(&o.ReloadOnStart, options.Join(prefixes...)+"docqa.reload-on-start", o.ReloadOnStart, "Index documents at startup when the index is empty.")
	fs.BoolVar(&o.Watch, options.Join(prefixes...)+"docqa.watch", o.Watch, "Reload when the documents directory changes.")
	fs.DurationVar(&o.WatchDebounce, options.Join(prefixes...)+"docqa.watch-debounce", o.WatchDebounce, "Quiet period before a watch-triggered reload.")
}

// Validate validates the retrieval options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.DocumentsDir == "" {
		errs = append(errs, fmt.Errorf("docqa.documents-dir is required"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("docqa.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("docqa.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("docqa.top-k must be positive"))
	}
	if o.HistoryLimit < 2 {
		errs = append(errs, fmt.Errorf("docqa.history-limit must be at least 2"))
	}
	if o.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("docqa.history-window must not be negative"))
	}
	switch o.Language {
	case "ru", "en":
	default:
		errs = append(errs, fmt.Errorf("docqa.language must be ru or en, got %q", o.Language))
	}
	if o.Watch && o.WatchDebounce <= 0 {
		errs = append(errs, fmt.Errorf("docqa.watch-debounce must be positive"))
	}
	return errs
}

// Complete completes the retrieval options with defaults.
func (o *Options) Complete() error {
	// 历史按问答成对保存
	o.HistoryLimit -= o.HistoryLimit % 2
	return nil
}
