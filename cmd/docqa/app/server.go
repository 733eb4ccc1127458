// Package app provides the docqa server application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/docqa/cmd/docqa/app/options"
	"github.com/kart-io/docqa/internal/docqa"
	"github.com/kart-io/docqa/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `docqa answers questions about a folder of documents.

The service:
  - Extracts text from PDF, DOCX and TXT files
  - Splits the text into overlapping chunks and embeds them
  - Retrieves the most relevant chunks for a question
  - Generates an answer with an LLM, keeping per-user conversation history

Front-ends: HTTP JSON API and Telegram bot.`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(docqa.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func(ctx context.Context) error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx)
	}
}
