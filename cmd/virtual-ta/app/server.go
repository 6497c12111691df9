// Package app provides the virtual TA server application.
package app

import (
	"context"
	"fmt"

	"github.com/kart-io/virtual-ta/cmd/virtual-ta/app/options"
	tasvc "github.com/kart-io/virtual-ta/internal/ta"
	"github.com/kart-io/virtual-ta/pkg/infra/app"
)

// commandDesc is the description of the command.
const commandDesc = `TDS Virtual TA

Answers course questions by retrieving the closest fragments of a pre-built
discussion corpus and composing a short answer with source links.

This server provides:
  - POST /api and POST / with {"question": "...", "image": "<base64>"}
  - Optional cross-encoder or LLM reranking
  - Optional OCR of an attached screenshot
  - Eager or lazy loading of models and the index`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		app.WithName(tasvc.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)

	return application
}

// run contains the main logic for initializing and running the server.
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
