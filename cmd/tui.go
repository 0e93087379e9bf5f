package cmd

import (
	"io"
	"os"

	"docchat/internal/logging"
	"docchat/internal/tui"
)

func runTUI(paths []string) error {
	// The alt screen owns the terminal; log lines would corrupt it.
	logging.Configure(io.Discard)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	return tui.Run(tui.Config{
		Indexer:        a.indexer,
		Pipeline:       a.pipeline,
		History:        a.convos,
		EmbeddingModel: cfg.Embedding.Model,
		MaxHistory:     cfg.MaxHistory,
		Root:           wd,
		Paths:          paths,
	})
}
