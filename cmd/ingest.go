package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"docchat/internal/extract"
	"docchat/internal/index"
	"docchat/internal/walker"

	"github.com/spf13/cobra"
)

var flagText string

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Build the document index from PDFs, text files and free text",
	Long: "Extracts text from the given files (directories are searched for " +
		".pdf, .txt and .md files), adds any --text, splits the result into " +
		"chunks and replaces the vector index.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		a.indexer.SetProgress(func(state index.State, done, total int) {
			if total > 0 && state == index.StateIndexing {
				fmt.Fprintf(out, "\r  %s: %d/%d chunks", state, done, total)
			}
		})

		fmt.Fprintf(out, "Processing %d path(s)...\n", len(args))
		res, err := ingest(cmd.Context(), a, args, flagText)
		fmt.Fprintln(out)
		printIngestResult(out, a.indexer.Path(), res)
		return err
	},
}

// ingest collects documents from paths and runs one ingestion batch.
func ingest(ctx context.Context, a *app, paths []string, text string) (*index.Result, error) {
	files, err := walker.Collect(paths, a.indexer.Extractor().Extensions())
	if err != nil {
		return nil, err
	}
	return a.indexer.Ingest(ctx, index.Batch{
		Documents: extract.ReadFiles(files),
		Text:      text,
	})
}

func printIngestResult(w io.Writer, indexPath string, res *index.Result) {
	if res == nil {
		return
	}
	if res.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", res.Warning)
	}
	if !res.Success() {
		return
	}
	fmt.Fprintf(w, "Done in %s\n", res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  Documents: %d read, %d skipped\n", res.Documents, len(res.Skipped))
	fmt.Fprintf(w, "  Chunks:    %d\n", res.Chunks)
	if res.Info != nil {
		fmt.Fprintf(w, "  Index:     %s (%s, %d dimensions)\n", indexPath, res.Info.Model, res.Info.Dimension)
	}
}

func init() {
	ingestCmd.Flags().StringVar(&flagText, "text", "", "free text to index alongside the files")
	rootCmd.AddCommand(ingestCmd)
}

// isValidation reports whether err is a problem with the user's input
// rather than a system failure.
func isValidation(err error) bool {
	var verr *index.ValidationError
	return errors.As(err, &verr)
}
