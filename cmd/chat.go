package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"docchat/internal/config"
	"docchat/internal/rag"
	"docchat/internal/store"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about your documents in an interactive session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		r := &repl{
			asker:      a.pipeline,
			convos:     a.convos,
			maxHistory: cfg.MaxHistory,
			out:        cmd.OutOrStdout(),
		}
		return r.run(cmd.Context(), cmd.InOrStdin())
	},
}

type asker interface {
	Ask(ctx context.Context, question string, maxHistory int) (*rag.Answer, error)
}

type clearer interface {
	Clear(ctx context.Context) error
}

// repl is the line-oriented chat loop.
type repl struct {
	asker      asker
	convos     clearer
	maxHistory int
	out        io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprintln(r.out, "docchat (type /help for commands, /exit to quit)")
	fmt.Fprintln(r.out)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if r.command(ctx, line) {
				return nil
			}
			continue
		}

		fmt.Fprintln(r.out, "[Searching...]")
		ans, err := r.asker.Ask(ctx, line, r.maxHistory)
		if ans != nil {
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, ans.Text)
			fmt.Fprintln(r.out)
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %s\n", describeError(err))
		}
	}
	return scanner.Err()
}

// command handles a slash command and reports whether the loop should end.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		fmt.Fprintln(r.out, "Goodbye.")
		return true
	case "/clear":
		if err := r.convos.Clear(ctx); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		} else {
			fmt.Fprintln(r.out, "Conversation cleared.")
		}
	case "/history":
		if len(fields) < 2 {
			fmt.Fprintf(r.out, "Using the last %d exchange(s) as memory.\n", r.maxHistory)
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(r.out, "usage: /history N (%d-%d)\n", config.MinHistory, config.MaxHistory)
			break
		}
		r.maxHistory = config.ClampHistory(n)
		fmt.Fprintf(r.out, "Using the last %d exchange(s) as memory.\n", r.maxHistory)
	case "/help":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  /clear      - delete the stored conversation")
		fmt.Fprintln(r.out, "  /history N  - remember the last N exchanges (1-20)")
		fmt.Fprintln(r.out, "  /exit       - quit chat")
		fmt.Fprintln(r.out, "  /help       - show this help")
	default:
		fmt.Fprintf(r.out, "unknown command %s (type /help)\n", fields[0])
	}
	return false
}

// describeError turns pipeline errors into messages for the user.
func describeError(err error) string {
	var serr *rag.SynthesisError
	switch {
	case errors.Is(err, store.ErrIndexNotFound):
		return "No documents have been processed yet. Run 'docchat ingest <files>' first."
	case errors.Is(err, rag.ErrEmptyQuestion):
		return "Please enter a question."
	case errors.As(err, &serr):
		return fmt.Sprintf("The language model failed: %v", serr.Err)
	}
	return err.Error()
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
