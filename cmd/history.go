package cmd

import (
	"fmt"
	"io"
	"strings"

	"docchat/internal/store"

	"github.com/spf13/cobra"
)

var flagLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the stored conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		convos := store.NewConversations(cfg.Storage.DatabasePath)
		msgs, err := convos.Read(cmd.Context(), flagLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No previous conversation.")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.Role.Label(), m.Content)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.NewConversations(cfg.Storage.DatabasePath).Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
		return nil
	},
}

func printSources(w io.Writer, sources []store.SearchResult) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, s := range sources {
		snippet := strings.Join(strings.Fields(s.Chunk.Content), " ")
		if r := []rune(snippet); len(r) > 100 {
			snippet = string(r[:100]) + "..."
		}
		fmt.Fprintf(w, "  %d. [%.3f] %s\n", i+1, s.Distance, snippet)
	}
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 0, "show only the most recent N messages (0 = all)")
	rootCmd.AddCommand(historyCmd, clearCmd)
}
