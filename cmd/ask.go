package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var flagShowSources bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ans, err := a.pipeline.Ask(cmd.Context(), strings.Join(args, " "), cfg.MaxHistory)
		if ans != nil {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			if flagShowSources {
				printSources(out, ans.Sources)
			}
		}
		return err
	},
}

func init() {
	askCmd.Flags().BoolVar(&flagShowSources, "sources", false, "print the retrieved chunks after the answer")
	rootCmd.AddCommand(askCmd)
}
