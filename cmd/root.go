package cmd

import (
	"os"

	"docchat/internal/config"
	"docchat/internal/logging"

	"github.com/spf13/cobra"
)

var (
	flagConfig     string
	flagIndex      string
	flagDB         string
	flagModel      string
	flagChatModel  string
	flagEmbedURL   string
	flagMaxHistory int
)

// cfg is loaded once in PersistentPreRunE and shared by every command.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "docchat [paths...]",
	Short:        "Chat with your documents using retrieval-augmented generation",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Configure(os.Stderr)

		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags lets explicitly set flags override the loaded configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("index") {
		c.Storage.IndexPath = flagIndex
	}
	if flags.Changed("db") {
		c.Storage.DatabasePath = flagDB
	}
	if flags.Changed("model") {
		c.Embedding.Model = flagModel
	}
	if flags.Changed("chat-model") {
		c.LLM.Model = flagChatModel
	}
	if flags.Changed("embed-url") {
		c.Embedding.BaseURL = flagEmbedURL
	}
	if flags.Changed("history") {
		c.MaxHistory = config.ClampHistory(flagMaxHistory)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file (default $"+config.ConfigFileEnv+")")
	pf.StringVar(&flagIndex, "index", config.DefaultIndexPath, "vector index path")
	pf.StringVar(&flagDB, "db", config.DefaultDatabasePath, "conversation database path")
	pf.StringVar(&flagModel, "model", config.DefaultEmbeddingModel, "embedding model")
	pf.StringVar(&flagChatModel, "chat-model", config.DefaultLLMModel, "generative model for answers")
	pf.StringVar(&flagEmbedURL, "embed-url", config.DefaultOllamaURL, "embedding service base URL")
	pf.IntVar(&flagMaxHistory, "history", config.DefaultMaxHistory, "past exchanges to include as memory (1-20)")
}
