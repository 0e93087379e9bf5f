package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"docchat/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the document chat HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = flagAddr
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		gin.SetMode(gin.ReleaseMode)
		srv := server.New(server.Config{
			Indexer:    a.indexer,
			Pipeline:   a.pipeline,
			History:    a.convos,
			MaxHistory: cfg.MaxHistory,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from DOCCHAT_ADDR or localhost:8080)")
	rootCmd.AddCommand(serveCmd)
}
