package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/brain-orchestrator/api"
	configx "github.com/tanpawarit/brain-orchestrator/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the pipeline over HTTP:

  POST /ai/chat          answer with conversation history
  POST /ai/chat/stream   same, as server-sent progress events
  POST /ai/analyze       answer a standalone question
  POST /ai/visualize     produce a diagram
  GET  /ai/health        component status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		httpCfg, err := configx.New[api.Config]("")
		if err != nil {
			return fmt.Errorf("http config: %w", err)
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return api.Serve(ctx, *httpCfg, api.NewHandler(a.orchestrator))
	},
}
