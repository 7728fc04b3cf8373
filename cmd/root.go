package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/brain-orchestrator/pkg/config"
	logx "github.com/tanpawarit/brain-orchestrator/pkg/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "brain",
	Short: "Multi-specialist question answering service",
	Long: `brain routes a question to the specialists able to answer it
(database, web research, statistical analysis, diagrams), runs them and
merges their findings into one answer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configx.SetEnvFile(envFile)

		// The env file may carry LOG_* settings the autoload pass did not see.
		logCfg, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return err
		}
		logx.Init(*logCfg)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
}
