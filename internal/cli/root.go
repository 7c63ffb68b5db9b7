// Package cli wires the cubeops subcommands: building and publishing the
// analytics server image, provisioning dev databases, and setting up the
// development workspace.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cubeops/cubeops/internal/config"
	"github.com/cubeops/cubeops/internal/logging"
	"github.com/cubeops/cubeops/internal/tasks"
)

var (
	flagLogLevel string
	flagConfig   string
	flagYes      bool

	cfg     *config.Config
	tracker *tasks.Tracker
)

var rootCmd = &cobra.Command{
	Use:   "cubeops",
	Short: "Build, publish, and provision the Cube analytics server",
	Long: `Cubeops packages the Cube analytics server into Docker images and
provisions the development resources around it:

  • image    build, smoke-test, tag, and push server images
  • db       bring up dev databases (postgres, mysql, doris) with seed data
  • dev      set up a development worktree with launch configs and env files`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		logging.Init(cfg.LogLevel)
		return nil
	},
}

// Execute runs the root command. The tracker collects background tasks the
// commands spawn; the caller terminates them on every exit path.
func Execute(ctx context.Context, t *tasks.Tracker) error {
	tracker = t
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a config file")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "Skip interactive confirmation prompts")

	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(versionCmd)
}

func requireConfig() (*config.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
