package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/config"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/daemon"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/logging"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/version"
)

func main() {
	var cfgPath string
	var envFile string

	root := &cobra.Command{
		Use:     "refusalbenchd",
		Short:   "RefusalBench Studio daemon service",
		Version: version.Full(),
		RunE: func(cmd *cobra.Command, args []string) error {
			// API keys live in an env file the config references via ${VAR}.
			_ = godotenv.Load(envFile)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := daemon.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "Path to config file (default: configs/config.yaml)")
	root.Flags().StringVar(&envFile, "env-file", "keys.env", "Path to env file with API keys")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
