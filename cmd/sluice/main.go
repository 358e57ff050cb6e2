package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/sluice/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "sluice",
	Short:   "Static file server and HTTP/2 reverse proxy",
	Long: `Sluice serves a directory tree (static or single-page app) or forwards
requests to HTTP/2 backends by authority. Every response is streamed with
backpressure and survives clients that disappear mid-transfer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		files, _ := cmd.Flags().GetStringArray("config")

		cfg, err := config.Load(files, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg.Env, cfg.Log)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringArray("config", nil, "config file path, repeatable; later files win (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: SLUICE_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
