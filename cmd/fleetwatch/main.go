// cmd/fleetwatch/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/agent"
	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/dashboard"
	"github.com/signalnine/fleetwatch/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "fleetwatch",
	Short:        "Fleet dashboard: host registry, metrics proxy and live widgets",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging)
		defer logger.Sync()

		srv, err := dashboard.NewServer(cfg, logger)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		if err := srv.Run(ctx); err != nil {
			logger.Error("Dashboard stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the reference metrics agent on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAgentConfig(configPath)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging)
		defer logger.Sync()

		ctx, stop := signalContext()
		defer stop()
		return agent.New(cfg, logger).Run(ctx)
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to server config (YAML)")
	agentCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to agent config (YAML)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(hostsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
