// cmd/fleetwatch/hosts.go
package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/dashboard"
	"github.com/signalnine/fleetwatch/internal/logging"
	"github.com/signalnine/fleetwatch/internal/registry"
	"github.com/signalnine/fleetwatch/internal/render"
)

var listPage int

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Inspect or seed the host registry",
}

var hostsListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "Show one page of registered hosts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, "")
		if err := checkQuery(query); err != nil {
			return err
		}
		if listPage < 1 {
			listPage = 1
		}

		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging)
		defer logger.Sync()

		db, err := registry.NewDB(cfg.DBPath, cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		svc := registry.NewService(db, logger)
		totalPages, err := svc.Count(cmd.Context(), query)
		if err != nil {
			return err
		}
		hosts, err := svc.List(cmd.Context(), query, listPage)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), render.Hosts(hosts, listPage, totalPages, time.Now()))
		return nil
	},
}

// checkQuery applies the same length limit as GET /api/hosts
func checkQuery(query string) error {
	if utf8.RuneCountInString(query) > dashboard.MaxQueryLen {
		return fmt.Errorf("query too long: at most %d characters", dashboard.MaxQueryLen)
	}
	return nil
}

var hostsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Upsert hosts from a YAML file, as the external collector would",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return err
		}

		db, err := registry.NewDB(cfg.DBPath, cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		n, err := registry.Import(cmd.Context(), db, args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d hosts into %s\n", n, cfg.DBPath)
		return nil
	},
}

func init() {
	hostsCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to server config (YAML)")
	hostsListCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")

	hostsCmd.AddCommand(hostsListCmd)
	hostsCmd.AddCommand(hostsImportCmd)
}
