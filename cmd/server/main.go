/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the settlement engine server. Handles
  configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve   Start the HTTP API server
  plan    Print the minimized settlement plan for a scope and exit

STARTUP SEQUENCE (serve):
  1. Load configuration (YAML file + .env + environment)
  2. Configure logging
  3. Initialize SQLite store
  4. Create service and API handler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/settle.db

  # Run with in-memory database
  ./server serve --db=:memory:

  # Print the plan for a group
  ./server plan --group=trip --currency=USD

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearsplit/settlement-engine/api"
	"github.com/clearsplit/settlement-engine/config"
	"github.com/clearsplit/settlement-engine/engine"
	"github.com/clearsplit/settlement-engine/pkg/logging"
	"github.com/clearsplit/settlement-engine/store/sqlite"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "settlement-engine",
		Short:        "Debt netting and settlement engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(planCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	return cmd
}

func runServer(cfg config.Config) error {
	logger := logging.Setup(cfg.LogLevel)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	svc := engine.NewService(store, nil, cfg.DefaultCurrency)
	handler := api.NewHandler(svc, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func planCmd(configPath *string) *cobra.Command {
	var dbPath, groupID, currency string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the minimized settlement plan for a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if currency == "" {
				currency = cfg.DefaultCurrency
			}
			logging.Setup(cfg.LogLevel)

			store, err := sqlite.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()

			unsettled := false
			entries, err := store.ListEntries(cmd.Context(), engine.EntryFilter{
				GroupID:  groupID,
				Currency: currency,
				Settled:  &unsettled,
			})
			if err != nil {
				return err
			}

			sheet, err := engine.Aggregate(entries)
			if err != nil {
				return err
			}
			plan := engine.Minimize(sheet)
			if len(plan) == 0 {
				fmt.Println("all settled up")
				return nil
			}
			for _, t := range plan {
				fmt.Printf("%s pays %s %s %s\n", t.FromUserID, t.ToUserID, t.Amount.String(), t.Amount.Currency)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().StringVar(&groupID, "group", "", "restrict the plan to one group")
	cmd.Flags().StringVar(&currency, "currency", "", "currency scope (defaults to config)")
	return cmd
}
