// Package main provides the CLI entry point for the swarmflow engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/superdisco-agents/moai-flow-sub005/internal/scheduler"
	"github.com/superdisco-agents/moai-flow-sub005/internal/web"
	"github.com/superdisco-agents/moai-flow-sub005/pkg/swarmflow"
)

var (
	version = "0.4.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarmflow",
	Short: "Swarmflow - Swarm coordination engine",
	Long: `Swarmflow coordinates sessions of worker agents over configurable
communication topologies.

It provides:
  - Five swarm topologies with live reconfiguration
  - Six consensus algorithms for group decisions
  - SQLite-backed session state and metrics
  - Self-healing with restart, reassign, and topology switching`,
	Version: version,
}

// ============================================================================
// Serve Command
// ============================================================================

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination engine",
	Long:  `Start the HTTP boundary and background jobs of the engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := swarmflow.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if servePort > 0 {
			cfg.Web.Port = servePort
		}

		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		slog.SetDefault(logger)

		st, err := swarmflow.NewStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		bus := swarmflow.NewEventBus()
		defer bus.Close()

		coord := swarmflow.New(swarmflow.Options{
			Config:   *cfg,
			Store:    st,
			EventBus: bus,
			Logger:   logger,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		retention := scheduler.NewRetention(st, cfg.Retention, logger)
		go retention.Start(ctx)

		hub := web.NewHub(logger)
		go hub.Run(ctx, bus)

		server := web.NewServer(coord, st, hub, logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.Web.Port)
		}()

		logger.Info("swarmflow started", "port", cfg.Web.Port, "db", cfg.Store.Path)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down", "signal", sig.String())
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		coord.Shutdown(shutdownCtx)
		return nil
	},
}

// ============================================================================
// Session Commands
// ============================================================================

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Session inspection commands",
	Long:  `Commands for inspecting persisted swarm sessions.`,
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show a persisted session",
	Long:  `Load a session record and its topology graph from the store.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := swarmflow.LoadConfig()
		if err != nil {
			return err
		}

		st, err := swarmflow.NewStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		session, graph, err := st.LoadSession(context.Background(), args[0])
		if err != nil {
			return err
		}

		output, _ := json.MarshalIndent(map[string]interface{}{
			"session":  session,
			"topology": graph,
		}, "", "  ")
		fmt.Println(string(output))
		return nil
	},
}

var sessionMetricsLimit int

var sessionMetricsCmd = &cobra.Command{
	Use:   "metrics <session-id>",
	Short: "Show recent task metrics",
	Long:  `Query the most recent task metrics recorded for a session.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := swarmflow.LoadConfig()
		if err != nil {
			return err
		}

		st, err := swarmflow.NewStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		metrics, err := st.QueryRecentMetrics(context.Background(), args[0], sessionMetricsLimit)
		if err != nil {
			return err
		}

		if len(metrics) == 0 {
			fmt.Println("No metrics recorded")
			return nil
		}

		output, _ := json.MarshalIndent(metrics, "", "  ")
		fmt.Println(string(output))
		return nil
	},
}

var sessionHealingCmd = &cobra.Command{
	Use:   "healing <session-id>",
	Short: "Show the healing audit trail",
	Long:  `Query the healing actions recorded for a session.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := swarmflow.LoadConfig()
		if err != nil {
			return err
		}

		st, err := swarmflow.NewStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		actions, err := st.QueryHealingActions(context.Background(), args[0])
		if err != nil {
			return err
		}

		if len(actions) == 0 {
			fmt.Println("No healing actions recorded")
			return nil
		}

		output, _ := json.MarshalIndent(actions, "", "  ")
		fmt.Println(string(output))
		return nil
	},
}

// ============================================================================
// Prune Command
// ============================================================================

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune old metrics and health records",
	Long:  `Run the retention job once, deleting records older than the configured window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := swarmflow.LoadConfig()
		if err != nil {
			return err
		}

		st, err := swarmflow.NewStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		scheduler.NewRetention(st, cfg.Retention, logger).Prune(context.Background())
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	sessionMetricsCmd.Flags().IntVarP(&sessionMetricsLimit, "limit", "l", 50, "Maximum results")
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionMetricsCmd)
	sessionCmd.AddCommand(sessionHealingCmd)
	rootCmd.AddCommand(sessionCmd)

	rootCmd.AddCommand(pruneCmd)
}
