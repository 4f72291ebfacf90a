package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"repo-leaderboard/internal/api"
	"repo-leaderboard/internal/database"
	"repo-leaderboard/internal/scheduler"
)

var rootCmd = &cobra.Command{
	Use:           "leaderboard",
	Short:         "GitHub repository leaderboard sync and enrichment service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations, start the scheduler and serve the HTTP API",
	RunE:  runServe,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync and print its result",
	RunE:  runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print pending sync and enrichment work",
	RunE:  runStatus,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Migrate(cfg.DBURL, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)

	syncCmd.Flags().String("mode", string(scheduler.ModeAll), "Sync mode: repos or issues or all")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(a.store, a.scheduler, a.cfg.CronSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting.")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return server.Shutdown(shutdownCtx)
}

func runSync(cmd *cobra.Command, args []string) error {
	rawMode, err := cmd.Flags().GetString("mode")
	if err != nil {
		return err
	}
	mode, err := scheduler.ParseMode(rawMode)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.scheduler.Trigger(ctx, mode)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Message)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.scheduler.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to load status: %w", err)
	}

	lastSynced := "never"
	if st.LastSynced != nil {
		lastSynced = st.LastSynced.Format(time.RFC3339)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Metric", "Value"})
	if err := table.Bulk([][]string{
		{"Repos pending issue sync", strconv.Itoa(st.ReposPendingIssueSync)},
		{"Issues pending summary", strconv.Itoa(st.PendingSummary)},
		{"Issues pending AI/ML classification", strconv.Itoa(st.PendingAIML)},
		{"Issues pending build plan", strconv.Itoa(st.PendingBuildPlan)},
		{"Open issues", strconv.Itoa(st.TotalIssues)},
		{"Last metadata sync", lastSynced},
	}); err != nil {
		return err
	}
	return table.Render()
}
