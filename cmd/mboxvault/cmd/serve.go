package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mboxvault/internal/api"
	"github.com/wesm/mboxvault/internal/importer"
	"github.com/wesm/mboxvault/internal/query"
	"github.com/wesm/mboxvault/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled re-imports",
	Long: `Run mboxvault as a long-running server.

The server runs in the foreground and provides:
  - the HTTP API on the configured port (default: 8080)
  - scheduled re-imports of mbox files listed in the config

Configure schedules in config.toml:
  [[imports]]
  path = "~/mail/All mail Including Spam and Trash.mbox"
  schedule = "0 2 * * *"   # 2am daily (cron format)
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays
    @daily        = Once a day at midnight

Re-imports only add new messages. Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	importFn := func(ctx context.Context, path string) (*importer.Summary, error) {
		return importExport(ctx, s, path, nil)
	}

	sched := scheduler.New(func(ctx context.Context, path string) (int, error) {
		sum, err := importFn(ctx, path)
		_, imported, _ := importer.Outcome(sum, err)
		return imported, err
	}).WithLogger(logger)

	count, errs := sched.AddImportsFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule import", "error", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sched.Start()

	apiServer := api.NewServer(cfg, api.Deps{
		Engine:    query.NewSQLiteEngine(s, logger),
		Archive:   s,
		Import:    importFn,
		Scheduler: sched,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	out := cmd.OutOrStdout()
	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Fprintf(out, "mboxvault server started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Fprintf(out, "  Scheduled imports: %d\n", count)
	fmt.Fprintf(out, "  Data directory: %s\n", cfg.Data.DataDir)
	fmt.Fprintln(out)
	for _, status := range sched.Status() {
		fmt.Fprintf(out, "  %s: next import at %s\n", status.Path, status.NextRun.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		runErr = fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	fmt.Fprintln(out, "Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	fmt.Fprintln(out, "Stopping scheduled imports...")
	select {
	case <-sched.Stop().Done():
		fmt.Fprintln(out, "Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Fprintln(out, "Shutdown timed out after 30 seconds.")
	}

	return runErr
}
