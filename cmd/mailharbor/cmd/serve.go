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

	"github.com/akeely/mailharbor/internal/api"
	"github.com/akeely/mailharbor/internal/fetch"
	"github.com/akeely/mailharbor/internal/imap"
	"github.com/akeely/mailharbor/internal/scheduler"
	"github.com/akeely/mailharbor/internal/search"
	"github.com/akeely/mailharbor/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run mailharbor as a daemon with the HTTP API",
	Long: `Run mailharbor as a long-running daemon serving the HTTP API and,
when configured, fetching mail on a cron schedule.

Configure the schedule in config.toml:
  [fetch]
  schedule = "0 2 * * *"   # 2am daily (cron format)

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays

Use Ctrl+C to stop the daemon gracefully.`,
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

	st, err := store.Open(cfg.Data.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	engine := newFetchEngine(st)
	searcher := search.New(st, logger)

	var sched *scheduler.Scheduler
	if cfg.Fetch.Schedule != "" {
		sched = scheduler.New(engine.StartAll).WithLogger(logger)
		if err := sched.SetSchedule(cfg.Fetch.Schedule); err != nil {
			return err
		}
		sched.Start()
	}

	apiServer := api.NewServer(cfg, st, engine, searcher, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("mailharbor daemon started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.Port)))
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	if sched != nil {
		fmt.Printf("  Fetch schedule: %s (next run %s)\n",
			cfg.Fetch.Schedule,
			sched.Status().NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case <-cmd.Context().Done():
		logger.Info("received shutdown signal")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	if sched != nil {
		schedCtx := sched.Stop()
		select {
		case <-schedCtx.Done():
		case <-time.After(30 * time.Second):
			fmt.Println("Scheduler shutdown timed out after 30 seconds.")
		}
	}

	fmt.Println("Shutdown complete.")
	return nil
}

// newFetchEngine wires the IMAP dialer into an ingestion engine.
func newFetchEngine(st *store.Store) *fetch.Engine {
	dialer := &imap.Dialer{Timeout: cfg.IMAPTimeout(), Logger: logger}
	dial := func(server, user, password string) (fetch.Session, error) {
		return dialer.Dial(server, user, password)
	}
	return fetch.New(st, dial, &fetch.Options{
		ErrorResetDelay:    cfg.ErrorResetDelay(),
		CompleteResetDelay: cfg.CompleteResetDelay(),
		Logger:             logger,
	})
}
