package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akeely/mailharbor/internal/fetch"
	"github.com/akeely/mailharbor/internal/store"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [account]",
	Short: "Fetch mail now",
	Long: `Fetch mail for one account, or for every configured account when no
account is given. Runs in the foreground and prints progress.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Data.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	engine := newFetchEngine(st)

	if len(args) == 1 {
		err = engine.StartAccount(args[0])
	} else {
		err = engine.StartAll()
	}
	if err != nil {
		return err
	}

	// The engine runs in the background; poll until it reaches a
	// terminal state.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastMsg string
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}

		p := engine.Progress()
		if p.Message != "" && p.Message != lastMsg {
			fmt.Println(p.Message)
			lastMsg = p.Message
		}

		switch p.Status {
		case fetch.StatusCompleted:
			return nil
		case fetch.StatusError:
			return fmt.Errorf("fetch failed: %s", p.Message)
		case fetch.StatusIdle:
			// Auto-reset fired between polls; the run is over.
			return nil
		}
	}
}
