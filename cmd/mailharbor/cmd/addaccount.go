package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akeely/mailharbor/internal/imap"
	"github.com/akeely/mailharbor/internal/store"
)

var addAccountCmd = &cobra.Command{
	Use:   "add-account <server> <user> <password>",
	Short: "Add an IMAP account",
	Long: `Add an IMAP account to the account list. All accounts share one
server; adding an account with a different server replaces it for
every account.

The server is a hostname, optionally with a port (default 993,
implicit TLS).`,
	Args: cobra.ExactArgs(3),
	RunE: runAddAccount,
}

func init() {
	rootCmd.AddCommand(addAccountCmd)
}

func runAddAccount(cmd *cobra.Command, args []string) error {
	server, user, password := args[0], args[1], args[2]

	if _, err := imap.ParseServer(server); err != nil {
		return err
	}

	st, err := store.Open(cfg.Data.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	if err := st.AddAccount(server, user, password); err != nil {
		return err
	}

	fmt.Printf("Added account %s on %s\n", user, server)
	return nil
}
