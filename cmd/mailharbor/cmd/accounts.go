package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akeely/mailharbor/internal/store"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List configured accounts",
	RunE:  runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Data.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	list := st.Accounts()
	if len(list.Emails) == 0 {
		fmt.Println("No accounts configured. Use 'mailharbor add-account' to add one.")
		return nil
	}

	fmt.Printf("Server: %s\n\n", list.Server)
	for _, acct := range list.Emails {
		fmt.Printf("  %-40s %d messages\n", acct.User, acct.EmailCount)
	}
	return nil
}
