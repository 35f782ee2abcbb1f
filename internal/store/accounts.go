package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Account is a configured mailbox login. The server is shared across
// all accounts and lives on AccountList. EmailCount is derived from
// the message store, never persisted as authoritative state.
type Account struct {
	User       string `json:"user"`
	Password   string `json:"password,omitempty"`
	EmailCount int    `json:"email_count"`
}

// AccountList is the persisted content of accounts.json.
type AccountList struct {
	Server string    `json:"server"`
	Emails []Account `json:"emails"`
}

// Accounts reads the account list with message counts filled in.
// A missing or corrupt accounts file yields an empty list, never an
// error.
func (s *Store) Accounts() *AccountList {
	list := s.readAccounts()
	for i := range list.Emails {
		list.Emails[i].EmailCount = s.AccountMessageCount(list.Emails[i].User)
	}
	return list
}

// readAccounts loads accounts.json without touching message counts.
func (s *Store) readAccounts() *AccountList {
	list := &AccountList{}
	data, err := os.ReadFile(s.accountsFile())
	if err != nil {
		return list
	}
	if err := json.Unmarshal(data, list); err != nil {
		s.logger.Warn("ignoring corrupt accounts file", "path", s.accountsFile(), "error", err)
		return &AccountList{}
	}
	return list
}

// SaveAccounts persists the account list atomically.
func (s *Store) SaveAccounts(list *AccountList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.accountsFile(), list)
}

// AddAccount appends a user/password pair to accounts.json, updating
// the shared server when one is given. Replaces the password of an
// existing user instead of duplicating the entry.
func (s *Store) AddAccount(server, user, password string) error {
	if user == "" {
		return fmt.Errorf("account user must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.readAccounts()
	if server != "" {
		list.Server = server
	}
	if list.Server == "" {
		return fmt.Errorf("no IMAP server configured")
	}

	for i := range list.Emails {
		if strings.EqualFold(list.Emails[i].User, user) {
			list.Emails[i].Password = password
			return writeJSONAtomic(s.accountsFile(), list)
		}
	}

	list.Emails = append(list.Emails, Account{User: user, Password: password})
	return writeJSONAtomic(s.accountsFile(), list)
}

// FindAccount looks up an account by user. Returns the shared server,
// the account, and whether it was found.
func (s *Store) FindAccount(user string) (server string, acct Account, ok bool) {
	list := s.readAccounts()
	for _, a := range list.Emails {
		if a.User == user {
			return list.Server, a, list.Server != ""
		}
	}
	return "", Account{}, false
}
