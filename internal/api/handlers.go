package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/akeely/mailharbor/internal/fetch"
	"github.com/akeely/mailharbor/internal/mime"
	"github.com/akeely/mailharbor/internal/store"
)

// AccountInfo represents an account in list responses. Passwords never
// leave the server.
type AccountInfo struct {
	User       string `json:"user"`
	EmailCount int    `json:"email_count"`
}

// AccountsResponse represents the account list.
type AccountsResponse struct {
	Server   string        `json:"server"`
	Accounts []AccountInfo `json:"accounts"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeSuccess writes a minimal success acknowledgement.
func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// handleListAccounts returns the configured accounts with their stored
// message counts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list := s.store.Accounts()

	accounts := make([]AccountInfo, len(list.Emails))
	for i, acct := range list.Emails {
		accounts[i] = AccountInfo{User: acct.User, EmailCount: acct.EmailCount}
	}

	writeJSON(w, http.StatusOK, AccountsResponse{
		Server:   list.Server,
		Accounts: accounts,
	})
}

// handleAllEmails returns every stored message across all accounts,
// newest first.
func (s *Server) handleAllEmails(w http.ResponseWriter, r *http.Request) {
	msgs := s.store.AllMessages()
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleAccountEmails returns one account's stored messages, newest
// first. An unknown account simply has no messages.
func (s *Server) handleAccountEmails(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	msgs := s.store.AccountMessages(account)
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleGetEmail returns a single message by ID.
func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, ok := s.store.GetMessage(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Email not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleAttachment serves one attachment payload as a download.
func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "emailID")
	filename := mime.SanitizeFilename(chi.URLParam(r, "filename"))

	path, ok := s.store.AttachmentFilePath(emailID, filename)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Attachment not found")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

// handleFetchAll starts a background fetch over every account.
func (s *Server) handleFetchAll(w http.ResponseWriter, r *http.Request) {
	if err := s.fetcher.StartAll(); err != nil {
		writeError(w, http.StatusBadRequest, "fetch_in_progress", err.Error())
		return
	}
	s.logger.Info("fetch-all started via API")
	writeSuccess(w, "Fetch started for all accounts")
}

// handleFetchAccount starts a background fetch for one account.
func (s *Server) handleFetchAccount(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	err := s.fetcher.StartAccount(account)
	switch {
	case errors.Is(err, fetch.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Account not found")
		return
	case errors.Is(err, fetch.ErrFetchInProgress):
		writeError(w, http.StatusBadRequest, "fetch_in_progress", err.Error())
		return
	case err != nil:
		s.logger.Error("failed to start fetch", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start fetch")
		return
	}

	s.logger.Info("fetch started via API", "account", account)
	writeSuccess(w, "Fetch started for "+account)
}

// handleFetchProgress returns the current fetch progress snapshot.
func (s *Server) handleFetchProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fetcher.Progress())
}

// handleSearch starts a background search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	s.search.Start(query)
	writeSuccess(w, "Search started")
}

// handleSearchProgress returns the current search progress snapshot.
func (s *Server) handleSearchProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.search.Progress())
}

// handleSearchResults returns the results of a completed search, or an
// empty list while one is still running.
func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	writeJSON(w, http.StatusOK, s.search.Results(query))
}

// handleNotifications returns the notification log, oldest first.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Notifications())
}

// handleClearNotifications empties the notification log.
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	s.store.ClearNotifications()
	writeSuccess(w, "Notifications cleared")
}
