package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Attachment is a stored attachment reference: the sanitized filename
// and the API path it can be retrieved from.
type Attachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// Message is a fully decoded, persisted mail message. Messages are
// immutable after creation; there is no update path.
type Message struct {
	ID          string       `json:"id"`
	Account     string       `json:"account"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	Date        string       `json:"date"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// SaveMessage persists a message under its account directory. The
// write is atomic so concurrent readers never see a partial record.
func (s *Store) SaveMessage(m *Message) error {
	if m.ID == "" || m.Account == "" {
		return fmt.Errorf("message id and account must not be empty")
	}
	path := filepath.Join(s.emailsDir(), m.Account, m.ID+".json")
	return writeJSONAtomic(path, m)
}

// SaveAttachment writes an attachment payload under the message's
// attachment directory and returns its API retrieval path.
func (s *Store) SaveAttachment(messageID, filename string, data []byte) (string, error) {
	path := filepath.Join(s.attachmentsDir(), messageID, filename)
	if err := writeFileAtomic(path, data, 0600); err != nil {
		return "", fmt.Errorf("save attachment %s: %w", filename, err)
	}
	return "/api/attachments/" + messageID + "/" + filename, nil
}

// AttachmentFilePath returns the on-disk path for an attachment and
// whether it exists as a regular file.
func (s *Store) AttachmentFilePath(messageID, filename string) (string, bool) {
	path := filepath.Join(s.attachmentsDir(), messageID, filename)
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// AccountMessages returns all messages for an account, newest first.
// Unreadable or corrupt message files are skipped.
func (s *Store) AccountMessages(account string) []Message {
	msgs := s.readAccountDir(filepath.Join(s.emailsDir(), account))
	SortByDateDesc(msgs)
	return msgs
}

// AllMessages returns every stored message across all accounts,
// newest first.
func (s *Store) AllMessages() []Message {
	var msgs []Message
	entries, err := os.ReadDir(s.emailsDir())
	if err != nil {
		return msgs
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		msgs = append(msgs, s.readAccountDir(filepath.Join(s.emailsDir(), e.Name()))...)
	}
	SortByDateDesc(msgs)
	return msgs
}

// GetMessage looks up a single message by id across all accounts.
func (s *Store) GetMessage(id string) (*Message, bool) {
	entries, err := os.ReadDir(s.emailsDir())
	if err != nil {
		return nil, false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(s.emailsDir(), e.Name(), id+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Warn("skipping corrupt message file", "path", path, "error", err)
			return nil, false
		}
		return &m, true
	}
	return nil, false
}

// AccountMessageCount returns the number of stored messages for an
// account.
func (s *Store) AccountMessageCount(account string) int {
	entries, err := os.ReadDir(filepath.Join(s.emailsDir(), account))
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			count++
		}
	}
	return count
}

// readAccountDir loads every message file in one account directory.
func (s *Store) readAccountDir(dir string) []Message {
	var msgs []Message
	entries, err := os.ReadDir(dir)
	if err != nil {
		return msgs
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Warn("skipping corrupt message file", "path", path, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// SortByDateDesc sorts messages newest first by their date string.
// Canonical dates ("2006-01-02 15:04:05") compare correctly as
// strings; unparsed raw dates sort by their literal value. The sort is
// stable so ties keep their original order.
func SortByDateDesc(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Date > msgs[j].Date
	})
}
