// Package store persists accounts, messages, attachments and the
// notification log as plain JSON files under a data directory.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store is a file-backed mail store.
//
// Layout under the data directory:
//
//	accounts.json                    shared server + account list
//	emails/<account>/<id>.json       one message per file
//	attachments/<message-id>/<file>  attachment payloads
//	notifications.json               bounded operational log
type Store struct {
	dataDir string
	logger  *slog.Logger

	// Guards read-modify-write cycles on accounts.json and
	// notifications.json. Message files are written once and never
	// updated, so they only need the atomic rename.
	mu sync.Mutex
}

// Open creates a Store rooted at dataDir, creating the directory tree
// if needed.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dataDir: dataDir, logger: logger}
	for _, dir := range []string{dataDir, s.emailsDir(), s.attachmentsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) emailsDir() string      { return filepath.Join(s.dataDir, "emails") }
func (s *Store) attachmentsDir() string { return filepath.Join(s.dataDir, "attachments") }
func (s *Store) accountsFile() string   { return filepath.Join(s.dataDir, "accounts.json") }
func (s *Store) notificationsFile() string {
	return filepath.Join(s.dataDir, "notifications.json")
}

// writeFileAtomic writes data to path via a temp file and rename, so a
// concurrent reader never observes a partially written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	cleanup = false
	return nil
}

// writeJSONAtomic marshals v and writes it atomically to path.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data, 0600)
}
