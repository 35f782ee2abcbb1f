package store

import (
	"encoding/json"
	"os"
	"time"
)

// NotificationCap bounds the notification log; the oldest entries are
// evicted first.
const NotificationCap = 100

// Notification types.
const (
	NotifyInfo  = "info"
	NotifyError = "error"
)

// Notification is one operational event.
type Notification struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Time    string `json:"time"`
}

// Notifications returns the current log, oldest first. A missing or
// corrupt log file reads as empty.
func (s *Store) Notifications() []Notification {
	data, err := os.ReadFile(s.notificationsFile())
	if err != nil {
		return []Notification{}
	}
	var log []Notification
	if err := json.Unmarshal(data, &log); err != nil {
		return []Notification{}
	}
	return log
}

// AddNotification appends an event to the log, enforcing the cap.
// Write failures are logged and swallowed; notifications are
// best-effort.
func (s *Store) AddNotification(message, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.Notifications()
	log = append(log, Notification{
		Message: message,
		Type:    typ,
		Time:    time.Now().Format("2006-01-02 15:04:05"),
	})
	if len(log) > NotificationCap {
		log = log[len(log)-NotificationCap:]
	}
	if err := writeJSONAtomic(s.notificationsFile(), log); err != nil {
		s.logger.Warn("failed to write notification log", "error", err)
	}
}

// ClearNotifications empties the log.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.notificationsFile(), []Notification{}); err != nil {
		s.logger.Warn("failed to clear notification log", "error", err)
	}
}
