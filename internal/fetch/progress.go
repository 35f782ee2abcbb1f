package fetch

import (
	"sync"
	"time"
)

// Fetch status values.
const (
	StatusIdle      = "idle"
	StatusFetching  = "fetching"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Progress is a snapshot of the process-wide fetch state.
type Progress struct {
	Status              string `json:"status"`
	CurrentAccount      string `json:"current_account"`
	TotalAccounts       int    `json:"total_accounts"`
	CurrentAccountIndex int    `json:"current_account_index"`
	CurrentEmailIndex   int    `json:"current_email_index"`
	TotalEmails         int    `json:"total_emails"`
	Message             string `json:"message"`
	Percentage          int    `json:"percentage"`
}

// tracker is the mutex-guarded fetch progress singleton. Background
// runs write it; API handlers read snapshots. Snapshot never blocks a
// writer for longer than one field copy and never tears.
type tracker struct {
	mu         sync.Mutex
	p          Progress
	resetTimer *time.Timer
}

func newTracker() *tracker {
	return &tracker{p: Progress{Status: StatusIdle}}
}

// Snapshot returns a consistent copy of the current progress.
func (t *tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

// update applies fn to the progress under the lock.
func (t *tracker) update(fn func(*Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.p)
}

// begin atomically transitions to the fetching state, seeding the
// progress from p. Returns false if a fetch is already running. Any
// pending auto-reset is cancelled.
func (t *tracker) begin(p Progress) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p.Status == StatusFetching {
		return false
	}
	if t.resetTimer != nil {
		t.resetTimer.Stop()
		t.resetTimer = nil
	}
	p.Status = StatusFetching
	t.p = p
	return true
}

// scheduleReset arms a timer that returns the progress to idle after
// d, unless a new run has begun in the meantime.
func (t *tracker) scheduleReset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resetTimer != nil {
		t.resetTimer.Stop()
	}
	t.resetTimer = time.AfterFunc(d, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.p.Status == StatusFetching {
			return
		}
		t.p = Progress{Status: StatusIdle}
	})
}
