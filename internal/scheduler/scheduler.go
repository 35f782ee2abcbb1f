// Package scheduler provides cron-based scheduling for automated mail
// ingestion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/akeely/mailharbor/internal/fetch"
)

// FetchFunc starts a fetch over all configured accounts. It should
// return fetch.ErrFetchInProgress when a run is already active.
type FetchFunc func() error

// Status reports the schedule state.
type Status struct {
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler triggers periodic fetch-all runs on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	fetchFunc FetchFunc
	logger    *slog.Logger

	mu       sync.RWMutex
	entryID  cron.EntryID
	schedule string
	lastRun  time.Time
	lastErr  error
	stopped  bool
}

// New creates a Scheduler that calls fetchFunc on each tick. Standard
// five-field cron expressions only.
func New(fetchFunc FetchFunc) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		fetchFunc: fetchFunc,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// SetSchedule installs or replaces the fetch schedule. Returns an
// error if the cron expression is invalid.
func (s *Scheduler) SetSchedule(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
		s.schedule = ""
	}

	entryID, err := s.cron.AddFunc(cronExpr, s.runFetch)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.entryID = entryID
	s.schedule = cronExpr
	s.logger.Info("scheduled mail fetch",
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)
	return nil
}

// Start begins executing the schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the scheduler. The returned context is done once any
// in-flight cron callback has returned; the fetch itself runs in the
// background and is not interrupted.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	return s.cron.Stop()
}

// Status returns the current schedule state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{Schedule: s.schedule, LastRun: s.lastRun}
	if s.entryID != 0 {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// runFetch is the cron callback. A tick that lands while a fetch is
// still active is skipped, not queued.
func (s *Scheduler) runFetch() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info("starting scheduled fetch")
	err := s.fetchFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, fetch.ErrFetchInProgress):
		s.logger.Warn("scheduled fetch skipped, a fetch is already running")
	case err != nil:
		s.lastErr = err
		s.logger.Error("scheduled fetch failed", "error", err)
	default:
		s.lastRun = time.Now()
		s.lastErr = nil
	}
}

// ValidateCronExpr validates a cron expression without scheduling
// anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
