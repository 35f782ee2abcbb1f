// Package search scans stored messages for case-insensitive substring
// matches on subject or sender, reporting progress as it goes.
package search

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/akeely/mailharbor/internal/store"
)

// Search status values.
const (
	StatusIdle      = "idle"
	StatusSearching = "searching"
	StatusCompleted = "completed"
)

// Progress is a snapshot of the process-wide search state.
type Progress struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	Percentage      int    `json:"percentage"`
	TotalEmails     int    `json:"total_emails"`
	ProcessedEmails int    `json:"processed_emails"`
}

// Engine runs asynchronous searches over the message store. Searches
// are last-writer-wins: starting a new one supersedes the progress and
// results of any run still in flight. State is mutex-guarded so
// snapshots never tear, and each run carries a generation so a
// superseded run cannot clobber its successor.
type Engine struct {
	store  *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	p       Progress
	gen     int
	query   string          // query of the most recent run
	results []store.Message // materialized once that run completes
}

// New creates a search engine.
func New(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		logger: logger,
		p:      Progress{Status: StatusIdle},
	}
}

// Progress returns a snapshot of the current search state.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p
}

// Start launches a background search for query, superseding any run
// in flight.
func (e *Engine) Start(query string) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.query = query
	e.results = nil
	e.p = Progress{Status: StatusSearching, Message: "searching mail..."}
	e.mu.Unlock()

	go e.run(gen, query)
}

// Results returns the materialized result set for query, newest first.
// It returns an empty list unless the most recent run has completed
// and was for the same query (case-insensitive); it never blocks.
func (e *Engine) Results(query string) []store.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.p.Status != StatusCompleted || !strings.EqualFold(e.query, query) {
		return []store.Message{}
	}
	out := make([]store.Message, len(e.results))
	copy(out, e.results)
	return out
}

// run scans every stored message across every account directory, so
// messages from accounts no longer configured are still searched.
func (e *Engine) run(gen int, query string) {
	needle := strings.ToLower(query)

	msgs := e.store.AllMessages()
	total := len(msgs)
	e.update(gen, func(p *Progress) { p.TotalEmails = total })

	// AllMessages is already sorted newest first; filtering keeps
	// that order.
	var matches []store.Message
	for i, m := range msgs {
		if strings.Contains(strings.ToLower(m.Subject), needle) ||
			strings.Contains(strings.ToLower(m.From), needle) {
			matches = append(matches, m)
		}
		processed := i + 1
		e.update(gen, func(p *Progress) {
			p.ProcessedEmails = processed
			p.Percentage = percent(processed, total)
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return // superseded by a newer search
	}
	e.results = matches
	e.p = Progress{
		Status:          StatusCompleted,
		Message:         fmt.Sprintf("search complete, found %d messages", len(matches)),
		Percentage:      100,
		TotalEmails:     total,
		ProcessedEmails: total,
	}
	e.logger.Debug("search completed", "query", query, "matches", len(matches))
}

// update applies fn to the progress unless this run was superseded.
func (e *Engine) update(gen int, fn func(*Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	fn(&e.p)
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}
