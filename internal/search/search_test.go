package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/akeely/mailharbor/internal/store"
	"github.com/akeely/mailharbor/internal/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	testutil.MustNoErr(t, err, "open store")
	return New(st, nil), st
}

func seedMessages(t *testing.T, st *store.Store) {
	t.Helper()
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")
	msgs := []store.Message{
		{ID: "m1", Account: "alice@example.com", Subject: "Invoice March", From: "billing@example.com", Date: "2024-03-01 09:00:00"},
		{ID: "m2", Account: "alice@example.com", Subject: "Meeting notes", From: "bob@example.com", Date: "2024-03-02 10:00:00"},
		{ID: "m3", Account: "alice@example.com", Subject: "Re: lunch", From: "invoice-robot@example.com", Date: "2024-03-03 11:00:00"},
	}
	for i := range msgs {
		testutil.MustNoErr(t, st.SaveMessage(&msgs[i]), "SaveMessage")
	}
}

func waitCompleted(t *testing.T, eng *Engine) Progress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p := eng.Progress()
		if p.Status == StatusCompleted {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("search never completed, last: %+v", eng.Progress())
	return Progress{}
}

func TestSearchMatchesSubjectAndFrom(t *testing.T) {
	eng, st := newTestEngine(t)
	seedMessages(t, st)

	eng.Start("INVOICE")
	p := waitCompleted(t, eng)

	if p.Percentage != 100 || p.ProcessedEmails != p.TotalEmails {
		t.Errorf("completed progress = %+v", p)
	}

	results := eng.Results("invoice")
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (subject match + sender match)", len(results))
	}
	// Newest first.
	if results[0].ID != "m3" || results[1].ID != "m1" {
		t.Errorf("result order = %s, %s; want m3, m1", results[0].ID, results[1].ID)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	eng, st := newTestEngine(t)
	seedMessages(t, st)

	eng.Start("meeting")
	waitCompleted(t, eng)

	results := eng.Results("Meeting")
	if len(results) != 1 || results[0].Subject != "Meeting notes" {
		t.Errorf("results = %+v, want only the meeting message", results)
	}
}

func TestResultsBeforeAnySearch(t *testing.T) {
	eng, _ := newTestEngine(t)

	if got := eng.Results("anything"); len(got) != 0 {
		t.Errorf("Results before any search = %v, want empty", got)
	}
}

func TestResultsForDifferentQuery(t *testing.T) {
	eng, st := newTestEngine(t)
	seedMessages(t, st)

	eng.Start("invoice")
	waitCompleted(t, eng)

	if got := eng.Results("meeting"); len(got) != 0 {
		t.Errorf("Results for a different query = %v, want empty", got)
	}
}

func TestSearchNoMatches(t *testing.T) {
	eng, st := newTestEngine(t)
	seedMessages(t, st)

	eng.Start("zzz-no-such-thing")
	p := waitCompleted(t, eng)

	if p.Message != "search complete, found 0 messages" {
		t.Errorf("completion message = %q", p.Message)
	}
	if got := eng.Results("zzz-no-such-thing"); len(got) != 0 {
		t.Errorf("results = %v, want empty", got)
	}
}

func TestNewSearchSupersedesOld(t *testing.T) {
	eng, st := newTestEngine(t)
	seedMessages(t, st)

	eng.Start("invoice")
	eng.Start("meeting")
	p := waitCompleted(t, eng)

	if p.Status != StatusCompleted {
		t.Fatalf("status = %q", p.Status)
	}
	// Only the most recent query's results are served.
	if got := eng.Results("meeting"); len(got) != 1 {
		t.Errorf("results for latest query = %d, want 1", len(got))
	}
}

func TestSearchEmptyStore(t *testing.T) {
	eng, _ := newTestEngine(t)

	eng.Start("anything")
	p := waitCompleted(t, eng)
	if p.Percentage != 100 {
		t.Errorf("percentage on empty store = %d, want 100", p.Percentage)
	}
}

func TestSearchLargeStore(t *testing.T) {
	eng, st := newTestEngine(t)
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")
	for i := 0; i < 25; i++ {
		msg := store.Message{
			ID:      fmt.Sprintf("m%02d", i),
			Account: "alice@example.com",
			Subject: fmt.Sprintf("bulk message %02d", i),
			Date:    fmt.Sprintf("2024-01-01 00:00:%02d", i),
		}
		testutil.MustNoErr(t, st.SaveMessage(&msg), "SaveMessage")
	}

	eng.Start("bulk")
	p := waitCompleted(t, eng)
	if p.TotalEmails != 25 {
		t.Errorf("TotalEmails = %d, want 25", p.TotalEmails)
	}
	if got := eng.Results("bulk"); len(got) != 25 {
		t.Errorf("results = %d, want 25", len(got))
	}
}
