package fetch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/akeely/mailharbor/internal/store"
	"github.com/akeely/mailharbor/internal/testutil"
	"github.com/akeely/mailharbor/internal/testutil/email"
)

// fakeSession serves canned raw messages keyed by UID.
type fakeSession struct {
	uids     []uint32
	msgs     map[uint32][]byte
	fetchErr map[uint32]error
	block    chan struct{} // if non-nil, ListUIDs blocks until closed
}

func (f *fakeSession) ListUIDs() ([]uint32, error) {
	if f.block != nil {
		<-f.block
	}
	return append([]uint32(nil), f.uids...), nil
}

func (f *fakeSession) FetchMessage(uid uint32) ([]byte, error) {
	if err := f.fetchErr[uid]; err != nil {
		return nil, err
	}
	raw, ok := f.msgs[uid]
	if !ok {
		return nil, fmt.Errorf("no such uid %d", uid)
	}
	return raw, nil
}

func (f *fakeSession) Close() error { return nil }

func rawMessage(subject, date string) []byte {
	return email.NewMessage().Subject(subject).Date(date).Body("body of " + subject).Bytes()
}

func newTestEngine(t *testing.T, dial DialFunc) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), nil)
	testutil.MustNoErr(t, err, "open store")
	// Long reset delays so the terminal state stays observable.
	eng := New(st, dial, &Options{
		ErrorResetDelay:    time.Hour,
		CompleteResetDelay: time.Hour,
	})
	return eng, st
}

func waitStatus(t *testing.T, eng *Engine, want string) Progress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p := eng.Progress()
		if p.Status == want {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("progress never reached status %q, last: %+v", want, eng.Progress())
	return Progress{}
}

func TestStartAllIngestsMessages(t *testing.T) {
	sess := &fakeSession{
		uids: []uint32{1, 2},
		msgs: map[uint32][]byte{
			1: rawMessage("first", "Mon, 01 Jan 2024 09:00:00 +0000"),
			2: rawMessage("second", "Tue, 02 Jan 2024 10:00:00 +0000"),
		},
	}
	dial := func(server, user, password string) (Session, error) { return sess, nil }

	eng, st := newTestEngine(t, dial)
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")

	testutil.MustNoErr(t, eng.StartAll(), "StartAll")
	p := waitStatus(t, eng, StatusCompleted)
	if p.Percentage != 100 {
		t.Errorf("final percentage = %d, want 100", p.Percentage)
	}

	msgs := st.AccountMessages("alice@example.com")
	if len(msgs) != 2 {
		t.Fatalf("stored messages = %d, want 2", len(msgs))
	}
	// Newest first per the date sort.
	if msgs[0].Subject != "second" {
		t.Errorf("first listed subject = %q, want %q", msgs[0].Subject, "second")
	}
	for _, m := range msgs {
		if m.ID == "" {
			t.Error("stored message has empty id")
		}
		if m.Account != "alice@example.com" {
			t.Errorf("stored account = %q", m.Account)
		}
	}
}

func TestRefetchSkipsExistingMessages(t *testing.T) {
	sess := &fakeSession{
		uids: []uint32{1, 2},
		msgs: map[uint32][]byte{
			1: rawMessage("first", "Mon, 01 Jan 2024 09:00:00 +0000"),
			2: rawMessage("second", "Tue, 02 Jan 2024 10:00:00 +0000"),
		},
	}
	dial := func(server, user, password string) (Session, error) { return sess, nil }

	eng, st := newTestEngine(t, dial)
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")

	testutil.MustNoErr(t, eng.StartAll(), "first StartAll")
	waitStatus(t, eng, StatusCompleted)

	testutil.MustNoErr(t, eng.StartAll(), "second StartAll")
	waitStatus(t, eng, StatusCompleted)

	if got := st.AccountMessageCount("alice@example.com"); got != 2 {
		t.Errorf("messages after refetch = %d, want 2 (no duplicates)", got)
	}
}

func TestStartAllWhileFetchingReturnsBusy(t *testing.T) {
	block := make(chan struct{})
	sess := &fakeSession{block: block}
	dial := func(server, user, password string) (Session, error) { return sess, nil }

	eng, st := newTestEngine(t, dial)
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")

	testutil.MustNoErr(t, eng.StartAll(), "first StartAll")

	if err := eng.StartAll(); !errors.Is(err, ErrFetchInProgress) {
		t.Errorf("second StartAll = %v, want ErrFetchInProgress", err)
	}
	if err := eng.StartAccount("alice@example.com"); !errors.Is(err, ErrFetchInProgress) {
		t.Errorf("StartAccount during fetch = %v, want ErrFetchInProgress", err)
	}

	close(block)
	waitStatus(t, eng, StatusCompleted)
}

func TestStartAccountUnknown(t *testing.T) {
	dial := func(server, user, password string) (Session, error) {
		t.Fatal("dial should not be called for an unknown account")
		return nil, nil
	}
	eng, _ := newTestEngine(t, dial)

	if err := eng.StartAccount("nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("StartAccount = %v, want ErrAccountNotFound", err)
	}
}

func TestAccountFailureDoesNotBlockOthers(t *testing.T) {
	sess := &fakeSession{
		uids: []uint32{1},
		msgs: map[uint32][]byte{
			1: rawMessage("hello", "Mon, 01 Jan 2024 09:00:00 +0000"),
		},
	}
	dial := func(server, user, password string) (Session, error) {
		if user == "broken@example.com" {
			return nil, errors.New("connection refused")
		}
		return sess, nil
	}

	eng, st := newTestEngine(t, dial)
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "broken@example.com", "pw"), "AddAccount")
	testutil.MustNoErr(t, st.AddAccount("", "alice@example.com", "pw"), "AddAccount")

	testutil.MustNoErr(t, eng.StartAll(), "StartAll")
	waitStatus(t, eng, StatusCompleted)

	if got := st.AccountMessageCount("alice@example.com"); got != 1 {
		t.Errorf("healthy account messages = %d, want 1", got)
	}

	var found bool
	for _, n := range st.Notifications() {
		if n.Type == store.NotifyError {
			found = true
		}
	}
	if !found {
		t.Error("expected an error notification for the failing account")
	}
}

func TestMessageFailureSkipsOnlyThatMessage(t *testing.T) {
	sess := &fakeSession{
		uids: []uint32{1, 2},
		msgs: map[uint32][]byte{
			2: rawMessage("survivor", "Tue, 02 Jan 2024 10:00:00 +0000"),
		},
		fetchErr: map[uint32]error{1: errors.New("fetch failed")},
	}
	dial := func(server, user, password string) (Session, error) { return sess, nil }

	eng, st := newTestEngine(t, dial)
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")

	testutil.MustNoErr(t, eng.StartAll(), "StartAll")
	waitStatus(t, eng, StatusCompleted)

	msgs := st.AccountMessages("alice@example.com")
	if len(msgs) != 1 || msgs[0].Subject != "survivor" {
		t.Errorf("stored messages = %+v, want only the survivor", msgs)
	}
}

func TestStartAllNoAccounts(t *testing.T) {
	dial := func(server, user, password string) (Session, error) {
		t.Fatal("dial should not be called with no accounts")
		return nil, nil
	}
	eng, _ := newTestEngine(t, dial)

	testutil.MustNoErr(t, eng.StartAll(), "StartAll")
	p := waitStatus(t, eng, StatusError)
	if p.Message == "" {
		t.Error("error progress should carry a message")
	}
}

func TestProgressAutoResets(t *testing.T) {
	sess := &fakeSession{uids: nil, msgs: nil}
	dial := func(server, user, password string) (Session, error) { return sess, nil }

	st, err := store.Open(t.TempDir(), nil)
	testutil.MustNoErr(t, err, "open store")
	testutil.MustNoErr(t, st.AddAccount("imap.example.com", "alice@example.com", "pw"), "AddAccount")

	eng := New(st, dial, &Options{
		ErrorResetDelay:    10 * time.Millisecond,
		CompleteResetDelay: 10 * time.Millisecond,
	})

	testutil.MustNoErr(t, eng.StartAll(), "StartAll")
	waitStatus(t, eng, StatusIdle)
}
