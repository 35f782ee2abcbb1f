// Package fetch orchestrates mail ingestion: one account at a time,
// newest message first, with live progress and per-message error
// isolation.
package fetch

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/akeely/mailharbor/internal/mime"
	"github.com/akeely/mailharbor/internal/store"
)

// ErrFetchInProgress is returned when a fetch is requested while
// another one is still running. At most one ingestion run may be
// active process-wide.
var ErrFetchInProgress = errors.New("a fetch is already running")

// ErrAccountNotFound is returned when the requested account is not
// configured.
var ErrAccountNotFound = errors.New("account not found")

// Session is one authenticated connection to a mailbox.
type Session interface {
	ListUIDs() ([]uint32, error)
	FetchMessage(uid uint32) ([]byte, error)
	Close() error
}

// DialFunc opens a Session against server for the given credentials.
type DialFunc func(server, user, password string) (Session, error)

// Options configures an Engine.
type Options struct {
	ErrorResetDelay    time.Duration // delay before idle after an error (default 3s)
	CompleteResetDelay time.Duration // delay before idle after completion (default 5s)
	Logger             *slog.Logger
}

// Engine runs ingestion for configured accounts and owns the fetch
// progress singleton.
type Engine struct {
	store    *store.Store
	dial     DialFunc
	logger   *slog.Logger
	progress *tracker

	errorResetDelay    time.Duration
	completeResetDelay time.Duration
}

// New creates an ingestion engine.
func New(st *store.Store, dial DialFunc, opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errDelay := opts.ErrorResetDelay
	if errDelay <= 0 {
		errDelay = 3 * time.Second
	}
	doneDelay := opts.CompleteResetDelay
	if doneDelay <= 0 {
		doneDelay = 5 * time.Second
	}
	return &Engine{
		store:              st,
		dial:               dial,
		logger:             logger,
		progress:           newTracker(),
		errorResetDelay:    errDelay,
		completeResetDelay: doneDelay,
	}
}

// Progress returns a snapshot of the current fetch state.
func (e *Engine) Progress() Progress {
	return e.progress.Snapshot()
}

// StartAccount begins a background fetch for one account. Returns
// ErrAccountNotFound for an unknown account and ErrFetchInProgress
// when a fetch is already active; the call itself never blocks on the
// mailbox.
func (e *Engine) StartAccount(user string) error {
	server, acct, ok := e.store.FindAccount(user)
	if !ok {
		return ErrAccountNotFound
	}
	if !e.progress.begin(Progress{
		CurrentAccount:      user,
		TotalAccounts:       1,
		CurrentAccountIndex: 1,
		Message:             "preparing to fetch mail...",
	}) {
		return ErrFetchInProgress
	}

	go func() {
		if err := e.fetchAccount(server, acct); err != nil {
			e.failRun(fmt.Sprintf("account %s: fetch failed: %v", user, err))
			return
		}
		e.progress.update(func(p *Progress) {
			p.Status = StatusCompleted
			p.Percentage = 100
			p.Message = "fetch complete for " + user
		})
		e.progress.scheduleReset(e.errorResetDelay)
	}()
	return nil
}

// StartAll begins a background fetch over every configured account.
// Returns ErrFetchInProgress when a fetch is already active.
func (e *Engine) StartAll() error {
	if !e.progress.begin(Progress{Message: "preparing to fetch mail..."}) {
		return ErrFetchInProgress
	}
	go e.fetchAll()
	return nil
}

// fetchAll runs the multi-account protocol: sequential accounts, one
// failing account never blocks the next.
func (e *Engine) fetchAll() {
	list := e.store.Accounts()
	if list.Server == "" || len(list.Emails) == 0 {
		e.failRun("no accounts configured")
		return
	}

	total := len(list.Emails)
	e.progress.update(func(p *Progress) { p.TotalAccounts = total })

	for i, acct := range list.Emails {
		e.progress.update(func(p *Progress) {
			p.CurrentAccount = acct.User
			p.CurrentAccountIndex = i + 1
			p.Percentage = percent(i+1, total)
		})
		if err := e.fetchAccount(list.Server, acct); err != nil {
			e.store.AddNotification(fmt.Sprintf("account %s: fetch failed: %v", acct.User, err), store.NotifyError)
			e.logger.Error("account fetch failed", "account", acct.User, "error", err)
			continue
		}
	}

	e.progress.update(func(p *Progress) {
		p.Status = StatusCompleted
		p.Message = "all mail fetched"
		p.Percentage = 100
	})
	e.progress.scheduleReset(e.completeResetDelay)
}

// fetchAccount runs the single-account protocol. Connection and
// listing failures are terminal for the account; failures on an
// individual message are logged and skipped.
func (e *Engine) fetchAccount(server string, acct store.Account) error {
	e.progress.update(func(p *Progress) {
		p.CurrentAccount = acct.User
		p.Message = "connecting to mail server " + server + "..."
	})

	sess, err := e.dial(server, acct.User, acct.Password)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	uids, err := sess.ListUIDs()
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	// Newest messages first.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}

	total := len(uids)
	e.progress.update(func(p *Progress) {
		p.TotalEmails = total
		p.Message = fmt.Sprintf("found %d messages, downloading...", total)
	})

	seen := e.dedupIndex(acct.User)

	for i, uid := range uids {
		e.progress.update(func(p *Progress) {
			p.CurrentEmailIndex = i + 1
			p.Percentage = percent(i+1, total)
			p.Message = fmt.Sprintf("processing message %d/%d...", i+1, total)
		})

		if err := e.ingestMessage(sess, acct.User, uid, seen); err != nil {
			e.progress.update(func(p *Progress) {
				p.Message = fmt.Sprintf("error processing message: %v", err)
			})
			e.store.AddNotification(fmt.Sprintf("account %s: error processing message: %v", acct.User, err), store.NotifyError)
			e.logger.Warn("skipping message", "account", acct.User, "uid", uid, "error", err)
			continue
		}
	}

	count := e.store.AccountMessageCount(acct.User)
	e.logger.Info("account fetch complete", "account", acct.User, "messages", count)
	return nil
}

// ingestMessage downloads, decodes, dedupes and persists one message.
func (e *Engine) ingestMessage(sess Session, account string, uid uint32, seen map[string]struct{}) error {
	raw, err := sess.FetchMessage(uid)
	if err != nil {
		return err
	}

	decoded, err := mime.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	key := dedupKey(decoded.Subject, decoded.Date)
	if _, ok := seen[key]; ok {
		e.progress.update(func(p *Progress) {
			p.Message = "skipping existing message: " + decoded.Subject
		})
		return nil
	}

	id := uuid.NewString()

	attachments := make([]store.Attachment, 0, len(decoded.Attachments))
	for _, a := range decoded.Attachments {
		path, err := e.store.SaveAttachment(id, a.Filename, a.Content)
		if err != nil {
			return err
		}
		attachments = append(attachments, store.Attachment{Filename: a.Filename, Path: path})
	}

	if err := e.store.SaveMessage(&store.Message{
		ID:          id,
		Account:     account,
		Subject:     decoded.Subject,
		From:        decoded.From,
		Date:        decoded.Date,
		Content:     decoded.Content,
		Attachments: attachments,
	}); err != nil {
		return err
	}

	seen[key] = struct{}{}
	return nil
}

// dedupIndex builds the (subject, date) set of already stored messages
// for one account. Rebuilt once per account fetch; equivalent to
// scanning the stored files for every incoming message.
func (e *Engine) dedupIndex(account string) map[string]struct{} {
	msgs := e.store.AccountMessages(account)
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		seen[dedupKey(m.Subject, m.Date)] = struct{}{}
	}
	return seen
}

func dedupKey(subject, date string) string {
	return subject + "\x00" + date
}

// failRun records a terminal error on the progress singleton and arms
// the auto-reset.
func (e *Engine) failRun(msg string) {
	e.store.AddNotification(msg, store.NotifyError)
	e.logger.Error("fetch run failed", "message", msg)
	e.progress.update(func(p *Progress) {
		p.Status = StatusError
		p.Message = msg
	})
	e.progress.scheduleReset(e.errorResetDelay)
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
