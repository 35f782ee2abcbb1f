package imap

import (
	"fmt"
	"log/slog"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Client is an authenticated IMAP session over implicit TLS. Every
// network operation is bounded by the configured timeout so a hung
// server cannot stall an ingestion run indefinitely.
type Client struct {
	conn    *imapclient.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Dialer creates IMAP sessions with a shared timeout and logger.
type Dialer struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dial connects to server (hostname or "host:port"), authenticates
// with the given credentials, and returns a ready session.
func (d *Dialer) Dial(server, user, password string) (*Client, error) {
	cfg, err := ParseServer(server)
	if err != nil {
		return nil, err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := cfg.Addr()
	logger.Debug("connecting to IMAP server", "addr", addr, "user", user)

	conn, err := dialTLS(addr, timeout)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, timeout: timeout, logger: logger}
	if err := c.do("login", func() error {
		return c.conn.Login(user, password).Wait()
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("IMAP login %s: %w", user, err)
	}

	logger.Debug("connected and authenticated", "user", user)
	return c, nil
}

// dialTLS dials with a hard deadline. A connection that arrives after
// the deadline is closed by the drainer goroutine.
func dialTLS(addr string, timeout time.Duration) (*imapclient.Client, error) {
	type result struct {
		conn *imapclient.Client
		err  error
	}
	resc := make(chan result, 1)
	go func() {
		conn, err := imapclient.DialTLS(addr, &imapclient.Options{})
		resc <- result{conn, err}
	}()

	select {
	case res := <-resc:
		if res.err != nil {
			return nil, fmt.Errorf("dial IMAP %s: %w", addr, res.err)
		}
		return res.conn, nil
	case <-time.After(timeout):
		go func() {
			if res := <-resc; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial IMAP %s: timed out after %s", addr, timeout)
	}
}

// do runs one IMAP command with the session timeout. The abandoned
// command keeps running in its goroutine on timeout; callers are
// expected to Close the session after any error.
func (c *Client) do(op string, fn func() error) error {
	errc := make(chan error, 1)
	go func() { errc <- fn() }()
	select {
	case err := <-errc:
		return err
	case <-time.After(c.timeout):
		return fmt.Errorf("%s: timed out after %s", op, c.timeout)
	}
}

// ListUIDs selects INBOX and returns the UIDs of every message in it,
// in mailbox order (oldest first).
func (c *Client) ListUIDs() ([]uint32, error) {
	if err := c.do("select INBOX", func() error {
		_, err := c.conn.Select("INBOX", nil).Wait()
		return err
	}); err != nil {
		return nil, fmt.Errorf("SELECT INBOX: %w", err)
	}

	var uids []uint32
	if err := c.do("search", func() error {
		data, err := c.conn.UIDSearch(&imap.SearchCriteria{}, &imap.SearchOptions{ReturnAll: true}).Wait()
		if err != nil {
			return err
		}
		uidSet, ok := data.All.(imap.UIDSet)
		if !ok {
			return nil
		}
		nums, _ := uidSet.Nums()
		for _, uid := range nums {
			uids = append(uids, uint32(uid))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("UID SEARCH: %w", err)
	}
	return uids, nil
}

// FetchMessage retrieves the full raw body of one message by UID.
func (c *Client) FetchMessage(uid uint32) ([]byte, error) {
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}}, // empty section = entire message
	}
	var uidSet imap.UIDSet
	uidSet.AddNum(imap.UID(uid))

	var raw []byte
	if err := c.do("fetch", func() error {
		msgs, err := c.conn.Fetch(uidSet, fetchOpts).Collect()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if len(msg.BodySection) > 0 {
				raw = msg.BodySection[0].Bytes
				return nil
			}
		}
		return fmt.Errorf("no body returned")
	}); err != nil {
		return nil, fmt.Errorf("UID FETCH %d: %w", uid, err)
	}
	return raw, nil
}

// Close logs out and disconnects. Falls back to a hard close when the
// server does not answer the LOGOUT in time.
func (c *Client) Close() error {
	err := c.do("logout", func() error {
		return c.conn.Logout().Wait()
	})
	if err != nil {
		c.logger.Debug("logout failed, closing connection", "error", err)
		return c.conn.Close()
	}
	return nil
}
