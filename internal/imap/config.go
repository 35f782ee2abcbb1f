// Package imap provides a timeout-bounded IMAP mailbox session.
package imap

import (
	"fmt"
	"net"
	"strconv"
)

// Config holds connection settings for an IMAP server.
type Config struct {
	Host string
	Port int // 0 means the implicit-TLS default (993)
}

// Addr returns the "host:port" string.
func (c *Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// ParseServer builds a Config from a server string that is either a
// bare hostname or "host:port".
func ParseServer(server string) (*Config, error) {
	if server == "" {
		return nil, fmt.Errorf("IMAP server must not be empty")
	}
	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		return &Config{Host: server}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q in server %q: %w", portStr, server, err)
	}
	return &Config{Host: host, Port: port}, nil
}
