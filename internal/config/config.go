// Package config handles loading and managing mailharbor configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the mailharbor configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Server ServerConfig `toml:"server"`
	IMAP   IMAPConfig   `toml:"imap"`
	Fetch  FetchConfig  `toml:"fetch"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"`        // Listen address (default: 127.0.0.1)
	Port            int      `toml:"port"`             // HTTP server port (default: 8080)
	AccessKey       string   `toml:"access_key"`       // Bearer token; empty disables the check
	AllowInsecure   bool     `toml:"allow_insecure"`   // Allow non-loopback bind without an access key
	CORSOrigins     []string `toml:"cors_origins"`     // Allowed origins; empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"` // Allow credentialed CORS requests
	CORSMaxAge      int      `toml:"cors_max_age"`     // Preflight cache duration in seconds
}

// IMAPConfig holds IMAP connection configuration.
type IMAPConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"` // Per-operation network timeout (default: 30)
}

// FetchConfig holds ingestion behavior configuration.
type FetchConfig struct {
	ErrorResetSeconds    int    `toml:"error_reset_seconds"`    // Delay before progress resets to idle after an error
	CompleteResetSeconds int    `toml:"complete_reset_seconds"` // Delay before progress resets to idle after completion
	Schedule             string `toml:"schedule"`               // Cron expression for automatic fetch-all; empty disables
}

// DefaultHome returns the default mailharbor home directory.
// Respects MAILHARBOR_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILHARBOR_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailharbor"
	}
	return filepath.Join(home, ".mailharbor")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.mailharbor/config.toml).
// The config file is optional; defaults are used when it is absent.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		// Defaults
		Data: DataConfig{
			DataDir: homeDir,
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			Port:     8080,
		},
		IMAP: IMAPConfig{
			TimeoutSeconds: 30,
		},
		Fetch: FetchConfig{
			ErrorResetSeconds:    3,
			CompleteResetSeconds: 5,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)

	return cfg, nil
}

// EnsureDataDir creates the data directory tree if it does not exist.
func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.Data.DataDir, c.EmailsDir(), c.AttachmentsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EmailsDir returns the path to the per-account message directories.
func (c *Config) EmailsDir() string {
	return filepath.Join(c.Data.DataDir, "emails")
}

// AttachmentsDir returns the path to the attachment payload directory.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.Data.DataDir, "attachments")
}

// AccountsFile returns the path to the account list file.
func (c *Config) AccountsFile() string {
	return filepath.Join(c.Data.DataDir, "accounts.json")
}

// NotificationsFile returns the path to the notification log file.
func (c *Config) NotificationsFile() string {
	return filepath.Join(c.Data.DataDir, "notifications.json")
}

// IMAPTimeout returns the per-operation IMAP timeout.
func (c *Config) IMAPTimeout() time.Duration {
	if c.IMAP.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IMAP.TimeoutSeconds) * time.Second
}

// ErrorResetDelay returns the progress auto-reset delay after an error.
func (c *Config) ErrorResetDelay() time.Duration {
	if c.Fetch.ErrorResetSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Fetch.ErrorResetSeconds) * time.Second
}

// CompleteResetDelay returns the progress auto-reset delay after completion.
func (c *Config) CompleteResetDelay() time.Duration {
	if c.Fetch.CompleteResetSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Fetch.CompleteResetSeconds) * time.Second
}

// ValidateSecure rejects binding to a non-loopback address without an
// access key, unless AllowInsecure is set.
func (s *ServerConfig) ValidateSecure() error {
	if s.AccessKey != "" || s.AllowInsecure {
		return nil
	}
	addr := s.BindAddr
	if addr == "" || addr == "localhost" {
		return nil
	}
	if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("refusing to bind to %q without an access key; set [server] access_key or allow_insecure = true", addr)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
