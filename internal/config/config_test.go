package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load with missing file = %v, want nil (defaults)", err)
	}

	if cfg.Server.BindAddr != "127.0.0.1" {
		t.Errorf("BindAddr = %q, want 127.0.0.1", cfg.Server.BindAddr)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.IMAPTimeout() != 30*time.Second {
		t.Errorf("IMAPTimeout = %v, want 30s", cfg.IMAPTimeout())
	}
	if cfg.ErrorResetDelay() != 3*time.Second {
		t.Errorf("ErrorResetDelay = %v, want 3s", cfg.ErrorResetDelay())
	}
	if cfg.CompleteResetDelay() != 5*time.Second {
		t.Errorf("CompleteResetDelay = %v, want 5s", cfg.CompleteResetDelay())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[data]
data_dir = "/tmp/mailharbor-test"

[server]
bind_addr = "0.0.0.0"
port = 9090
access_key = "sekrit"

[imap]
timeout_seconds = 10

[fetch]
error_reset_seconds = 1
complete_reset_seconds = 2
schedule = "0 2 * * *"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load = %v", err)
	}

	if cfg.Data.DataDir != "/tmp/mailharbor-test" {
		t.Errorf("DataDir = %q", cfg.Data.DataDir)
	}
	if cfg.Server.BindAddr != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.AccessKey != "sekrit" {
		t.Errorf("AccessKey = %q", cfg.Server.AccessKey)
	}
	if cfg.IMAPTimeout() != 10*time.Second {
		t.Errorf("IMAPTimeout = %v", cfg.IMAPTimeout())
	}
	if cfg.ErrorResetDelay() != time.Second || cfg.CompleteResetDelay() != 2*time.Second {
		t.Errorf("reset delays = %v / %v", cfg.ErrorResetDelay(), cfg.CompleteResetDelay())
	}
	if cfg.Fetch.Schedule != "0 2 * * *" {
		t.Errorf("Schedule = %q", cfg.Fetch.Schedule)
	}
}

func TestDataDirPaths(t *testing.T) {
	cfg := &Config{}
	cfg.Data.DataDir = "/data"

	if got := cfg.EmailsDir(); got != filepath.Join("/data", "emails") {
		t.Errorf("EmailsDir = %q", got)
	}
	if got := cfg.AttachmentsDir(); got != filepath.Join("/data", "attachments") {
		t.Errorf("AttachmentsDir = %q", got)
	}
	if got := cfg.AccountsFile(); got != filepath.Join("/data", "accounts.json") {
		t.Errorf("AccountsFile = %q", got)
	}
	if got := cfg.NotificationsFile(); got != filepath.Join("/data", "notifications.json") {
		t.Errorf("NotificationsFile = %q", got)
	}
}

func TestValidateSecure(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"loopback no key", ServerConfig{BindAddr: "127.0.0.1"}, false},
		{"empty addr no key", ServerConfig{}, false},
		{"localhost no key", ServerConfig{BindAddr: "localhost"}, false},
		{"public no key", ServerConfig{BindAddr: "0.0.0.0"}, true},
		{"public with key", ServerConfig{BindAddr: "0.0.0.0", AccessKey: "k"}, false},
		{"public allow insecure", ServerConfig{BindAddr: "0.0.0.0", AllowInsecure: true}, false},
		{"ipv6 loopback no key", ServerConfig{BindAddr: "::1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateSecure()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecure() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultHomeRespectsEnv(t *testing.T) {
	t.Setenv("MAILHARBOR_HOME", "/custom/home")
	if got := DefaultHome(); got != "/custom/home" {
		t.Errorf("DefaultHome = %q, want /custom/home", got)
	}
}

func TestEnsureDataDir(t *testing.T) {
	cfg := &Config{}
	cfg.Data.DataDir = filepath.Join(t.TempDir(), "data")

	if err := cfg.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir = %v", err)
	}
	for _, dir := range []string{cfg.Data.DataDir, cfg.EmailsDir(), cfg.AttachmentsDir()} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}
