package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadRelayConfigLayering(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "setting.ini"),
		"environment=dev\nlog_level=debug\nlog_file=/tmp/base.log\nlisten_addr=:7000\n")
	writeFile(t, filepath.Join(tmp, "config", "dev", "relay.ini"),
		"[relay]\nlisten_addr=:9090\nledger_path=/tmp/custom-ledger.db\nendpoint=http://relay.internal:9090/\nupstream_timeout=90s\nledger_async=true\n; comment\n")
	t.Setenv("TOKLIGENCE_RELAY_READ_BUFFER_BYTES", "4096")
	t.Setenv("TOKLIGENCE_RELAY_LEDGER_DSN", "postgres://relay@localhost/relay")

	cfg, err := LoadRelayConfig(tmp)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected env file to override base listen addr, got %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from base config, got %s", cfg.LogLevel)
	}
	if cfg.LogFile != "/tmp/base.log" || cfg.LogFileCLI != "/tmp/base.log" {
		t.Fatalf("unexpected log files %s %s", cfg.LogFile, cfg.LogFileCLI)
	}
	if cfg.LedgerPath != "/tmp/custom-ledger.db" {
		t.Fatalf("unexpected ledger path %s", cfg.LedgerPath)
	}
	if cfg.Endpoint != "http://relay.internal:9090" {
		t.Fatalf("unexpected endpoint %s", cfg.Endpoint)
	}
	if cfg.UpstreamTimeout != 90*time.Second {
		t.Fatalf("unexpected upstream timeout %v", cfg.UpstreamTimeout)
	}
	if !cfg.LedgerAsync {
		t.Fatalf("expected async ledger")
	}
	if cfg.ReadBufferBytes != 4096 {
		t.Fatalf("expected env override for read buffer, got %d", cfg.ReadBufferBytes)
	}
	if cfg.LedgerDSN != "postgres://relay@localhost/relay" {
		t.Fatalf("unexpected dsn %s", cfg.LedgerDSN)
	}
}

func TestLoadRelayConfigDefaults(t *testing.T) {
	cfg, err := LoadRelayConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("unexpected environment %s", cfg.Environment)
	}
	if cfg.ListenAddr != DefaultListenAddr || cfg.Endpoint != DefaultEndpoint {
		t.Fatalf("unexpected addresses %s %s", cfg.ListenAddr, cfg.Endpoint)
	}
	if cfg.UpstreamTimeout != 0 {
		t.Fatalf("expected no upstream timeout by default, got %v", cfg.UpstreamTimeout)
	}
	if cfg.ReadBufferBytes != DefaultReadBufferBytes {
		t.Fatalf("unexpected read buffer %d", cfg.ReadBufferBytes)
	}
	if cfg.RateLimitRPS != 0 {
		t.Fatalf("expected rate limiting off by default, got %v", cfg.RateLimitRPS)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", cfg.ShutdownTimeout)
	}
	if filepath.Base(cfg.LedgerPath) != "ledger.db" || filepath.Base(cfg.SettingsPath) != "settings.db" {
		t.Fatalf("unexpected default paths %s %s", cfg.LedgerPath, cfg.SettingsPath)
	}
}

func TestLoadRelayConfigEnvironmentSwitch(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "setting.ini"), "environment=dev\n")
	writeFile(t, filepath.Join(tmp, "config", "dev", "relay.ini"), "listen_addr=:1111\n")
	writeFile(t, filepath.Join(tmp, "config", "live", "relay.ini"), "listen_addr=:2222\n")
	t.Setenv("TOKLIGENCE_RELAY_ENVIRONMENT", "live")

	cfg, err := LoadRelayConfig(tmp)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Environment != "live" || cfg.ListenAddr != ":2222" {
		t.Fatalf("expected live config, got %s %s", cfg.Environment, cfg.ListenAddr)
	}
}

func TestLoadRelayConfigRejectsBadValues(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "dev", "relay.ini"), "upstream_timeout=soon\n")
	if _, err := LoadRelayConfig(tmp); err == nil {
		t.Fatalf("expected error for invalid duration")
	}

	tmp = t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "dev", "relay.ini"), "read_buffer_bytes=-1\n")
	if _, err := LoadRelayConfig(tmp); err == nil {
		t.Fatalf("expected error for negative buffer")
	}

	tmp = t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "dev", "relay.ini"), "rate_limit_rps=fast\n")
	if _, err := LoadRelayConfig(tmp); err == nil {
		t.Fatalf("expected error for invalid rate limit")
	}
}

func TestLoadRelayConfigRateLimit(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "dev", "relay.ini"), "rate_limit_rps=2.5\nrate_limit_burst=10\n")
	cfg, err := LoadRelayConfig(tmp)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected rate limit %v/%v", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestParseOptionalDurationSeconds(t *testing.T) {
	d, err := parseOptionalDuration("k", "45", 0)
	if err != nil || d != 45*time.Second {
		t.Fatalf("unexpected %v %v", d, err)
	}
}
