package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tokligence/tokligence-relay/internal/config"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root         string
	Environment  string
	ListenAddr   string
	Endpoint     string
	LogLevel     string
	LedgerPath   string
	LedgerDSN    string
	SettingsPath string
	Force        bool
}

// Init scaffolds config/setting.ini and config/<env>/relay.ini.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	relayPath := filepath.Join(opts.Root, "config", opts.Environment, "relay.ini")
	return writeFile(relayPath, relayTemplate(opts), opts.Force)
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = config.DefaultListenAddr
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = config.DefaultEndpoint
	}
	if strings.TrimSpace(opts.LogLevel) == "" {
		opts.LogLevel = "info"
	}
	if strings.TrimSpace(opts.LedgerPath) == "" {
		opts.LedgerPath = config.DefaultLedgerPath()
	}
	if strings.TrimSpace(opts.SettingsPath) == "" {
		opts.SettingsPath = config.DefaultSettingsPath()
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Tokligence Relay settings
environment=%s
log_level=%s
`, opts.Environment, opts.LogLevel)
}

func relayTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
listen_addr=%s
endpoint=%s
# Separate log files (CLI and daemon). Dash '-' disables file output.
log_file_cli=logs/relay-cli.log
log_file=logs/relayd.log
ledger_path=%s
ledger_dsn=%s
ledger_async=false
settings_path=%s
# providers_file=config/providers.yaml
# 0 disables the upstream timeout; accepts seconds or Go durations.
upstream_timeout=0
read_buffer_bytes=%d
health_probe_providers=false
# Per-client relay requests per second; 0 disables limiting.
rate_limit_rps=0
rate_limit_burst=0
`, opts.Environment, opts.ListenAddr, opts.Endpoint, opts.LedgerPath, opts.LedgerDSN, opts.SettingsPath, config.DefaultReadBufferBytes)
}

// Validate ensures required fields are sane without modifying files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	if strings.ContainsAny(opts.Environment, `/\ `) {
		return errors.New("environment must be a single path segment")
	}
	u, err := url.Parse(opts.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) url, got %q", opts.Endpoint)
	}
	return nil
}
