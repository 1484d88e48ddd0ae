package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/relay.ini"
	envPrefix        = "TOKLIGENCE_RELAY_"
)

// Defaults shared by relayd and the relay CLI.
const (
	DefaultListenAddr      = ":8090"
	DefaultEndpoint        = "http://127.0.0.1:8090"
	DefaultReadBufferBytes = 32 * 1024
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// RelayConfig describes runtime options for relayd and the relay CLI.
type RelayConfig struct {
	Environment string

	// ListenAddr is where relayd serves; Endpoint is where the CLI finds it.
	ListenAddr string
	Endpoint   string

	LogFile    string
	LogFileCLI string
	LogLevel   string

	LedgerPath  string
	LedgerDSN   string
	LedgerAsync bool

	SettingsPath  string
	ProvidersFile string

	// UpstreamTimeout bounds each relayed HTTP call; zero means none.
	UpstreamTimeout      time.Duration
	ShutdownTimeout      time.Duration
	ReadBufferBytes      int
	HealthProbeProviders bool

	// RateLimitRPS caps relay requests per client IP; zero disables it.
	RateLimitRPS   float64
	RateLimitBurst float64
}

// LoadRelayConfig reads config/setting.ini, then config/<env>/relay.ini, then
// TOKLIGENCE_RELAY_<KEY> environment variables, later sources winning.
func LoadRelayConfig(root string) (RelayConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return RelayConfig{}, err
	}
	if env := os.Getenv(envPrefix + "ENVIRONMENT"); env != "" {
		s.Environment = env
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return RelayConfig{}, err
		}
		envValues = map[string]string{}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	get := func(key string) string {
		return firstNonEmpty(os.Getenv(envPrefix+strings.ToUpper(key)), merged[key])
	}

	cfg := RelayConfig{
		Environment:          s.Environment,
		ListenAddr:           firstNonEmpty(get("listen_addr"), DefaultListenAddr),
		Endpoint:             strings.TrimRight(firstNonEmpty(get("endpoint"), DefaultEndpoint), "/"),
		LogFile:              get("log_file"),
		LogLevel:             firstNonEmpty(get("log_level"), "info"),
		LedgerPath:           firstNonEmpty(get("ledger_path"), DefaultLedgerPath()),
		LedgerDSN:            get("ledger_dsn"),
		LedgerAsync:          parseBool(get("ledger_async")),
		SettingsPath:         firstNonEmpty(get("settings_path"), DefaultSettingsPath()),
		ProvidersFile:        get("providers_file"),
		ReadBufferBytes:      parseOptionalInt(get("read_buffer_bytes"), DefaultReadBufferBytes),
		HealthProbeProviders: parseBool(get("health_probe_providers")),
	}
	cfg.LogFileCLI = firstNonEmpty(get("log_file_cli"), cfg.LogFile)

	if cfg.UpstreamTimeout, err = parseOptionalDuration("upstream_timeout", get("upstream_timeout"), 0); err != nil {
		return RelayConfig{}, err
	}
	if cfg.ShutdownTimeout, err = parseOptionalDuration("shutdown_timeout", get("shutdown_timeout"), 10*time.Second); err != nil {
		return RelayConfig{}, err
	}
	if cfg.RateLimitRPS, err = parseOptionalFloat("rate_limit_rps", get("rate_limit_rps")); err != nil {
		return RelayConfig{}, err
	}
	if cfg.RateLimitBurst, err = parseOptionalFloat("rate_limit_burst", get("rate_limit_burst")); err != nil {
		return RelayConfig{}, err
	}
	if cfg.ReadBufferBytes <= 0 {
		return RelayConfig{}, fmt.Errorf("read_buffer_bytes must be positive, got %d", cfg.ReadBufferBytes)
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func parseOptionalFloat(key, v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}

// parseOptionalDuration accepts Go durations ("90s") or plain seconds ("90").
func parseOptionalDuration(key, v string, fallback time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".tokligence", "relay")
}

// DefaultLedgerPath returns the fallback ledger location under the user's home directory.
func DefaultLedgerPath() string {
	return filepath.Join(dataDir(), "ledger.db")
}

// DefaultSettingsPath returns the fallback settings database path.
func DefaultSettingsPath() string {
	return filepath.Join(dataDir(), "settings.db")
}
