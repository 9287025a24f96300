// Package config handles loading and validating PyGuard Terminal configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for PyGuard Terminal.
type Config struct {
	SandboxRoot   string               `json:"sandbox_root,omitempty" yaml:"sandbox_root,omitempty"` // Working directory for executed commands. Default: ~/.pyguard/sandbox. Override: PYGUARD_SANDBOX_ROOT env var.
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`         // Persistent data directory. Default: ~/.pyguard/data. Override: PYGUARD_DATA_DIR env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	Security      SecurityConfig       `json:"security" yaml:"security"`
	RateLimit     RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	Executor      ExecutorConfig       `json:"executor" yaml:"executor"`
	Validator     *ValidatorConfig     `json:"validator,omitempty" yaml:"validator,omitempty"`         // nil = validator enabled with defaults
	History       *HistoryConfig       `json:"history,omitempty" yaml:"history,omitempty"`             // nil = command history disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	ListenAddr          string   `json:"listen_addr" yaml:"listen_addr"`                             // Default: ":8080".
	WSPath              string   `json:"ws_path" yaml:"ws_path"`                                     // Default: "/ws/terminal".
	AllowedOrigins      []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"` // Browser origins accepted for WebSocket upgrades. Empty = same-origin only.
	EnableDocs          bool     `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64    `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// TerminalPath returns the WebSocket path with a default of "/ws/terminal".
func (s *ServerConfig) TerminalPath() string {
	if s.WSPath != "" {
		return s.WSPath
	}
	return "/ws/terminal"
}

// MaxRequestSize returns the request size limit with a default of 1 MB.
func (s *ServerConfig) MaxRequestSize() int64 {
	if s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 1 << 20
}

// SecurityConfig configures command admission.
type SecurityConfig struct {
	ExtraAllowedCommands []string `json:"extra_allowed_commands,omitempty" yaml:"extra_allowed_commands,omitempty"` // Added to the built-in allow list.
}

// RateLimitConfig configures per-connection rate limiting.
type RateLimitConfig struct {
	MaxCommands   int `json:"max_commands" yaml:"max_commands"`     // Default: 10.
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"` // Default: 300.
}

// Max returns the command budget with a default of 10.
func (r *RateLimitConfig) Max() int {
	if r != nil && r.MaxCommands > 0 {
		return r.MaxCommands
	}
	return 10
}

// Window returns the sliding window with a default of 5m.
func (r *RateLimitConfig) Window() time.Duration {
	if r != nil && r.WindowSeconds > 0 {
		return time.Duration(r.WindowSeconds) * time.Second
	}
	return 5 * time.Minute
}

// ExecutorConfig configures the process execution engine.
type ExecutorConfig struct {
	TimeoutSeconds   int    `json:"timeout_seconds" yaml:"timeout_seconds"`       // Default: 60.
	KillGraceSeconds int    `json:"kill_grace_seconds" yaml:"kill_grace_seconds"` // Default: 5.
	CLIName          string `json:"cli_name" yaml:"cli_name"`                     // Default: "pyguard".
	Interpreter      string `json:"interpreter" yaml:"interpreter"`               // Default: "python3".
	Entrypoint       string `json:"entrypoint" yaml:"entrypoint"`                 // Default: "cli.py".
	CredentialEnv    string `json:"credential_env" yaml:"credential_env"`         // Default: "ANTHROPIC_API_KEY".
}

// Timeout returns the execution timeout with a default of 60s.
func (e *ExecutorConfig) Timeout() time.Duration {
	if e != nil && e.TimeoutSeconds > 0 {
		return time.Duration(e.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// KillGrace returns the SIGTERM-to-SIGKILL grace with a default of 5s.
func (e *ExecutorConfig) KillGrace() time.Duration {
	if e != nil && e.KillGraceSeconds > 0 {
		return time.Duration(e.KillGraceSeconds) * time.Second
	}
	return 5 * time.Second
}

// CLI returns the CLI alias with a default of "pyguard".
func (e *ExecutorConfig) CLI() string {
	if e != nil && e.CLIName != "" {
		return e.CLIName
	}
	return "pyguard"
}

// Python returns the interpreter with a default of "python3".
func (e *ExecutorConfig) Python() string {
	if e != nil && e.Interpreter != "" {
		return e.Interpreter
	}
	return "python3"
}

// Entry returns the CLI entrypoint with a default of "cli.py".
func (e *ExecutorConfig) Entry() string {
	if e != nil && e.Entrypoint != "" {
		return e.Entrypoint
	}
	return "cli.py"
}

// Credential returns the credential env var name with a default of "ANTHROPIC_API_KEY".
func (e *ExecutorConfig) Credential() string {
	if e != nil && e.CredentialEnv != "" {
		return e.CredentialEnv
	}
	return "ANTHROPIC_API_KEY"
}

// ValidatorConfig configures the pre-execution code validator.
// When nil, validation runs with defaults and no pattern database.
type ValidatorConfig struct {
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"` // Default: true.
	PatternsPath string `json:"patterns_path" yaml:"patterns_path"`         // Path to the bug pattern JSON database. Empty = heuristics only.
}

// IsEnabled returns whether pre-execution validation runs. Default: true.
func (v *ValidatorConfig) IsEnabled() bool {
	if v == nil || v.Enabled == nil {
		return true
	}
	return *v.Enabled
}

// Patterns returns the pattern database path, empty when unset.
func (v *ValidatorConfig) Patterns() string {
	if v == nil {
		return ""
	}
	return v.PatternsPath
}

// HistoryConfig configures the SQLite command history store.
// When nil, history recording is disabled.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`         // Database file path. Default: derived from data dir.
	JournalMode   string `json:"journal_mode" yaml:"journal_mode"`             // "wal" (default), "delete", "truncate", etc.
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`         // Default: 30.
	RetentionCron string `json:"retention_cron" yaml:"retention_cron"`         // Cron spec for the purge job. Default: "0 3 * * *".
	MaxRows       int    `json:"max_rows,omitempty" yaml:"max_rows,omitempty"` // Hard row cap per purge. 0 = unlimited.
}

// Retention returns the retention window with a default of 30 days.
func (h *HistoryConfig) Retention() time.Duration {
	if h != nil && h.RetentionDays > 0 {
		return time.Duration(h.RetentionDays) * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// Cron returns the purge schedule with a default of daily at 03:00.
func (h *HistoryConfig) Cron() string {
	if h != nil && h.RetentionCron != "" {
		return h.RetentionCron
	}
	return "0 3 * * *"
}

// RowCap returns the hard row cap enforced per purge, 0 when uncapped.
func (h *HistoryConfig) RowCap() int {
	if h != nil && h.MaxRows > 0 {
		return h.MaxRows
	}
	return 0
}

// Journal returns the SQLite journal mode with a default of "wal".
func (h *HistoryConfig) Journal() string {
	if h != nil && h.JournalMode != "" {
		return h.JournalMode
	}
	return "wal"
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "pyguard-terminal"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
// When nil, all checks are registered.
type HealthConfig struct {
	IncludeDB      bool `json:"include_db" yaml:"include_db"`
	IncludeSandbox bool `json:"include_sandbox" yaml:"include_sandbox"`
}

// DBCheck reports whether the history database readiness check is registered.
func (h *HealthConfig) DBCheck() bool {
	if h == nil {
		return true
	}
	return h.IncludeDB
}

// SandboxCheck reports whether the sandbox directory readiness check is registered.
func (h *HealthConfig) SandboxCheck() bool {
	if h == nil {
		return true
	}
	return h.IncludeSandbox
}

// DefaultConfigPath returns the default config file path (~/.pyguard/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/pyguard.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".pyguard", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated Config with all defaults applied, used when no
// config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if envRoot := os.Getenv("PYGUARD_SANDBOX_ROOT"); envRoot != "" {
		c.SandboxRoot = envRoot
	}
	if envDD := os.Getenv("PYGUARD_DATA_DIR"); envDD != "" {
		c.DataDir = envDD
	}
	if envAddr := os.Getenv("PYGUARD_LISTEN_ADDR"); envAddr != "" {
		c.Server.ListenAddr = envAddr
	}
	if envPath := os.Getenv("PYGUARD_PATTERNS_PATH"); envPath != "" {
		if c.Validator == nil {
			c.Validator = &ValidatorConfig{}
		}
		c.Validator.PatternsPath = envPath
	}
	if envTimeout := os.Getenv("PYGUARD_EXEC_TIMEOUT_SECONDS"); envTimeout != "" {
		if n, err := strconv.Atoi(envTimeout); err == nil && n > 0 {
			c.Executor.TimeoutSeconds = n
		}
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedSandboxRoot returns the sandbox root, resolving ~ if needed.
func (c *Config) ResolvedSandboxRoot() string {
	if c.SandboxRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "sandbox"
		}
		return filepath.Join(home, ".pyguard", "sandbox")
	}
	resolved, err := resolvePath(c.SandboxRoot)
	if err != nil {
		return c.SandboxRoot
	}
	return resolved
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".pyguard", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// HistoryPath returns the SQLite history database path.
func (c *Config) HistoryPath() string {
	if c.History != nil && c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "history.db")
}

// CredentialConfigured reports whether the external API credential is set.
func (c *Config) CredentialConfigured() bool {
	return os.Getenv(c.Executor.Credential()) != ""
}

func (c *Config) validate() error {
	if c.RateLimit.MaxCommands < 0 {
		return fmt.Errorf("rate_limit.max_commands must not be negative")
	}
	if c.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("rate_limit.window_seconds must not be negative")
	}
	if c.Executor.TimeoutSeconds < 0 {
		return fmt.Errorf("executor.timeout_seconds must not be negative")
	}
	if c.Executor.KillGraceSeconds < 0 {
		return fmt.Errorf("executor.kill_grace_seconds must not be negative")
	}
	for _, name := range c.Security.ExtraAllowedCommands {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("security.extra_allowed_commands must not contain blank entries")
		}
		if strings.ContainsAny(name, " \t") {
			return fmt.Errorf("security.extra_allowed_commands entry %q must be a bare command name", name)
		}
	}
	if c.History != nil && c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative")
	}
	if t := c.Observability; t != nil && t.Tracing != nil && t.Tracing.Enabled {
		if t.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", t.Tracing.Protocol)
		}
	}
	return nil
}
