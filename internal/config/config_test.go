package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"sandbox_root": "/srv/pyguard/sandbox",
		"server": {"listen_addr": ":9090", "ws_path": "/ws/term"},
		"rate_limit": {"max_commands": 20, "window_seconds": 60},
		"executor": {"timeout_seconds": 30},
		"validator": {"patterns_path": "/srv/pyguard/patterns.json"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SandboxRoot != "/srv/pyguard/sandbox" {
		t.Errorf("SandboxRoot = %q", cfg.SandboxRoot)
	}
	if cfg.Server.Addr() != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if cfg.Server.TerminalPath() != "/ws/term" {
		t.Errorf("TerminalPath = %q", cfg.Server.TerminalPath())
	}
	if cfg.RateLimit.Max() != 20 || cfg.RateLimit.Window() != time.Minute {
		t.Errorf("rate limit = %d/%s", cfg.RateLimit.Max(), cfg.RateLimit.Window())
	}
	if cfg.Executor.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %s", cfg.Executor.Timeout())
	}
	if cfg.Validator.Patterns() != "/srv/pyguard/patterns.json" {
		t.Errorf("Patterns = %q", cfg.Validator.Patterns())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  listen_addr: ":7070"
history:
  enabled: true
  retention_days: 7
  retention_cron: "30 2 * * *"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != ":7070" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if !cfg.History.Enabled {
		t.Error("history not enabled")
	}
	if cfg.History.Retention() != 7*24*time.Hour {
		t.Errorf("Retention = %s", cfg.History.Retention())
	}
	if cfg.History.Cron() != "30 2 * * *" {
		t.Errorf("Cron = %q", cfg.History.Cron())
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if cfg.Server.TerminalPath() != "/ws/terminal" {
		t.Errorf("TerminalPath = %q", cfg.Server.TerminalPath())
	}
	if cfg.RateLimit.Max() != 10 || cfg.RateLimit.Window() != 5*time.Minute {
		t.Errorf("rate limit = %d/%s", cfg.RateLimit.Max(), cfg.RateLimit.Window())
	}
	if cfg.Executor.Timeout() != 60*time.Second || cfg.Executor.KillGrace() != 5*time.Second {
		t.Errorf("executor timings = %s/%s", cfg.Executor.Timeout(), cfg.Executor.KillGrace())
	}
	if cfg.Executor.CLI() != "pyguard" || cfg.Executor.Python() != "python3" || cfg.Executor.Entry() != "cli.py" {
		t.Errorf("executor names = %q %q %q", cfg.Executor.CLI(), cfg.Executor.Python(), cfg.Executor.Entry())
	}
	if cfg.Executor.Credential() != "ANTHROPIC_API_KEY" {
		t.Errorf("Credential = %q", cfg.Executor.Credential())
	}
	if !cfg.Validator.IsEnabled() {
		t.Error("validator disabled by default")
	}
	if cfg.History != nil {
		t.Error("history configured by default")
	}
	if cfg.Server.MaxRequestSize() != 1<<20 {
		t.Errorf("MaxRequestSize = %d", cfg.Server.MaxRequestSize())
	}
}

func TestHistoryRowCap(t *testing.T) {
	var nilHist *HistoryConfig
	if nilHist.RowCap() != 0 {
		t.Errorf("nil RowCap = %d, want 0", nilHist.RowCap())
	}
	if got := (&HistoryConfig{}).RowCap(); got != 0 {
		t.Errorf("default RowCap = %d, want 0", got)
	}
	if got := (&HistoryConfig{MaxRows: 5000}).RowCap(); got != 5000 {
		t.Errorf("RowCap = %d, want 5000", got)
	}
}

func TestServerMaxRequestSize(t *testing.T) {
	s := &ServerConfig{MaxRequestSizeBytes: 4096}
	if s.MaxRequestSize() != 4096 {
		t.Errorf("MaxRequestSize = %d, want 4096", s.MaxRequestSize())
	}
}

func TestHealthCheckToggles(t *testing.T) {
	var nilHealth *HealthConfig
	if !nilHealth.DBCheck() || !nilHealth.SandboxCheck() {
		t.Error("nil HealthConfig must enable all checks")
	}
	h := &HealthConfig{IncludeDB: true}
	if !h.DBCheck() {
		t.Error("explicit include_db ignored")
	}
	if h.SandboxCheck() {
		t.Error("omitted include_sandbox enabled on explicit config")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PYGUARD_SANDBOX_ROOT", "/env/sandbox")
	t.Setenv("PYGUARD_DATA_DIR", "/env/data")
	t.Setenv("PYGUARD_LISTEN_ADDR", ":6060")
	t.Setenv("PYGUARD_PATTERNS_PATH", "/env/patterns.json")

	cfg, err := Load(writeConfig(t, "config.json", `{
		"sandbox_root": "/file/sandbox",
		"server": {"listen_addr": ":9090"}
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SandboxRoot != "/env/sandbox" {
		t.Errorf("SandboxRoot = %q, env must win", cfg.SandboxRoot)
	}
	if cfg.DataDir != "/env/data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Server.Addr() != ":6060" {
		t.Errorf("Addr = %q, env must win", cfg.Server.Addr())
	}
	if cfg.Validator.Patterns() != "/env/patterns.json" {
		t.Errorf("Patterns = %q", cfg.Validator.Patterns())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative rate limit", `{"rate_limit": {"max_commands": -1}}`, "rate_limit.max_commands"},
		{"negative timeout", `{"executor": {"timeout_seconds": -5}}`, "executor.timeout_seconds"},
		{"blank extra command", `{"security": {"extra_allowed_commands": [" "]}}`, "extra_allowed_commands"},
		{"extra command with args", `{"security": {"extra_allowed_commands": ["ls -la"]}}`, "bare command name"},
		{"tracing without endpoint", `{"observability": {"tracing": {"enabled": true}}}`, "tracing.endpoint"},
		{"bad tracing protocol", `{"observability": {"tracing": {"enabled": true, "endpoint": "x:4317", "protocol": "udp"}}}`, "protocol"},
		{"malformed json", `{`, "parsing JSON"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.json", tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHistoryPath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/pyguard"}
	if got := cfg.HistoryPath(); got != "/var/lib/pyguard/history.db" {
		t.Errorf("HistoryPath = %q", got)
	}

	cfg.History = &HistoryConfig{Path: "/tmp/custom.db"}
	if got := cfg.HistoryPath(); got != "/tmp/custom.db" {
		t.Errorf("HistoryPath = %q, explicit path must win", got)
	}
}

func TestCredentialConfigured(t *testing.T) {
	cfg := &Config{}
	t.Setenv("ANTHROPIC_API_KEY", "")
	if cfg.CredentialConfigured() {
		t.Error("credential reported configured with empty env")
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	if !cfg.CredentialConfigured() {
		t.Error("credential reported missing with env set")
	}
}
