package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8645 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8645)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendSQLite)
	}
	if cfg.Governance.QuorumDivisor != 10 {
		t.Errorf("Governance.QuorumDivisor = %d, want 10", cfg.Governance.QuorumDivisor)
	}
	if cfg.Emergency.MinPayoutVotes != 3 {
		t.Errorf("Emergency.MinPayoutVotes = %d, want 3", cfg.Emergency.MinPayoutVotes)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("CITYLEDGER_HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_TOML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CITYLEDGER_HOME", home)

	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
port = 9000

[storage]
backend = "badger"

[governance]
total_supply = 5000
voting_window = "48h"

[emergency]
min_payout_votes = 5
`), 0o600))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, uint64(5000), cfg.Governance.TotalSupply)
	assert.Equal(t, uint32(5), cfg.Emergency.MinPayoutVotes)
	// Untouched keys keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.API.Host)

	gov, rep := cfg.GovernanceSettings()
	assert.Equal(t, 48*time.Hour, gov.VotingWindow)
	assert.Equal(t, uint64(500), gov.Quorum())
	assert.Equal(t, uint64(100), rep.Baseline)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("CITYLEDGER_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "cityledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  admin: city-hall
  oracle: sensor-net
agents:
  initial_performance: 60
logging:
  level: debug
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "city-hall", cfg.Roles.Admin)
	assert.Equal(t, "sensor-net", cfg.Roles.Oracle)
	assert.Equal(t, uint32(60), cfg.Agents.InitialPerformance)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CITYLEDGER_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(`
[api]
port = 9000
`), 0o600))

	t.Setenv("CITYLEDGER_API_PORT", "9100")
	t.Setenv("CITYLEDGER_GOVERNANCE_TOTAL_SUPPLY", "42")
	t.Setenv("CITYLEDGER_STORAGE_BACKEND", "memory")
	t.Setenv("CITYLEDGER_TELEMETRY_PROMETHEUS", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.API.Port)
	assert.Equal(t, uint64(42), cfg.Governance.TotalSupply)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.False(t, cfg.Telemetry.Prometheus)
}

func TestLoadConfig_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\nport = "), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, "unknown storage.backend"},
		{"no dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir is required"},
		{"no admin", func(c *Config) { c.Roles.Admin = "" }, "roles.admin"},
		{"no oracle", func(c *Config) { c.Roles.Oracle = "" }, "roles.oracle"},
		{"zero quorum divisor", func(c *Config) { c.Governance.QuorumDivisor = 0 }, "quorum_divisor"},
		{"zero power divisor", func(c *Config) { c.Governance.VotingPowerDivisor = 0 }, "voting_power_divisor"},
		{"zero payout votes", func(c *Config) { c.Emergency.MinPayoutVotes = 0 }, "min_payout_votes"},
		{"threshold above 100", func(c *Config) { c.Emergency.VerifyThreshold = 101 }, "verify_threshold"},
		{"bad port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"bad window", func(c *Config) { c.Governance.VotingWindow = "a week" }, "voting_window"},
		{"negative window", func(c *Config) { c.Governance.VotingWindow = "-1h" }, "voting_window must be positive"},
		{"zero window", func(c *Config) { c.Governance.VotingWindow = "0s" }, "voting_window must be positive"},
		{"zero health interval", func(c *Config) { c.Telemetry.HealthInterval = "0" }, "health_interval must be positive"},
		{"negative auto resolve", func(c *Config) { c.Governance.AutoResolveInterval = "-5m" }, "auto_resolve_interval must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q lacks %q", err, tt.want)
		})
	}

	cfg := DefaultConfig()
	cfg.Storage = StorageConfig{Backend: BackendMemory}
	assert.NoError(t, cfg.Validate())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Governance.TotalSupply = 777
	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), got.Governance.TotalSupply)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"90s", 90 * time.Second},
		{"2h", 2 * time.Hour},
		{"", time.Minute},        // Fallback
		{"garbage", time.Minute}, // Fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Minute); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
