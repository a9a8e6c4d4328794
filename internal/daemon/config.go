// Package daemon manages the cityledger daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tutu-network/cityledger/internal/app/agents"
	"github.com/tutu-network/cityledger/internal/app/emergency"
	"github.com/tutu-network/cityledger/internal/app/governance"
	"github.com/tutu-network/cityledger/internal/app/reputation"
	"github.com/tutu-network/cityledger/internal/health"
	"github.com/tutu-network/cityledger/internal/infra/oracle"
)

// EnvPrefix prefixes every environment override, e.g. CITYLEDGER_API_PORT.
const EnvPrefix = "cityledger"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds all daemon configuration.
type Config struct {
	Node       NodeConfig       `toml:"node"       yaml:"node"`
	API        APIConfig        `toml:"api"        yaml:"api"`
	Storage    StorageConfig    `toml:"storage"    yaml:"storage"`
	Roles      RolesConfig      `toml:"roles"      yaml:"roles"`
	Governance GovernanceConfig `toml:"governance" yaml:"governance"`
	Emergency  EmergencyConfig  `toml:"emergency"  yaml:"emergency"`
	Agents     AgentsConfig     `toml:"agents"     yaml:"agents"`
	Logging    LoggingConfig    `toml:"logging"    yaml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"  yaml:"telemetry"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID string `toml:"id" yaml:"id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// StorageConfig selects the ledger store.
type StorageConfig struct {
	Backend string `toml:"backend" yaml:"backend"` // sqlite, badger or memory
	Dir     string `toml:"dir"     yaml:"dir"`
}

// RolesConfig names the initial admin and oracle identities.
type RolesConfig struct {
	Admin  string `toml:"admin"  yaml:"admin"`
	Oracle string `toml:"oracle" yaml:"oracle"`
}

// GovernanceConfig tunes proposals, voting and reputation.
type GovernanceConfig struct {
	TotalSupply         uint64 `toml:"total_supply"          yaml:"total_supply"          split_words:"true"`
	QuorumDivisor       uint64 `toml:"quorum_divisor"        yaml:"quorum_divisor"        split_words:"true"`
	VotingWindow        string `toml:"voting_window"         yaml:"voting_window"         split_words:"true"`
	ProposalReward      uint64 `toml:"proposal_reward"       yaml:"proposal_reward"       split_words:"true"`
	VoteReward          uint64 `toml:"vote_reward"           yaml:"vote_reward"           split_words:"true"`
	ReputationBaseline  uint64 `toml:"reputation_baseline"   yaml:"reputation_baseline"   split_words:"true"`
	ContributionWeight  uint64 `toml:"contribution_weight"   yaml:"contribution_weight"   split_words:"true"`
	VotingPowerDivisor  uint64 `toml:"voting_power_divisor"  yaml:"voting_power_divisor"  split_words:"true"`
	Recommendation      string `toml:"recommendation"        yaml:"recommendation"`
	AutoResolveInterval string `toml:"auto_resolve_interval" yaml:"auto_resolve_interval" split_words:"true"` // "" disables
}

// EmergencyConfig tunes incident verification and payouts.
type EmergencyConfig struct {
	VerifyThreshold uint32 `toml:"verify_threshold" yaml:"verify_threshold" split_words:"true"`
	MinPayoutVotes  uint32 `toml:"min_payout_votes" yaml:"min_payout_votes" split_words:"true"`
}

// AgentsConfig sets the starting scores of newly registered agents.
type AgentsConfig struct {
	InitialPerformance uint32 `toml:"initial_performance" yaml:"initial_performance" split_words:"true"`
	InitialConfidence  uint32 `toml:"initial_confidence"  yaml:"initial_confidence"  split_words:"true"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"  yaml:"level"`  // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // json or text
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"      yaml:"prometheus"`
	HealthInterval string `toml:"health_interval" yaml:"health_interval" split_words:"true"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	gov := governance.DefaultConfig(1_000_000)
	rep := reputation.DefaultConfig()
	em := emergency.DefaultConfig()
	ag := agents.DefaultConfig()
	return Config{
		Node: NodeConfig{
			ID: "cityledger-local",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8645,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Dir:     filepath.Join(cityledgerHome(), "data"),
		},
		Roles: RolesConfig{
			Admin:  "admin",
			Oracle: "oracle",
		},
		Governance: GovernanceConfig{
			TotalSupply:        gov.TotalSupply,
			QuorumDivisor:      gov.QuorumDivisor,
			VotingWindow:       gov.VotingWindow.String(),
			ProposalReward:     gov.ProposalReward,
			VoteReward:         gov.VoteReward,
			ReputationBaseline: rep.Baseline,
			ContributionWeight: rep.ContributionWeight,
			VotingPowerDivisor: rep.VotingPowerDivisor,
			Recommendation:     oracle.DefaultRecommendation,
		},
		Emergency: EmergencyConfig{
			VerifyThreshold: em.VerifyThreshold,
			MinPayoutVotes:  em.MinPayoutVotes,
		},
		Agents: AgentsConfig{
			InitialPerformance: ag.InitialPerformance,
			InitialConfidence:  ag.InitialConfidence,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: health.DefaultInterval.String(),
		},
	}
}

// LoadConfig reads the config file at path, falling back to defaults when
// path is empty and $CITYLEDGER_HOME/config.toml does not exist. Files
// ending in .yaml or .yml are parsed as YAML, anything else as TOML.
// Environment variables (CITYLEDGER_<SECTION>_<KEY>, e.g.
// CITYLEDGER_GOVERNANCE_TOTAL_SUPPLY) override the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = filepath.Join(cityledgerHome(), "config.toml")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = "" // No config file yet; use defaults
		}
	}

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		buf, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// Validate rejects configurations the ledgers cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger:
		if c.Storage.Dir == "" {
			errs = append(errs, fmt.Errorf("storage.dir is required for the %s backend", c.Storage.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.Roles.Admin == "" {
		errs = append(errs, errors.New("roles.admin is required"))
	}
	if c.Roles.Oracle == "" {
		errs = append(errs, errors.New("roles.oracle is required"))
	}
	if c.Governance.QuorumDivisor == 0 {
		errs = append(errs, errors.New("governance.quorum_divisor must be positive"))
	}
	if c.Governance.VotingPowerDivisor == 0 {
		errs = append(errs, errors.New("governance.voting_power_divisor must be positive"))
	}
	if c.Emergency.MinPayoutVotes == 0 {
		errs = append(errs, errors.New("emergency.min_payout_votes must be positive"))
	}
	if c.Emergency.VerifyThreshold > 100 {
		errs = append(errs, errors.New("emergency.verify_threshold must be at most 100"))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	for name, d := range map[string]string{
		"governance.voting_window":         c.Governance.VotingWindow,
		"governance.auto_resolve_interval": c.Governance.AutoResolveInterval,
		"telemetry.health_interval":        c.Telemetry.HealthInterval,
	} {
		if d == "" {
			continue
		}
		dur, err := time.ParseDuration(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else if dur <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GovernanceSettings converts the [governance] section.
func (c Config) GovernanceSettings() (governance.Config, reputation.Config) {
	gov := governance.Config{
		TotalSupply:    c.Governance.TotalSupply,
		QuorumDivisor:  c.Governance.QuorumDivisor,
		VotingWindow:   parseDuration(c.Governance.VotingWindow, governance.DefaultVotingWindow),
		ProposalReward: c.Governance.ProposalReward,
		VoteReward:     c.Governance.VoteReward,
	}
	rep := reputation.Config{
		Baseline:           c.Governance.ReputationBaseline,
		ContributionWeight: c.Governance.ContributionWeight,
		VotingPowerDivisor: c.Governance.VotingPowerDivisor,
	}
	return gov, rep
}

// SaveConfig writes the config to path as TOML.
func SaveConfig(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// cityledgerHome returns the cityledger data directory.
func cityledgerHome() string {
	if env := os.Getenv("CITYLEDGER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cityledger")
}

// Home is exported for use by other packages.
func Home() string {
	return cityledgerHome()
}
