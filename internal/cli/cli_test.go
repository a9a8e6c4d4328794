package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupHome points the CLI at a fresh sqlite store under a temp home.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CITYLEDGER_HOME", home)
	t.Setenv("CITYLEDGER_AS", "")
	t.Setenv("CITYLEDGER_EMERGENCY_MIN_PAYOUT_VOTES", "2")
	t.Setenv("CITYLEDGER_GOVERNANCE_TOTAL_SUPPLY", "10")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "cityledger %s", strings.Join(args, " "))
	return out
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd("test")
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "proposal", "citizen", "fund", "incident", "agent", "events", "roles", "config"} {
		assert.Contains(t, names, want)
	}

	// Each root gets its own commands and flag state.
	vote, _, err := root.Find([]string{"proposal", "vote"})
	require.NoError(t, err)
	require.NoError(t, vote.Flags().Set("against", "true"))

	other, _, err := newRootCmd("test").Find([]string{"proposal", "vote"})
	require.NoError(t, err)
	assert.NotSame(t, vote, other)
	assert.Equal(t, "false", other.Flags().Lookup("against").Value.String())
}

func TestEmergencyCommands(t *testing.T) {
	setupHome(t)

	out := mustRun(t, "fund", "contribute", "500", "--as", "alice")
	assert.Contains(t, out, "Balance:       500")

	out = mustRun(t, "incident", "report", "Flood", "6", "--location", "Riverside", "--as", "bob")
	assert.Contains(t, out, "Reported incident 0")

	_, err := run(t, "incident", "verify", "0", "90", "200", "--as", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the oracle")

	out = mustRun(t, "incident", "verify", "0", "90", "200", "--as", "oracle")
	assert.Contains(t, out, "Verified")

	out = mustRun(t, "incident", "vote", "0", "--as", "v1")
	assert.Contains(t, out, "Approvals: 1/2")
	assert.NotContains(t, out, "Payout executed")

	out = mustRun(t, "incident", "vote", "0", "--as", "v2")
	assert.Contains(t, out, "Payout executed for incident 0")

	out = mustRun(t, "fund", "stats")
	assert.Contains(t, out, "Balance:       300")
	assert.Contains(t, out, "Payouts:       200")

	out = mustRun(t, "incident", "list", "--status", "PayoutExecuted")
	assert.Contains(t, out, "Riverside")

	out = mustRun(t, "fund", "contribution", "alice")
	assert.Contains(t, out, "alice contributed 500")

	out = mustRun(t, "fund", "audit")
	assert.Contains(t, out, "Fund conserved.")
}

func TestProposalCommands(t *testing.T) {
	setupHome(t)

	_, err := run(t, "proposal", "create", "No caller")
	require.Error(t, err)

	out := mustRun(t, "proposal", "create", "Night buses", "--budget", "900", "--as", "alice")
	assert.Contains(t, out, "Created proposal 0")

	out = mustRun(t, "proposal", "vote", "0", "--as", "bob")
	assert.Contains(t, out, "1 for, 0 against")

	_, err = run(t, "proposal", "vote", "0", "--as", "bob")
	require.Error(t, err)

	_, err = run(t, "proposal", "resolve", "0")
	require.Error(t, err, "voting window still open")

	out = mustRun(t, "proposal", "list")
	assert.Contains(t, out, "Night buses")
	assert.Contains(t, out, "Active")

	out = mustRun(t, "proposal", "show", "0")
	assert.Contains(t, out, "Proposer:       alice")

	out = mustRun(t, "citizen", "show", "bob")
	assert.Contains(t, out, "Votes cast:    1")

	out = mustRun(t, "proposal", "stats")
	assert.Contains(t, out, "Quorum:     1")
}

func TestAgentCommands(t *testing.T) {
	setupHome(t)

	_, err := run(t, "agent", "register", "GridBot", "--as", "mallory")
	require.Error(t, err)

	out := mustRun(t, "agent", "register", "GridBot", "--zone", "North", "--as", "admin")
	assert.Contains(t, out, "Registered agent 0")

	out = mustRun(t, "agent", "decide", "0", "load_shift", "95", "--as", "admin")
	assert.Contains(t, out, "Performance:    55")

	out = mustRun(t, "agent", "status", "0", "Offline", "--as", "admin")
	assert.Contains(t, out, "Status:         Offline")

	out = mustRun(t, "agent", "show", "0")
	assert.Contains(t, out, "load_shift")

	out = mustRun(t, "agent", "stats")
	assert.Contains(t, out, "Agents:         1")
}

func TestEventsCommand(t *testing.T) {
	setupHome(t)
	mustRun(t, "fund", "contribute", "10", "--as", "alice")
	mustRun(t, "proposal", "create", "Parks", "--as", "alice")

	out := mustRun(t, "events")
	assert.Contains(t, out, "FundContribution")
	assert.Contains(t, out, "ProposalCreated")

	out = mustRun(t, "events", "--limit", "1")
	assert.NotContains(t, out, "ProposalCreated")

	out = mustRun(t, "events", "--json")
	assert.Contains(t, out, `"name": "ProposalCreated"`)
}

func TestConfigCommands(t *testing.T) {
	home := setupHome(t)

	out := mustRun(t, "config", "show")
	assert.Contains(t, out, "[governance]")
	assert.Contains(t, out, "total_supply = 10")

	mustRun(t, "config", "init")
	_, err := os.Stat(filepath.Join(home, "config.toml"))
	require.NoError(t, err)

	out = mustRun(t, "roles")
	assert.Contains(t, out, "admin:  admin")
	assert.Contains(t, out, "oracle: oracle")
}

func TestInvalidArguments(t *testing.T) {
	setupHome(t)

	tests := [][]string{
		{"proposal", "show", "abc"},
		{"fund", "contribute", "-5", "--as", "alice"},
		{"incident", "report", "Meteor", "3", "--as", "alice"},
		{"agent", "status", "0", "Sleeping", "--as", "admin"},
		{"proposal", "resolve"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			_, err := run(t, args...)
			assert.Error(t, err)
		})
	}
}
