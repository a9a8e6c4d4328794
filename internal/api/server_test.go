package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/app/agents"
	"github.com/tutu-network/cityledger/internal/app/emergency"
	"github.com/tutu-network/cityledger/internal/app/fund"
	"github.com/tutu-network/cityledger/internal/app/governance"
	"github.com/tutu-network/cityledger/internal/app/reputation"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/health"
	"github.com/tutu-network/cityledger/internal/infra/access"
	"github.com/tutu-network/cityledger/internal/infra/eventbus"
	"github.com/tutu-network/cityledger/internal/infra/memstore"
	"github.com/tutu-network/cityledger/internal/infra/oracle"
)

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	now    time.Time
	roles  *access.Roles
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		now:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		roles: access.NewRoles("admin", "oracle"),
	}

	store := memstore.New()
	bus := eventbus.New(nil, nil)
	deps := app.Deps{
		Store:  store,
		Access: env.roles,
		Events: bus,
		Now:    func() time.Time { return env.now },
	}
	ledger := fund.New(deps)
	svc := Services{
		Governance: governance.NewService(deps, reputation.New(reputation.DefaultConfig()),
			oracle.Static{}, governance.DefaultConfig(10)),
		Fund:      ledger,
		Emergency: emergency.NewService(deps, ledger, emergency.DefaultConfig()),
		Agents:    agents.NewRegistry(deps, agents.DefaultConfig()),
		Roles:     env.roles,
		Store:     store,
		Bus:       bus,
		Health:    health.NewChecker(store, ledger, "", nil),
	}

	env.ts = httptest.NewServer(NewServer(svc, nil).Handler())
	env.client = &http.Client{Transport: &http.Transport{}}
	t.Cleanup(func() {
		env.client.CloseIdleConnections()
		env.ts.Close()
		bus.Close()
		store.Close()
	})
	return env
}

// do sends a JSON request as caller ("" sends no identity) and decodes the
// response body into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, caller domain.Identity, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(CallerHeader, string(caller))
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *testEnv) expectError(t *testing.T, method, path string, caller domain.Identity, body any, status int, kind string) {
	t.Helper()
	var eb errorBody
	code := e.do(t, method, path, caller, body, &eb)
	assert.Equal(t, status, code, "%s %s", method, path)
	assert.Equal(t, kind, eb.Error.Type, "%s %s: %s", method, path, eb.Error.Message)
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var ok map[string]string
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/health", "", nil, &ok))
	assert.Equal(t, "ok", ok["status"])

	var h struct {
		Healthy bool `json:"healthy"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/health", "", nil, &h))
	assert.True(t, h.Healthy)

	var v map[string]string
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/version", "", nil, &v))
	assert.Equal(t, Version, v["version"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	code := env.do(t, "OPTIONS", "/api/v1/proposals", "", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

// ─── Governance ─────────────────────────────────────────────────────────────

func TestProposalLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var created struct {
		ID uint32 `json:"id"`
	}
	code := env.do(t, "POST", "/api/v1/proposals", "alice",
		map[string]any{"title": "Bike lanes", "description": "Main St", "budget": 5000}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, uint32(0), created.ID)

	require.Equal(t, http.StatusNoContent,
		env.do(t, "POST", "/api/v1/proposals/0/votes", "bob", map[string]bool{"support": true}, nil))
	env.expectError(t, "POST", "/api/v1/proposals/0/votes", "bob",
		map[string]bool{"support": false}, http.StatusConflict, "DuplicateVote")

	var voted map[string]bool
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/proposals/0/votes/bob", "", nil, &voted))
	assert.True(t, voted["voted"])

	env.expectError(t, "POST", "/api/v1/proposals/0/resolve", "carol", nil, http.StatusTooEarly, "TooEarly")

	env.advance(governance.DefaultVotingWindow + time.Second)
	var resolved struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/proposals/0/resolve", "carol", nil, &resolved))
	assert.Equal(t, "Passed", resolved.Status)

	var p domain.Proposal
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/proposals/0", "", nil, &p))
	assert.Equal(t, domain.ProposalPassed, p.Status)
	assert.Equal(t, uint64(1), p.VotesFor)
	assert.Equal(t, oracle.DefaultRecommendation, p.AIRecommendation)

	var list struct {
		Proposals []domain.Proposal `json:"proposals"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/proposals?status=Passed", "", nil, &list))
	assert.Len(t, list.Proposals, 1)

	var stats domain.GovernanceStats
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/governance/stats", "", nil, &stats))
	assert.Equal(t, 1, stats.PassedProposals)
	assert.Equal(t, 1, stats.TotalVotesCast)
}

func TestCitizenEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.expectError(t, "POST", "/api/v1/citizens/dave/contributions", "mallory",
		map[string]uint64{"points": 10}, http.StatusForbidden, "Unauthorized")

	var profile domain.CitizenProfile
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/citizens/dave/contributions", "oracle",
		map[string]uint64{"points": 10}, &profile))
	assert.Equal(t, uint64(150), profile.ReputationScore)
	assert.Equal(t, uint64(10), profile.AIContributions)

	var got domain.CitizenProfile
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/citizens/dave", "", nil, &got))
	assert.Equal(t, profile, got)

	var top struct {
		Citizens []governance.CitizenEntry `json:"citizens"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/citizens?top=5", "", nil, &top))
	require.Len(t, top.Citizens, 1)
	assert.Equal(t, domain.Identity("dave"), top.Citizens[0].Identity)

	env.expectError(t, "GET", "/api/v1/citizens?top=0", "", nil, http.StatusBadRequest, "InvalidArgument")
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	var eb errorBody
	code := env.do(t, "POST", "/api/v1/proposals", "", map[string]any{"title": "x"}, &eb)
	assert.Equal(t, http.StatusUnauthorized, code)

	tests := []struct {
		name   string
		method string
		path   string
		caller domain.Identity
		body   any
		status int
		kind   string
	}{
		{"missing proposal", "GET", "/api/v1/proposals/99", "", nil, http.StatusNotFound, "NotFound"},
		{"bad id", "GET", "/api/v1/proposals/abc", "", nil, http.StatusBadRequest, "InvalidArgument"},
		{"bad status filter", "GET", "/api/v1/proposals?status=Bogus", "", nil, http.StatusBadRequest, "InvalidArgument"},
		{"unknown body field", "POST", "/api/v1/proposals", "alice", map[string]any{"nope": 1}, http.StatusBadRequest, "InvalidArgument"},
		{"zero contribution", "POST", "/api/v1/fund/contributions", "alice", map[string]uint64{"amount": 0}, http.StatusBadRequest, "InvalidAmount"},
		{"verify missing incident", "POST", "/api/v1/incidents/7/verify", "oracle", map[string]any{"confidence": 90, "estimated_cost": 1}, http.StatusNotFound, "NotFound"},
		{"bad severity", "POST", "/api/v1/incidents", "alice", map[string]any{"incident_type": "Fire", "severity": 11}, http.StatusBadRequest, "InvalidSeverity"},
		{"unknown incident type", "POST", "/api/v1/incidents", "alice", map[string]any{"incident_type": "Meteor", "severity": 3}, http.StatusBadRequest, "InvalidArgument"},
		{"bad event cursor", "GET", "/api/v1/events?after=x", "", nil, http.StatusBadRequest, "InvalidArgument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.expectError(t, tt.method, tt.path, tt.caller, tt.body, tt.status, tt.kind)
		})
	}
}

// ─── Emergency ──────────────────────────────────────────────────────────────

func TestEmergencyPayoutFlow(t *testing.T) {
	env := newTestEnv(t)

	var stats domain.FundStats
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/fund/contributions", "alice",
		map[string]uint64{"amount": 1000}, &stats))
	assert.Equal(t, uint64(1000), stats.Balance)

	var created struct {
		ID uint32 `json:"id"`
	}
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/v1/incidents", "carol", map[string]any{
		"incident_type":     "Flood",
		"location":          "Riverside",
		"description":       "Basement flooding",
		"severity":          6,
		"affected_citizens": 40,
	}, &created))

	env.expectError(t, "POST", "/api/v1/incidents/0/verify", "carol",
		map[string]any{"confidence": 95, "estimated_cost": 300}, http.StatusForbidden, "Unauthorized")
	env.expectError(t, "POST", "/api/v1/incidents/0/votes", "v1",
		map[string]bool{"approve": true}, http.StatusConflict, "InvalidState")

	var inc domain.EmergencyIncident
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/incidents/0/verify", "oracle",
		map[string]any{"confidence": 95, "estimated_cost": 300}, &inc))
	assert.Equal(t, domain.IncidentVerified, inc.Status)

	for i, voter := range []domain.Identity{"v1", "v2", "v3"} {
		var res map[string]bool
		require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/incidents/0/votes", voter,
			map[string]bool{"approve": true}, &res))
		assert.Equal(t, i == 2, res["payout_executed"], "vote %d", i)
	}

	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/incidents/0", "", nil, &inc))
	assert.Equal(t, domain.IncidentPayoutExecuted, inc.Status)
	assert.Equal(t, uint64(300), inc.ActualCost)

	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/fund", "", nil, &stats))
	assert.Equal(t, domain.FundStats{
		Balance:            700,
		TotalContributions: 1000,
		TotalPayouts:       300,
		IncidentCount:      1,
	}, stats)

	var tally domain.PayoutTally
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/incidents/0/votes", "", nil, &tally))
	assert.Equal(t, 3, tally.Approvals)

	var contrib map[string]uint64
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/fund/contributions/alice", "", nil, &contrib))
	assert.Equal(t, uint64(1000), contrib["amount"])
}

func TestExecutePayoutDirect(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/fund/contributions", "alice",
		map[string]uint64{"amount": 100}, nil))
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/v1/incidents", "carol",
		map[string]any{"incident_type": "Fire", "severity": 9}, nil))
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/incidents/0/verify", "oracle",
		map[string]any{"confidence": 90, "estimated_cost": 500}, nil))

	env.expectError(t, "POST", "/api/v1/incidents/0/payout", "bob", nil,
		http.StatusUnprocessableEntity, "InsufficientFunds")
	env.expectError(t, "POST", "/api/v1/incidents/9/payout", "bob", nil, http.StatusNotFound, "NotFound")

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/fund/contributions", "alice",
		map[string]uint64{"amount": 400}, nil))
	var inc domain.EmergencyIncident
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/incidents/0/payout", "bob", nil, &inc))
	assert.Equal(t, domain.IncidentPayoutExecuted, inc.Status)

	var list struct {
		Incidents []domain.EmergencyIncident `json:"incidents"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/incidents?status=PayoutExecuted", "", nil, &list))
	assert.Len(t, list.Incidents, 1)
}

// ─── Agents ─────────────────────────────────────────────────────────────────

func TestAgentEndpoints(t *testing.T) {
	env := newTestEnv(t)

	reg := map[string]string{"name": "GridBot", "zone": "North", "specialization": "energy"}
	env.expectError(t, "POST", "/api/v1/agents", "bob", reg, http.StatusForbidden, "Unauthorized")

	var created struct {
		ID uint32 `json:"id"`
	}
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/v1/agents", "admin", reg, &created))

	var agent domain.AIAgent
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/agents/0/decisions", "anyone",
		map[string]any{"decision_type": "load_shift", "parameters": "{}", "impact_score": 90}, &agent))
	assert.Equal(t, uint32(55), agent.PerformanceScore)
	assert.Equal(t, uint32(1), agent.DecisionsMade)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/agents/0/performance", "anyone",
		map[string]uint64{"energy_saved": 2000, "cost_reduction": 0}, &agent))
	assert.Equal(t, uint64(2000), agent.EnergySaved)

	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/api/v1/agents/0/status", "admin",
		map[string]string{"status": "Maintenance"}, &agent))
	assert.Equal(t, domain.AgentMaintenance, agent.Status)
	env.expectError(t, "PUT", "/api/v1/agents/0/status", "admin",
		map[string]string{"status": "Sleeping"}, http.StatusBadRequest, "InvalidArgument")

	var decisions struct {
		Decisions []domain.AgentDecision `json:"decisions"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/agents/0/decisions", "", nil, &decisions))
	require.Len(t, decisions.Decisions, 1)
	assert.Equal(t, "load_shift", decisions.Decisions[0].DecisionType)

	var totals domain.AgentTotals
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/agents/stats", "", nil, &totals))
	assert.Equal(t, domain.AgentTotals{TotalEnergySaved: 2000, AgentCount: 1}, totals)
}

// ─── Roles & events ─────────────────────────────────────────────────────────

func TestRoleRotation(t *testing.T) {
	env := newTestEnv(t)

	env.expectError(t, "PUT", "/api/v1/roles/oracle", "bob",
		map[string]string{"identity": "bob"}, http.StatusForbidden, "Unauthorized")
	env.expectError(t, "PUT", "/api/v1/roles/mayor", "admin",
		map[string]string{"identity": "bob"}, http.StatusBadRequest, "InvalidArgument")

	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/api/v1/roles/oracle", "admin",
		map[string]string{"identity": "sensor-7"}, nil))

	var roles map[string]string
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/roles", "", nil, &roles))
	assert.Equal(t, "sensor-7", roles["oracle"])
	assert.True(t, env.roles.IsOracle("sensor-7"))
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)

	for _, title := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/v1/proposals", "alice",
			map[string]any{"title": title}, nil))
	}

	var page struct {
		Events []domain.EventRecord `json:"events"`
	}
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/events?limit=2", "", nil, &page))
	require.Len(t, page.Events, 2)
	assert.Equal(t, "ProposalCreated", page.Events[0].Name)

	last := page.Events[1].Seq
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/events?after="+strconv.FormatUint(last, 10), "", nil, &page))
	require.Len(t, page.Events, 1)
	assert.Greater(t, page.Events[0].Seq, last)
}

func TestEventStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	env := newTestEnv(t)
	defer func() {
		env.client.CloseIdleConnections()
		env.ts.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET",
		env.ts.URL+"/api/v1/events/stream?names=ProposalCreated", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Filtered out by names.
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/fund/contributions", "alice",
		map[string]uint64{"amount": 5}, nil))
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/api/v1/proposals", "alice",
		map[string]any{"title": "Streamed"}, nil))

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id: "))
	assert.Equal(t, "event: ProposalCreated", lines[1])

	var rec domain.EventRecord
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &rec))
	assert.Equal(t, "ProposalCreated", rec.Name)
	assert.JSONEq(t, `{"title":"Streamed"}`, string(rec.Payload))

	cancel()
}
