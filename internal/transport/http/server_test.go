package adminhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballast/internal/config"
	"ballast/internal/gateway/exchange"
	"ballast/internal/guard"
	"ballast/internal/monitor"
	"ballast/internal/position"
	"ballast/internal/trader"
)

type fixture struct {
	server *Server
	ledger *position.Ledger
	sim    *exchange.Simulator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	sim := exchange.NewSimulator(62000)
	ledger, err := position.NewLedger(cfg, nil, sim)
	require.NoError(t, err)
	freq := guard.NewFrequencyWindow(cfg.Risk.MaxTradesPerHour, time.Hour)
	exec := trader.NewExecutor(ledger, guard.NewPipeline(cfg.Risk, freq), freq, sim, nil)
	mon := monitor.New(ledger, sim, nil, cfg.Monitor, cfg.Risk)

	server, err := NewServer(ServerConfig{
		Addr:     ":0",
		Ledger:   ledger,
		Executor: exec,
		Monitor:  mon,
	})
	require.NoError(t, err)
	return &fixture{server: server, ledger: ledger, sim: sim}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) open(t *testing.T, quote float64) *position.Position {
	t.Helper()
	pos, err := f.ledger.Open(context.Background(), position.OpenRequest{
		Strategy: "dca", EntryPrice: 62000, AmountQuote: quote, ATR: 850,
	})
	require.NoError(t, err)
	return pos
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAndGetPositions(t *testing.T) {
	f := newFixture(t)
	pos := f.open(t, 1000)

	w := f.do(t, http.MethodGet, "/api/v1/positions?status=open", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Positions []position.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Positions, 1)
	assert.Equal(t, pos.ID, list.Positions[0].ID)

	w = f.do(t, http.MethodGet, "/api/v1/positions/"+pos.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/positions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/positions?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClosePosition(t *testing.T) {
	f := newFixture(t)
	pos := f.open(t, 1000)

	w := f.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close",
		`{"exit_price": 63000}`)
	require.Equal(t, http.StatusOK, w.Code)
	var closed position.Position
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &closed))
	assert.Equal(t, position.StatusClosed, closed.Status)
	assert.Greater(t, closed.RealizedPnL, 0.0)

	// Second close conflicts.
	w = f.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close",
		`{"exit_price": 63000}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBudgetAndStats(t *testing.T) {
	f := newFixture(t)
	f.open(t, 1000)

	w := f.do(t, http.MethodGet, "/api/v1/budget", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats position.BudgetStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1000.0, stats.AllocatedCapital)

	w = f.do(t, http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/portfolio", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEmergencyResetEndpoint(t *testing.T) {
	f := newFixture(t)
	pos := f.open(t, 5000)

	crash := 62000 - 2600/pos.AmountBase
	active, _ := f.ledger.CheckEmergency(crash)
	require.True(t, active)

	w := f.do(t, http.MethodGet, "/api/v1/emergency", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st position.EmergencyState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Active)

	w = f.do(t, http.MethodPost, "/api/v1/emergency/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.ledger.Emergency().Active)
}

func TestIngestTradeRaw(t *testing.T) {
	f := newFixture(t)
	raw := "```json\n{\"action\": \"buy\", \"quantity\": 0.016, \"entry_price\": 62000, \"strategy\": \"swing\", \"reasoning\": \"breakout\"}\n```"
	body, err := json.Marshal(map[string]any{"raw": raw, "atr": 850})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/v1/trades", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out trader.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Executed)
	require.NotNil(t, out.Opened)
	assert.Equal(t, 60725.0, out.Opened.StopLoss)
}

func TestIngestTradeVetoed(t *testing.T) {
	f := newFixture(t)
	f.sim.SetPrice(66000)

	body := fmt.Sprintf(`{"trade": {"action": "buy", "quantity": %v, "entry_price": 62000, "strategy": "swing"}, "atr": 850}`,
		1000.0/62000)
	w := f.do(t, http.MethodPost, "/api/v1/trades", body)
	require.Equal(t, http.StatusOK, w.Code)
	var out trader.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.Executed)
	assert.Contains(t, out.Trade.Reasoning, "BLOCKED")
}

func TestIngestTradeRejectsAmbiguousBody(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/trades", `{"atr": 850}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMonitorRunEndpoint(t *testing.T) {
	f := newFixture(t)
	f.open(t, 1000)
	f.sim.SetPrice(60250)

	w := f.do(t, http.MethodPost, "/api/v1/monitor/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report monitor.PassReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.StopsExecuted)
	assert.Empty(t, f.ledger.OpenPositions())
}
