package tradelog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballast/internal/guard"
	"ballast/internal/position"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "tradelog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndReadTrades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exit := entry.Add(6 * time.Hour)
	p := position.Position{
		ID:             "DCA-20260301-120000",
		Strategy:       "dca",
		Status:         position.StatusStopped,
		AmountBase:     0.016,
		AmountQuote:    1000,
		EntryPrice:     62000,
		ExitPrice:      60250,
		RealizedPnL:    -28.2,
		RealizedPnLPct: -0.0282,
		EntryTime:      entry,
		ExitTime:       &exit,
		Metadata:       map[string]any{"close_reason": "stop_loss"},
	}
	require.NoError(t, s.AppendTrade(ctx, p))

	records, err := s.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DCA-20260301-120000", records[0].PositionID)
	assert.Equal(t, "stopped", records[0].Status)
	assert.Equal(t, "stop_loss", records[0].CloseReason)
	assert.Equal(t, exit.Unix(), records[0].ExitTime)
	assert.InDelta(t, -28.2, records[0].RealizedPnL, 1e-9)
}

func TestAppendAndReadVetoes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	verdict := guard.Verdict{
		TraceID: "trace-1",
		Results: []guard.Result{
			{Name: guard.CheckBalance, Passed: false, Reason: "insufficient quote balance"},
			{Name: guard.CheckPriceSanity, Passed: true},
		},
	}
	require.NoError(t, s.AppendVeto(ctx, verdict, "buy", "dca", 0.1, 62000))

	records, err := s.RecentVetoes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "trace-1", records[0].TraceID)
	assert.Equal(t, "buy", records[0].Action)
	assert.Contains(t, records[0].Failures, "insufficient quote balance")
}

func TestRecentTradesOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		exit := base.Add(time.Duration(i) * time.Hour)
		p := position.Position{
			ID: "DCA-" + exit.Format("20060102-150405"), Strategy: "dca",
			Status: position.StatusClosed, EntryTime: base, ExitTime: &exit,
		}
		require.NoError(t, s.AppendTrade(ctx, p))
	}

	records, err := s.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Greater(t, records[0].ExitTime, records[1].ExitTime)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Close())
	err := s.AppendTrade(context.Background(), position.Position{ID: "x", EntryTime: time.Now()})
	assert.Error(t, err)
}
