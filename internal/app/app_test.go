package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballast/internal/config"
	"ballast/internal/position"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.App.StatePath = filepath.Join(dir, "positions.json")
	cfg.App.TradeLogPath = filepath.Join(dir, "tradelog.db")
	cfg.App.HTTPAddr = ":0"
	return cfg
}

func TestNewBuildsSimApp(t *testing.T) {
	a, err := New(testConfig(t), "")
	require.NoError(t, err)
	require.NotNil(t, a.Ledger())
	require.NotNil(t, a.Executor())

	pos, err := a.Ledger().Open(context.Background(), position.OpenRequest{
		Strategy: "dca", EntryPrice: 62000, AmountQuote: 1000, ATR: 850,
	})
	require.NoError(t, err)
	assert.Equal(t, 60300.0, pos.StopLoss)
	assert.NotEmpty(t, pos.Metadata["order_id"])
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exchange.Driver = "kraken"
	_, err := New(cfg, "")
	assert.Error(t, err)
}

func TestStatePersistsAcrossBuilds(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, "")
	require.NoError(t, err)
	pos, err := a.Ledger().Open(context.Background(), position.OpenRequest{
		Strategy: "swing", EntryPrice: 62000, AmountQuote: 2000, ATR: 850,
	})
	require.NoError(t, err)

	b, err := New(cfg, "")
	require.NoError(t, err)
	got, ok := b.Ledger().Get(pos.ID)
	require.True(t, ok)
	assert.Equal(t, pos.StopLoss, got.StopLoss)
}
