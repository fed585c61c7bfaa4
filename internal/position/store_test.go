package position

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "positions.json"))
	require.NoError(t, err)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := State{
		Emergency:   EmergencyState{Active: true, PnLPct: -0.26, Threshold: -0.25, TrippedAt: &now},
		LastDCATime: &now,
		Positions: []*Position{{
			ID:         "DCA-20260301-120000",
			Strategy:   "dca",
			AmountBase: 0.016,
			EntryPrice: 62000,
			EntryTime:  now,
			StopLoss:   60300,
			Status:     StatusOpen,
			Metadata:   map[string]any{"reason": "accumulation"},
		}},
	}
	require.NoError(t, store.Save(st))

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Emergency.Active)
	assert.Equal(t, -0.26, got.Emergency.PnLPct)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, st.Positions[0].ID, got.Positions[0].ID)
	assert.Equal(t, 60300.0, got.Positions[0].StopLoss)
	assert.Equal(t, "accumulation", got.Positions[0].Metadata["reason"])
	require.NotNil(t, got.LastDCATime)
	assert.True(t, got.LastDCATime.Equal(now))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "positions.json"))
	require.NoError(t, err)
	require.NoError(t, store.Save(State{}))
	require.NoError(t, store.Save(State{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "positions.json", entries[0].Name())
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, _, err = store.Load()
	assert.Error(t, err)
}
