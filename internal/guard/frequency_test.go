package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencyWindowLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFrequencyWindow(5, time.Hour)
	f.nowFn = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		ok, _ := f.Allow()
		require.True(t, ok, "trade %d should be allowed", i+1)
		f.Record()
		now = now.Add(time.Minute)
	}

	ok, reason := f.Allow()
	assert.False(t, ok)
	assert.Contains(t, reason, "trade frequency limit")
	assert.Equal(t, 5, f.Count())
}

func TestFrequencyWindowSlides(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFrequencyWindow(5, time.Hour)
	f.nowFn = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		f.Record()
		now = now.Add(time.Minute)
	}
	ok, _ := f.Allow()
	require.False(t, ok)

	// Just past an hour after the first trade, it falls off and four remain.
	now = now.Add(55*time.Minute + 30*time.Second)
	ok, _ = f.Allow()
	assert.True(t, ok)
	assert.Equal(t, 4, f.Count())
}

func TestFrequencyWindowZeroLimit(t *testing.T) {
	f := NewFrequencyWindow(0, time.Hour)
	f.Record()
	ok, _ := f.Allow()
	assert.True(t, ok)
}
