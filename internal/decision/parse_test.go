package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainObject(t *testing.T) {
	raw := `{"action":"buy","quantity":0.016,"entry_price":62000,"confidence":0.8,
		"reasoning":"RSI oversold","strategy":"swing","timestamp":"2026-08-31T10:00:00Z"}`

	trade, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, trade.Action)
	assert.Equal(t, 0.016, trade.Quantity)
	assert.Equal(t, 62000.0, trade.EntryPrice)
	assert.Equal(t, "swing", trade.Strategy)
	assert.False(t, trade.Timestamp.IsZero())
	assert.InDelta(t, 992.0, trade.QuoteValue(), 1e-9)
}

func TestParseFencedOutput(t *testing.T) {
	raw := "Here is my decision:\n```json\n" +
		`{"action":"buy","amount":0.01,"entry_price":60000,"strategy":"dca"}` +
		"\n```\nGood luck."

	trade, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.01, trade.Quantity) // "amount" alias accepted
	assert.Equal(t, "dca", trade.Strategy)
}

func TestParseHoldNeedsNoSize(t *testing.T) {
	trade, err := Parse(`{"action":"hold","reasoning":"nothing to do"}`)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, trade.Action)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"no json":          "buy some bitcoin",
		"bad action":       `{"action":"yolo","quantity":1,"entry_price":100,"strategy":"dca"}`,
		"bad strategy":     `{"action":"buy","quantity":1,"entry_price":100,"strategy":"scalp"}`,
		"zero quantity":    `{"action":"buy","quantity":0,"entry_price":100,"strategy":"dca"}`,
		"missing strategy": `{"action":"buy","quantity":1,"entry_price":100}`,
		"negative price":   `{"action":"buy","quantity":1,"entry_price":-5,"strategy":"dca"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			assert.Error(t, err)
		})
	}
}

func TestHeldCarriesReasons(t *testing.T) {
	trade := ProposedTrade{Action: ActionBuy, Quantity: 0.5, EntryPrice: 50000, Strategy: "swing"}
	held := trade.Held([]string{"Sufficient Balance: need $25000.00, have $1000.00"})

	assert.Equal(t, ActionHold, held.Action)
	assert.Zero(t, held.Quantity)
	assert.Contains(t, held.Reasoning, "BLOCKED")
	assert.Contains(t, held.Reasoning, "Sufficient Balance")
	// Original untouched.
	assert.Equal(t, ActionBuy, trade.Action)
}
