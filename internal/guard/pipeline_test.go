package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballast/internal/config"
	"ballast/internal/decision"
	"ballast/internal/position"
)

func testRisk() config.RiskConfig {
	return config.Default().Risk
}

func testPortfolio() position.PortfolioState {
	return position.PortfolioState{
		BaseBalance:  0.05,
		QuoteBalance: 7000,
		OpenPositions: []position.Position{
			{ID: "DCA-1", Strategy: "dca", AmountQuote: 3000, AmountBase: 0.05, Status: position.StatusOpen},
		},
		LastUpdated: time.Now(),
	}
}

func buyTrade(quote float64) decision.ProposedTrade {
	return decision.ProposedTrade{
		Action:     decision.ActionBuy,
		Quantity:   quote / 62000,
		EntryPrice: 62000,
		Strategy:   "dca",
	}
}

func TestPipelineApprovesCleanTrade(t *testing.T) {
	p := NewPipeline(testRisk(), NewFrequencyWindow(5, time.Hour))
	v := p.Evaluate(buyTrade(1000), testPortfolio(), position.EmergencyState{}, 62000)

	assert.True(t, v.Approved)
	assert.NotEmpty(t, v.TraceID)
	assert.Len(t, v.Results, 6)
	assert.Empty(t, v.Failures())
}

func TestPipelineHoldPassesThrough(t *testing.T) {
	p := NewPipeline(testRisk(), nil)
	v := p.Evaluate(decision.ProposedTrade{Action: decision.ActionHold}, testPortfolio(), position.EmergencyState{Active: true}, 0)
	assert.True(t, v.Approved)
	assert.Empty(t, v.Results)
}

func TestPipelineBalanceCheck(t *testing.T) {
	p := NewPipeline(testRisk(), nil)

	v := p.Evaluate(buyTrade(8000), testPortfolio(), position.EmergencyState{}, 62000)
	assert.False(t, v.Approved)
	require.NotEmpty(t, v.Failures())
	assert.Contains(t, v.Failures()[0], "insufficient quote balance")

	sell := decision.ProposedTrade{
		Action: decision.ActionSell, Quantity: 0.1, EntryPrice: 62000, Strategy: "dca",
	}
	v = p.Evaluate(sell, testPortfolio(), position.EmergencyState{}, 62000)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Failures()[0], "insufficient base balance")
}

func TestPipelinePositionSizeCheck(t *testing.T) {
	p := NewPipeline(testRisk(), nil)
	// Portfolio value 10,000; a 2,100 buy is 21%, over the 20% cap.
	v := p.Evaluate(buyTrade(2100), testPortfolio(), position.EmergencyState{}, 62000)
	assert.False(t, v.Approved)
	assert.Contains(t, v.Failures()[0], "position size")
}

func TestPipelineExposureCheck(t *testing.T) {
	p := NewPipeline(testRisk(), nil)
	portfolio := position.PortfolioState{
		// Base holding worth 7,000 at market, 3,000 in cash.
		BaseBalance:  7000.0 / 62000.0,
		QuoteBalance: 3000,
		OpenPositions: []position.Position{
			{ID: "DCA-1", AmountQuote: 7000, AmountBase: 7000.0 / 62000.0, Status: position.StatusOpen},
		},
	}
	// Buying 1,500 more puts the base share at 85%, over 80%.
	v := p.Evaluate(buyTrade(1500), portfolio, position.EmergencyState{}, 62000)
	assert.False(t, v.Approved)
	assert.Contains(t, failuresJoined(v), "post-trade exposure")

	// 800 lands at 78% and passes.
	v = p.Evaluate(buyTrade(800), portfolio, position.EmergencyState{}, 62000)
	assert.True(t, v.Approved)
}

func TestPipelineExposureValuesBookAtMarket(t *testing.T) {
	p := NewPipeline(testRisk(), nil)
	// One base unit bought at 50,000 now marks at 200,000: the holding is
	// worth 200,000 of a 250,000 portfolio, already at the 80% ceiling.
	portfolio := position.PortfolioState{
		BaseBalance:  1.0,
		QuoteBalance: 50000,
		OpenPositions: []position.Position{
			{ID: "SWING-1", Strategy: "swing", AmountQuote: 50000, AmountBase: 1.0,
				EntryPrice: 50000, CurrentPrice: 200000, UnrealizedPnL: 150000, Status: position.StatusOpen},
		},
	}
	trade := decision.ProposedTrade{
		Action:     decision.ActionBuy,
		Quantity:   0.05,
		EntryPrice: 200000,
		Strategy:   "swing",
	}
	// Committed capital says 24%, but the appreciated holding plus this buy
	// is 84% of the portfolio at market. The ceiling must bind on the
	// latter.
	v := p.Evaluate(trade, portfolio, position.EmergencyState{}, 200000)
	assert.False(t, v.Approved)
	assert.Contains(t, failuresJoined(v), "post-trade exposure 84.0%")
}

func TestPipelineEmergencyCheck(t *testing.T) {
	p := NewPipeline(testRisk(), nil)
	trippedAt := time.Now()
	v := p.Evaluate(buyTrade(1000), testPortfolio(), position.EmergencyState{
		Active: true, PnLPct: -0.26, TrippedAt: &trippedAt,
	}, 62000)
	assert.False(t, v.Approved)
	assert.Contains(t, failuresJoined(v), "emergency latch active")
}

func TestPipelineFrequencyCheck(t *testing.T) {
	freq := NewFrequencyWindow(2, time.Hour)
	freq.Record()
	freq.Record()
	p := NewPipeline(testRisk(), freq)

	v := p.Evaluate(buyTrade(1000), testPortfolio(), position.EmergencyState{}, 62000)
	assert.False(t, v.Approved)
	assert.Contains(t, failuresJoined(v), "trade frequency limit")
}

func TestPipelinePriceSanityCheck(t *testing.T) {
	p := NewPipeline(testRisk(), nil)

	// 62,000 vs market 65,500 is a 5.3% drift, past the 5% cap.
	v := p.Evaluate(buyTrade(1000), testPortfolio(), position.EmergencyState{}, 65500)
	assert.False(t, v.Approved)
	assert.Contains(t, failuresJoined(v), "deviates")

	v = p.Evaluate(buyTrade(1000), testPortfolio(), position.EmergencyState{}, 0)
	assert.False(t, v.Approved)
	assert.Contains(t, failuresJoined(v), "no market price")
}

func TestPipelineCollectsAllFailures(t *testing.T) {
	freq := NewFrequencyWindow(1, time.Hour)
	freq.Record()
	p := NewPipeline(testRisk(), freq)
	trippedAt := time.Now()

	v := p.Evaluate(buyTrade(9000), testPortfolio(), position.EmergencyState{
		Active: true, TrippedAt: &trippedAt,
	}, 70000)
	assert.False(t, v.Approved)
	// Balance, size, emergency, frequency and price sanity all fire.
	assert.GreaterOrEqual(t, len(v.Failures()), 4)
	assert.Len(t, v.Results, 6)
}

func failuresJoined(v Verdict) string {
	out := ""
	for _, f := range v.Failures() {
		out += f + "\n"
	}
	return out
}
