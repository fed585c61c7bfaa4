package position

import (
	"math"

	"github.com/mitchellh/mapstructure"
)

// Metadata keys written by the ledger.
const (
	metaReason          = "reason"
	metaATRUsed         = "atr_used"
	metaATRMultiplier   = "atr_multiplier"
	metaOrderID         = "order_id"
	metaCloseOrderID    = "close_order_id"
	metaCloseReason     = "close_reason"
	metaPrediction      = "prediction"
	metaPredictionError = "prediction_error"
)

// PredictiveContext is the externally supplied expectation attached to a
// position at open time (historical-pattern retrieval upstream). The ledger
// only stores it and scores it at close.
type PredictiveContext struct {
	SuccessRate     float64 `mapstructure:"success_rate" json:"success_rate"`
	ExpectedOutcome float64 `mapstructure:"expected_outcome" json:"expected_outcome"`
	SimilarPatterns int     `mapstructure:"similar_patterns" json:"similar_patterns"`
	Confidence      float64 `mapstructure:"confidence" json:"confidence"`
}

// DecodePredictiveContext extracts the prediction block from free-form
// metadata. The block survives a JSON round-trip as map[string]any, so the
// decode is weakly typed.
func DecodePredictiveContext(meta map[string]any) (PredictiveContext, bool) {
	if meta == nil {
		return PredictiveContext{}, false
	}
	raw, ok := meta[metaPrediction]
	if !ok || raw == nil {
		return PredictiveContext{}, false
	}
	var pc PredictiveContext
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &pc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return PredictiveContext{}, false
	}
	if err := dec.Decode(raw); err != nil {
		return PredictiveContext{}, false
	}
	return pc, true
}

// scorePrediction records |realized - expected| on a settled position.
func scorePrediction(p *Position) {
	pc, ok := DecodePredictiveContext(p.Metadata)
	if !ok || !p.Terminal() {
		return
	}
	p.Metadata[metaPredictionError] = math.Abs(p.RealizedPnLPct - pc.ExpectedOutcome)
}

// predictionError reads the score back, tolerating the float/any round-trip.
func predictionError(p *Position) (float64, bool) {
	if p.Metadata == nil {
		return 0, false
	}
	raw, ok := p.Metadata[metaPredictionError]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
