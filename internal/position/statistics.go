package position

import (
	"math"
	"sort"
)

// Statistics summarizes closed-position performance.
type Statistics struct {
	TotalTrades        int                           `json:"total_trades"`
	Wins               int                           `json:"wins"`
	Losses             int                           `json:"losses"`
	WinRate            float64                       `json:"win_rate"`
	TotalPnL           float64                       `json:"total_pnl"`
	AvgPnL             float64                       `json:"avg_pnl"`
	MedianPnL          float64                       `json:"median_pnl"`
	StdDevPnL          float64                       `json:"stddev_pnl"`
	BestTrade          float64                       `json:"best_trade"`
	WorstTrade         float64                       `json:"worst_trade"`
	StoppedOut         int                           `json:"stopped_out"`
	ByStrategy         map[string]StrategyStatistics `json:"by_strategy"`
	PredictionAccuracy *PredictionAccuracy           `json:"prediction_accuracy,omitempty"`
}

// StrategyStatistics is the per-strategy slice of the closed book.
type StrategyStatistics struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
}

// PredictionAccuracy aggregates the scored prediction errors. Only trades
// that carried a predictive context at open time contribute.
type PredictionAccuracy struct {
	Scored   int     `json:"scored"`
	MeanErr  float64 `json:"mean_error"`
	WorstErr float64 `json:"worst_error"`
}

// Statistics computes performance figures over the terminal positions.
func (l *Ledger) Statistics() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Statistics{ByStrategy: make(map[string]StrategyStatistics)}
	var pnls []float64
	var predErrs []float64

	for _, p := range l.positions {
		if !p.Terminal() {
			continue
		}
		stats.TotalTrades++
		stats.TotalPnL += p.RealizedPnL
		pnls = append(pnls, p.RealizedPnL)
		if p.Status == StatusStopped {
			stats.StoppedOut++
		}

		ss := stats.ByStrategy[p.Strategy]
		ss.Trades++
		ss.TotalPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			stats.Wins++
			ss.Wins++
		} else {
			stats.Losses++
		}
		stats.ByStrategy[p.Strategy] = ss

		if e, ok := predictionError(p); ok {
			predErrs = append(predErrs, e)
		}
	}

	if stats.TotalTrades == 0 {
		return stats
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades)
	stats.AvgPnL = stats.TotalPnL / float64(stats.TotalTrades)
	for name, ss := range stats.ByStrategy {
		if ss.Trades > 0 {
			ss.WinRate = float64(ss.Wins) / float64(ss.Trades)
		}
		stats.ByStrategy[name] = ss
	}

	sorted := append([]float64(nil), pnls...)
	sort.Float64s(sorted)
	stats.MedianPnL = sorted[len(sorted)/2]
	stats.BestTrade = sorted[len(sorted)-1]
	stats.WorstTrade = sorted[0]
	stats.StdDevPnL = sampleStdDev(pnls, stats.AvgPnL)

	if len(predErrs) > 0 {
		acc := &PredictionAccuracy{Scored: len(predErrs)}
		for _, e := range predErrs {
			acc.MeanErr += e
			if e > acc.WorstErr {
				acc.WorstErr = e
			}
		}
		acc.MeanErr /= float64(len(predErrs))
		stats.PredictionAccuracy = acc
	}
	return stats
}

func sampleStdDev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
