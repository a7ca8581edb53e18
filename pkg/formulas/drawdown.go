package formulas

import "math"

// Drawdowns computes the relative decline from the running peak at every point
// of a cumulative value series: value[i]/peak(0..i) - 1. Results are always
// <= 0, exactly 0 at a new peak. A non-positive running peak emits 0 for that
// element.
func Drawdowns(cumulative []float64) []float64 {
	if len(cumulative) == 0 {
		return []float64{}
	}

	out := make([]float64, len(cumulative))
	peak := cumulative[0]
	for i, v := range cumulative {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = v/peak - 1
		}
	}
	return out
}

// MaxDrawdown returns the most negative value of the drawdown series, 0 for an
// empty series or one that never declines from its peak.
func MaxDrawdown(cumulative []float64) float64 {
	min := 0.0
	for _, dd := range Drawdowns(cumulative) {
		if dd < min {
			min = dd
		}
	}
	return min
}

// DrawdownStats summarizes the drawdown behavior of a cumulative value series.
type DrawdownStats struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Most negative drawdown (e.g., -0.25 = 25% below peak)
	CurrentDrawdown float64 `json:"current_drawdown"` // Drawdown at the last observation
	UlcerIndex      float64 `json:"ulcer_index"`      // Root mean square of all drawdowns
	LongestDrawdown int     `json:"longest_drawdown"` // Longest run of consecutive below-peak periods
}

// AnalyzeDrawdowns computes summary drawdown metrics from a cumulative value
// series. The zero value is returned for an empty series.
func AnalyzeDrawdowns(cumulative []float64) DrawdownStats {
	dd := Drawdowns(cumulative)
	if len(dd) == 0 {
		return DrawdownStats{}
	}

	stats := DrawdownStats{CurrentDrawdown: dd[len(dd)-1]}

	var sumSq float64
	run := 0
	for _, v := range dd {
		if v < stats.MaxDrawdown {
			stats.MaxDrawdown = v
		}
		sumSq += v * v

		if v < 0 {
			run++
			if run > stats.LongestDrawdown {
				stats.LongestDrawdown = run
			}
		} else {
			run = 0
		}
	}
	stats.UlcerIndex = math.Sqrt(sumSq / float64(len(dd)))

	return stats
}
