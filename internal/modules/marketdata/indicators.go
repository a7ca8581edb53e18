package marketdata

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands holds the latest band values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	// Position of the last close within the bands, clamped to [0, 1]
	Position float64 `json:"position"`
}

// IndicatorSnapshot holds the most recent value of each indicator computed
// over a close series. Fields are nil when the series is too short.
type IndicatorSnapshot struct {
	SMA        *float64        `json:"sma,omitempty"`
	EMA        *float64        `json:"ema,omitempty"`
	RSI        *float64        `json:"rsi,omitempty"`
	Bollinger  *BollingerBands `json:"bollinger,omitempty"`
	RollingStd *float64        `json:"rolling_std,omitempty"`
}

// bollingerStdDevs is the band width in standard deviations
const bollingerStdDevs = 2.0

// CalculateSMA returns the latest simple moving average over `period` closes
func CalculateSMA(closes []float64, period int) *float64 {
	if len(closes) < period || period < 1 {
		return nil
	}

	sma := talib.Sma(closes, period)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// CalculateEMA returns the latest exponential moving average over `period` closes
func CalculateEMA(closes []float64, period int) *float64 {
	if len(closes) < period || period < 1 {
		return nil
	}

	ema := talib.Ema(closes, period)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	return nil
}

// CalculateRSI returns the latest relative strength index.
// Needs period+1 closes for the first reading.
func CalculateRSI(closes []float64, period int) *float64 {
	if len(closes) < period+1 || period < 1 {
		return nil
	}

	rsi := talib.Rsi(closes, period)
	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// CalculateRollingStd returns the latest rolling standard deviation of closes
func CalculateRollingStd(closes []float64, period int) *float64 {
	if len(closes) < period || period < 1 {
		return nil
	}

	std := talib.StdDev(closes, period, 1.0)
	if len(std) > 0 && !isNaN(std[len(std)-1]) {
		result := std[len(std)-1]
		return &result
	}

	return nil
}

// CalculateBollinger returns the latest Bollinger Bands and the position of
// the last close within them (0.0 at the lower band, 1.0 at the upper)
func CalculateBollinger(closes []float64, period int) *BollingerBands {
	if len(closes) < period || period < 1 {
		return nil
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, period, bollingerStdDevs, bollingerStdDevs, 0)
	if len(upper) == 0 || isNaN(upper[len(upper)-1]) {
		return nil
	}

	bands := &BollingerBands{
		Upper:  upper[len(upper)-1],
		Middle: middle[len(middle)-1],
		Lower:  lower[len(lower)-1],
	}

	currentPrice := closes[len(closes)-1]
	bandWidth := bands.Upper - bands.Lower
	if bandWidth == 0 {
		// Collapsed bands, price sits at the middle
		bands.Position = 0.5
		return bands
	}

	position := (currentPrice - bands.Lower) / bandWidth
	if position < 0.0 {
		position = 0.0
	}
	if position > 1.0 {
		position = 1.0
	}
	bands.Position = position

	return bands
}

// ComputeIndicators computes the full indicator snapshot over a close series
func ComputeIndicators(closes []float64, period int) IndicatorSnapshot {
	return IndicatorSnapshot{
		SMA:        CalculateSMA(closes, period),
		EMA:        CalculateEMA(closes, period),
		RSI:        CalculateRSI(closes, period),
		Bollinger:  CalculateBollinger(closes, period),
		RollingStd: CalculateRollingStd(closes, period),
	}
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
