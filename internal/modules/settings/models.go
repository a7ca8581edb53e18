package settings

// Setting keys recognized by the service. Anything else is rejected on write.
const (
	KeyAnnualRiskFreeRate     = "annual_risk_free_rate"
	KeyPeriodsPerYear         = "periods_per_year"
	KeyDefaultConfidenceLevel = "default_confidence_level"
	KeyLookbackDays           = "lookback_days"
)

// SettingDefaults holds the fallback value for every configurable setting.
// Values stored in config.db override these; environment variables seed the
// initial config but the settings store wins once a key is written.
var SettingDefaults = map[string]float64{
	KeyAnnualRiskFreeRate:     0.02, // Annual risk-free rate used by Sharpe/Sortino/alpha
	KeyPeriodsPerYear:         252,  // Trading periods per year for annualization
	KeyDefaultConfidenceLevel: 0.95, // Confidence level for VaR/CVaR
	KeyLookbackDays:           365,  // Default price history window for computed metrics
}

// Settings is the typed view of all stored settings, defaults applied.
type Settings struct {
	AnnualRiskFreeRate     float64 `json:"annual_risk_free_rate"`
	PeriodsPerYear         int     `json:"periods_per_year"`
	DefaultConfidenceLevel float64 `json:"default_confidence_level"`
	LookbackDays           int     `json:"lookback_days"`
}

// UpdateRequest carries a partial settings update. Nil fields are left
// untouched so callers can change a single value without restating the rest.
type UpdateRequest struct {
	AnnualRiskFreeRate     *float64 `json:"annual_risk_free_rate,omitempty"`
	PeriodsPerYear         *int     `json:"periods_per_year,omitempty"`
	DefaultConfidenceLevel *float64 `json:"default_confidence_level,omitempty"`
	LookbackDays           *int     `json:"lookback_days,omitempty"`
}
