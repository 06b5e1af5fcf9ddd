package usecase

import "math"

// SizingInput holds what Size needs for one symbol. Money values are in the
// symbol's trading currency.
type SizingInput struct {
	ATR               float64 `json:"atr" validate:"gt=0"`
	ADTV              float64 `json:"adtv" validate:"gt=0"`
	Close             float64 `json:"close" validate:"gt=0"`
	RiskAmount        float64 `json:"risk_amount" validate:"gt=0"`
	RiskK             float64 `json:"risk_k" default:"12" validate:"gt=0"`
	ADTVLimitRatio    float64 `json:"adtv_limit_ratio" default:"0.015" validate:"gt=0,lte=1"`
	MaxPositionWeight float64 `json:"max_position_weight" default:"0.15" validate:"gt=0,lte=1"`
	BaseRiskPct       float64 `json:"base_risk_pct" default:"0.0051" validate:"gt=0,lt=1"`
}

// Size returns the share quantity bounded by per-trade risk, by a fraction
// of daily traded value, and by a maximum portfolio weight. Zero means skip.
func Size(in SizingInput) int64 {
	if in.ATR <= 0 || in.ADTV <= 0 || in.Close <= 0 || in.RiskAmount <= 0 ||
		in.RiskK <= 0 || in.ADTVLimitRatio <= 0 || in.MaxPositionWeight <= 0 || in.BaseRiskPct <= 0 {
		return 0
	}
	riskBased := in.RiskAmount / (in.RiskK * in.ATR)
	liquidityBased := in.ADTV * in.ADTVLimitRatio / in.Close
	qty := math.Floor(math.Min(riskBased, liquidityBased))

	equity := in.RiskAmount / in.BaseRiskPct
	qty = math.Min(qty, math.Floor(equity*in.MaxPositionWeight/in.Close))
	if qty <= 0 || math.IsNaN(qty) {
		return 0
	}
	return int64(qty)
}

// SizeFor fills the policy-wide inputs for a symbol's market.
func (p Policy) SizeFor(atr, adtv, close, riskAmount float64) int64 {
	return Size(SizingInput{
		ATR:               atr,
		ADTV:              adtv,
		Close:             close,
		RiskAmount:        riskAmount,
		RiskK:             p.RiskATRMult,
		ADTVLimitRatio:    p.ADTVLimitRatio,
		MaxPositionWeight: p.MaxPositionWeight,
		BaseRiskPct:       p.RiskPct,
	})
}
