package services

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToStep rounds price to the nearest multiple of step in decimal
// arithmetic, so 0.1-style float drift never leaks into a returned price.
// Non-finite prices are returned unchanged.
func RoundToStep(price, step float64) float64 {
	if step <= 0 || !isFinite(price) || !isFinite(step) {
		return price
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(price).Div(s).Round(0).Mul(s).InexactFloat64()
}

// roundTo 小数点以下の桁数で丸める
func roundTo(v float64, places int32) float64 {
	if !isFinite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
