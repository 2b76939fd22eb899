package services

import "math"

// Correlation 2つのデータ系列のピアソン相関係数を計算。
// 長さ不一致・空・分散ゼロの場合は0を返す。
func (s *StatisticsService) Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	meanX := calculateMean(x)
	meanY := calculateMean(y)

	var sxy, sxx, syy float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return clamp(sxy/math.Sqrt(sxx*syy), -1, 1)
}

// InterpretCorrelation 相関係数の強さを解釈
func (s *StatisticsService) InterpretCorrelation(r float64) string {
	absR := math.Abs(r)
	switch {
	case absR >= 0.7:
		return "forte"
	case absR >= 0.4:
		return "modérée"
	case absR >= 0.2:
		return "faible"
	default:
		return "négligeable"
	}
}

// WeightedAverage 加重平均。長さ不一致・空・重み合計ゼロなら0。
func (s *StatisticsService) WeightedAverage(values, weights []float64) float64 {
	if len(values) != len(weights) || len(values) == 0 {
		return 0
	}
	var sum, total float64
	for i, v := range values {
		sum += v * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return sum / total
}
