package services

import "math"

// DetectOutliers Tukeyの1.5×IQRフェンスで外れ値を判定する。4点未満は全てfalse。
func (s *StatisticsService) DetectOutliers(values []float64) []bool {
	flags := make([]bool, len(values))
	if len(values) < 4 {
		return flags
	}
	q1, q3 := quartiles(values)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr
	for i, v := range values {
		flags[i] = v < lower || v > upper
	}
	return flags
}

// ZScore はstdがゼロのとき0を返す
func (s *StatisticsService) ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// calculateSeverity 異常の深刻度を計算
func (s *StatisticsService) calculateSeverity(absZScore float64) string {
	if absZScore > 3.0 {
		return "high"
	} else if absZScore > 2.0 {
		return "medium"
	}
	return "none"
}

// AnomalySeverity returns none, medium or high for a z-score.
func (s *StatisticsService) AnomalySeverity(z float64) string {
	return s.calculateSeverity(math.Abs(z))
}
