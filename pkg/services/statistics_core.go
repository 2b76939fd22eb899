package services

import (
	"math"

	"agri-analytics-api/pkg/models"
)

const (
	// stableTrendThreshold は正規化した傾きがこの値未満なら横ばいとみなす
	stableTrendThreshold = 0.05
	defaultSeasonPeriod  = 7
	defaultSmoothing     = 0.3
)

// StatisticsService 統計分析サービス（状態を持たない）
type StatisticsService struct{}

// NewStatisticsService 新しい統計分析サービスを作成
func NewStatisticsService() *StatisticsService {
	return &StatisticsService{}
}

// TrendResult トレンド検出の結果
type TrendResult struct {
	Direction models.TrendDirection `json:"direction"`
	Strength  float64               `json:"strength"`
	Slope     float64               `json:"slope"`
}

// Normalize min-max正規化で[0,1]に変換する。全て同じ値なら0.5を返す。
func (s *StatisticsService) Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	span := maxV - minV
	for i, v := range values {
		if span == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (v - minV) / span
	}
	return out
}

// MovingAverage 後方移動平均。先頭では利用可能な点数だけで平均する。
func (s *StatisticsService) MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := window
		if i+1 < window {
			n = i + 1
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Trend returns the least-squares slope over the index, normalized by the mean.
func (s *StatisticsService) Trend(values []float64) TrendResult {
	stable := TrendResult{Direction: models.TrendStable}
	if len(values) < 2 {
		return stable
	}
	mean := calculateMean(values)
	if mean == 0 {
		return stable
	}
	slope := indexSlope(values)
	normalized := slope / math.Abs(mean)

	res := TrendResult{Strength: math.Abs(normalized), Slope: slope}
	switch {
	case math.Abs(normalized) < stableTrendThreshold:
		res.Direction = models.TrendStable
	case normalized > 0:
		res.Direction = models.TrendUp
	default:
		res.Direction = models.TrendDown
	}
	return res
}

// SeasonalityIndex 現在の位相の平均をパターン全体の平均で割った季節指数。
// 完全な周期が2つ未満なら1.0を返す。
func (s *StatisticsService) SeasonalityIndex(values []float64, period int) float64 {
	if period <= 0 {
		period = defaultSeasonPeriod
	}
	cycles := len(values) / period
	if cycles < 2 {
		return 1.0
	}

	phaseAvg := make([]float64, period)
	for p := 0; p < period; p++ {
		sum := 0.0
		for c := 0; c < cycles; c++ {
			sum += values[c*period+p]
		}
		phaseAvg[p] = sum / float64(cycles)
	}

	patternAvg := calculateMean(phaseAvg)
	if patternAvg == 0 {
		return 1.0
	}
	current := (len(values) - 1) % period
	return phaseAvg[current] / patternAvg
}

// Confidence blends accuracy, data quality and sample size into a score in [0,1].
func (s *StatisticsService) Confidence(historicalAccuracy []float64, dataQuality float64, sampleSize int) float64 {
	avgAccuracy := calculateMean(historicalAccuracy)
	sampleScore := math.Min(1, float64(sampleSize)/100)
	return clamp(0.5*avgAccuracy+0.3*dataQuality+0.2*sampleScore, 0, 1)
}

// ExponentialSmoothing 指数平滑化（EWMA）。alphaが(0,1]の外なら0.3を使う。
func (s *StatisticsService) ExponentialSmoothing(values []float64, alpha float64) []float64 {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultSmoothing
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// CalculateDemandPattern 需要系列の平均・標準偏差・安定度を計算
func (s *StatisticsService) CalculateDemandPattern(quantities []float64) models.DemandPattern {
	mean := calculateMean(quantities)
	std := calculateStandardDeviation(quantities)

	consistency := 0.0
	if mean > 0 {
		consistency = clamp(1-std/mean, 0, 1)
	}
	return models.DemandPattern{
		AverageDailyDemand: mean,
		StandardDeviation:  std,
		Consistency:        consistency,
	}
}

// Mean 平均値
func (s *StatisticsService) Mean(values []float64) float64 {
	return calculateMean(values)
}

// StandardDeviation 母標準偏差
func (s *StatisticsService) StandardDeviation(values []float64) float64 {
	return calculateStandardDeviation(values)
}

// Summarize runs every toolkit primitive over one series.
func (s *StatisticsService) Summarize(values []float64, window, period int, alpha float64) models.StatisticalSummary {
	trend := s.Trend(values)
	return models.StatisticalSummary{
		Count:            len(values),
		Pattern:          s.CalculateDemandPattern(values),
		TrendDirection:   trend.Direction,
		TrendStrength:    trend.Strength,
		SeasonalityIndex: s.SeasonalityIndex(values, period),
		MovingAverage:    s.MovingAverage(values, window),
		Smoothed:         s.ExponentialSmoothing(values, alpha),
		Normalized:       s.Normalize(values),
		Outliers:         s.DetectOutliers(values),
	}
}
