package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"agri-analytics-api/pkg/models"
)

// 集計粒度
const (
	GranularityDaily   = "daily"
	GranularityWeekly  = "weekly"
	GranularityMonthly = "monthly"
)

// periodGrowthThreshold 平均変化率(%)がこれを超えるとトレンドありとみなす
const periodGrowthThreshold = 2.0

type periodBucket struct {
	start        time.Time
	end          time.Time
	observations []models.HistoricalObservation
}

// AggregateSales 販売履歴を日・週・月ごとに集計し、期間全体の統計と推奨事項を返す
func (s *StatisticsService) AggregateSales(observations []models.HistoricalObservation, granularity string) (*models.SalesAggregation, error) {
	if len(observations) == 0 {
		return nil, NewValidationError("no observations to aggregate")
	}
	if granularity == "" {
		granularity = GranularityWeekly
	}

	var keyOf func(time.Time) (time.Time, time.Time)
	switch granularity {
	case GranularityDaily:
		keyOf = func(t time.Time) (time.Time, time.Time) {
			d := truncateDay(t)
			return d, d
		}
	case GranularityWeekly:
		keyOf = func(t time.Time) (time.Time, time.Time) {
			monday := mondayOf(t)
			return monday, monday.AddDate(0, 0, 6)
		}
	case GranularityMonthly:
		keyOf = func(t time.Time) (time.Time, time.Time) {
			first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
			return first, first.AddDate(0, 1, -1)
		}
	default:
		return nil, NewValidationErrorf("unknown granularity %q (daily, weekly, monthly)", granularity)
	}

	buckets := groupByPeriod(observations, keyOf)
	periods := make([]models.PeriodSummary, 0, len(buckets))
	for i, b := range buckets {
		summary := summarizePeriod(i+1, b)
		if i > 0 && periods[i-1].TotalQuantity > 0 {
			prev := periods[i-1].TotalQuantity
			summary.ChangeRate = roundTo((summary.TotalQuantity-prev)/prev*100, 2)
		}
		periods = append(periods, summary)
	}

	agg := &models.SalesAggregation{
		ProductID:   observations[0].ProductID,
		Granularity: granularity,
		Periods:     periods,
	}
	overallPeriodStats(agg)
	agg.Trend = periodTrend(periods)
	agg.Recommendations = periodRecommendations(agg)
	return agg, nil
}

func groupByPeriod(observations []models.HistoricalObservation, keyOf func(time.Time) (time.Time, time.Time)) []periodBucket {
	index := map[time.Time]int{}
	var buckets []periodBucket
	for _, o := range observations {
		start, end := keyOf(o.Timestamp)
		i, ok := index[start]
		if !ok {
			i = len(buckets)
			index[start] = i
			buckets = append(buckets, periodBucket{start: start, end: end})
		}
		buckets[i].observations = append(buckets[i].observations, o)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].start.Before(buckets[j].start) })
	return buckets
}

func summarizePeriod(index int, b periodBucket) models.PeriodSummary {
	qty := make([]float64, len(b.observations))
	days := map[time.Time]struct{}{}
	summary := models.PeriodSummary{
		Index:       index,
		Start:       b.start.Format("2006-01-02"),
		End:         b.end.Format("2006-01-02"),
		MinQuantity: math.Inf(1),
		MaxQuantity: math.Inf(-1),
	}
	for i, o := range b.observations {
		qty[i] = o.Quantity
		summary.TotalQuantity += o.Quantity
		summary.Revenue += o.Quantity * o.UnitPrice
		summary.MinQuantity = math.Min(summary.MinQuantity, o.Quantity)
		summary.MaxQuantity = math.Max(summary.MaxQuantity, o.Quantity)
		days[truncateDay(o.Timestamp)] = struct{}{}
	}
	summary.Days = len(days)
	summary.AverageQuantity = roundTo(summary.TotalQuantity/float64(summary.Days), 2)
	summary.StdDev = roundTo(calculateStandardDeviation(qty), 2)
	summary.TotalQuantity = roundTo(summary.TotalQuantity, 2)
	summary.Revenue = roundTo(summary.Revenue, 2)
	return summary
}

func overallPeriodStats(agg *models.SalesAggregation) {
	totals := make([]float64, len(agg.Periods))
	best, worst := 0, 0
	for i, p := range agg.Periods {
		totals[i] = p.TotalQuantity
		if p.TotalQuantity > agg.Periods[best].TotalQuantity {
			best = i
		}
		if p.TotalQuantity < agg.Periods[worst].TotalQuantity {
			worst = i
		}
	}
	agg.BestPeriod = agg.Periods[best].Index
	agg.WorstPeriod = agg.Periods[worst].Index

	mean := calculateMean(totals)
	agg.AverageTotal = roundTo(mean, 2)
	agg.MedianTotal = roundTo(median(totals), 2)
	if first := totals[0]; len(totals) > 1 && first > 0 {
		agg.GrowthRate = roundTo((totals[len(totals)-1]-first)/first*100, 2)
	}
	if mean > 0 {
		agg.Volatility = roundTo(calculateStandardDeviation(totals)/mean, 4)
	}
}

// periodTrend 期間ごとの変化率の平均からトレンドを判定する
func periodTrend(periods []models.PeriodSummary) models.TrendDirection {
	if len(periods) < 2 {
		return models.TrendStable
	}
	var sum float64
	for _, p := range periods[1:] {
		sum += p.ChangeRate
	}
	avg := sum / float64(len(periods)-1)
	switch {
	case avg > periodGrowthThreshold:
		return models.TrendUp
	case avg < -periodGrowthThreshold:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

func periodRecommendations(agg *models.SalesAggregation) []string {
	var recs []string
	switch agg.Trend {
	case models.TrendUp:
		recs = append(recs, "Ventes en hausse: anticiper les réapprovisionnements")
	case models.TrendDown:
		recs = append(recs, "Ventes en baisse: réduire les commandes ou envisager une promotion")
	}
	if agg.Volatility > 0.3 {
		recs = append(recs, fmt.Sprintf("Forte variabilité entre périodes (CV %.0f%%): augmenter le stock de sécurité", agg.Volatility*100))
	}
	if len(agg.Periods) > 1 && agg.BestPeriod != agg.WorstPeriod {
		recs = append(recs, fmt.Sprintf("Meilleure période: n°%d, plus faible: n°%d", agg.BestPeriod, agg.WorstPeriod))
	}
	if len(recs) == 0 {
		recs = append(recs, "Ventes stables: maintenir le niveau de stock actuel")
	}
	return recs
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOf 週の開始(月曜日)
func mondayOf(t time.Time) time.Time {
	d := truncateDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
