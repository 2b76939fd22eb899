package services

import (
	"strings"
	"time"
)

// Category 商品カテゴリ
type Category string

const (
	CategoryFruits   Category = "fruits"
	CategoryLegumes  Category = "legumes"
	CategoryCereales Category = "cereales"
	CategoryUnknown  Category = "unknown"
)

// ParseCategory maps a free-form label to a known category. It never fails.
func ParseCategory(label string) Category {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "fruits", "fruit":
		return CategoryFruits
	case "legumes", "légumes", "legume", "légume", "vegetables":
		return CategoryLegumes
	case "cereales", "céréales", "cereale", "céréale", "cereals", "grains":
		return CategoryCereales
	default:
		return CategoryUnknown
	}
}

// Known reports whether the category has its own tables.
func (c Category) Known() bool {
	switch c {
	case CategoryFruits, CategoryLegumes, CategoryCereales:
		return true
	default:
		return false
	}
}

var (
	fruitsSeasonality   = [12]float64{0.8, 0.85, 0.95, 1.1, 1.25, 1.3, 1.2, 1.1, 1.0, 0.9, 0.85, 0.8}
	legumesSeasonality  = [12]float64{0.9, 0.9, 1.0, 1.1, 1.15, 1.2, 1.1, 1.05, 1.0, 0.95, 0.9, 0.9}
	cerealesSeasonality = [12]float64{1.1, 1.05, 1.0, 0.95, 0.9, 0.85, 0.9, 0.95, 1.05, 1.15, 1.2, 1.15}
)

// SeasonalFactor 月別の需要倍率。未知のカテゴリは1.0。
func (c Category) SeasonalFactor(month time.Month) float64 {
	if month < time.January || month > time.December {
		return 1.0
	}
	idx := int(month) - 1
	switch c {
	case CategoryFruits:
		return fruitsSeasonality[idx]
	case CategoryLegumes:
		return legumesSeasonality[idx]
	case CategoryCereales:
		return cerealesSeasonality[idx]
	default:
		return 1.0
	}
}

// LeadTimeDays 補充にかかる日数
func (c Category) LeadTimeDays(defaultDays int) int {
	switch c {
	case CategoryFruits, CategoryLegumes:
		return 2
	case CategoryCereales:
		return 5
	default:
		if defaultDays <= 0 {
			return 3
		}
		return defaultDays
	}
}

// baseDailyDemand 合成履歴の基準日販
func (c Category) baseDailyDemand() float64 {
	switch c {
	case CategoryFruits:
		return 10
	case CategoryLegumes:
		return 25
	case CategoryCereales:
		return 40
	default:
		return 15
	}
}
