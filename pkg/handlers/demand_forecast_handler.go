package handlers

import (
	"net/http"
	"strconv"

	"agri-analytics-api/pkg/models"
	"agri-analytics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// DemandForecastHandler 需要予測ハンドラー
type DemandForecastHandler struct {
	demandForecastService *services.DemandForecastService
}

// NewDemandForecastHandler 新しい需要予測ハンドラーを作成
func NewDemandForecastHandler(service *services.DemandForecastService) *DemandForecastHandler {
	return &DemandForecastHandler{demandForecastService: service}
}

// OptimizeStockRequest 在庫最適化リクエスト
type OptimizeStockRequest struct {
	Items []models.StockItem `json:"items" binding:"required,dive"`
}

// PredictStockNeeds 在庫予測を実行
func (dfh *DemandForecastHandler) PredictStockNeeds(c *gin.Context) {
	var request services.StockNeedsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}

	prediction, err := dfh.demandForecastService.PredictStockNeeds(c.Request.Context(), request)
	if err != nil {
		respondServiceError(c, err, "在庫予測の実行に失敗しました")
		return
	}
	respondOK(c, prediction)
}

// OptimizeStockLevels 複数商品の在庫水準を評価
func (dfh *DemandForecastHandler) OptimizeStockLevels(c *gin.Context) {
	var request OptimizeStockRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}

	results, err := dfh.demandForecastService.OptimizeStockLevels(c.Request.Context(), request.Items)
	if err != nil {
		respondServiceError(c, err, "在庫最適化に失敗しました")
		return
	}

	totalSavings := 0.0
	for _, r := range results {
		totalSavings += r.PotentialSavings
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"data":          results,
		"count":         len(results),
		"total_savings": totalSavings,
	})
}

// ForecastDemand 日別需要予測（days: 1-90、デフォルト7）
func (dfh *DemandForecastHandler) ForecastDemand(c *gin.Context) {
	days := 7
	if daysStr := c.Query("days"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = d
	}

	forecasts, err := dfh.demandForecastService.ForecastDemand(c.Request.Context(), c.Param("productId"), days)
	if err != nil {
		respondServiceError(c, err, "需要予測の実行に失敗しました")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    forecasts,
		"count":   len(forecasts),
	})
}

// DetectAnomalies 異常検知を実行
func (dfh *DemandForecastHandler) DetectAnomalies(c *gin.Context) {
	demand, err := strconv.ParseFloat(c.Query("demand"), 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "demand query parameter must be a number")
		return
	}

	report, err := dfh.demandForecastService.DetectAnomalies(c.Request.Context(), c.Param("productId"), demand)
	if err != nil {
		respondServiceError(c, err, "異常検知の実行に失敗しました")
		return
	}
	respondOK(c, report)
}

// SalesSummary 販売履歴の期間別集計（granularity: daily, weekly, monthly）
func (dfh *DemandForecastHandler) SalesSummary(c *gin.Context) {
	summary, err := dfh.demandForecastService.SalesSummary(c.Request.Context(), c.Param("productId"), c.DefaultQuery("granularity", "weekly"))
	if err != nil {
		respondServiceError(c, err, "販売集計に失敗しました")
		return
	}
	respondOK(c, summary)
}

// EvictPrediction は指定商品・在庫水準のキャッシュを削除します。
func (dfh *DemandForecastHandler) EvictPrediction(c *gin.Context) {
	stock, err := strconv.ParseFloat(c.Query("stock"), 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "stock query parameter must be a number")
		return
	}
	if err := dfh.demandForecastService.EvictPrediction(c.Request.Context(), c.Param("productId"), stock); err != nil {
		respondServiceError(c, err, "キャッシュの削除に失敗しました")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Prediction evicted"})
}

// ClearCache 予測キャッシュを全て削除
func (dfh *DemandForecastHandler) ClearCache(c *gin.Context) {
	if err := dfh.demandForecastService.ClearCache(c.Request.Context()); err != nil {
		respondServiceError(c, err, "キャッシュの削除に失敗しました")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Prediction cache cleared"})
}
