package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"agri-analytics-api/pkg/models"
	"agri-analytics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MarketTrendUpdater accepts new market snapshots.
type MarketTrendUpdater interface {
	Update(trend models.MarketTrend)
}

// PriceOptimizationHandler 価格最適化ハンドラー
type PriceOptimizationHandler struct {
	pricing *services.PriceOptimizationService
	market  MarketTrendUpdater
	now     func() time.Time
}

// NewPriceOptimizationHandler 新しい価格最適化ハンドラーを作成
func NewPriceOptimizationHandler(pricing *services.PriceOptimizationService, market MarketTrendUpdater) *PriceOptimizationHandler {
	return &PriceOptimizationHandler{pricing: pricing, market: market, now: time.Now}
}

// RecordSaleRequest 販売実績の登録
type RecordSaleRequest struct {
	ProductID  string    `json:"product_id" binding:"required"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OptimizePrice 価格最適化を実行
func (h *PriceOptimizationHandler) OptimizePrice(c *gin.Context) {
	var request services.PriceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	result, err := h.pricing.OptimizePrice(c.Request.Context(), request)
	if err != nil {
		respondServiceError(c, err, "価格最適化に失敗しました")
		return
	}
	respondOK(c, result)
}

// CalculateDynamicPrice 動的価格を計算
func (h *PriceOptimizationHandler) CalculateDynamicPrice(c *gin.Context) {
	request := services.DynamicPriceRequest{TimeOfDay: -1}
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	// 時間帯未指定なら現在時刻
	if request.TimeOfDay < 0 {
		request.TimeOfDay = h.now().Hour()
	}
	result, err := h.pricing.CalculateDynamicPrice(c.Request.Context(), request)
	if err != nil {
		respondServiceError(c, err, "動的価格の計算に失敗しました")
		return
	}
	respondOK(c, result)
}

// AnalyzeElasticity 価格弾力性の分析
func (h *PriceOptimizationHandler) AnalyzeElasticity(c *gin.Context) {
	productID := c.Param("productId")
	if productID == "" {
		respondError(c, http.StatusBadRequest, "productId is required")
		return
	}
	respondOK(c, h.pricing.AnalyzePriceElasticity(productID))
}

// GetCompetitivePricing 競合価格との比較（?name=&price=）
func (h *PriceOptimizationHandler) GetCompetitivePricing(c *gin.Context) {
	price, err := strconv.ParseFloat(c.Query("price"), 64)
	if err != nil || price <= 0 {
		respondError(c, http.StatusBadRequest, "price query parameter must be a positive number")
		return
	}
	result, err := h.pricing.GetCompetitivePricing(c.Request.Context(), strings.TrimSpace(c.Query("name")), price)
	if err != nil {
		respondServiceError(c, err, "競合価格の分析に失敗しました")
		return
	}
	respondOK(c, result)
}

// FindOptimalPricePoint 利益最大の価格を探索
func (h *PriceOptimizationHandler) FindOptimalPricePoint(c *gin.Context) {
	var request services.OptimalPriceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	if request.Cost <= 0 || request.CurrentPrice <= 0 {
		respondError(c, http.StatusBadRequest, "cost and current_price must be positive")
		return
	}
	respondOK(c, h.pricing.FindOptimalPricePoint(request))
}

// RecordSale 販売実績（価格・数量）を登録
func (h *PriceOptimizationHandler) RecordSale(c *gin.Context) {
	var request RecordSaleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	if err := h.pricing.RecordSale(request.ProductID, request.Price, request.Volume, request.RecordedAt); err != nil {
		respondServiceError(c, err, "販売実績の登録に失敗しました")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"data_points": len(h.pricing.PriceHistory(request.ProductID)),
	})
}

// UpdateMarketTrend 市場動向スナップショットを登録
func (h *PriceOptimizationHandler) UpdateMarketTrend(c *gin.Context) {
	var trend models.MarketTrend
	if err := c.ShouldBindJSON(&trend); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	if strings.TrimSpace(trend.ProductName) == "" {
		respondError(c, http.StatusBadRequest, "product_name is required")
		return
	}
	switch trend.Trend {
	case models.TrendUp, models.TrendDown, models.TrendStable:
	case "":
		trend.Trend = models.TrendStable
	default:
		respondError(c, http.StatusBadRequest, "trend must be up, down or stable")
		return
	}
	if trend.UpdatedAt.IsZero() {
		trend.UpdatedAt = h.now()
	}
	h.market.Update(trend)
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": trend})
}
