package handlers

import (
	"net/http"

	"agri-analytics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// StatisticsHandler 統計ツールキットのハンドラー
type StatisticsHandler struct {
	stats *services.StatisticsService
}

// NewStatisticsHandler 新しい統計ハンドラーを作成
func NewStatisticsHandler(stats *services.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{stats: stats}
}

// SummaryRequest 系列の要約リクエスト
type SummaryRequest struct {
	Values []float64 `json:"values" binding:"required"`
	Window int       `json:"window"`
	Period int       `json:"period"`
	Alpha  float64   `json:"alpha"`
}

// CorrelationRequest 相関分析リクエスト
type CorrelationRequest struct {
	X []float64 `json:"x" binding:"required"`
	Y []float64 `json:"y" binding:"required"`
}

// Summarize は任意の系列の統計要約を返します。
func (h *StatisticsHandler) Summarize(c *gin.Context) {
	var request SummaryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	if request.Window == 0 {
		request.Window = 7
	}
	if request.Alpha == 0 {
		request.Alpha = 0.3
	}
	respondOK(c, h.stats.Summarize(request.Values, request.Window, request.Period, request.Alpha))
}

// Correlation ピアソン相関係数と解釈
func (h *StatisticsHandler) Correlation(c *gin.Context) {
	var request CorrelationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	if len(request.X) != len(request.Y) {
		respondError(c, http.StatusBadRequest, "x and y must have the same length")
		return
	}
	r := h.stats.Correlation(request.X, request.Y)
	respondOK(c, gin.H{
		"correlation":    r,
		"interpretation": h.stats.InterpretCorrelation(r),
		"sample_size":    len(request.X),
	})
}
