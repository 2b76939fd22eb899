package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"agri-analytics-api/pkg/models"
	"agri-analytics-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxUploadSize = 10 << 20 // 10MB

// HistoryStore is the writable side of the sales history.
type HistoryStore interface {
	Append(observations ...models.HistoricalObservation)
	Products() []string
}

// HistoryHandler 販売履歴の取り込みハンドラー
type HistoryHandler struct {
	store  HistoryStore
	logger *logrus.Logger
}

// NewHistoryHandler 新しい販売履歴ハンドラーを作成
func NewHistoryHandler(store HistoryStore, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

// ImportFile は.csvまたは.xlsxの販売履歴を取り込みます。
// 列: 日付, 商品ID, 数量, 単価(任意)
func (h *HistoryHandler) ImportFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "ファイルの取得に失敗しました。")
		return
	}
	defer file.Close()

	var observations []models.HistoricalObservation
	switch ext := strings.ToLower(filepath.Ext(fileHeader.Filename)); ext {
	case ".xlsx":
		observations, err = services.ParseHistoryXLSX(file, c.PostForm("sheet"))
	case ".csv":
		observations, err = services.ParseHistoryCSV(file)
	default:
		respondError(c, http.StatusBadRequest, "サポートされていないファイル形式です。.xlsxまたは.csvをアップロードしてください。")
		return
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("ファイルの解析に失敗しました: %v", err))
		return
	}

	h.store.Append(observations...)
	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{
			"file":         fileHeader.Filename,
			"observations": len(observations),
		}).Info("sales history imported")
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"file_name":    fileHeader.Filename,
		"observations": len(observations),
		"products":     len(h.store.Products()),
	})
}

// AppendObservations JSONで販売実績を追加
func (h *HistoryHandler) AppendObservations(c *gin.Context) {
	var observations []models.HistoricalObservation
	if err := c.ShouldBindJSON(&observations); err != nil {
		respondError(c, http.StatusBadRequest, "リクエストの解析に失敗しました: "+err.Error())
		return
	}
	for i, o := range observations {
		if o.ProductID == "" || o.Timestamp.IsZero() || o.Quantity < 0 {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("observation %d: product_id, timestamp and a non-negative quantity are required", i))
			return
		}
	}
	h.store.Append(observations...)
	c.JSON(http.StatusCreated, gin.H{"success": true, "observations": len(observations)})
}

// ListProducts 履歴を持つ商品ID一覧
func (h *HistoryHandler) ListProducts(c *gin.Context) {
	products := h.store.Products()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    products,
		"count":   len(products),
	})
}
