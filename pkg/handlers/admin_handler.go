package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	config "agri-analytics-api/configs"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// isMaintenanceMode はサーバーがメンテナンスモードかどうかを示します。
var isMaintenanceMode atomic.Bool

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	username  string
	password  string
	startedAt time.Time
	logger    *logrus.Logger
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg config.AdminConfig, logger *logrus.Logger) *AdminHandler {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &AdminHandler{
		username:  cfg.Username,
		password:  cfg.Password,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	isMaintenanceMode.Store(true)
	h.logger.Warn("maintenance mode started")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	isMaintenanceMode.Store(false)
	h.logger.Info("maintenance mode stopped")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"isMaintenanceMode": isMaintenanceMode.Load(),
		"uptimeSeconds":     int64(time.Since(h.startedAt).Seconds()),
	})
}

// authorize は認証に失敗した場合レスポンスを書き込みfalseを返します。
// パスワード未設定の場合、管理操作は常に拒否されます。
func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "Username and password are required")
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(input.Password), []byte(h.password)) == 1
	if h.password == "" || !userOK || !passOK {
		h.logger.WithField("username", input.Username).Warn("admin authentication failed")
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return false
	}
	return true
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func HealthCheck(c *gin.Context) {
	if isMaintenanceMode.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MaintenanceGuard はメンテナンス中のAPI呼び出しを503で拒否します。
func MaintenanceGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isMaintenanceMode.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "Server is in maintenance mode",
			})
			return
		}
		c.Next()
	}
}
