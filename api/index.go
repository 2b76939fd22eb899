package handler

import (
	"net/http"
	"sync"

	config "agri-analytics-api/configs"
	"agri-analytics-api/internal/server"
	"agri-analytics-api/pkg/services"

	"github.com/gin-gonic/gin"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
// Redis接続はウォームインスタンスの間使い回すため閉じません。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		cfg, err := config.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		gin.SetMode(gin.ReleaseMode)
		logger := services.NewLogger(cfg.LogLevel, cfg.Environment)

		a, _, err := server.New(cfg, logger)
		if err != nil {
			logger.WithError(err).Error("failed to initialize services in serverless function")
			initErr = err
			return
		}
		app = a.Router()
		logger.Info("serverless application initialized")
	})
	return app, initErr
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"service initialization failed"}`))
		return
	}
	engine.ServeHTTP(w, r)
}
