// Package server wires configuration, services and handlers into a Gin engine
// shared by the standalone server and the serverless entrypoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	config "agri-analytics-api/configs"
	"agri-analytics-api/pkg/handlers"
	"agri-analytics-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// historyBackend は予測の入力と取り込みの両方を担う履歴ストアです。
type historyBackend interface {
	services.HistorySource
	handlers.HistoryStore
}

// App はルーター構築に必要な依存関係をまとめたものです。
type App struct {
	cfg        *config.Config
	logger     *logrus.Logger
	history    historyBackend
	market     *services.MemoryMarketTrendSource
	cache      services.PredictionCache
	monitoring *services.MonitoringService
}

// New はサービス層を初期化します。返されるcleanupでRedis接続を閉じます。
func New(cfg *config.Config, logger *logrus.Logger) (*App, func(), error) {
	cleanup := func() {}

	var history historyBackend = services.NewMemoryHistorySource()
	if cfg.History.File != "" {
		fileHistory, err := services.NewFileHistorySource(cfg.History.File, cfg.History.Sheet)
		if err != nil {
			return nil, cleanup, fmt.Errorf("load sales history: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"file":     cfg.History.File,
			"products": len(fileHistory.Products()),
		}).Info("sales history loaded")
		history = fileHistory
	}

	var cache services.PredictionCache = services.NewMemoryPredictionCache()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			// Redisが無くても予測は動く
			logger.WithError(err).WithField("addr", cfg.Redis.Addr()).Warn("redis unavailable, using in-memory prediction cache")
			_ = client.Close()
		} else {
			logger.WithField("addr", cfg.Redis.Addr()).Info("using redis prediction cache")
			cache = services.NewRedisPredictionCache(client, cfg.Forecast.CacheTTL)
			cleanup = func() { _ = client.Close() }
		}
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		history:    history,
		market:     services.NewMemoryMarketTrendSource(),
		cache:      cache,
		monitoring: services.NewMonitoringService(logger, 0),
	}, cleanup, nil
}

// Router はすべてのハンドラーを登録したGinエンジンを返します。
func (a *App) Router() *gin.Engine {
	cfg := a.cfg
	stats := services.NewStatisticsService()

	forecaster := services.NewDemandForecastService(a.history, a.cache, stats, services.ForecastSettings{
		CacheTTL:         cfg.Forecast.CacheTTL,
		ServiceLevelZ:    cfg.Forecast.ServiceLevelZ,
		HoldingCostRate:  cfg.Forecast.HoldingCostRate,
		OrderingCost:     cfg.Forecast.OrderingCost,
		MinOrderQuantity: cfg.Forecast.MinOrderQuantity,
		DefaultLeadTime:  cfg.Forecast.DefaultLeadTime,
		MinSampleSize:    cfg.Forecast.MinSampleSize,
	}, a.logger, services.WithSyntheticHistory(services.NewSyntheticHistoryGenerator(cfg.History.SyntheticSeed, cfg.History.SyntheticDays)))

	pricing := services.NewPriceOptimizationService(a.market, stats, services.PricingSettings{
		PriceStep:         cfg.Pricing.PriceStep,
		DefaultElasticity: cfg.Pricing.DefaultElasticity,
		ElasticityScale:   cfg.Pricing.ElasticityScale,
		HistoryWindow:     cfg.Pricing.HistoryWindow,
		HistoryCapacity:   cfg.Pricing.HistoryCapacity,
	}, a.logger)

	// ハンドラーの初期化
	demandForecastHandler := handlers.NewDemandForecastHandler(forecaster)
	priceHandler := handlers.NewPriceOptimizationHandler(pricing, a.market)
	statisticsHandler := handlers.NewStatisticsHandler(stats)
	historyHandler := handlers.NewHistoryHandler(a.history, a.logger)
	adminHandler := handlers.NewAdminHandler(cfg.Admin, a.logger)
	monitoringHandler := handlers.NewMonitoringHandler(a.monitoring)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.monitoring.LoggingMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-API-KEY", "X-Request-ID")
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	r.Use(cors.New(corsConfig))

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.Server.APIKey))
	{
		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		// モニタリングAPI
		v1.GET("/monitoring/logs", monitoringHandler.GetLogs)

		api := v1.Group("", handlers.MaintenanceGuard())

		// 在庫・需要予測API
		inventory := api.Group("/inventory")
		{
			inventory.POST("/predict", demandForecastHandler.PredictStockNeeds)
			inventory.POST("/optimize", demandForecastHandler.OptimizeStockLevels)
			inventory.GET("/forecast/:productId", demandForecastHandler.ForecastDemand)
			inventory.GET("/anomalies/:productId", demandForecastHandler.DetectAnomalies)
			inventory.GET("/summary/:productId", demandForecastHandler.SalesSummary)
			inventory.DELETE("/cache", demandForecastHandler.ClearCache)
			inventory.DELETE("/cache/:productId", demandForecastHandler.EvictPrediction)
		}

		// 価格最適化API
		pricingGroup := api.Group("/pricing")
		{
			pricingGroup.POST("/optimize", priceHandler.OptimizePrice)
			pricingGroup.POST("/dynamic", priceHandler.CalculateDynamicPrice)
			pricingGroup.GET("/elasticity/:productId", priceHandler.AnalyzeElasticity)
			pricingGroup.GET("/competitive", priceHandler.GetCompetitivePricing)
			pricingGroup.POST("/optimal-point", priceHandler.FindOptimalPricePoint)
			pricingGroup.POST("/sales", priceHandler.RecordSale)
		}
		api.POST("/market/trends", priceHandler.UpdateMarketTrend)

		// 統計API
		api.POST("/stats/summary", statisticsHandler.Summarize)
		api.POST("/stats/correlation", statisticsHandler.Correlation)

		// 販売履歴API
		history := api.Group("/history")
		{
			history.POST("/import", historyHandler.ImportFile)
			history.POST("/observations", historyHandler.AppendObservations)
			history.GET("/products", historyHandler.ListProducts)
		}
	}

	return r
}

// authMiddleware はX-API-KEYヘッダーを検証します。キー未設定なら認証しません。
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
