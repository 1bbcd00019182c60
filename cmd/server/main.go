package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"glamshot/internal/api"
	"glamshot/internal/config"
	"glamshot/internal/kvstore"
	"glamshot/internal/model"
	"glamshot/internal/records"
	"glamshot/internal/service"
	"glamshot/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	locator, err := storage.NewLocator(store, storage.LocatorConfig{
		PublicDomain: cfg.StoragePublicDomain,
		SignTTL:      time.Duration(cfg.SignTTLSeconds) * time.Second,
		CacheTTL:     time.Duration(cfg.SignCacheTTLSeconds) * time.Second,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to initialise url locator")
		return
	}

	kv, err := kvstore.NewFileStore(cfg.LocalCacheDir)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise local cache")
		return
	}
	recordStore := records.NewStore(kv, cfg.RecordCap)

	recordService := service.NewRecordService(recordStore, locator, repo, store, cfg.CloudSyncLimit)
	creditService := service.NewCreditService(repo, cfg.DefaultCredits)

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, recordService, creditService)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	apiGroup := r.Group("/api")
	apiGroup.Use(httpHandler.IdentityMiddleware())

	// 记录接口允许游客作用域
	apiGroup.GET("/records", httpHandler.ListRecords)
	apiGroup.POST("/records", httpHandler.CreateRecord)
	apiGroup.DELETE("/records/:id", httpHandler.DeleteRecord)

	// 同步与积分必须登录
	protected := apiGroup.Group("")
	protected.Use(httpHandler.RequireUser())
	protected.POST("/records/sync", httpHandler.SyncRecords)
	protected.GET("/credits", httpHandler.GetCredits)
	protected.POST("/credits/deduct", httpHandler.DeductCredits)
	protected.POST("/credits/add", httpHandler.AddCredits)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("服务器启动失败")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
