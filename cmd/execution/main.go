package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	orderapp "github.com/wyfcoding/tradeexecution/internal/order/application"
	orderdomain "github.com/wyfcoding/tradeexecution/internal/order/domain"
	"github.com/wyfcoding/tradeexecution/internal/order/infrastructure/persistence/mysql"
	orderhttp "github.com/wyfcoding/tradeexecution/internal/order/interfaces"
	"github.com/wyfcoding/tradeexecution/internal/marketdata"
	"github.com/wyfcoding/tradeexecution/internal/notification"
	"github.com/wyfcoding/tradeexecution/internal/risk"
	"github.com/wyfcoding/tradeexecution/internal/security"
	slideapp "github.com/wyfcoding/tradeexecution/internal/slide/application"
	slidedomain "github.com/wyfcoding/tradeexecution/internal/slide/domain"
	"github.com/wyfcoding/tradeexecution/internal/slide/infrastructure/memory"
	slideredis "github.com/wyfcoding/tradeexecution/internal/slide/infrastructure/persistence/redis"
	slidehttp "github.com/wyfcoding/tradeexecution/internal/slide/interfaces"
	"github.com/wyfcoding/tradeexecution/pkg/cache"
	"github.com/wyfcoding/tradeexecution/pkg/config"
	"github.com/wyfcoding/tradeexecution/pkg/db"
	"github.com/wyfcoding/tradeexecution/pkg/logger"
	"github.com/wyfcoding/tradeexecution/pkg/metrics"
	"github.com/wyfcoding/tradeexecution/pkg/middleware"
	"github.com/wyfcoding/tradeexecution/pkg/mq"
	"github.com/wyfcoding/tradeexecution/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/execution/config.toml", "config file path")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting TradeExecutionService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(&orderdomain.Order{}, &orderdomain.Trade{}); err != nil {
		logger.Fatal(ctx, "Failed to migrate database schema", "error", err)
	}

	// 4. 初始化 Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
	}
	defer redisCache.Close()

	// 5. 初始化 Kafka 生产者
	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize Kafka producer", "error", err)
	}
	defer producer.Close()

	// 6. 初始化指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	go func() {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Metrics HTTP server error", "error", err)
		}
	}()

	// 7. 装配订单域
	orderRepo := mysql.NewOrderRepository(database.DB)
	tradeRepo := mysql.NewTradeRepository(database.DB)
	quoteSource := marketdata.NewRedisQuoteSource(redisCache)
	orderService := orderapp.NewOrderApplicationService(orderRepo, tradeRepo, quoteSource)

	// 8. 装配滑动确认域
	riskEngine := risk.NewEngine(redisCache, quoteSource)
	checker := slidedomain.NewSecurityChecker(
		security.NewDeviceVerifier(redisCache),
		security.NewBiometricVerifier(redisCache),
		security.NewLocationVerifier(redisCache),
		security.NewSessionVerifier(redisCache),
	)
	behaviorAnalyzer := security.NewBehaviorAnalyzer(redisCache)
	notifier := notification.NewKafkaPublisher(producer, cfg.Kafka.NotificationTopic)
	slideStore := memory.NewSlideOrderStore()
	slideMirror := slideredis.NewSlideOrderStore(redisCache)
	slideService := slideapp.NewSlideApplicationService(
		orderService,
		quoteSource,
		riskEngine,
		behaviorAnalyzer,
		notifier,
		checker,
		slideStore,
		slideMirror,
		redisCache,
		time.Duration(cfg.Slide.TokenTTL)*time.Millisecond,
		cfg.Slide.MaxAttempts,
	)

	// 9. 过期会话清理任务
	sweeper := cron.New()
	sweepSpec := fmt.Sprintf("@every %ds", cfg.Slide.SweepInterval)
	if _, err := sweeper.AddFunc(sweepSpec, func() {
		swept, err := slideService.SweepExpired(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to sweep expired slide sessions", "error", err)
			return
		}
		if swept > 0 {
			m.SlideSessionsSweptTotal.Add(float64(swept))
		}
		m.SlideSessionsActive.Set(float64(slideService.ActiveSessions()))
	}); err != nil {
		logger.Fatal(ctx, "Failed to schedule slide session sweeper", "error", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// 10. 启动 HTTP 服务
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.GinLoggingMiddleware(),
		middleware.GinRecoveryMiddleware(),
		middleware.GinCORSMiddleware(),
	)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		engine.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	api := engine.Group("/api/v1")
	orderhttp.NewOrderHandler(orderService, m).RegisterRoutes(api)
	slidehttp.NewSlideHandler(slideService, m).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info(ctx, "Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server error", "error", err)
		}
	}()

	// 11. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down TradeExecutionService")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error", "error", err)
	}
	logger.Info(ctx, "TradeExecutionService stopped")
}
