package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"paygate/cmd/server/config"
	"paygate/internal/events"
	"paygate/internal/merchant"
	"paygate/internal/observability"
	"paygate/internal/realtime"
	"paygate/internal/rpc"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	merchantCfg, err := config.LoadMerchant()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	kafkaCfg, err := config.LoadKafka()
	if err != nil {
		return err
	}

	orders, txns, cleanupStores, err := buildStores(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupStores()

	orders, cleanupCache, err := buildOrderCache(ctx, orders, logger)
	if err != nil {
		return err
	}
	defer cleanupCache()

	hub := realtime.NewHub(logger)
	go hub.Run()

	publishers := []events.Publisher{events.NewBroadcastPublisher(hub)}
	if len(kafkaCfg.Brokers) > 0 {
		producer, perr := events.NewSyncProducer(kafkaCfg.Brokers)
		if perr != nil {
			return perr
		}
		kafkaPub := events.NewKafkaPublisher(producer, kafkaCfg.Topic, logger)
		defer func() {
			if cerr := kafkaPub.Close(); cerr != nil {
				logger.Warn("close kafka producer", zap.Error(cerr))
			}
		}()
		publishers = append(publishers, kafkaPub)
		logger.Info("kafka publishing enabled", zap.Strings("brokers", kafkaCfg.Brokers), zap.String("topic", kafkaCfg.Topic))
	}

	service := merchant.NewService(merchant.ServiceConfig{
		Orders:       orders,
		Transactions: txns,
		Events:       events.NewSink(logger, publishers...),
		Logger:       logger,
	})
	validator := merchant.NewCredentialValidator(merchant.CredentialConfig{
		MerchantID:       merchantCfg.MerchantID,
		Key:              merchantCfg.Key,
		RequireSignature: merchantCfg.RequireSignature,
	})

	metrics := observability.NewMetrics()
	router := buildRouter(validator, service, metrics, hub, logger, httpCfg)

	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", zap.String("addr", httpCfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func buildRouter(
	validator *merchant.CredentialValidator,
	service *merchant.Service,
	metrics *observability.Metrics,
	hub *realtime.Hub,
	logger *zap.Logger,
	httpCfg config.HTTPConfig,
) *gin.Engine {
	if os.Getenv("APP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(metrics.Middleware())

	webhook := router.Group("/")
	if httpCfg.RateLimitInterval > 0 && httpCfg.RateLimitBurst > 0 {
		limiter := rpc.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst)
		webhook.Use(rpc.RateLimitMiddleware(limiter))
	}
	rpc.NewHandler(validator, service, metrics, logger).Register(webhook)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws/payments", hub.ServeWS)
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
