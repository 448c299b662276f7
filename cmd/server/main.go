package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sunupay/subscription-service/internal/api/rest"
	"github.com/sunupay/subscription-service/internal/config"
	"github.com/sunupay/subscription-service/internal/directory"
	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/gateway"
	"github.com/sunupay/subscription-service/internal/gateway/cinetpay"
	"github.com/sunupay/subscription-service/internal/gateway/paytech"
	"github.com/sunupay/subscription-service/internal/metrics"
	"github.com/sunupay/subscription-service/internal/notification"
	"github.com/sunupay/subscription-service/internal/repository"
	"github.com/sunupay/subscription-service/internal/repository/postgres"
	"github.com/sunupay/subscription-service/internal/service"
	"github.com/sunupay/subscription-service/pkg/logger"
)

var log *logger.Logger

func init() {
	logLevel := logger.INFO
	if os.Getenv("DEBUG") == "true" {
		logLevel = logger.DEBUG
	}
	log = logger.New(logLevel)
}

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promRegistry := prometheus.NewRegistry()
	subscriptionMetrics := metrics.NewSubscriptionMetrics(promRegistry, log)
	systemMetrics := metrics.NewSystemMetrics(promRegistry, log)

	systemMetrics.StartRecording(15 * time.Second)
	defer systemMetrics.Stop()

	// Repository: PostgreSQL when a DSN is configured, in-memory otherwise
	var repo repository.SubscriptionRepository
	if cfg.Database.DSN != "" {
		dbPool, err := postgres.NewConnection(ctx, cfg.Database.DSN, log)
		if err != nil {
			log.Fatal("Failed to connect to database: %v", err)
		}
		defer dbPool.Close()
		repo = repository.NewPostgresSubscriptionRepository(dbPool, log)
	} else {
		log.Warn("No database DSN configured, using in-memory repository")
		repo = repository.NewInMemorySubscriptionRepository()
	}

	var cache service.StatusCache
	if cfg.Redis.Addr != "" {
		redisCache, err := repository.NewRedisStatusCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	userDirectory := directory.NewStaticDirectory(nil)

	// Notification sink: Kafka when brokers are configured, log otherwise
	var sink notification.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := notification.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal("Failed to create Kafka producer: %v", err)
		}
		kafkaSink := notification.NewKafkaSink(kafkaProducer, log)
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		log.Warn("No Kafka brokers configured, logging notifications instead")
		sink = notification.NewLogSink(log)
	}

	dispatcher := notification.NewDispatcher(sink, userDirectory, cfg.Notifications.QueueSize, log)
	dispatcher.Start()
	defer dispatcher.Stop()

	paytechClient := paytech.NewClient(paytech.Config{
		BaseURL:    cfg.PayTech.BaseURL,
		APIKey:     cfg.PayTech.APIKey,
		APISecret:  cfg.PayTech.APISecret,
		IPNURL:     cfg.PayTech.IPNURL,
		SuccessURL: cfg.PayTech.SuccessURL,
		CancelURL:  cfg.PayTech.CancelURL,
		Env:        cfg.PayTech.Env,
	}, log)
	cinetpayClient := cinetpay.NewClient(cinetpay.Config{
		BaseURL:   cfg.CinetPay.BaseURL,
		APIKey:    cfg.CinetPay.APIKey,
		SiteID:    cfg.CinetPay.SiteID,
		SecretKey: cfg.CinetPay.SecretKey,
		NotifyURL: cfg.CinetPay.NotifyURL,
		ReturnURL: cfg.CinetPay.ReturnURL,
	}, log)

	gateways := map[string]gateway.Client{
		paytechClient.Name():  paytechClient,
		cinetpayClient.Name(): cinetpayClient,
	}
	verifiers := []gateway.Verifier{
		paytech.NewVerifier(cfg.PayTech.APIKey, cfg.PayTech.APISecret, log),
		cinetpay.NewVerifier(cfg.CinetPay.SecretKey, log),
	}

	svc := service.NewSubscriptionService(repo, gateways, dispatcher, cache, subscriptionMetrics, log)

	sweeper := service.NewExpirationSweeper(
		repo, dispatcher, cache, subscriptionMetrics,
		cfg.Sweeper.Interval, cfg.Sweeper.WarnWindow, log,
	)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := rest.SetupRouter(svc, verifiers, subscriptionMetrics, promRegistry, log)
	server := rest.NewServer(router, cfg, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server error: %v", err)
		}
	}()

	log.Info("Subscription service started, selling %d tiers in %s", len(domain.Tiers()), domain.Currency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
