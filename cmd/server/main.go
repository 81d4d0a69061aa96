package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"claim-service/config"
	"claim-service/internal/api"
	"claim-service/internal/broker"
	"claim-service/internal/dedup"
	"claim-service/internal/fingerprint"
	"claim-service/internal/redisclient"
	"claim-service/internal/service"
	"claim-service/internal/store"
	"claim-service/internal/util"
	"claim-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	origin := instanceID(cfg.Server.InstanceID)
	logger.Info("Starting claim service", zap.String("instance", origin))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	if cfg.Database.RunMigrations {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("Database migrations applied")
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicClaims)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer, origin)

	kind, err := fingerprint.ParseKind(cfg.Review.HashKind)
	if err != nil {
		log.Fatalf("Invalid fingerprint configuration: %v", err)
	}
	engine := fingerprint.NewEngine(
		fingerprint.WithKind(kind),
		fingerprint.WithMaxPixels(cfg.Review.MaxProofPixels),
	)
	hasher := fingerprint.NewCachedEngine(engine, cfg.Review.FingerprintCacheBytes, cfg.Review.FingerprintCacheTTL)
	util.RegisterFingerprintCacheHitRate(hasher.HitRate)
	logger.Info("Fingerprint engine configured",
		zap.String("kind", string(engine.Kind())),
		zap.Int("duplicate_threshold", cfg.Review.DuplicateThreshold),
		zap.String("index", cfg.Review.Index))
	comparator := fingerprint.NewComparator(cfg.Review.DuplicateThreshold)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		index       dedup.Index
		indexWorker *worker.IndexWorker
	)
	switch cfg.Review.Index {
	case dedup.KindScan:
		index = dedup.NewScanIndex(db, comparator)
	case dedup.KindBKTree:
		tree := dedup.NewBKTree(comparator)

		// Each replica keeps its own tree, so each one reads every event.
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicClaims, cfg.Kafka.ConsumerGroup+"-"+origin)
		indexWorker = worker.NewIndexWorker(consumer, tree, origin)
		go func() {
			if err := indexWorker.Start(workerCtx); err != nil {
				logger.Error("Index worker error", zap.Error(err))
			}
		}()

		loadCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := tree.Load(loadCtx, db)
		cancel()
		if err != nil {
			log.Fatalf("Failed to load fingerprint index: %v", err)
		}
		logger.Info("Fingerprint index loaded", zap.Int("fingerprints", n))
		index = tree
	default:
		log.Fatalf("Unknown index %q, expected scan or bktree", cfg.Review.Index)
	}

	locker := redisclient.NewLocker(redisClient, cfg.Review.LockTTL)
	idempotency := redisclient.NewIdempotencyStore(redisClient, cfg.Review.IdempotencyTTL)

	inventory := service.NewInventory(db)
	claimService := service.NewClaimService(db, inventory, index, hasher, locker, idempotency,
		eventPublisher, cfg.Review.StrictFingerprint)
	paymentService := service.NewPaymentService(db, eventPublisher)
	campaignService := service.NewCampaignService(db, index, eventPublisher)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(claimService, paymentService, campaignService, cfg.Review.MaxProofBytes,
		api.ReadinessCheck{Name: "postgres", Check: db.Ping},
		api.ReadinessCheck{Name: "redis", Check: redisClient.Ping},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if indexWorker != nil {
		if err := indexWorker.Stop(); err != nil {
			logger.Warn("Failed to stop index worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// instanceID falls back to the hostname, then a random id
func instanceID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
