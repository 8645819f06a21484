package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ms-checkout/internal/analytics"
	"ms-checkout/internal/api"
	"ms-checkout/internal/auth"
	"ms-checkout/internal/checkout"
	"ms-checkout/internal/config"
	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/events"
	"ms-checkout/internal/idempotency"
	"ms-checkout/internal/kafka"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/objectstore"
	"ms-checkout/internal/observability"
	"ms-checkout/internal/rewards"
	"ms-checkout/internal/sse"
	"ms-checkout/internal/tickets"
	qr "ms-checkout/internal/tickets/qr_genrator"
	"ms-checkout/internal/wallet"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func openPostgres(cfg config.DatabaseConfig, log *logger.Logger) *sql.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")
	return sqldb
}

func runMigrations(cfg config.DatabaseConfig, log *logger.Logger) {
	// the migrator closes its connection, so it gets its own pool
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to open migration connection: %v", err))
	}
	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{MigrationsDir: cfg.MigrationsDir, AutoMigrate: true}, log)
	defer runner.Close()

	if err := runner.RunMigrations(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
	}
}

func openRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func buildVerifier(ctx context.Context, cfg config.AuthConfig, client *redis.Client, log *logger.Logger) auth.Verifier {
	var chain auth.ChainVerifier
	if cfg.JWTSecret != "" {
		chain = append(chain, auth.NewHMACVerifier(cfg.JWTSecret))
	}
	if cfg.OIDCIssuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			log.Error("AUTH", fmt.Sprintf("OIDC discovery for %s failed: %v", cfg.OIDCIssuer, err))
		} else {
			chain = append(chain, oidcVerifier)
			log.Info("AUTH", fmt.Sprintf("OIDC verifier enabled for %s", cfg.OIDCIssuer))
		}
	}
	if len(chain) == 0 {
		log.Fatal("CONFIG", "Neither JWT_SECRET nor OIDC_ISSUER is set")
	}
	return auth.NewCachingVerifier(chain, client, log)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, ".env file not found, using environment variables")
	}

	cfg := config.Load()

	log := logger.New("checkout-service", cfg.LogDir)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	log.Info("APP", "Starting checkout service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
	if err != nil {
		log.Warn("TRACING", fmt.Sprintf("Tracing disabled: %v", err))
	}

	if cfg.Database.AutoMigrate {
		runMigrations(cfg.Database, log)
	}

	sqldb := openPostgres(cfg.Database, log)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	db := ledger.New(bunDB)

	redisClient := openRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	store, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Object store init failed: %v", err))
	}
	log.Info("STORAGE", fmt.Sprintf("Using %s object store", cfg.Storage.Driver))

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	emitter := sse.NewTransactionEventEmitter()
	eventCache := events.NewCache(redisClient, cfg.Redis.CacheTTL)

	var publisher checkout.Publisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		if missing, err := kafka.VerifyTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic verification failed: %v", err))
		} else if len(missing) > 0 {
			log.Warn("KAFKA", fmt.Sprintf("Topics not visible yet: %v", missing))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	checkoutSvc := checkout.NewService(db, store, publisher, emitter, log)
	checkoutSvc.Cache = eventCache
	checkoutSvc.Metrics = metrics
	checkoutSvc.MaxProofSize = cfg.Storage.MaxUploadSize

	referrals, err := rewards.NewReferralService(db, cfg.Rewards, log)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	sweeper := rewards.NewSweeper(db, cfg.Rewards.ExpirySweepInterval, log)

	handler := &api.Handler{
		Checkout:      checkoutSvc,
		Events:        events.NewEventService(db, eventCache, log),
		Wallet:        wallet.NewService(db),
		Analytics:     analytics.NewService(bunDB),
		Tickets:       tickets.NewTicketService(checkoutSvc, qr.NewQRGenerator(cfg.Tickets.QRSecret)),
		Emitter:       emitter,
		Idempotency:   idempotency.NewStore(redisClient, idempotency.DefaultTTL),
		Metrics:       metrics,
		Logger:        log,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
	}

	routerOpts := api.RouterOptions{Verifier: buildVerifier(ctx, cfg.Auth, redisClient, log)}
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "disk" {
		routerOpts.UploadsDir = cfg.Storage.LocalDir
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.NewRouter(handler, routerOpts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Run(ctx)
	}()

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.UserRegistered, cfg.Kafka.GroupID, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx, referrals.KafkaHandler()); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Registration consumer stopped: %v", err))
			}
		}()
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Checkout service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	workers.Wait()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Consumer close: %v", err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Producer close: %v", err))
		}
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctxShutdown); err != nil {
			log.Warn("TRACING", fmt.Sprintf("Tracer shutdown: %v", err))
		}
	}

	log.Info("APP", "Server exited gracefully")
}
