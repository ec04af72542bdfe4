/**
 * @description
 * This is the main entry point for the listings-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/nhongaclient: Client for the Nhonga payment gateway.
 * - pkg/identityclient: Client for the identity provider admin API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rentspot/listings-service/internal/api"
	"github.com/rentspot/listings-service/internal/app"
	"github.com/rentspot/listings-service/internal/config"
	"github.com/rentspot/listings-service/internal/store"
	"github.com/rentspot/listings-service/pkg/identityclient"
	"github.com/rentspot/listings-service/pkg/nhongaclient"
	rmrabbit "github.com/rentspot/listings-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	// Booting without gateway credentials would leave the webhook unverifiable,
	// so fail closed instead of serving.
	if err := cfg.ValidateGateway(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway configuration incomplete\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting listings-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish entitlement events.
	// This service only needs to publish, so we use a producer. The fallback
	// is assigned through the interface variable; a nil concrete pointer
	// would defeat the nil checks downstream.
	var eventPublisher rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventPublisher = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		eventPublisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Nhonga payment gateway.
	gatewayClient := nhongaclient.NewClient(cfg.GatewayAPIBaseURL, cfg.GatewayAPIKey)

	// Initialize the client for the identity provider admin API. Missing identity
	// config should not prevent the service from booting; the account sync job
	// will degrade.
	var identityClient *identityclient.Client
	if strings.TrimSpace(cfg.IdentityAPIBaseURL) == "" || strings.TrimSpace(cfg.IdentityAPIKey) == "" {
		log.Printf("level=warn component=bootstrap msg=\"identity client not configured; account sync disabled\" identity_url_set=%t identity_key_set=%t",
			strings.TrimSpace(cfg.IdentityAPIBaseURL) != "",
			strings.TrimSpace(cfg.IdentityAPIKey) != "",
		)
	} else {
		identityClient = identityclient.NewClient(cfg.IdentityAPIBaseURL, cfg.IdentityAPIKey)
	}

	var redisClient *redis.Client
	if cfg.UpgradeRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; upgrade rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; upgrade rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; upgrade rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool, cfg.DefaultListingQuota)

	// Initialize the core application service with its dependencies.
	listingsService := app.NewService(
		repository,
		gatewayClient,
		identityClient,
		eventPublisher,
		cfg.EventExchange,
		cfg.UpgradeFeeMZN,
		cfg.UpgradeQuotaCredit,
		cfg.DefaultListingQuota,
	)
	if redisClient != nil {
		listingsService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.UpgradeRateLimitPerMinute,
		)
	}

	// Initialize the API handlers.
	handlers := api.NewHandlers(listingsService, cfg.GatewayWebhookSecret)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.Routes(handlers, cfg.IdentityJWKSURL))

	// Start the background account sync job when the identity client is configured.
	syncCtx, cancelSync := context.WithCancel(context.Background())
	defer cancelSync()
	if identityClient != nil {
		go listingsService.RunEntitlementSync(syncCtx, time.Duration(cfg.IdentitySyncIntervalMin)*time.Minute)
	}

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	cancelSync()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
