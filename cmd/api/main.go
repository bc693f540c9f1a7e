//	@title			Storefront API
//	@version		1.0
//	@description	Product catalogue backed by a document store, with images kept in a Backblaze B2 bucket.
//
//	@host		localhost:3000
//	@BasePath	/api
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Clerk session token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storefront/service/internal/auth"
	"github.com/storefront/service/internal/config"
	"github.com/storefront/service/internal/db"
	"github.com/storefront/service/internal/image"
	appMiddleware "github.com/storefront/service/internal/middleware"
	"github.com/storefront/service/internal/product"
	"github.com/storefront/service/internal/response"
	"github.com/storefront/service/internal/storage"
	"github.com/storefront/service/internal/tracing"

	_ "github.com/storefront/service/docs/swagger"
)

const serviceName = "storefront-api"

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Wire dependencies: repository → service → handler
	var repo product.Repository
	if cfg.UsesMongo() {
		client, err := db.ConnectMongo(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		repo = product.NewMongoRepository(client.Database(cfg.MongoDatabase))
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		repo = product.NewPostgresRepository(pool)
	}

	bucket := storage.NewBucket(storage.BucketConfig{
		KeyID:       cfg.B2KeyID,
		Key:         cfg.B2Key,
		BucketID:    cfg.B2BucketID,
		BucketName:  cfg.B2BucketName,
		Endpoint:    cfg.B2Endpoint,
		UseSSL:      cfg.B2UseSSL,
		DownloadURL: cfg.B2DownloadURL,
		Prefix:      cfg.StoragePrefix,
		URLMode:     storage.ParseURLMode(cfg.StorageURLMode),
		ProxyBase:   cfg.APIBaseURL,
	})
	go func() {
		if _, err := bucket.Authorize(context.Background()); err != nil {
			log.Warn().Err(err).Str("component", "storage").Msg("bucket not ready, will retry on first use")
		}
	}()

	var events product.Publisher = product.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := product.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = kafka.Close() }()
		events = kafka
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing product events")
	}

	var profileCache *auth.ProfileCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, profile cache disabled")
		} else {
			profileCache = auth.NewProfileCache(rdb, cfg.ProfileCacheTTL)
		}
	}

	if cfg.ClerkJWTKey == "" {
		log.Warn().Msg("CLERK_JWT_KEY is not set, every authenticated request will be rejected")
	}
	clerk := auth.NewClerkClient(cfg.ClerkAPIURL, cfg.ClerkSecretKey, nil)
	authSvc, err := auth.NewService(cfg.ClerkJWTKey, cfg.AllowedOrigins, clerk, profileCache)
	if err != nil {
		log.Fatal().Err(err).Msg("auth init failed")
	}

	productSvc := product.NewService(repo, bucket, events)
	productHandler := product.NewHandler(productSvc, cfg.MaxUploadBytes)
	imageHandler := image.NewHandler(bucket)
	authHandler := auth.NewHandler()

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Bucket diagnostic
	r.Get("/test-b2", imageHandler.CheckBucket)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Get("/images/{filename}", imageHandler.Serve)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{id}", productHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireAuth(authSvc))
				r.Use(appMiddleware.RequireRole(auth.RoleAdmin))
				r.Post("/", productHandler.Create)
				r.Put("/{id}", productHandler.Update)
				r.Delete("/{id}", productHandler.Delete)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(authSvc))
			r.Get("/me", authHandler.Me)
		})
	})

	var handler http.Handler = r
	if cfg.OTELCollectorHost != "" {
		tp, err := tracing.Init(ctx, cfg.OTELCollectorHost, serviceName)
		if err != nil {
			log.Fatal().Err(err).Msg("tracing init failed")
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		handler = otelhttp.NewHandler(r, serviceName)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	zerolog.DefaultContextLogger = &log.Logger
}
