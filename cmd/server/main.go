package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/venue-jukebox/internal/auth"
	"github.com/venue-jukebox/internal/config"
	"github.com/venue-jukebox/internal/logging"
	"github.com/venue-jukebox/internal/spotify"
	"github.com/venue-jukebox/internal/venue"
	"github.com/venue-jukebox/internal/ws"
	"github.com/venue-jukebox/pkg/database"
	"github.com/venue-jukebox/pkg/events"
	"github.com/venue-jukebox/pkg/jwt"
	"github.com/venue-jukebox/pkg/redis"
)

const venueCacheTTL = 30 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg.Log.Level, cfg.Env)
	logger := log.Logger

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	var db *database.DB
	if cfg.Database.Driver == "mysql" {
		db, err = database.NewMySQLDB(cfg.Database.DSN())
	} else {
		db, err = database.NewSQLiteDB(cfg.Database.Path)
	}
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connection established")

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
	}

	wsHandler := ws.NewHandler(cfg.Server.AllowOrigins, logger)

	// Venue events go through Kafka when brokers are configured so every
	// replica's websocket hub sees them; otherwise they stay in process.
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient := events.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		defer kafkaClient.Close()
		publisher = kafkaClient

		go func() {
			err := kafkaClient.ConsumeEvents(ctx, func(evt events.Event) error {
				wsHandler.Broadcast(evt)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Kafka consumer stopped")
			}
		}()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing venue events to Kafka")
	} else {
		local := events.NewLocal()
		local.Subscribe(wsHandler.Broadcast)
		publisher = local
	}

	// Initialize services
	spotifyClient := spotify.NewClient(spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		Timeout:      cfg.Spotify.Timeout,
		RateLimit:    cfg.Spotify.RateLimit,
	})
	tokenStore := redis.NewTokenStore(redisClient)
	venueCache := redis.NewVenueCache(redisClient, venueCacheTTL)
	jwtManager := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	authService := auth.NewService(db, jwtManager, tokenStore, venueCache, cfg.Auth.RefreshTokenTTL, logger)
	if err := authService.SeedClients(ctx, cfg.Auth.Clients); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed API clients")
	}
	venueService := venue.NewService(db, venueCache, tokenStore, spotifyClient, publisher, logger)

	go auth.NewSweeper(db, cfg.Auth.SweepInterval, logger).Run(ctx)

	// Initialize handlers
	authHandler := auth.NewHandler(authService)
	spotifyHandler := spotify.NewHandler(spotifyClient, tokenStore, logger)
	venueHandler := venue.NewHandler(venueService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", spotify.HeaderSpotifyToken},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	api := router.Group("")

	// Public account routes, the handler protects its own profile routes
	authHandler.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("", auth.Middleware(authService))
	{
		spotifyHandler.RegisterRoutes(protected)
		venueHandler.RegisterRoutes(protected)
		wsHandler.RegisterRoutes(protected)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
