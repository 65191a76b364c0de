package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"couple-todo-backend/internal/blob"
	"couple-todo-backend/internal/broker"
	"couple-todo-backend/internal/config"
	"couple-todo-backend/internal/handlers"
	"couple-todo-backend/internal/imageproc"
	"couple-todo-backend/internal/notify"
	"couple-todo-backend/internal/repository"
	"couple-todo-backend/internal/repository/memory"
	"couple-todo-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stores is the persistence layer picked by database.driver
type stores struct {
	profiles services.ProfileStore
	couples  services.CoupleStore
	tasks    services.TaskStore
	close    func()
}

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	// Initialize repositories
	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.close()

	// Blob storage
	blobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create blob store")
	}

	// Snapshot fan-out
	snapshots, closeRedis, err := openBroker(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer closeRedis()
	defer func() {
		if err := snapshots.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close snapshot broker")
		}
	}()

	// Push notifications
	var notifier services.Notifier = notify.Noop{}
	if cfg.APNs.Enabled {
		notifier, err = notify.NewAPNsNotifier(notify.APNsConfig{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		}, st.profiles)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs notifier")
		}
		log.Info().Bool("production", cfg.APNs.Production).Msg("APNs notifications enabled")
	}

	images := imageproc.Options{
		MaxWidth:  cfg.Images.MaxWidth,
		MaxHeight: cfg.Images.MaxHeight,
		Quality:   cfg.Images.Quality,
	}

	// Initialize services
	identityService := services.NewIdentityService(st.profiles, blobs, images, cfg.JWT.Secret)
	coupleService := services.NewCoupleService(st.couples, st.profiles, notifier)
	taskService := services.NewTaskService(st.tasks, st.couples, blobs, snapshots, notifier, images)
	wsHub := services.NewWSHub()
	unsubscribe := snapshots.Subscribe(wsHub.HandleSnapshot)
	defer unsubscribe()

	// Initialize handlers
	routes := handlers.Routes{
		Auth:      identityService,
		Profile:   handlers.NewProfileHandler(identityService, coupleService, wsHub),
		Couple:    handlers.NewCoupleHandler(coupleService, wsHub),
		Task:      handlers.NewTaskHandler(taskService, coupleService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, identityService, coupleService, taskService),
	}
	if mem, ok := blobs.(*blob.MemoryStore); ok {
		routes.Blob = handlers.NewBlobHandler(mem)
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	routes.Register(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("database", cfg.Database.Driver).
			Str("storage", cfg.Storage.Backend).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server. Hijacked websocket connections are not tracked by
	// Shutdown and close with the process.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory database, data is lost on restart")
		mem := memory.New()
		return &stores{
			profiles: mem.Profiles(),
			couples:  mem.Couples(),
			tasks:    mem.Tasks(),
			close:    func() {},
		}, nil
	}

	if cfg.MigrateOnStart {
		if err := repository.Migrate(cfg.DSN()); err != nil {
			return nil, err
		}
	}

	db, err := repository.NewPool(ctx, repository.PoolConfig{
		DSN:         cfg.DSN(),
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		MaxConnLife: cfg.MaxConnLife,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	return &stores{
		profiles: repository.NewProfileRepository(db),
		couples:  repository.NewCoupleRepository(db),
		tasks:    repository.NewTaskRepository(db),
		close:    db.Close,
	}, nil
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile, cfg.URLTTL)
	case "memory":
		log.Warn().Str("base_url", cfg.Memory.BaseURL).Msg("Using in-memory blob store")
		return blob.NewMemoryStore(cfg.Memory.BaseURL), nil
	default:
		return blob.NewS3Store(ctx, blob.S3Options{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.Endpoint,
			URLTTL:    cfg.URLTTL,
		})
	}
}

func openBroker(ctx context.Context, cfg config.RedisConfig) (broker.Broker, func(), error) {
	if !cfg.Enabled {
		return broker.NewMemoryBroker(), func() {}, nil
	}

	client := broker.NewRedisClient(cfg.Addr, cfg.Password, cfg.DB)
	b, err := broker.NewRedisBroker(ctx, client, cfg.Channel)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Addr).Str("channel", cfg.Channel).Msg("Redis snapshot fan-out enabled")
	return b, func() { _ = client.Close() }, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
