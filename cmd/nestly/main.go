package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	appauth "nestly/internal/app/services/auth"
	appchat "nestly/internal/app/services/chat"
	domainchat "nestly/internal/domain/chat"
	domainlistings "nestly/internal/domain/listings"
	"nestly/internal/infra/broker/kafka"
	rediscache "nestly/internal/infra/cache/redis"
	"nestly/internal/infra/config"
	mongodb "nestly/internal/infra/db/mongo"
	"nestly/internal/infra/db/scylla"
	ginserver "nestly/internal/infra/http/gin"
	"nestly/internal/infra/obs"
	"nestly/internal/infra/security"
	"nestly/internal/infra/storage/memory"
	"nestly/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.ChatStore = "memory"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	fixturesPath := getenv("LISTINGS_FIXTURES", "")
	if fixturesPath == "" {
		fixturesPath = defaultListingFixturesPath()
	}
	if err := app.loadListingFixtures(fixturesPath, logger); err != nil {
		logger.Warn("listing fixtures load failed", "error", err, "path", fixturesPath)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		app.close(logger)
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "chat_store", cfg.ChatStore)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	listings *memory.ListingRepository
	ready    func() error
	closers  []func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{ready: func() error { return nil }}

	store, err := buildChatStore(ctx, cfg, logger, app)
	if err != nil {
		return nil, err
	}

	var events appchat.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, producer.Close)
		events = producer
		logger.Info("kafka producer connected", "brokers", strings.Join(cfg.KafkaBrokers, ","))
	}

	var badges appchat.BadgeCache
	if cfg.RedisURL != "" {
		cache, err := rediscache.NewUnreadCache(ctx, cfg.RedisURL, cfg.UnreadBadgeTTL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		app.closers = append(app.closers, cache.Close)
		badges = cache
		logger.Info("redis unread cache connected")
	}

	var attachments s3.AttachmentStore
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("attachment storage unavailable", "error", err)
		} else {
			attachments = client
		}
	}

	directory := &appchat.Directory{Store: store, Events: events, Badges: badges, Logger: logger}
	thread := &appchat.Thread{Store: store, Directory: directory, Events: events, Badges: badges, Logger: logger}

	authService := &appauth.Service{
		Users:      memory.NewUserRepository(),
		Sessions:   memory.NewSessionStore(),
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	app.listings = memory.NewListingRepository()

	app.handlers = ginserver.Handlers{
		Chat: ginserver.ChatHandler{
			Directory:   directory,
			Thread:      thread,
			Listings:    app.listings,
			Attachments: attachments,
			Logger:      logger,
		},
		Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}
	return app, nil
}

func buildChatStore(ctx context.Context, cfg config.Config, logger *slog.Logger, app *application) (domainchat.Store, error) {
	switch cfg.ChatStore {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB, cfg.MongoConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		app.closers = append(app.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Close(closeCtx)
		})
		app.ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		logger.Info("mongo chat store ready", "database", cfg.MongoDB)
		return mongodb.NewChatStore(client.DB), nil
	case "scylla":
		session, err := scylla.NewSession(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("scylla connect: %w", err)
		}
		app.closers = append(app.closers, func() error {
			session.Close()
			return nil
		})
		logger.Info("scylla chat store ready", "keyspace", cfg.ScyllaKeyspace)
		return scylla.NewChatStore(session, logger), nil
	default:
		logger.Info("in-memory chat store ready")
		return memory.NewChatStore(), nil
	}
}

func (a *application) close(logger *slog.Logger) {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Warn("close failed during shutdown", "error", err)
		}
	}
}

func (a *application) loadListingFixtures(path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	now := time.Now()
	for _, fx := range fixtures {
		if fx.ID == "" || fx.AgentID == "" {
			logger.Error("fixture invalid", "listing_id", fx.ID)
			continue
		}
		a.listings.Seed(domainlistings.Listing{
			ID:        fx.ID,
			Title:     fx.Title,
			ImageURL:  fx.ImageURL,
			AgentID:   fx.AgentID,
			AgentName: fx.AgentName,
			City:      fx.City,
			CreatedAt: parseFixtureTime(fx.CreatedAt, now),
		})
		logger.Info("listing fixture imported", "listing_id", fx.ID)
	}
	return nil
}

type listingFixture struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"image_url"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	City      string `json:"city"`
	CreatedAt string `json:"created_at"`
}

func parseFixtureTime(value string, fallback time.Time) time.Time {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return fallback
}

func defaultListingFixturesPath() string {
	return filepath.Join("data", "listings.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
