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
	"syscall"
	"time"

	"github.com/google/uuid"

	appchat "sneakmarket/internal/app/chat"
	"sneakmarket/internal/domain/identity"
	"sneakmarket/internal/domain/listings"
	kafkabroker "sneakmarket/internal/infra/broker/kafka"
	"sneakmarket/internal/infra/config"
	mongodb "sneakmarket/internal/infra/db/mongo"
	ginserver "sneakmarket/internal/infra/http/gin"
	"sneakmarket/internal/infra/obs"
	"sneakmarket/internal/infra/storage/memory"
	s3store "sneakmarket/internal/infra/storage/s3"
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
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	if err := app.loadFixtures(cfg, logger); err != nil {
		logger.Warn("fixture load failed", "error", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	catalog  *memory.Catalog
	users    *memory.IdentityProvider
	ready    func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	ready := func() error { return nil }
	var store appchat.Store
	if cfg.MongoURI != "" {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB, cfg.MongoTimeout)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("mongo connect: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		err = client.Ping(pingCtx)
		cancel()
		if err != nil {
			return application{}, cleanup, fmt.Errorf("mongo ping: %w", err)
		}
		chatStore := mongodb.NewChatStore(client.DB)
		if err := chatStore.EnsureIndexes(ctx); err != nil {
			return application{}, cleanup, fmt.Errorf("mongo indexes: %w", err)
		}
		store = chatStore
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		logger.Info("chat store: mongo", "database", cfg.MongoDB)
	} else {
		store = memory.NewChatStore()
		logger.Info("chat store: in-memory")
	}

	var uploader appchat.Uploader
	if cfg.S3Endpoint != "" {
		s3Client, err := s3store.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("s3 client: %w", err)
		}
		uploader = s3Client
		logger.Info("attachment storage: s3", "bucket", cfg.S3Bucket)
	} else {
		logger.Info("attachment storage disabled, uploads will be rejected")
	}

	origin := uuid.NewString()
	hub := appchat.NewHub(logger)
	catalog := memory.NewCatalog()
	users := memory.NewIdentityProvider()

	var events appchat.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafkabroker.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("kafka producer: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := producer.Close(); err != nil {
				logger.Error("kafka producer close failed", "error", err)
			}
		})
		events = producer

		relay, err := kafkabroker.NewRelay(cfg.KafkaBrokers, cfg.KafkaGroupPrefix+origin, origin, hub, nil, logger)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("kafka relay: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := relay.Close(); err != nil {
				logger.Error("kafka relay close failed", "error", err)
			}
		})
		go func() {
			if err := relay.Run(ctx, []string{cfg.KafkaTopic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka relay stopped", "error", err)
			}
		}()
		logger.Info("event fan-out: kafka", "topic", cfg.KafkaTopic, "origin", origin)
	} else {
		logger.Info("event fan-out: in-process only")
	}

	chatService := appchat.NewService(appchat.Deps{
		Store:    store,
		Hub:      hub,
		Uploader: uploader,
		Catalog:  catalog,
		Events:   events,
		Logger:   logger,
		Origin:   origin,
	})

	return application{
		handlers: ginserver.Handlers{
			Chat:    ginserver.ChatHandler{Chat: chatService, Logger: logger},
			Listing: ginserver.ListingHandler{Catalog: catalog, Logger: logger},
			AuthMiddleware: ginserver.AuthMiddleware{
				Provider: users,
				Logger:   logger,
			}.Handle,
		},
		catalog: catalog,
		users:   users,
		ready:   ready,
	}, cleanup, nil
}

func (a application) loadFixtures(cfg config.Config, logger *slog.Logger) error {
	listingPath := cfg.ListingFixtures
	if listingPath == "" {
		listingPath = filepath.Join("data", "listings.json")
	}
	if err := a.loadListingFixtures(listingPath, logger); err != nil {
		return err
	}
	userPath := cfg.UserFixtures
	if userPath == "" {
		userPath = filepath.Join("data", "users.json")
	}
	return a.loadUserFixtures(userPath, logger)
}

func (a application) loadListingFixtures(path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read listing fixtures: %w", err)
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode listing fixtures: %w", err)
	}
	for _, fx := range fixtures {
		if fx.ID == "" || fx.Title == "" {
			logger.Error("fixture invalid", "listing_id", fx.ID)
			continue
		}
		a.catalog.Put(listings.Listing{
			ID:         listings.ListingID(fx.ID),
			Title:      fx.Title,
			Price:      fx.Price,
			Images:     append([]string(nil), fx.Images...),
			SellerID:   fx.SellerID,
			IsForTrade: fx.IsForTrade,
		})
	}
	logger.Info("listing fixtures imported", "count", len(fixtures), "path", path)
	return nil
}

func (a application) loadUserFixtures(path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("user fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read user fixtures: %w", err)
	}
	var fixtures []userFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode user fixtures: %w", err)
	}
	for _, fx := range fixtures {
		if fx.Token == "" || fx.ID == "" {
			logger.Error("user fixture invalid", "user_id", fx.ID)
			continue
		}
		a.users.Register(fx.Token, identity.User{
			ID:          fx.ID,
			DisplayName: fx.DisplayName,
			Email:       fx.Email,
		})
	}
	logger.Info("user fixtures imported", "count", len(fixtures), "path", path)
	return nil
}

type listingFixture struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Price      float64  `json:"price"`
	Images     []string `json:"images"`
	SellerID   string   `json:"seller_id"`
	IsForTrade bool     `json:"is_for_trade"`
}

type userFixture struct {
	Token       string `json:"token"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
