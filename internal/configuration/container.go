package configuration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"Parley/internal/auth"
	"Parley/internal/bus"
	"Parley/internal/cache"
	"Parley/internal/db"
	"Parley/internal/handler"
	"Parley/internal/hub"
	"Parley/internal/model"
	"Parley/internal/presence"
	"Parley/internal/repo"
	"Parley/internal/service"
)

type Container struct {
	Gateway        *hub.Gateway
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	directory, err := db.OpenDirectory(config.Directory.Dsn)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	messagesCol := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	roomsCol := db.NewRepository[model.Room](con, config.ChatDatabase.RoomsCollection)

	messageRepo := repo.NewMessageRepository(messagesCol, logger)
	roomRepo := repo.NewRoomRepository(roomsCol, logger)
	userRepo := repo.NewUserRepository(directory)

	presenceStore := presence.NewStore(redisClient, logger)
	listCache := cache.NewResponseCache(redisClient)
	messageBus := bus.NewRedisBus(redisClient, logger)

	h := hub.NewHub(messageBus, config.Redis.Channel, logger)
	dispatcher := hub.NewDispatcher(h, messageRepo, roomRepo, userRepo, presenceStore, listCache, logger)

	validator := auth.NewValidator(config.Auth.Secret)
	gateway := hub.NewGateway(h, dispatcher, validator, presenceStore, messageRepo,
		config.Server.AllowedOrigins, logger)

	monitorService := hub.NewMonitorService(h, map[string]hub.HealthCheck{
		"mongo": func(ctx context.Context) error {
			return con.Client().Ping(ctx, nil)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		"directory": func(ctx context.Context) error {
			sqlDB, err := directory.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	chatService := service.NewChatService(messageRepo, roomRepo)

	return &Container{
		Gateway:        gateway,
		ChatHandler:    handler.NewChatHandler(chatService),
		MonitorHandler: handler.NewMonitorHandler(monitorService),
		Hub:            h,
		Config:         *config,
		Logger:         logger,
		mongoClient:    con,
		redisClient:    redisClient,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
