package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	appchat "github.com/sthaarwin/Dental-Smile-sub001/internal/app/chat"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/app/identity"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/broker/kafka"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/config"
	storemongo "github.com/sthaarwin/Dental-Smile-sub001/internal/infra/db/mongo"
	ginserver "github.com/sthaarwin/Dental-Smile-sub001/internal/infra/http/gin"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/obs"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/realtime"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/security"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		if env != "dev" && env != "local" {
			logger.Error("configuration invalid", "error", err)
			os.Exit(1)
		}
		logger.Warn("using fallback dev configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.StoreMode = "memory"
		cfg.JWTSecret = "dev-secret"
		cfg.ShutdownWait = 5 * time.Second
	}

	var (
		store     appchat.Store
		directory identity.Directory
		ready     = func() error { return nil }
	)
	switch cfg.StoreMode {
	case "mongo":
		client, err := storemongo.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo connect failed", "error", err)
			os.Exit(1)
		}
		chatStore := storemongo.NewChatStore(client.DB)
		if err := chatStore.EnsureIndexes(ctx); err != nil {
			logger.Error("mongo index creation failed", "error", err)
			os.Exit(1)
		}
		store = chatStore
		directory = storemongo.NewDirectory(client.DB)
		ready = func() error { return client.Ping(context.Background()) }
		logger.Info("mongo store ready", "database", cfg.MongoDB)
	default:
		store = memory.NewChatStore()
		directory = memory.NewDirectory()
		logger.Info("in-memory store ready")
	}

	service := &appchat.Service{Store: store, Directory: directory, Logger: logger}
	verifier := security.JWTVerifier{Secret: []byte(cfg.JWTSecret)}

	gateway := &realtime.Gateway{
		Registry:  realtime.NewRegistry(),
		Chat:      service,
		Verifier:  verifier,
		Directory: directory,
		NodeID:    uuid.NewString(),
		Logger:    logger,
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		bridge := &kafka.Bridge{Producer: producer, Topic: cfg.KafkaTopic, Gateway: gateway, Logger: logger}
		gateway.Bus = bridge
		// Per-node consumer group: every node replays every peer broadcast.
		group := cfg.KafkaGroup + "-" + gateway.NodeID
		go func() {
			if err := bridge.Run(ctx, cfg.KafkaBrokers, group); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event bridge stopped", "error", err)
			}
		}()
		logger.Info("kafka event bridge enabled", "topic", cfg.KafkaTopic, "group", group)
	}

	server := ginserver.NewServer(cfg,
		obs.Middleware{Logger: logger},
		obs.HealthHandlers{Ready: ready, Online: gateway.Registry.Online},
		ginserver.Handlers{
			Chat:           ginserver.ChatHandler{Service: service, Logger: logger},
			Gateway:        gateway,
			AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
		})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("chatd starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "store", cfg.StoreMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chatd stopped")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
