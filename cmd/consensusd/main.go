package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sim31/fractalgram/internal/api"
	"github.com/sim31/fractalgram/internal/auth"
	"github.com/sim31/fractalgram/internal/cache"
	"github.com/sim31/fractalgram/internal/config"
	"github.com/sim31/fractalgram/internal/kafka"
	"github.com/sim31/fractalgram/internal/logger"
	"github.com/sim31/fractalgram/internal/repository"
	"github.com/sim31/fractalgram/internal/service"
	"github.com/sim31/fractalgram/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	platforms, err := cfg.LoadPlatforms()
	if err != nil {
		zl.Fatal("platform presets", zap.Error(err))
	}

	mc, err := repository.NewMongoClient(cfg.Mongo.URI)
	if err != nil {
		zl.Fatal("mongo init", zap.Error(err))
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	repo := repository.New(mc.Database(cfg.Mongo.DB))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	rcache := cache.New(rdb, cfg.Redis.Prefix, cfg.ResultsTTL)

	kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSend)
	kcons := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.GroupID, zl)

	svc := service.New(repo, repo, kprod, rcache, platforms, zl)

	jv, err := auth.NewJWTValidator(cfg.JWT.PublicKeyPath)
	if err != nil {
		zl.Fatal("jwt init", zap.Error(err))
	}
	wsrv := ws.NewServer(jv)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go kcons.Start(rootCtx, func(key string, value []byte) {
		svc.HandleEventPayload(rootCtx, value)
	})

	// local subscribers get updates through the shared channel as well, so
	// the service's direct notify hook stays unset here
	go func() {
		if err := rcache.SubscribeUpdates(rootCtx, wsrv.Hub().BroadcastUpdate); err != nil && rootCtx.Err() == nil {
			zl.Warn("update subscription ended", zap.Error(err))
		}
	}()

	app := api.NewServer(svc, jv, wsrv)

	go func() {
		if err := app.Listen(":" + strconv.Itoa(cfg.App.Port)); err != nil {
			zl.Fatal("server listen", zap.Error(err))
		}
	}()
	zl.Info("consensusd started", zap.Int("port", cfg.App.Port))

	<-rootCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = app.ShutdownWithContext(ctx)
	_ = kcons.Close()
	_ = kprod.Close()
	zl.Info("consensusd stopped")
}
