package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/app"
	"github.com/franckalain/doctorfood/internal/config"
	"github.com/franckalain/doctorfood/internal/database"
	"github.com/franckalain/doctorfood/internal/imaging"
	"github.com/franckalain/doctorfood/internal/ml"
	"github.com/franckalain/doctorfood/internal/profile"
	"github.com/franckalain/doctorfood/internal/server"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	db, err := database.NewSQLiteDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("database connect", zap.Error(err))
	}
	defer db.Close()

	var kv profile.KV = db
	if cfg.Storage.Driver == config.DriverRedis {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(ctxPing).Err()
		cancel()
		if err != nil {
			logger.Fatal("redis ping", zap.String("addr", cfg.Storage.RedisAddr), zap.Error(err))
		}
		kv = profile.NewRedisKV(redisClient, cfg.Storage.RedisPrefix)
	}
	store := profile.NewStore(kv, logger)

	model, err := ml.NewModel(cfg.ML, logger)
	if err != nil {
		logger.Fatal("create model", zap.Error(err))
	}
	if err := model.Load(ctx); err != nil {
		logger.Fatal("load model", zap.String("type", cfg.ML.Type), zap.Error(err))
	}
	defer model.Close()

	ctrl := app.New(ctx, store, model,
		app.WithLogger(logger),
		app.WithScanRecorder(db),
		app.WithAnalysisTimeout(time.Duration(cfg.Server.AnalysisTimeoutSeconds)*time.Second),
	)

	srv := server.New(ctrl, imaging.NewAcquirer(cfg.Server.MaxImageBytes), db, logger, cfg.Server.StaticDir)
	if err := srv.Start(cfg.Server.Port); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
	ctrl.Wait(ctx)
}
