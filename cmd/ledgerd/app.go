package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/config"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/kafka"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/logging"
	"github.com/trogers1052/portfolio-ledger/internal/pricing"
	"github.com/trogers1052/portfolio-ledger/internal/tasks"
)

// app holds the wired components shared by the subcommands
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       *database.DB
	prices   *pricing.Router
	producer *kafka.Producer
	engine   *ledger.Engine
	redis    *redis.Client
	queue    tasks.Queue
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})

	a := &app{cfg: cfg, log: log, db: db}
	a.prices = newPriceSource(cfg.Price, log)
	a.engine = ledger.NewEngine(db, a.prices, log)

	if cfg.Kafka.KafkaEnabled() {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.engine.WithEvents(a.producer)
		log.WithField("topic", cfg.Kafka.Topic).Info("publishing ledger events")
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.queue = tasks.NewRedisQueue(a.redis, tasks.RedisConfig{
			QueueKey:  cfg.Redis.QueueKey,
			StatusTTL: cfg.Redis.StatusTTL,
		})
	} else {
		a.queue = tasks.NewLocalQueue(256)
	}

	return a, nil
}

func newPriceSource(cfg config.PriceConfig, log logrus.FieldLogger) *pricing.Router {
	av := pricing.NewAlphaVantage(pricing.AlphaVantageConfig{
		BaseURL:       cfg.AlphaVantageURL,
		APIKey:        cfg.AlphaVantageKey,
		Exchange:      cfg.Exchange,
		QuoteCurrency: cfg.QuoteCurrency,
		CryptoSymbols: cfg.CryptoSymbols,
		Timeout:       cfg.Timeout,
	}, log)

	if cfg.CryptoProvider == "binance" {
		return pricing.NewRouter(av, pricing.NewBinance(pricing.BinanceConfig{
			BaseURL:    cfg.BinanceURL,
			QuoteAsset: cfg.BinanceQuote,
			Timeout:    cfg.Timeout,
		}), log)
	}
	return pricing.NewRouter(av, nil, log)
}

func (a *app) newWorker() *tasks.Worker {
	return tasks.NewWorker(a.queue, a.engine, workerConfig(a.cfg.Refresh), a.log)
}

func workerConfig(cfg config.RefreshConfig) tasks.WorkerConfig {
	return tasks.WorkerConfig{
		Shards:      cfg.Workers,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

// Close releases every connection the app opened
func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close database")
	}
}
