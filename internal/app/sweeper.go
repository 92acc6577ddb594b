package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/payment"
	"github.com/xenking/checkout-engine/internal/event"
	"github.com/xenking/checkout-engine/internal/repository"
	"github.com/xenking/checkout-engine/pkg/lock"
)

// RunSweeper runs the payment expiry sweep loop until ctx is cancelled.
// It shares the locker keyspace with the API server's reconciler, so a sweep
// never races a webhook for the same order.
func RunSweeper(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	lg.Info("Initializing sweeper",
		zap.Duration("interval", cfg.Sweep.Interval),
		zap.Int("batch", cfg.Sweep.Batch),
	)

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	var locker lock.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		locker = lock.NewRedis(client, "checkout", orderLockTTL)
	} else {
		locker = lock.NewMemory()
	}

	var events event.Publisher = event.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafka.Close()
		events = kafka
	}

	sweeper := payment.NewSweeper(
		repository.NewPaymentRepository(pool),
		repository.NewReconcileStore(pool),
		locker,
		events,
		cfg.Sweep.Batch,
	)

	ticker := time.NewTicker(cfg.Sweep.Interval)
	defer ticker.Stop()

	for {
		swept, err := sweeper.SweepExpired(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			lg.Error("Sweep pass failed", zap.Error(err))
		} else if swept > 0 {
			lg.Info("Swept expired payments", zap.Int("count", swept))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
