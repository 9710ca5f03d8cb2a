package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pokerlens/pokeragent-worker/internal/queue"
	"github.com/pokerlens/pokeragent-worker/internal/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()

		rt, err := buildRuntime(ctx, log)
		if err != nil {
			return fmt.Errorf("failed to build worker: %w", err)
		}
		defer rt.close()

		// Fail fast on a bad Redis URL instead of inside the consumer loop.
		redisOpts, err := redis.ParseURL(rt.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		consumer, err := queue.NewConsumer(queue.ConsumerConfig{
			RedisURL:    rt.cfg.RedisURL,
			Concurrency: rt.cfg.WorkerConcurrency,
			Segments:    rt.segments,
			Hands:       rt.hands,
			Logger:      log,
		})
		if err != nil {
			return fmt.Errorf("failed to build queue consumer: %w", err)
		}

		sweeper := scheduler.NewSweeper(rt.jobs, rt.cfg.StaleJobSweepSpec,
			time.Duration(rt.cfg.StaleJobAfterMinute)*time.Minute, log)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start stale job sweeper: %w", err)
		}
		defer sweeper.Stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- consumer.Start()
		}()

		log.Info().Int("concurrency", rt.cfg.WorkerConcurrency).Msg("worker ready")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info().Msg("shutdown signal received")
			consumer.Stop()
			return nil
		case err := <-errCh:
			return err
		}
	},
}
