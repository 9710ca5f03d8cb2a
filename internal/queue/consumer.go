// Package queue carries segment and hand tasks over Redis via asynq.
// Delivery is at-least-once; the processors tolerate redelivery because
// every state change goes through the job store's transactional update.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/pokerlens/pokeragent-worker/internal/models"
	"github.com/pokerlens/pokeragent-worker/internal/processor"
)

// Task type names on the wire.
const (
	TaskSegment = "pokeragent:segment"
	TaskHand    = "pokeragent:hand"
)

// Queue names by priority. Segments gate phase 2, so they run ahead of
// hands when both are backed up.
const (
	queueSegments = "pokeragent:segments"
	queueHands    = "pokeragent:hands"
)

// SegmentHandler and HandHandler are the processor entry points the
// consumer dispatches into.
type SegmentHandler interface {
	Process(ctx context.Context, payload models.SegmentTaskPayload) error
}

type HandHandler interface {
	Process(ctx context.Context, payload models.HandTaskPayload) error
}

// Consumer runs the asynq server and routes tasks to the processors.
type Consumer struct {
	server   *asynq.Server
	segments SegmentHandler
	hands    HandHandler
	log      zerolog.Logger
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL    string
	Concurrency int
	Segments    SegmentHandler
	Hands       HandHandler
	Logger      zerolog.Logger
}

// NewConsumer builds the asynq server. Task retries back off exponentially
// from one minute.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	log := cfg.Logger.With().Str("component", "queue-consumer").Logger()

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				queueSegments: 6,
				queueHands:    3,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(1<<uint(n)) * time.Minute
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task", task.Type()).Msg("task failed")
			}),
		},
	)

	return &Consumer{
		server:   server,
		segments: cfg.Segments,
		hands:    cfg.Hands,
		log:      log,
	}, nil
}

// Start blocks serving tasks until Stop is called.
func (c *Consumer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSegment, c.handleSegment)
	mux.HandleFunc(TaskHand, c.handleHand)

	c.log.Info().Msg("starting queue consumer")
	if err := c.server.Run(mux); err != nil {
		return fmt.Errorf("queue consumer stopped: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (c *Consumer) Stop() {
	c.log.Info().Msg("stopping queue consumer")
	c.server.Shutdown()
}

func (c *Consumer) handleSegment(ctx context.Context, task *asynq.Task) error {
	var payload models.SegmentTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal segment payload: %w", err)
	}
	return c.segments.Process(ctx, payload)
}

func (c *Consumer) handleHand(ctx context.Context, task *asynq.Task) error {
	var payload models.HandTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal hand payload: %w", err)
	}

	err := c.hands.Process(ctx, payload)
	var term *processor.TerminalError
	if errors.As(err, &term) {
		// Already recorded on the job; redelivery cannot change the outcome.
		return fmt.Errorf("%s: %w", term.Error(), asynq.SkipRetry)
	}
	return err
}
