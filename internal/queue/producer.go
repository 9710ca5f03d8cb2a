package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// Producer enqueues segment and hand tasks. It satisfies the
// orchestrator's Dispatcher interface.
type Producer struct {
	client *asynq.Client
}

func NewProducer(redisURL string) (*Producer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Producer{client: asynq.NewClient(redisOpt)}, nil
}

func (p *Producer) EnqueueSegment(ctx context.Context, payload models.SegmentTaskPayload) error {
	return p.enqueue(ctx, TaskSegment, queueSegments, payload)
}

func (p *Producer) EnqueueHand(ctx context.Context, payload models.HandTaskPayload) error {
	return p.enqueue(ctx, TaskHand, queueHands, payload)
}

func (p *Producer) enqueue(ctx context.Context, taskType, queue string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, raw)
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(queue), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (p *Producer) Close() error {
	return p.client.Close()
}
