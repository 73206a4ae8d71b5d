package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Field names shared by producers and the task processor.
const (
	FieldType     = "type"
	FieldUserID   = "userId"
	FieldQueuedAt = "queuedAt"
)

type Producer struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewProducer appends to stream, trimming it to roughly maxLen entries when
// maxLen is positive.
func NewProducer(client *redis.Client, stream string, maxLen int64) *Producer {
	return &Producer{client: client, stream: stream, maxLen: maxLen}
}

func (p *Producer) Enqueue(ctx context.Context, taskType string, fields map[string]any) (string, error) {
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values[FieldType] = taskType

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return id, nil
}
