package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/customersvc/internal/uuid"
)

// Envelope is the JSON document pushed onto a queue. Consumers pop from the
// head of the list.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisSender publishes payloads onto a Redis list with RPUSH.
type RedisSender struct {
	kind  Kind
	rdb   redis.Cmdable
	queue string
	now   func() time.Time
}

// NewRedisSender returns a sender for kind that pushes onto queue.
func NewRedisSender(rdb redis.Cmdable, kind Kind, queue string) *RedisSender {
	return &RedisSender{
		kind:  kind,
		rdb:   rdb,
		queue: queue,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisSender) Kind() Kind { return s.kind }

// Queue returns the list key messages are pushed onto.
func (s *RedisSender) Queue() string { return s.queue }

func (s *RedisSender) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	data, err := json.Marshal(Envelope{
		ID:        uuid.New(),
		Kind:      s.kind.String(),
		CreatedAt: s.now(),
		Payload:   body,
	})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.queue, data).Err(); err != nil {
		return fmt.Errorf("pushing to %s: %w", s.queue, err)
	}
	return nil
}
