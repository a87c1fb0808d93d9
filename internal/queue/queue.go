// Package queue carries publishing jobs from the orchestrator to the publish worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/models"
)

// Message is the body of one queued publishing job. JobID is the id of the per-platform job,
// not the orchestration id.
type Message struct {
	JobID     string               `json:"jobId"`
	ContentID string               `json:"contentId"`
	Platform  string               `json:"platform"`
	Config    models.PublishConfig `json:"config"`
	ImageURL  string               `json:"imageUrl,omitempty"`
}

// Delivery is a received message. Ack removes it from the queue once it has been handled.
// Nack hands it back to be delivered again after delay; it is nil for backends that redeliver
// unacked messages on their own (SQS visibility timeout).
type Delivery struct {
	Message Message
	Ack     func(ctx context.Context) error
	Nack    func(ctx context.Context, delay time.Duration) error
}

type Producer interface {
	// Enqueue makes msg visible to consumers once delay has passed.
	Enqueue(ctx context.Context, msg Message, delay time.Duration) error
	Close() error
}

type Consumer interface {
	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}

// Queue bundles the producer and, when requested, the consumer of one backend.
type Queue struct {
	Producer Producer
	Consumer Consumer
}

// Open connects to the backend named by cfg.Backend. The consumer side is only opened when
// consume is set, so API-only processes never join a consumer group.
func Open(ctx context.Context, cfg config.QueueConfig, consume bool) (*Queue, error) {
	switch cfg.Backend {
	case "sqs":
		q, err := NewSQSQueue(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		return bundle(q, q, consume), nil
	case "kafka":
		q := &Queue{Producer: NewKafkaProducer(cfg.Kafka)}
		if consume {
			q.Consumer = NewKafkaConsumer(cfg.Kafka)
		}
		return q, nil
	case "redis":
		q := NewRedisQueue(NewRedisClient(cfg.Redis), cfg.Redis.Key)
		return bundle(q, q, consume), nil
	case "memory", "":
		q := NewMemoryQueue()
		return bundle(q, q, consume), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

func bundle(p Producer, c Consumer, consume bool) *Queue {
	q := &Queue{Producer: p}
	if consume {
		q.Consumer = c
	}
	return q
}

func (q *Queue) Close() error {
	var errs []error
	if q.Producer != nil {
		errs = append(errs, q.Producer.Close())
	}
	// Single-object backends are closed once.
	if q.Consumer != nil && any(q.Consumer) != any(q.Producer) {
		errs = append(errs, q.Consumer.Close())
	}
	return errors.Join(errs...)
}

func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a message body and rejects bodies without a job id.
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid queue message: %w", err)
	}
	if msg.JobID == "" {
		return Message{}, errors.New("invalid queue message: missing jobId")
	}
	return msg, nil
}
