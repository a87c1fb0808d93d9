package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("queue closed")

// MemoryQueue is an in-process queue. Delayed messages are held by timers and lost on exit.
// A received message is gone unless it is nacked.
type MemoryQueue struct {
	mu     sync.Mutex
	ready  chan Message
	timers []*time.Timer
	closed chan struct{}
	once   sync.Once
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		ready:  make(chan Message, 1024),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	if delay <= 0 {
		return q.push(ctx, msg)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.timers = append(q.timers, time.AfterFunc(delay, func() {
		_ = q.push(context.Background(), msg)
	}))
	return nil
}

func (q *MemoryQueue) push(ctx context.Context, msg Message) error {
	select {
	case q.ready <- msg:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case msg := <-q.ready:
		return &Delivery{
			Message: msg,
			Ack:     func(context.Context) error { return nil },
			Nack: func(ctx context.Context, delay time.Duration) error {
				return q.Enqueue(ctx, msg, delay)
			},
		}, nil
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many messages are ready.
func (q *MemoryQueue) Len() int { return len(q.ready) }

func (q *MemoryQueue) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		for _, t := range q.timers {
			t.Stop()
		}
		q.mu.Unlock()
		close(q.closed)
	})
	return nil
}
