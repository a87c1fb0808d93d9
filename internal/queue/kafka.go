package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"github.com/voice2blog/courier/internal/config"
)

// notBeforeHeader carries the earliest processing time of a delayed message. Kafka has no
// native delay, so the consumer waits until then before handing the message out.
const notBeforeHeader = "not-before"

type KafkaProducer struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewKafkaProducer(cfg config.KafkaConfig) *KafkaProducer {
	return &KafkaProducer{
		writer:  newKafkaWriter(cfg),
		timeout: 3 * time.Second,
	}
}

func (p *KafkaProducer) Close() error { return p.writer.Close() }

func newKafkaWriter(cfg config.KafkaConfig) *kgo.Writer {
	return &kgo.Writer{
		Addr:         kgo.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
}

func (p *KafkaProducer) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	return writeMessage(ctx, p.writer, p.timeout, msg, delay)
}

func writeMessage(ctx context.Context, w *kgo.Writer, timeout time.Duration, msg Message, delay time.Duration) error {
	m, err := kafkaMessage(msg, delay, time.Now())
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return w.WriteMessages(cctx, m)
}

func kafkaMessage(msg Message, delay time.Duration, now time.Time) (kgo.Message, error) {
	b, err := Encode(msg)
	if err != nil {
		return kgo.Message{}, err
	}

	m := kgo.Message{
		Key:   []byte(msg.JobID),
		Value: b,
		Time:  now,
	}
	if delay > 0 {
		m.Headers = append(m.Headers, kgo.Header{
			Key:   notBeforeHeader,
			Value: []byte(now.Add(delay).UTC().Format(time.RFC3339Nano)),
		})
	}
	return m, nil
}

// KafkaConsumer reads the topic in a consumer group. A nacked message is written back to the
// topic before its offset is committed, since the reader never rewinds.
type KafkaConsumer struct {
	reader  *kgo.Reader
	writer  *kgo.Writer
	timeout time.Duration
}

func NewKafkaConsumer(cfg config.KafkaConfig) *KafkaConsumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})

	return &KafkaConsumer{reader: r, writer: newKafkaWriter(cfg), timeout: 3 * time.Second}
}

func (c *KafkaConsumer) Close() error {
	return errors.Join(c.reader.Close(), c.writer.Close())
}

func (c *KafkaConsumer) Receive(ctx context.Context) (*Delivery, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := Decode(m.Value)
	if err != nil {
		// commit bad messages so we don't get stuck forever
		_ = c.reader.CommitMessages(ctx, m)
		return nil, err
	}

	if wait := time.Until(notBefore(m.Headers)); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	commit := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return c.reader.CommitMessages(cctx, m)
	}

	requeue := func(ctx context.Context, delay time.Duration) error {
		if err := writeMessage(ctx, c.writer, c.timeout, msg, delay); err != nil {
			return fmt.Errorf("failed to requeue message: %w", err)
		}
		return commit(ctx)
	}

	return &Delivery{Message: msg, Ack: commit, Nack: requeue}, nil
}

func notBefore(headers []kgo.Header) time.Time {
	for _, h := range headers {
		if h.Key != notBeforeHeader {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, string(h.Value))
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
