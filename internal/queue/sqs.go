package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/voice2blog/courier/internal/config"
)

// maxSQSDelay is the largest DelaySeconds SQS accepts.
const maxSQSDelay = 900 * time.Second

type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSQueue struct {
	client            SQSAPI
	queueURL          string
	waitTimeSeconds   int32
	visibilityTimeout int32
}

func NewSQSQueue(ctx context.Context, cfg config.SQSConfig) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewSQSQueueWithClient(client, cfg), nil
}

func NewSQSQueueWithClient(client SQSAPI, cfg config.SQSConfig) *SQSQueue {
	return &SQSQueue{
		client:            client,
		queueURL:          cfg.QueueURL,
		waitTimeSeconds:   cfg.WaitTimeSeconds,
		visibilityTimeout: cfg.VisibilityTimeout,
	}
}

func (q *SQSQueue) Enqueue(ctx context.Context, msg Message, delay time.Duration) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}

	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if delay > 0 {
		input.DelaySeconds = int32(delay / time.Second)
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     q.waitTimeSeconds,
			VisibilityTimeout:   q.visibilityTimeout,
		})
		if err != nil {
			return nil, err
		}
		if len(out.Messages) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}

		m := out.Messages[0]
		receipt := m.ReceiptHandle
		ack := func(ctx context.Context) error {
			_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.queueURL),
				ReceiptHandle: receipt,
			})
			return err
		}

		msg, err := Decode([]byte(aws.ToString(m.Body)))
		if err != nil {
			// Drop bad messages so they are not redelivered forever.
			_ = ack(ctx)
			return nil, err
		}
		return &Delivery{Message: msg, Ack: ack}, nil
	}
}

func (q *SQSQueue) Close() error { return nil }
