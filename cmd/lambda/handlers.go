package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/voice2blog/courier/internal/queue"
	"github.com/voice2blog/courier/internal/server"
)

type messageHandler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

func newAPIHandler(d *server.Dispatcher) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp := d.Dispatch(ctx, server.Request{
			Path:                  req.Path,
			HTTPMethod:            req.HTTPMethod,
			Body:                  req.Body,
			QueryStringParameters: req.QueryStringParameters,
		})
		return events.APIGatewayProxyResponse{
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
		}, nil
	}
}

// newSQSHandler reports failed records as partial batch failures so only they are redelivered.
// Undecodable records are dropped.
func newSQSHandler(h messageHandler, log *zap.Logger) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		var resp events.SQSEventResponse
		for _, record := range event.Records {
			msg, err := queue.Decode([]byte(record.Body))
			if err != nil {
				log.Warn("Dropping invalid queue message", zap.String("message_id", record.MessageId), zap.Error(err))
				continue
			}
			if err := h.Handle(ctx, msg); err != nil {
				log.Error("Failed to handle job", zap.String("job_id", msg.JobID), zap.Error(err))
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			}
		}
		return resp, nil
	}
}
