package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/voice2blog/courier/internal/config"
	"github.com/voice2blog/courier/internal/models"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps content, jobs and orchestrations in three tables. Jobs are keyed by id and
// carry a global secondary index on jobId (the orchestration id).
type DynamoStore struct {
	db                 DynamoAPI
	contentTable       string
	jobsTable          string
	orchestrationTable string
	jobIndex           string
}

func NewDynamoStore(ctx context.Context, cfg config.DynamoDBConfig) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewDynamoStoreWithClient(client, cfg), nil
}

func NewDynamoStoreWithClient(client DynamoAPI, cfg config.DynamoDBConfig) *DynamoStore {
	return &DynamoStore{
		db:                 client,
		contentTable:       cfg.ContentTable,
		jobsTable:          cfg.JobsTable,
		orchestrationTable: cfg.OrchestrationTable,
		jobIndex:           cfg.JobIndex,
	}
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func (s *DynamoStore) getItem(ctx context.Context, table string, key map[string]types.AttributeValue, out any) (bool, error) {
	res, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return false, err
	}
	if res.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *DynamoStore) putItem(ctx context.Context, table string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}

func (s *DynamoStore) update(ctx context.Context, table string, key map[string]types.AttributeValue, update expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}
	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}

func (s *DynamoStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var content models.Content
	found, err := s.getItem(ctx, s.contentTable, stringKey("id", id), &content)
	if err != nil || !found {
		return nil, err
	}
	return &content, nil
}

func (s *DynamoStore) UpdateContentPublishingResults(ctx context.Context, id string, results []models.PublishingRecord, updatedAt string) error {
	if results == nil {
		results = []models.PublishingRecord{}
	}
	update := expression.
		Set(expression.Name("publishingResults"), expression.Value(results)).
		Set(expression.Name("updatedAt"), expression.Value(updatedAt))
	return s.update(ctx, s.contentTable, stringKey("id", id), update)
}

func (s *DynamoStore) PutJob(ctx context.Context, job *models.PublishingJob) error {
	return s.putItem(ctx, s.jobsTable, job)
}

func (s *DynamoStore) GetJob(ctx context.Context, id string) (*models.PublishingJob, error) {
	var job models.PublishingJob
	found, err := s.getItem(ctx, s.jobsTable, stringKey("id", id), &job)
	if err != nil || !found {
		return nil, err
	}
	return &job, nil
}

func (s *DynamoStore) UpdateJob(ctx context.Context, id string, u JobUpdate) error {
	update := expression.Set(expression.Name("updatedAt"), expression.Value(u.UpdatedAt))
	if u.Status != "" {
		update = update.Set(expression.Name("status"), expression.Value(string(u.Status)))
	}
	if u.Attempts != nil {
		update = update.Set(expression.Name("attempts"), expression.Value(*u.Attempts))
	}
	if u.LastError != nil {
		update = update.Set(expression.Name("lastError"), expression.Value(*u.LastError))
	}
	if u.Result != nil {
		update = update.Set(expression.Name("result"), expression.Value(*u.Result))
	}
	if u.NextRetryAt != nil {
		update = update.Set(expression.Name("nextRetryAt"), expression.Value(*u.NextRetryAt))
	}
	return s.update(ctx, s.jobsTable, stringKey("id", id), update)
}

func (s *DynamoStore) QueryJobsByOrchestration(ctx context.Context, orchestrationID string) ([]*models.PublishingJob, error) {
	keyCond := expression.Key("jobId").Equal(expression.Value(orchestrationID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:                 aws.String(s.jobsTable),
		IndexName:                 aws.String(s.jobIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var jobs []*models.PublishingJob
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []*models.PublishingJob
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		jobs = append(jobs, batch...)
	}
	return jobs, nil
}

func (s *DynamoStore) PutOrchestration(ctx context.Context, orchestration *models.PublishingOrchestrationResult) error {
	return s.putItem(ctx, s.orchestrationTable, orchestration)
}

func (s *DynamoStore) GetOrchestration(ctx context.Context, jobID string) (*models.PublishingOrchestrationResult, error) {
	var orchestration models.PublishingOrchestrationResult
	found, err := s.getItem(ctx, s.orchestrationTable, stringKey("jobId", jobID), &orchestration)
	if err != nil || !found {
		return nil, err
	}
	return &orchestration, nil
}

func (s *DynamoStore) UpdateOrchestrationStatus(ctx context.Context, jobID string, status models.OrchestrationStatus, updatedAt string) error {
	update := expression.
		Set(expression.Name("status"), expression.Value(string(status))).
		Set(expression.Name("updatedAt"), expression.Value(updatedAt))
	return s.update(ctx, s.orchestrationTable, stringKey("jobId", jobID), update)
}

func (s *DynamoStore) UpdateOrchestrationJob(ctx context.Context, jobID string, job *models.PublishingJob) error {
	update := expression.Set(expression.Name("jobs").AppendName(expression.Name(job.Platform)), expression.Value(job))
	return s.update(ctx, s.orchestrationTable, stringKey("jobId", jobID), update)
}
