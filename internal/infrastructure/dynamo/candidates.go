package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/evote-api/internal/domain"
)

// CandidateRepo provides typed DynamoDB operations for the candidates table.
type CandidateRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewCandidateRepo(client *dynamodb.Client, tableName string) *CandidateRepo {
	return &CandidateRepo{client: client, tableName: tableName}
}

func (r *CandidateRepo) Put(ctx context.Context, c *domain.Candidate) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *CandidateRepo) Get(ctx context.Context, candidateID string) (*domain.Candidate, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("candidate_id", candidateID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("candidate not found: %w", domain.ErrNotFound)
	}
	var c domain.Candidate
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByElection returns the election's candidates in creation order via the
// election_id/created_at GSI. Tally stability depends on this ordering.
func (r *CandidateRepo) ListByElection(ctx context.Context, electionID string) ([]domain.Candidate, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("election_id-created_at-index"),
		KeyConditionExpression:    aws.String("election_id = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":e": &types.AttributeValueMemberS{Value: electionID}},
		ScanIndexForward:          aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	var candidates []domain.Candidate
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}
