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

// ElectionRepo provides typed DynamoDB operations for the elections table.
type ElectionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewElectionRepo(client *dynamodb.Client, tableName string) *ElectionRepo {
	return &ElectionRepo{client: client, tableName: tableName}
}

func (r *ElectionRepo) Put(ctx context.Context, e *domain.Election) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal election: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ElectionRepo) Get(ctx context.Context, electionID string) (*domain.Election, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("election_id", electionID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("election not found: %w", domain.ErrNotFound)
	}
	var e domain.Election
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByStatus queries the status GSI. Status is a reserved word in
// DynamoDB expressions, hence the attribute-name placeholder.
func (r *ElectionRepo) ListByStatus(ctx context.Context, status string) ([]domain.Election, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("status-index"),
		KeyConditionExpression:    aws.String("#s = :v"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: status}},
	})
	if err != nil {
		return nil, err
	}
	var elections []domain.Election
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &elections); err != nil {
		return nil, err
	}
	return elections, nil
}

func (r *ElectionRepo) List(ctx context.Context) ([]domain.Election, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return nil, err
	}
	var elections []domain.Election
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &elections); err != nil {
		return nil, err
	}
	return elections, nil
}

func (r *ElectionRepo) Update(ctx context.Context, electionID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("election_id", electionID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
