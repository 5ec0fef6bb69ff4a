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

// VoterRepo provides typed DynamoDB operations for the voters table.
// Rows are insert-only: there is no update or delete path.
type VoterRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVoterRepo(client *dynamodb.Client, tableName string) *VoterRepo {
	return &VoterRepo{client: client, tableName: tableName}
}

// Put inserts a new voter. The condition guards against a duplicate voter_id;
// phone uniqueness is the orchestrator's responsibility and is re-checked
// there before the challenge is ever issued.
func (r *VoterRepo) Put(ctx context.Context, v *domain.Voter) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal voter: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(voter_id)"),
	})
	if isConditionalFailure(err) {
		return fmt.Errorf("voter already exists: %w", domain.ErrConflict)
	}
	return err
}

func (r *VoterRepo) Get(ctx context.Context, voterID string) (*domain.Voter, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("voter_id", voterID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("voter not found: %w", domain.ErrNotFound)
	}
	var v domain.Voter
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByPhone resolves a voter via the phone GSI. Phone is effectively a
// unique key; if the index ever holds more than one row the first match is
// returned.
func (r *VoterRepo) GetByPhone(ctx context.Context, phone string) (*domain.Voter, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("phone-index"),
		KeyConditionExpression:    aws.String("#p = :v"),
		ExpressionAttributeNames:  map[string]string{"#p": "phone"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: phone}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("voter not found: %w", domain.ErrNotFound)
	}
	var v domain.Voter
	if err := attributevalue.UnmarshalMap(out.Items[0], &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List scans all enrolled voters (admin roster view).
func (r *VoterRepo) List(ctx context.Context) ([]domain.Voter, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return nil, err
	}
	var voters []domain.Voter
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &voters); err != nil {
		return nil, err
	}
	return voters, nil
}
