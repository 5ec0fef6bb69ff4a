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

// VoteRepo is the append-only vote ledger. The table key is
// (election_id PK, voter_id SK), so one-vote-per-voter-per-election is a
// storage-level constraint, not just an application check.
type VoteRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVoteRepo(client *dynamodb.Client, tableName string) *VoteRepo {
	return &VoteRepo{client: client, tableName: tableName}
}

// Append writes the vote only if no vote exists for (election_id, voter_id).
// A concurrent duplicate loses the conditional write and gets ErrConflict.
func (r *VoteRepo) Append(ctx context.Context, v *domain.Vote) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(election_id) AND attribute_not_exists(voter_id)"),
	})
	if isConditionalFailure(err) {
		return fmt.Errorf("vote already cast: %w", domain.ErrConflict)
	}
	return err
}

// GetByVoter returns the voter's vote in the given election, if any.
func (r *VoteRepo) GetByVoter(ctx context.Context, electionID, voterID string) (*domain.Vote, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("election_id", electionID, "voter_id", voterID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("vote not found: %w", domain.ErrNotFound)
	}
	var v domain.Vote
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByElection returns all votes for an election.
func (r *VoteRepo) ListByElection(ctx context.Context, electionID string) ([]domain.Vote, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("election_id = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":e": &types.AttributeValueMemberS{Value: electionID}},
	})
	if err != nil {
		return nil, err
	}
	var votes []domain.Vote
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}
