package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/givehub-api/internal/domain"
)

// ChallengeRepo manages OTP challenge rows.
// PK: subject_key. A Put supersedes any existing challenge for the key.
// Mutations are fenced on challenge_id so updates racing a supersede or a
// concurrent verify fail instead of resurrecting stale state.
type ChallengeRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewChallengeRepo(client *dynamodb.Client, tableName string) *ChallengeRepo {
	return &ChallengeRepo{client: client, tableName: tableName}
}

func (r *ChallengeRepo) Put(ctx context.Context, c *domain.OtpChallenge) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ChallengeRepo) Get(ctx context.Context, subjectKey string) (*domain.OtpChallenge, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("subject_key", subjectKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	var c domain.OtpChallenge
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecrementAttempts is a compare-and-set on attempts_remaining. It only
// succeeds when the row still carries challengeID and exactly `from`
// attempts, so two concurrent wrong guesses cannot both consume the same
// attempt. A failed condition maps to domain.ErrConflict for the caller to
// re-read and retry.
func (r *ChallengeRepo) DecrementAttempts(ctx context.Context, subjectKey, challengeID string, from int) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("subject_key", subjectKey),
		UpdateExpression:    aws.String("SET attempts_remaining = :new"),
		ConditionExpression: aws.String("challenge_id = :cid AND attempts_remaining = :old"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: challengeID},
			":old": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", from)},
			":new": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", from-1)},
		},
	})
	return mapConditionFailure(err)
}

// Consume marks the challenge verified. The condition rejects a second
// consume and any consume racing a supersede.
func (r *ChallengeRepo) Consume(ctx context.Context, subjectKey, challengeID string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("subject_key", subjectKey),
		UpdateExpression:    aws.String("SET consumed_at = :at"),
		ConditionExpression: aws.String("challenge_id = :cid AND attribute_not_exists(consumed_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: challengeID},
			":at":  &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
	})
	return mapConditionFailure(err)
}

func mapConditionFailure(err error) error {
	var ccfe *types.ConditionalCheckFailedException
	if errors.As(err, &ccfe) {
		return fmt.Errorf("challenge changed concurrently: %w", domain.ErrConflict)
	}
	return err
}
