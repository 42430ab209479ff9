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

// SubscriptionRepo provides typed DynamoDB operations for the push_subscriptions table.
// PK: endpoint. One row per endpoint no matter how many times a browser
// re-subscribes.
type SubscriptionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSubscriptionRepo(client *dynamodb.Client, tableName string) *SubscriptionRepo {
	return &SubscriptionRepo{client: client, tableName: tableName}
}

// Upsert writes the subscription keyed by endpoint. An existing row keeps
// its subscription_id and created_at; everything else (owner, keys, device
// info) is replaced and any revocation is cleared.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s *domain.PushSubscription) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("endpoint", s.Endpoint),
		UpdateExpression: aws.String(
			"SET subscription_id = if_not_exists(subscription_id, :sid), " +
				"created_at = if_not_exists(created_at, :now), " +
				"user_id = :uid, p256dh = :p, auth = :a, device_info = :d " +
				"REMOVE revoked_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: s.SubscriptionID},
			":now": &types.AttributeValueMemberS{Value: s.CreatedAt.UTC().Format(time.RFC3339Nano)},
			":uid": &types.AttributeValueMemberS{Value: s.UserID},
			":p":   &types.AttributeValueMemberS{Value: s.P256dh},
			":a":   &types.AttributeValueMemberS{Value: s.Auth},
			":d":   &types.AttributeValueMemberS{Value: s.DeviceInfo},
		},
	})
	return err
}

func (r *SubscriptionRepo) Get(ctx context.Context, endpoint string) (*domain.PushSubscription, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("endpoint", endpoint),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("subscription not found: %w", domain.ErrNotFound)
	}
	var s domain.PushSubscription
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveByUser queries the user_id GSI and filters out revoked rows.
func (r *SubscriptionRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("attribute_not_exists(revoked_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}
	var subs []domain.PushSubscription
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Revoke soft-deletes the subscription. Rows are kept for audit; delivery
// skips anything carrying revoked_at.
func (r *SubscriptionRepo) Revoke(ctx context.Context, endpoint string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("endpoint", endpoint),
		UpdateExpression: aws.String("SET revoked_at = if_not_exists(revoked_at, :at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(endpoint)"),
	})
	var ccfe *types.ConditionalCheckFailedException
	if errors.As(err, &ccfe) {
		return fmt.Errorf("subscription not found: %w", domain.ErrNotFound)
	}
	return err
}
