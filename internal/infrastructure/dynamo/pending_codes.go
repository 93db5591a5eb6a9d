package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/checkcalendar-api/internal/domain"
)

// PendingCodeRepo manages outstanding one-time passcodes.
// PK: email. expires_at doubles as the table TTL attribute.
type PendingCodeRepo struct {
	table
}

func NewPendingCodeRepo(client API, tableName string, timeout time.Duration) *PendingCodeRepo {
	return &PendingCodeRepo{table{client: client, name: tableName, timeout: timeout}}
}

func (r *PendingCodeRepo) Put(ctx context.Context, p *domain.PendingCode) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal pending code: %w", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.name),
		Item:      item,
	})
	if err != nil {
		return storageErr("put pending code", err)
	}
	return nil
}

func (r *PendingCodeRepo) Get(ctx context.Context, email string) (*domain.PendingCode, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.name),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storageErr("get pending code", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("pending code not found: %w", domain.ErrNotFound)
	}
	var p domain.PendingCode
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, storageErr("unmarshal pending code", err)
	}
	return &p, nil
}

// Delete removes the pending code for email. Deleting a missing row is not an error.
func (r *PendingCodeRepo) Delete(ctx context.Context, email string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.name),
		Key:       strKey(fieldEmail, email),
	})
	if err != nil {
		return storageErr("delete pending code", err)
	}
	return nil
}

// Consume deletes the row only while it still holds code, so two concurrent
// verifications of the same code cannot both succeed. ErrNotFound otherwise.
func (r *PendingCodeRepo) Consume(ctx context.Context, email, code string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.name),
		Key:                       strKey(fieldEmail, email),
		ConditionExpression:       aws.String("#c = :c"),
		ExpressionAttributeNames:  map[string]string{"#c": fieldCode},
		ExpressionAttributeValues: map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: code}},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("pending code already consumed: %w", domain.ErrNotFound)
	}
	if err != nil {
		return storageErr("consume pending code", err)
	}
	return nil
}
