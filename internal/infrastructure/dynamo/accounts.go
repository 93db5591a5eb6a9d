package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/checkcalendar-api/internal/domain"
)

// AccountRepo stores accounts keyed by email.
// PK: email, so PutItem with attribute_not_exists enforces uniqueness.
type AccountRepo struct {
	table
}

func NewAccountRepo(client API, tableName string, timeout time.Duration) *AccountRepo {
	return &AccountRepo{table{client: client, name: tableName, timeout: timeout}}
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.name),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storageErr("get account", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, storageErr("unmarshal account", err)
	}
	return &a, nil
}

// Create inserts a only when no account exists for its email; otherwise ErrConflict.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.name),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#e)"),
		ExpressionAttributeNames: map[string]string{"#e": fieldEmail},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("account already exists: %w", domain.ErrConflict)
	}
	if err != nil {
		return storageErr("create account", err)
	}
	return nil
}
