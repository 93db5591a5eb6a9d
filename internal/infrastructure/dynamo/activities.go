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
	"github.com/checkcalendar-api/internal/domain"
)

// ActivityRepo provides typed DynamoDB operations for the activities table.
// PK: activity_id. GSI account_id-index lists an account's activities.
type ActivityRepo struct {
	table
}

func NewActivityRepo(client API, tableName string, timeout time.Duration) *ActivityRepo {
	return &ActivityRepo{table{client: client, name: tableName, timeout: timeout}}
}

func (r *ActivityRepo) Put(ctx context.Context, a *domain.Activity) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.name),
		Item:      item,
	})
	if err != nil {
		return storageErr("put activity", err)
	}
	return nil
}

func (r *ActivityRepo) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.name),
		Key:       strKey(fieldActivityID, activityID),
	})
	if err != nil {
		return nil, storageErr("get activity", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("activity not found: %w", domain.ErrNotFound)
	}
	var a domain.Activity
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, storageErr("unmarshal activity", err)
	}
	return &a, nil
}

// ListByAccount follows LastEvaluatedKey until the GSI query is exhausted.
func (r *ActivityRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.Activity, error) {
	var (
		all   []domain.Activity
		start map[string]types.AttributeValue
	)
	for {
		out, err := r.queryPage(ctx, accountID, start)
		if err != nil {
			return nil, err
		}
		var page []domain.Activity
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, storageErr("unmarshal activities", err)
		}
		all = append(all, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return all, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (r *ActivityRepo) queryPage(ctx context.Context, accountID string, start map[string]types.AttributeValue) (*dynamodb.QueryOutput, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.name),
		IndexName:                 aws.String(indexAccountID),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldAccountID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: accountID}},
		ExclusiveStartKey:         start,
	})
	if err != nil {
		return nil, storageErr("query activities", err)
	}
	return out, nil
}

// Update applies a SET expression to an existing activity; ErrNotFound if it is gone.
func (r *ActivityRepo) Update(ctx context.Context, activityID string, updates map[string]interface{}) error {
	return r.update(ctx, activityID, updates, nil)
}

// UpdateIfUnchanged is Update guarded by the activity's updated_at. A write
// that raced in since the caller's read yields ErrConflict.
func (r *ActivityRepo) UpdateIfUnchanged(ctx context.Context, activityID string, updatedAt time.Time, updates map[string]interface{}) error {
	return r.update(ctx, activityID, updates, &updatedAt)
}

func (r *ActivityRepo) update(ctx context.Context, activityID string, updates map[string]interface{}, ifUpdatedAt *time.Time) error {
	updates[fieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldActivityID
	cond := "attribute_exists(#pk)"
	if ifUpdatedAt != nil {
		av, err := attributevalue.Marshal(ifUpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("marshal updated_at: %w", err)
		}
		ue.Names["#ua"] = fieldUpdatedAt
		ue.Values[":ua"] = av
		cond += " AND #ua = :ua"
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.name),
		Key:                                 strKey(fieldActivityID, activityID),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(cond),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) > 0 {
			return fmt.Errorf("activity %s changed concurrently: %w", activityID, domain.ErrConflict)
		}
		return fmt.Errorf("activity not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return storageErr("update activity", err)
	}
	return nil
}

func (r *ActivityRepo) Delete(ctx context.Context, activityID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.name),
		Key:       strKey(fieldActivityID, activityID),
	})
	if err != nil {
		return storageErr("delete activity", err)
	}
	return nil
}
