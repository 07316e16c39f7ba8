package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/reservepay/retryd/internal/core"
)

// DynamoDBStore implements the Store interface using AWS DynamoDB.
// Single-table design with PK/SK pattern:
//   - Items: PK=<item_id>, SK="ITEM"
//   - Attempts: PK=<item_id>, SK="ATTEMPT#<attempt_id>"
//   - Policies: PK="POLICY#<retry_type>", SK="POLICY#<name>"
//   - Notifications: PK="NOTIFY#<id>", SK="NOTIFY"
//
// GSI1: GSI1PK (STATUS#<status>) + GSI1SK (due time, ms) — due/stuck scans
// GSI2: GSI2PK (USER#<user_id>) + GSI2SK (<created_at>) — per-user listing
// GSI3: GSI3PK (ATTEMPT) + GSI3SK (completed_at, ms) — analytics windows
//
// Claim and settle are conditional updates on the current status, which
// is what makes them safe under concurrent scheduler runs.
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB store.
func NewDynamoDBStore(client *dynamodb.Client, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

// EnsureTable creates the table with GSIs if it doesn't exist.
func (s *DynamoDBStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}

	provisioned := &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(5),
		WriteCapacityUnits: aws.Int64(5),
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1SK"), AttributeType: types.ScalarAttributeTypeN},
			{AttributeName: aws.String("GSI2PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI2SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI3PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI3SK"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String("GSI1"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("GSI1PK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("GSI1SK"), KeyType: types.KeyTypeRange},
				},
				Projection:            &types.Projection{ProjectionType: types.ProjectionTypeAll},
				ProvisionedThroughput: provisioned,
			},
			{
				IndexName: aws.String("GSI2"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("GSI2PK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("GSI2SK"), KeyType: types.KeyTypeRange},
				},
				Projection:            &types.Projection{ProjectionType: types.ProjectionTypeAll},
				ProvisionedThroughput: provisioned,
			},
			{
				IndexName: aws.String("GSI3"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("GSI3PK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("GSI3SK"), KeyType: types.KeyTypeRange},
				},
				Projection:            &types.Projection{ProjectionType: types.ProjectionTypeAll},
				ProvisionedThroughput: provisioned,
			},
		},
		BillingMode:           types.BillingModeProvisioned,
		ProvisionedThroughput: provisioned,
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}, 2*time.Minute); err != nil {
		return fmt.Errorf("failed waiting for table: %w", err)
	}

	return nil
}

// PutItem stores an item record.
func (s *DynamoDBStore) PutItem(ctx context.Context, record *ItemRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// GetItem retrieves an item by ID.
func (s *DynamoDBStore) GetItem(ctx context.Context, itemID string) (*ItemRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: itemID},
			"SK": &types.AttributeValueMemberS{Value: "ITEM"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if result.Item == nil {
		return nil, core.NewNotFoundError("retry_item", itemID)
	}

	var record ItemRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &record, nil
}

// ClaimDueItems queries pending items that are due and transitions each
// to processing with a conditional update. Items that lose the CAS to a
// concurrent claim are silently skipped.
func (s *DynamoDBStore) ClaimDueItems(ctx context.Context, limit int, now, deadline time.Time) ([]*ItemRecord, error) {
	candidates, err := s.queryByStatusDue(ctx, core.StatusPending, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due items: %w", err)
	}

	claimed := make([]*ItemRecord, 0, len(candidates))
	for _, record := range candidates {
		if err := s.claimRecord(ctx, record, record.Status, now, deadline); err != nil {
			if isConditionalCheckFailed(err) {
				continue // lost the race; another run owns it
			}
			return claimed, err
		}
		claimed = append(claimed, record)
	}

	return claimed, nil
}

// ClaimItem claims a single item for manual retry, resetting its
// next_retry_at to now.
func (s *DynamoDBStore) ClaimItem(ctx context.Context, itemID string, now, deadline time.Time) (*ItemRecord, error) {
	record, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if !core.IsManuallyRetryable(record.Status) {
		return nil, core.NewInvalidStateError(itemID, record.Status)
	}

	record.NextRetryAt = core.FormatTime(now)
	if err := s.claimRecord(ctx, record, record.Status, now, deadline); err != nil {
		if isConditionalCheckFailed(err) {
			return nil, core.NewConflictError("item was claimed concurrently", map[string]any{"item_id": itemID})
		}
		return nil, err
	}

	return record, nil
}

// claimRecord performs the conditional pending/failed -> processing
// transition and mutates record to the claimed state on success.
func (s *DynamoDBStore) claimRecord(ctx context.Context, record *ItemRecord, expectedStatus string, now, deadline time.Time) error {
	claimDeadline := core.FormatTime(deadline)

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: record.ID},
			"SK": &types.AttributeValueMemberS{Value: "ITEM"},
		},
		UpdateExpression: aws.String(
			"SET item_status = :processing, claim_deadline = :deadline, last_attempt_at = :now, " +
				"next_retry_at = :next, GSI1PK = :gsi1pk, GSI1SK = :gsi1sk"),
		ConditionExpression: aws.String("item_status = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":processing": &types.AttributeValueMemberS{Value: core.StatusProcessing},
			":deadline":   &types.AttributeValueMemberS{Value: claimDeadline},
			":now":        &types.AttributeValueMemberS{Value: core.FormatTime(now)},
			":next":       &types.AttributeValueMemberS{Value: record.NextRetryAt},
			":gsi1pk":     &types.AttributeValueMemberS{Value: "STATUS#" + core.StatusProcessing},
			":gsi1sk":     &types.AttributeValueMemberN{Value: strconv.FormatInt(deadline.UnixMilli(), 10)},
			":expected":   &types.AttributeValueMemberS{Value: expectedStatus},
		},
	})
	if err != nil {
		return err
	}

	record.Status = core.StatusProcessing
	record.ClaimDeadline = claimDeadline
	record.LastAttemptAt = core.FormatTime(now)
	record.GSI1PK = "STATUS#" + core.StatusProcessing
	record.GSI1SK = deadline.UnixMilli()
	return nil
}

// SettleSuccess transitions processing -> completed. The conditional
// expression makes a repeated settle a conflict instead of a double
// increment of success_count.
func (s *DynamoDBStore) SettleSuccess(ctx context.Context, itemID string, now time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: itemID},
			"SK": &types.AttributeValueMemberS{Value: "ITEM"},
		},
		UpdateExpression: aws.String(
			"SET item_status = :completed, success_count = success_count + :one, " +
				"last_attempt_at = :now, GSI1PK = :gsi1pk, GSI1SK = :zero REMOVE claim_deadline"),
		ConditionExpression: aws.String("item_status = :processing"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed":  &types.AttributeValueMemberS{Value: core.StatusCompleted},
			":processing": &types.AttributeValueMemberS{Value: core.StatusProcessing},
			":one":        &types.AttributeValueMemberN{Value: "1"},
			":zero":       &types.AttributeValueMemberN{Value: "0"},
			":now":        &types.AttributeValueMemberS{Value: core.FormatTime(now)},
			":gsi1pk":     &types.AttributeValueMemberS{Value: "STATUS#" + core.StatusCompleted},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return core.NewConflictError("item is not processing", map[string]any{"item_id": itemID})
		}
		return fmt.Errorf("failed to settle success: %w", err)
	}

	return nil
}

// SettleRetry reschedules the item for nextAttempt after delay, or marks
// it failed terminally when attempts are exhausted.
func (s *DynamoDBStore) SettleRetry(ctx context.Context, itemID string, nextAttempt int, delay time.Duration, reason string, now time.Time) (bool, error) {
	record, err := s.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}

	terminal := nextAttempt > record.MaxAttempts

	var input *dynamodb.UpdateItemInput
	if terminal {
		input = &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: itemID},
				"SK": &types.AttributeValueMemberS{Value: "ITEM"},
			},
			UpdateExpression: aws.String(
				"SET item_status = :failed, last_failure_reason = :reason, " +
					"GSI1PK = :gsi1pk, GSI1SK = :zero REMOVE claim_deadline"),
			ConditionExpression: aws.String("item_status = :processing"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":failed":     &types.AttributeValueMemberS{Value: core.StatusFailed},
				":processing": &types.AttributeValueMemberS{Value: core.StatusProcessing},
				":reason":     &types.AttributeValueMemberS{Value: "Max retry attempts reached"},
				":gsi1pk":     &types.AttributeValueMemberS{Value: "STATUS#" + core.StatusFailed},
				":zero":       &types.AttributeValueMemberN{Value: "0"},
			},
		}
	} else {
		nextRetryAt := now.Add(delay)
		input = &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: itemID},
				"SK": &types.AttributeValueMemberS{Value: "ITEM"},
			},
			UpdateExpression: aws.String(
				"SET item_status = :pending, attempt_number = :attempt, " +
					"retry_count = retry_count + :one, next_retry_at = :next, " +
					"last_failure_reason = :reason, GSI1PK = :gsi1pk, GSI1SK = :gsi1sk " +
					"REMOVE claim_deadline"),
			ConditionExpression: aws.String("item_status = :processing"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pending":    &types.AttributeValueMemberS{Value: core.StatusPending},
				":processing": &types.AttributeValueMemberS{Value: core.StatusProcessing},
				":attempt":    &types.AttributeValueMemberN{Value: strconv.Itoa(nextAttempt)},
				":one":        &types.AttributeValueMemberN{Value: "1"},
				":next":       &types.AttributeValueMemberS{Value: core.FormatTime(nextRetryAt)},
				":reason":     &types.AttributeValueMemberS{Value: reason},
				":gsi1pk":     &types.AttributeValueMemberS{Value: "STATUS#" + core.StatusPending},
				":gsi1sk":     &types.AttributeValueMemberN{Value: strconv.FormatInt(nextRetryAt.UnixMilli(), 10)},
			},
		}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return false, core.NewConflictError("item is not processing", map[string]any{"item_id": itemID})
		}
		return false, fmt.Errorf("failed to settle retry: %w", err)
	}

	return terminal, nil
}

// ReclaimStuck returns processing items whose claim deadline passed back
// to pending. attempt_number is untouched: no progress is lost and no
// attempt is double-counted.
func (s *DynamoDBStore) ReclaimStuck(ctx context.Context, now time.Time) (int, error) {
	stuck, err := s.queryByStatusDue(ctx, core.StatusProcessing, now.UnixMilli(), 0)
	if err != nil {
		return 0, fmt.Errorf("failed to query stuck items: %w", err)
	}

	reclaimed := 0
	for _, record := range stuck {
		dueMs := timeMillis(record.NextRetryAt)
		if dueMs == 0 {
			dueMs = now.UnixMilli()
		}

		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: record.ID},
				"SK": &types.AttributeValueMemberS{Value: "ITEM"},
			},
			UpdateExpression: aws.String(
				"SET item_status = :pending, GSI1PK = :gsi1pk, GSI1SK = :gsi1sk REMOVE claim_deadline"),
			ConditionExpression: aws.String("item_status = :processing"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pending":    &types.AttributeValueMemberS{Value: core.StatusPending},
				":processing": &types.AttributeValueMemberS{Value: core.StatusProcessing},
				":gsi1pk":     &types.AttributeValueMemberS{Value: "STATUS#" + core.StatusPending},
				":gsi1sk":     &types.AttributeValueMemberN{Value: strconv.FormatInt(dueMs, 10)},
			},
		})
		if err != nil {
			if isConditionalCheckFailed(err) {
				continue // settled in the meantime
			}
			return reclaimed, fmt.Errorf("failed to reclaim item %s: %w", record.ID, err)
		}
		reclaimed++
	}

	return reclaimed, nil
}

// ListItemsByUser returns a user's items, newest first.
func (s *DynamoDBStore) ListItemsByUser(ctx context.Context, userID string, limit, offset int) ([]*ItemRecord, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI2"),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "USER#" + userID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit + offset)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query items by user: %w", err)
	}

	records := make([]*ItemRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var record ItemRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		records = append(records, &record)
	}

	if offset >= len(records) {
		return []*ItemRecord{}, nil
	}
	return records[offset:], nil
}

// CountDueItems counts pending items that are due now (backlog gauge).
func (s *DynamoDBStore) CountDueItems(ctx context.Context, now time.Time) (int, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: "STATUS#" + core.StatusPending},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count due items: %w", err)
	}

	return int(result.Count), nil
}

func (s *DynamoDBStore) queryByStatusDue(ctx context.Context, status string, nowMs int64, limit int) ([]*ItemRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: "STATUS#" + status},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(nowMs, 10)},
		},
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	records := make([]*ItemRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var record ItemRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// PutAttempt stores an attempt record.
func (s *DynamoDBStore) PutAttempt(ctx context.Context, record *AttemptRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put attempt: %w", err)
	}

	return nil
}

// FinalizeAttempt writes an attempt's terminal fields exactly once. The
// condition keeps finalized attempts immutable.
func (s *DynamoDBStore) FinalizeAttempt(ctx context.Context, itemID, attemptID string, final *AttemptFinal) error {
	completedAt := core.FormatTime(final.CompletedAt)

	updateExpr := "SET attempt_status = :status, completed_at = :completed, " +
		"processing_time_ms = :elapsed, GSI3PK = :gsi3pk, GSI3SK = :gsi3sk"
	exprAttrValues := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: final.Status},
		":completed":  &types.AttributeValueMemberS{Value: completedAt},
		":elapsed":    &types.AttributeValueMemberN{Value: strconv.FormatInt(final.ProcessingTimeMs, 10)},
		":gsi3pk":     &types.AttributeValueMemberS{Value: "ATTEMPT"},
		":gsi3sk":     &types.AttributeValueMemberN{Value: strconv.FormatInt(final.CompletedAt.UnixMilli(), 10)},
		":processing": &types.AttributeValueMemberS{Value: core.AttemptProcessing},
	}

	if final.FailureReason != "" {
		updateExpr += ", failure_reason = :reason"
		exprAttrValues[":reason"] = &types.AttributeValueMemberS{Value: final.FailureReason}
	}
	if final.FailureCode != "" {
		updateExpr += ", failure_code = :code"
		exprAttrValues[":code"] = &types.AttributeValueMemberS{Value: final.FailureCode}
	}
	if final.ProviderResponse != "" {
		updateExpr += ", provider_response = :resp"
		exprAttrValues[":resp"] = &types.AttributeValueMemberS{Value: final.ProviderResponse}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: itemID},
			"SK": &types.AttributeValueMemberS{Value: "ATTEMPT#" + attemptID},
		},
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       aws.String("attribute_exists(PK) AND attempt_status = :processing"),
		ExpressionAttributeValues: exprAttrValues,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return core.NewConflictError("attempt already finalized", map[string]any{"attempt_id": attemptID})
		}
		return fmt.Errorf("failed to finalize attempt: %w", err)
	}

	return nil
}

// ListAttemptsByItem returns all attempts for an item in creation order.
func (s *DynamoDBStore) ListAttemptsByItem(ctx context.Context, itemID string) ([]*AttemptRecord, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: itemID},
			":sk": &types.AttributeValueMemberS{Value: "ATTEMPT#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}

	records := make([]*AttemptRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var record AttemptRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attempt: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// ListAttemptsByRange returns finalized attempts completed inside the
// window, via the GSI3 analytics index.
func (s *DynamoDBStore) ListAttemptsByRange(ctx context.Context, from, to time.Time) ([]*AttemptRecord, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("GSI3"),
		KeyConditionExpression: aws.String("GSI3PK = :pk AND GSI3SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: "ATTEMPT"},
			":from": &types.AttributeValueMemberN{Value: strconv.FormatInt(from.UnixMilli(), 10)},
			":to":   &types.AttributeValueMemberN{Value: strconv.FormatInt(to.UnixMilli(), 10)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts by range: %w", err)
	}

	records := make([]*AttemptRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var record AttemptRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attempt: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// PutPolicy stores a policy record.
func (s *DynamoDBStore) PutPolicy(ctx context.Context, record *PolicyRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put policy: %w", err)
	}

	return nil
}

// GetActivePolicy returns the single active policy for a retry type, or
// a config error when none exists.
func (s *DynamoDBStore) GetActivePolicy(ctx context.Context, retryType string) (*PolicyRecord, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		FilterExpression:       aws.String("is_active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: "POLICY#" + retryType},
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query active policy: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, core.NewConfigError("no active retry policy for type: "+retryType, map[string]any{
			"retry_type": retryType,
		})
	}

	var record PolicyRecord
	if err := attributevalue.UnmarshalMap(result.Items[0], &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	return &record, nil
}

// ListPolicies returns all stored policies.
func (s *DynamoDBStore) ListPolicies(ctx context.Context) ([]*PolicyRecord, error) {
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: "POLICY#"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan policies: %w", err)
	}

	records := make([]*PolicyRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var record PolicyRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// PutNotification stores a notification record.
func (s *DynamoDBStore) PutNotification(ctx context.Context, record *NotificationRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put notification: %w", err)
	}

	return nil
}

// Ping checks the connection to DynamoDB.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to ping DynamoDB: %w", err)
	}

	return nil
}

// Close closes the store (no-op for DynamoDB client).
func (s *DynamoDBStore) Close() error {
	return nil
}

func isConditionalCheckFailed(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ConditionalCheckFailedException")
}
