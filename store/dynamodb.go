package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dataeng/pricingflow"
)

// DynamoDBStore implements pricingflow.WorkflowStore on a single DynamoDB
// table. See schema.go for the key layout.
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB-backed workflow store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

var _ pricingflow.WorkflowStore = (*DynamoDBStore)(nil)

func isNotFound(err error) bool {
	return errors.Is(err, pricingflow.ErrNotFound)
}

func strAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// runItem marshals a run with its table and index keys. Index keys embed the
// status, so every write of a run must go through here.
func runItem(run *pricingflow.WorkflowRun) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow run: %w", err)
	}

	createdAt := sortableTime(run.CreatedAt)
	item[AttrPK] = strAttr(workflowRunPK(run.RunID))
	item[AttrSK] = strAttr(workflowRunSK())
	item[AttrEntityType] = strAttr(EntityTypeWorkflowRun)

	if run.WorkflowID != "" {
		item[AttrGSI1PK] = strAttr(workflowRunGSI1PK(run.WorkflowID, string(run.Status)))
		item[AttrGSI1SK] = strAttr(createdAt)
	}
	if run.ResourceID != "" {
		item[AttrGSI2PK] = strAttr(workflowRunGSI2PK(run.ResourceID, string(run.Status)))
		item[AttrGSI2SK] = strAttr(createdAt)
	}
	return item, nil
}

func (d *DynamoDBStore) getItem(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: strAttr(pk),
			AttrSK: strAttr(sk),
		},
	})
	if err != nil {
		return nil, err
	}
	return result.Item, nil
}

func (d *DynamoDBStore) putItem(ctx context.Context, item map[string]types.AttributeValue) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	return err
}

// queryAll pages through a query and hands every item to fn
func (d *DynamoDBStore) queryAll(ctx context.Context, input *dynamodb.QueryInput, fn func(map[string]types.AttributeValue) error) error {
	input.TableName = aws.String(d.tableName)
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return err
		}
		for _, item := range result.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(result.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// Workflow run operations

func (d *DynamoDBStore) CreateRun(ctx context.Context, run *pricingflow.WorkflowRun) error {
	item, err := runItem(run)
	if err != nil {
		return err
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("workflow run %s already exists", run.RunID)
		}
		return fmt.Errorf("failed to create workflow run: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) GetRun(ctx context.Context, runID string) (*pricingflow.WorkflowRun, error) {
	item, err := d.getItem(ctx, workflowRunPK(runID), workflowRunSK())
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("workflow run %s: %w", runID, pricingflow.ErrNotFound)
	}

	var run pricingflow.WorkflowRun
	if err := attributevalue.UnmarshalMap(item, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow run: %w", err)
	}
	return &run, nil
}

// UpdateRun replaces the run item. The write is conditional on the run
// existing so a late update never resurrects a deleted or expired run.
func (d *DynamoDBStore) UpdateRun(ctx context.Context, run *pricingflow.WorkflowRun) error {
	run.UpdatedAt = time.Now()

	item, err := runItem(run)
	if err != nil {
		return err
	}

	_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(d.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("workflow run %s: %w", run.RunID, pricingflow.ErrNotFound)
		}
		return fmt.Errorf("failed to update workflow run: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) UpdateRunStatus(ctx context.Context, runID string, status pricingflow.RunStatus, wfErr *pricingflow.WorkflowError) error {
	run, err := d.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	run.Status = status
	run.Error = wfErr
	if status.IsTerminal() && run.CompletedAt == nil {
		now := time.Now()
		run.CompletedAt = &now
	}
	return d.UpdateRun(ctx, run)
}

// ListRuns queries GSI1 when a workflow id is given and GSI2 when only a
// resource id is. Without a status filter every status partition is queried
// and the results merged. Results are newest first.
func (d *DynamoDBStore) ListRuns(ctx context.Context, filter pricingflow.RunFilter) ([]*pricingflow.WorkflowRun, error) {
	var (
		index   string
		keyAttr string
		pkFor   func(status string) string
	)
	switch {
	case filter.WorkflowID != "":
		index, keyAttr = IndexStatusIndex, AttrGSI1PK
		pkFor = func(status string) string { return workflowRunGSI1PK(filter.WorkflowID, status) }
	case filter.ResourceID != "":
		index, keyAttr = IndexResourceIndex, AttrGSI2PK
		pkFor = func(status string) string { return workflowRunGSI2PK(filter.ResourceID, status) }
	default:
		return nil, fmt.Errorf("listing runs requires a workflow id or resource id")
	}

	statuses := allRunStatuses
	if filter.Status != nil {
		statuses = []pricingflow.RunStatus{*filter.Status}
	}

	var runs []*pricingflow.WorkflowRun
	for _, status := range statuses {
		input := &dynamodb.QueryInput{
			IndexName:              aws.String(index),
			KeyConditionExpression: aws.String(keyAttr + " = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": strAttr(pkFor(string(status))),
			},
			ScanIndexForward: aws.Bool(false),
		}
		err := d.queryAll(ctx, input, func(item map[string]types.AttributeValue) error {
			var run pricingflow.WorkflowRun
			if err := attributevalue.UnmarshalMap(item, &run); err != nil {
				return fmt.Errorf("failed to unmarshal workflow run: %w", err)
			}
			// both ids given: the index covers one, filter the other here
			if filter.ResourceID != "" && run.ResourceID != filter.ResourceID {
				return nil
			}
			runs = append(runs, &run)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list workflow runs: %w", err)
		}
	}

	slices.SortFunc(runs, func(a, b *pricingflow.WorkflowRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// Step execution operations

func (d *DynamoDBStore) putStepExecution(ctx context.Context, exec *pricingflow.StepExecution) error {
	exec.UpdatedAt = time.Now()

	item, err := attributevalue.MarshalMap(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal step execution: %w", err)
	}
	item[AttrPK] = strAttr(stepExecutionPK(exec.RunID))
	item[AttrSK] = strAttr(stepExecutionSK(exec.StepID))
	item[AttrEntityType] = strAttr(EntityTypeStepExecution)

	return d.putItem(ctx, item)
}

func (d *DynamoDBStore) CreateStepExecution(ctx context.Context, exec *pricingflow.StepExecution) error {
	if err := d.putStepExecution(ctx, exec); err != nil {
		return fmt.Errorf("failed to create step execution: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) UpdateStepExecution(ctx context.Context, exec *pricingflow.StepExecution) error {
	if err := d.putStepExecution(ctx, exec); err != nil {
		return fmt.Errorf("failed to update step execution: %w", err)
	}
	return nil
}

// ListStepExecutions returns the run's step executions ordered by execution
// index
func (d *DynamoDBStore) ListStepExecutions(ctx context.Context, runID string) ([]*pricingflow.StepExecution, error) {
	var executions []*pricingflow.StepExecution

	err := d.queryAll(ctx, &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strAttr(stepExecutionPK(runID)),
			":sk": strAttr(stepPrefix),
		},
	}, func(item map[string]types.AttributeValue) error {
		var exec pricingflow.StepExecution
		if err := attributevalue.UnmarshalMap(item, &exec); err != nil {
			return fmt.Errorf("failed to unmarshal step execution: %w", err)
		}
		executions = append(executions, &exec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list step executions: %w", err)
	}

	slices.SortFunc(executions, func(a, b *pricingflow.StepExecution) int {
		return a.ExecutionIndex - b.ExecutionIndex
	})
	return executions, nil
}

// Step outputs and state are stored as raw binary attributes

func binaryAttr(item map[string]types.AttributeValue, name string) ([]byte, bool) {
	b, ok := item[name].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false
	}
	return b.Value, true
}

func (d *DynamoDBStore) SaveStepOutput(ctx context.Context, runID, stepID string, output []byte) error {
	err := d.putItem(ctx, map[string]types.AttributeValue{
		AttrPK:         strAttr(stepOutputPK(runID)),
		AttrSK:         strAttr(stepOutputSK(stepID)),
		AttrEntityType: strAttr(EntityTypeStepOutput),
		AttrOutput:     &types.AttributeValueMemberB{Value: output},
		AttrUpdatedAt:  strAttr(sortableTime(time.Now())),
	})
	if err != nil {
		return fmt.Errorf("failed to save step output: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) LoadStepOutput(ctx context.Context, runID, stepID string) ([]byte, error) {
	item, err := d.getItem(ctx, stepOutputPK(runID), stepOutputSK(stepID))
	if err != nil {
		return nil, fmt.Errorf("failed to load step output: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("step output %s/%s: %w", runID, stepID, pricingflow.ErrNotFound)
	}

	output, ok := binaryAttr(item, AttrOutput)
	if !ok {
		return nil, fmt.Errorf("step output %s/%s has no binary output attribute", runID, stepID)
	}
	return output, nil
}

func (d *DynamoDBStore) SaveState(ctx context.Context, runID, key string, value []byte) error {
	err := d.putItem(ctx, map[string]types.AttributeValue{
		AttrPK:         strAttr(statePK(runID)),
		AttrSK:         strAttr(stateSK(key)),
		AttrEntityType: strAttr(EntityTypeState),
		AttrValue:      &types.AttributeValueMemberB{Value: value},
		AttrUpdatedAt:  strAttr(sortableTime(time.Now())),
	})
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (d *DynamoDBStore) LoadState(ctx context.Context, runID, key string) ([]byte, error) {
	item, err := d.getItem(ctx, statePK(runID), stateSK(key))
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("state key %s: %w", key, pricingflow.ErrNotFound)
	}

	value, ok := binaryAttr(item, AttrValue)
	if !ok {
		return nil, fmt.Errorf("state key %s has no binary value attribute", key)
	}
	return value, nil
}

// Query operations

func (d *DynamoDBStore) CountRunsByStatus(ctx context.Context, resourceID string, status pricingflow.RunStatus) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(IndexResourceIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strAttr(workflowRunGSI2PK(resourceID, string(status))),
		},
		Select: types.SelectCount,
	}

	total := 0
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("failed to count runs: %w", err)
		}
		total += int(result.Count)
		if len(result.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}
