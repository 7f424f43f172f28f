// Package store provides WorkflowStore implementations.
//
// The WorkflowStore interface lives in the root pricingflow package to avoid
// an import cycle. Implementations:
//   - MemoryStore: in-process, for single-instance deployments and tests
//   - DynamoDBStore: AWS DynamoDB single-table backend (see schema.go)
//
// New picks one from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/dataeng/pricingflow"
)

// Backend names accepted by New
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// New returns the store for backend. awsCfg is only used for DynamoDB.
func New(backend, tableName string, awsCfg aws.Config) (pricingflow.WorkflowStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendDynamoDB:
		if tableName == "" {
			return nil, fmt.Errorf("dynamodb store requires a table name")
		}
		return NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), tableName), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Ping verifies the store is reachable by reading a run that does not exist
func Ping(ctx context.Context, s pricingflow.WorkflowStore) error {
	_, err := s.GetRun(ctx, "__ping__")
	if err == nil || isNotFound(err) {
		return nil
	}
	return err
}
