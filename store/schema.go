package store

import (
	"fmt"
	"time"

	"github.com/dataeng/pricingflow"
)

// Single-table layout. Every item for a run shares the partition RUN#{runID}:
//
//	run            SK=META
//	step execution SK=STEP#{stepID}
//	step output    SK=OUTPUT#{stepID}
//	state          SK=STATE#{key}
//
// Runs are also indexed by workflow and status (GSI1) and by resource and
// status (GSI2), both sorted by creation time. Runs carry a ttl attribute
// that the table's TTL setting should point at.
const (
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrGSI2PK     = "GSI2PK"
	AttrGSI2SK     = "GSI2SK"
	AttrEntityType = "entity_type"
	AttrOutput     = "output"
	AttrValue      = "value"
	AttrUpdatedAt  = "updated_at"
	AttrTTL        = "ttl"

	EntityTypeWorkflowRun   = "WorkflowRun"
	EntityTypeStepExecution = "StepExecution"
	EntityTypeStepOutput    = "StepOutput"
	EntityTypeState         = "State"

	IndexStatusIndex   = "GSI1"
	IndexResourceIndex = "GSI2"

	stepPrefix  = "STEP#"
	statePrefix = "STATE#"
)

var allRunStatuses = []pricingflow.RunStatus{
	pricingflow.RunStatusPending,
	pricingflow.RunStatusRunning,
	pricingflow.RunStatusCompleted,
	pricingflow.RunStatusFailed,
	pricingflow.RunStatusCancelled,
}

func runPartition(runID string) string {
	return "RUN#" + runID
}

func workflowRunPK(runID string) string {
	return runPartition(runID)
}

func workflowRunSK() string {
	return "META"
}

func workflowRunGSI1PK(workflowID, status string) string {
	return fmt.Sprintf("WF#%s#STATUS#%s", workflowID, status)
}

func workflowRunGSI2PK(resourceID, status string) string {
	return fmt.Sprintf("RES#%s#STATUS#%s", resourceID, status)
}

func stepExecutionPK(runID string) string {
	return runPartition(runID)
}

func stepExecutionSK(stepID string) string {
	return stepPrefix + stepID
}

func stepOutputPK(runID string) string {
	return runPartition(runID)
}

func stepOutputSK(stepID string) string {
	return "OUTPUT#" + stepID
}

func statePK(runID string) string {
	return runPartition(runID)
}

func stateSK(key string) string {
	return statePrefix + key
}

// sortableTime formats t so that lexical order matches time order
func sortableTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
