package domain

import (
	"encoding/json"
	"time"
)

// Bulk operation literals.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MaxBulkOperations caps a single batch.
const MaxBulkOperations = 100

// BulkOperation is one entry of a bulk request.
type BulkOperation struct {
	Operation string          `json:"operation" yaml:"operation"`
	Data      json.RawMessage `json:"data" yaml:"-"`
}

// BulkUpdateData is the data of an update operation.
type BulkUpdateData struct {
	ID string `json:"id"`
	TaskPatch
}

// BulkDeleteData is the data of a delete operation.
type BulkDeleteData struct {
	ID string `json:"id"`
}

// OperationResult records the outcome of one bulk operation.
type OperationResult struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkSummary counts outcomes.
type BulkSummary struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// BulkResult is the response of a bulk request.
type BulkResult struct {
	Results []OperationResult `json:"results"`
	Summary BulkSummary       `json:"summary"`
}

// Activity describes one successful task mutation for the activity log.
type Activity struct {
	UserID  string    `json:"userId"`
	BoardID string    `json:"boardId"`
	TaskID  string    `json:"taskId,omitempty"`
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
}
