package api

import (
	"context"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// TaskService is the board and task logic behind the handlers.
type TaskService interface {
	Snapshot(ctx context.Context, userID, boardID string) (domain.BoardSnapshot, error)
	SaveColumnOrder(ctx context.Context, userID, boardID string, cols []domain.Column) ([]domain.Column, error)
	Create(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error)
	Update(ctx context.Context, userID, taskID string, patch domain.TaskPatch) (domain.Task, error)
	UpdateStatus(ctx context.Context, userID, taskID, status string) (domain.Task, error)
	Assign(ctx context.Context, userID, taskID string, agentID *string) (domain.Task, error)
	Delete(ctx context.Context, userID, taskID string) (domain.Task, error)
	ValidateBulk(ops []domain.BulkOperation) error
	Bulk(ctx context.Context, userID string, ops []domain.BulkOperation) (domain.BulkResult, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper remembers idempotency keys of bulk requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key so the caller may retry.
	Remove(ctx context.Context, userID, key string) error
}

type dataResponse struct {
	Data any `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type bulkRequest struct {
	Operations []domain.BulkOperation `json:"operations"`
}

type columnsRequest struct {
	Columns []domain.Column `json:"columns"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type assignRequest struct {
	AssignedAgentID *string `json:"assigned_agent_id"`
}
