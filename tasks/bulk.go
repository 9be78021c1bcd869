package tasks

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// DeletedTask is the result of a successful bulk delete.
type DeletedTask struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ValidateBulk checks the shape of a batch. A failing batch must be rejected
// before any operation runs.
func (s *Service) ValidateBulk(ops []domain.BulkOperation) error {
	if len(ops) == 0 {
		return domain.Validationf("operations must be a non-empty array")
	}
	if len(ops) > s.maxBatch {
		return domain.Validationf("at most %d operations are allowed, got %d", s.maxBatch, len(ops))
	}
	for i, op := range ops {
		switch op.Operation {
		case domain.OpCreate, domain.OpUpdate, domain.OpDelete:
		default:
			return domain.Validationf("operation %d: unknown operation %q", i, op.Operation)
		}
	}
	return nil
}

// Bulk runs ops strictly in order. Each operation stands alone: a failure is
// recorded in its result and the next operation is still attempted. Nothing
// is rolled back and nothing is retried.
func (s *Service) Bulk(ctx context.Context, userID string, ops []domain.BulkOperation) (domain.BulkResult, error) {
	if err := s.ValidateBulk(ops); err != nil {
		return domain.BulkResult{}, err
	}

	res := domain.BulkResult{Results: make([]domain.OperationResult, 0, len(ops))}
	for i, op := range ops {
		out, err := s.apply(ctx, userID, op)
		r := domain.OperationResult{Index: i, Success: err == nil}
		if err != nil {
			r.Error = err.Error()
			res.Summary.Failed++
			s.logger.WithFields(log.Fields{
				"user":      userID,
				"index":     i,
				"operation": op.Operation,
				"error":     err.Error(),
			}).Debug("bulk operation failed")
		} else {
			r.Result = out
			res.Summary.Success++
		}
		res.Results = append(res.Results, r)
	}

	s.logger.WithFields(log.Fields{
		"user":    userID,
		"total":   len(ops),
		"success": res.Summary.Success,
		"failed":  res.Summary.Failed,
	}).Info("tasks.bulk.completed")
	return res, nil
}

func (s *Service) apply(ctx context.Context, userID string, op domain.BulkOperation) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(op.Data) == 0 {
		return nil, domain.Validationf("data is required")
	}
	switch op.Operation {
	case domain.OpCreate:
		var draft domain.TaskDraft
		if err := decodeData(op.Data, &draft); err != nil {
			return nil, err
		}
		return s.Create(ctx, userID, draft)
	case domain.OpUpdate:
		var data domain.BulkUpdateData
		if err := decodeData(op.Data, &data); err != nil {
			return nil, err
		}
		if data.ID == "" {
			return nil, domain.Validationf("id is required")
		}
		return s.Update(ctx, userID, data.ID, data.TaskPatch)
	case domain.OpDelete:
		var data domain.BulkDeleteData
		if err := decodeData(op.Data, &data); err != nil {
			return nil, err
		}
		if _, err := s.Delete(ctx, userID, data.ID); err != nil {
			return nil, err
		}
		return DeletedTask{ID: data.ID, Deleted: true}, nil
	}
	return nil, domain.Validationf("unknown operation %q", op.Operation)
}

func decodeData(raw []byte, dst any) error {
	if err := sonic.ConfigStd.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: invalid data: %v", domain.ErrValidation, err)
	}
	return nil
}
