package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// Tables stores boards and tasks in Azure Table Storage. Rows are
// partitioned by user id.
type Tables struct {
	tasks  *aztables.Client
	boards *aztables.Client
}

// NewTables creates a Tables instance from the given connection string.
func NewTables(connStr, tasksTable, boardsTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{tasks: svc.NewClient(tasksTable), boards: svc.NewClient(boardsTable)}, nil
}

type taskEntity struct {
	aztables.Entity
	BoardID         string  `json:"BoardID"`
	ColumnID        string  `json:"ColumnID"`
	Position        int     `json:"Position"`
	Title           string  `json:"Title"`
	Description     string  `json:"Description"`
	Status          string  `json:"Status"`
	Priority        string  `json:"Priority"`
	StoryPoints     *int    `json:"StoryPoints,omitempty"`
	DueDate         *string `json:"DueDate,omitempty"`
	MilestoneID     *string `json:"MilestoneID,omitempty"`
	PRDID           *string `json:"PRDID,omitempty"`
	AssignedAgentID *string `json:"AssignedAgentID,omitempty"`
	AIContext       string  `json:"AIContext"`
	CreatedAt       string  `json:"CreatedAt"`
	UpdatedAt       string  `json:"UpdatedAt"`
}

type boardEntity struct {
	aztables.Entity
	Columns string `json:"Columns"`
}

func encodeTaskEntity(userID string, t domain.Task) ([]byte, error) {
	t.NormalizeAIContext()
	ent := taskEntity{
		Entity:          aztables.Entity{PartitionKey: userID, RowKey: t.ID},
		BoardID:         t.BoardID,
		ColumnID:        t.ColumnID,
		Position:        t.Position,
		Title:           t.Title,
		Description:     t.Description,
		Status:          t.Status,
		Priority:        string(t.Priority),
		StoryPoints:     t.StoryPoints,
		MilestoneID:     t.MilestoneID,
		PRDID:           t.PRDID,
		AssignedAgentID: t.AssignedAgentID,
		AIContext:       string(t.AIContext),
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC().Format(time.RFC3339Nano)
		ent.DueDate = &d
	}
	return json.Marshal(ent)
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:              ent.RowKey,
		BoardID:         ent.BoardID,
		ColumnID:        ent.ColumnID,
		Position:        ent.Position,
		Title:           ent.Title,
		Description:     ent.Description,
		Status:          ent.Status,
		Priority:        domain.Priority(ent.Priority),
		StoryPoints:     ent.StoryPoints,
		MilestoneID:     ent.MilestoneID,
		PRDID:           ent.PRDID,
		AssignedAgentID: ent.AssignedAgentID,
		AIContext:       json.RawMessage(ent.AIContext),
	}
	var err error
	if t.CreatedAt, err = parseTime(ent.CreatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("task %s: created_at: %w", ent.RowKey, err)
	}
	if t.UpdatedAt, err = parseTime(ent.UpdatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("task %s: updated_at: %w", ent.RowKey, err)
	}
	if ent.DueDate != nil {
		d, err := parseTime(*ent.DueDate)
		if err != nil {
			return domain.Task{}, fmt.Errorf("task %s: due_date: %w", ent.RowKey, err)
		}
		t.DueDate = &d
	}
	t.NormalizeAIContext()
	return t, nil
}

func encodeBoardEntity(userID string, b domain.Board) ([]byte, error) {
	cols, err := json.Marshal(b.Columns)
	if err != nil {
		return nil, err
	}
	return json.Marshal(boardEntity{
		Entity:  aztables.Entity{PartitionKey: userID, RowKey: b.ID},
		Columns: string(cols),
	})
}

func decodeBoardEntity(data []byte) (domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Board{}, err
	}
	b := domain.Board{ID: ent.RowKey}
	if ent.Columns != "" {
		if err := json.Unmarshal([]byte(ent.Columns), &b.Columns); err != nil {
			return domain.Board{}, fmt.Errorf("board %s: columns: %w", ent.RowKey, err)
		}
	}
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// notFound maps a 404 from the table service to domain.ErrNotFound.
func notFound(err error, what string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return domain.NotFoundf("%s", what)
	}
	return err
}

// FetchBoard retrieves the column configuration of a board.
func (s *Tables) FetchBoard(ctx context.Context, userID, boardID string) (domain.Board, error) {
	resp, err := s.boards.GetEntity(ctx, userID, boardID, nil)
	if err != nil {
		return domain.Board{}, notFound(err, "board "+boardID)
	}
	return decodeBoardEntity(resp.Value)
}

// SaveBoard replaces the column configuration of a board.
func (s *Tables) SaveBoard(ctx context.Context, userID string, b domain.Board) error {
	data, err := encodeBoardEntity(userID, b)
	if err != nil {
		return err
	}
	_, err = s.boards.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// ListTasks retrieves all tasks of a board for the provided user.
func (s *Tables) ListTasks(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq " + quote(userID) + " and BoardID eq " + quote(boardID)
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (s *Tables) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		return domain.Task{}, notFound(err, "task "+taskID)
	}
	return decodeTaskEntity(resp.Value)
}

func (s *Tables) PutTask(ctx context.Context, userID string, t domain.Task) error {
	data, err := encodeTaskEntity(userID, t)
	if err != nil {
		return err
	}
	_, err = s.tasks.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *Tables) DeleteTask(ctx context.Context, userID, taskID string) error {
	_, err := s.tasks.DeleteEntity(ctx, userID, taskID, nil)
	return notFound(err, "task "+taskID)
}
