package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/board"
	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// Store is the keyed row storage behind the task service. Writes overwrite;
// reads of missing rows return an error wrapping domain.ErrNotFound.
type Store interface {
	FetchBoard(ctx context.Context, userID, boardID string) (domain.Board, error)
	SaveBoard(ctx context.Context, userID string, b domain.Board) error
	ListTasks(ctx context.Context, userID, boardID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	PutTask(ctx context.Context, userID string, t domain.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// ActivitySink receives mutations for the activity log. Failures are logged
// and never fail the mutation itself.
type ActivitySink interface {
	Record(ctx context.Context, a domain.Activity) error
}

// Service applies task mutations request by request. It holds no state
// between calls.
type Service struct {
	store    Store
	activity ActivitySink
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
	maxBatch int
}

// Option configures a Service.
type Option func(*Service)

func WithActivitySink(sink ActivitySink) Option { return func(s *Service) { s.activity = sink } }

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(fn func() string) Option { return func(s *Service) { s.newID = fn } }

// WithMaxBatch caps the number of operations of a bulk request.
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// New creates a Service over store.
func New(store Store, opts ...Option) *Service {
	if store == nil {
		panic("tasks.New: store is nil")
	}
	s := &Service{
		store:    store,
		logger:   log.StandardLogger(),
		now:      time.Now,
		newID:    newTaskID,
		maxBatch: domain.MaxBulkOperations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newTaskID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Snapshot returns the board with its tasks in board order.
func (s *Service) Snapshot(ctx context.Context, userID, boardID string) (domain.BoardSnapshot, error) {
	b, err := s.fetchBoard(ctx, userID, boardID)
	if err != nil {
		return domain.BoardSnapshot{}, err
	}
	ts, err := s.store.ListTasks(ctx, userID, boardID)
	if err != nil {
		return domain.BoardSnapshot{}, err
	}
	board.SortColumns(b.Columns)
	order := make(map[string]int, len(b.Columns))
	for i, c := range b.Columns {
		order[c.ID] = i
	}
	grouped := make([][]domain.Task, len(b.Columns))
	var orphans []domain.Task
	for _, t := range ts {
		t.NormalizeAIContext()
		if i, ok := order[t.ColumnID]; ok {
			grouped[i] = append(grouped[i], t)
		} else {
			orphans = append(orphans, t)
		}
	}
	snap := domain.BoardSnapshot{Board: b, Tasks: make([]domain.Task, 0, len(ts))}
	for _, g := range grouped {
		board.SortTasks(g)
		snap.Tasks = append(snap.Tasks, g...)
	}
	if len(orphans) > 0 {
		s.logger.WithFields(log.Fields{"board": boardID, "count": len(orphans)}).Warn("tasks reference columns missing from the board")
		board.SortTasks(orphans)
		snap.Tasks = append(snap.Tasks, orphans...)
	}
	return snap, nil
}

// SaveColumnOrder stores the board's column configuration. Column positions
// are rewritten densely in the given order. Removing a column that still
// holds tasks is rejected.
func (s *Service) SaveColumnOrder(ctx context.Context, userID, boardID string, cols []domain.Column) ([]domain.Column, error) {
	if len(cols) == 0 {
		return nil, domain.Validationf("columns must not be empty")
	}
	out := make([]domain.Column, len(cols))
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if c.ID == "" {
			return nil, domain.Validationf("column %d has no id", i)
		}
		if seen[c.ID] {
			return nil, domain.Validationf("duplicate column %q", c.ID)
		}
		seen[c.ID] = true
		if c.Name == "" {
			c.Name = c.ID
		}
		c.Position = i
		out[i] = c
	}

	ts, err := s.store.ListTasks(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		if !seen[t.ColumnID] {
			return nil, domain.Validationf("column %q still holds task %s", t.ColumnID, t.ID)
		}
	}
	if err := s.store.SaveBoard(ctx, userID, domain.Board{ID: boardID, Columns: out}); err != nil {
		return nil, err
	}
	s.record(ctx, domain.Activity{UserID: userID, BoardID: boardID, Action: "columns_reordered"})
	return out, nil
}

// Create inserts a task at the end of its column, or at draft.Position when
// given, shifting the siblings below it.
func (s *Service) Create(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error) {
	if err := draft.Validate(); err != nil {
		return domain.Task{}, err
	}
	b, err := s.fetchBoard(ctx, userID, draft.BoardID)
	if err != nil {
		return domain.Task{}, err
	}
	column := draft.Column()
	if column == "" {
		column = b.FirstColumn()
	}
	if !b.HasColumn(column) {
		return domain.Task{}, domain.NotFoundf("column %q on board %s", column, b.ID)
	}

	id := draft.ID
	if id == "" {
		id = s.newID()
	} else if _, err := s.store.GetTask(ctx, userID, id); err == nil {
		return domain.Task{}, domain.Validationf("task %s already exists", id)
	} else if !domain.IsNotFound(err) {
		return domain.Task{}, err
	}

	now := s.now().UTC()
	t := draft.Task(id, column)
	t.CreatedAt = now
	t.UpdatedAt = now

	siblings, err := s.columnTasks(ctx, userID, t.BoardID, column, id)
	if err != nil {
		return domain.Task{}, err
	}
	index := len(siblings)
	if draft.Position != nil {
		index = *draft.Position
	}
	if err := s.place(ctx, userID, &t, siblings, index); err != nil {
		return domain.Task{}, err
	}
	s.record(ctx, domain.Activity{UserID: userID, BoardID: t.BoardID, TaskID: t.ID, Action: "task_created"})
	return t, nil
}

// Update merges patch into a task. A change of column or position moves the
// task the way the board does: the new column makes room at the target
// position (end of column when none is given) and the old column is compacted
// once the task is written there. A store failure part way through can leave
// the target column's positions partly rewritten.
func (s *Service) Update(ctx context.Context, userID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	if taskID == "" {
		return domain.Task{}, domain.Validationf("id is required")
	}
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	if patch.Empty() {
		return domain.Task{}, domain.Validationf("no fields to update")
	}
	cur, err := s.getTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	next := cur.Clone()
	patch.Apply(&next)
	next.UpdatedAt = s.now().UTC()

	moved := next.ColumnID != cur.ColumnID || (patch.Position != nil && *patch.Position != cur.Position)
	if !moved {
		if err := s.store.PutTask(ctx, userID, next); err != nil {
			return domain.Task{}, err
		}
		s.record(ctx, domain.Activity{UserID: userID, BoardID: next.BoardID, TaskID: next.ID, Action: "task_updated"})
		return next, nil
	}

	if next.ColumnID != cur.ColumnID {
		b, err := s.fetchBoard(ctx, userID, cur.BoardID)
		if err != nil {
			return domain.Task{}, err
		}
		if !b.HasColumn(next.ColumnID) {
			return domain.Task{}, domain.NotFoundf("column %q on board %s", next.ColumnID, b.ID)
		}
	}
	siblings, err := s.columnTasks(ctx, userID, next.BoardID, next.ColumnID, next.ID)
	if err != nil {
		return domain.Task{}, err
	}
	index := len(siblings)
	if patch.Position != nil {
		index = *patch.Position
	}
	if err := s.place(ctx, userID, &next, siblings, index); err != nil {
		return domain.Task{}, err
	}
	if next.ColumnID != cur.ColumnID {
		if err := s.compact(ctx, userID, cur.BoardID, cur.ColumnID, cur.ID); err != nil {
			return domain.Task{}, fmt.Errorf("task %s moved, compacting column %s: %w", taskID, cur.ColumnID, err)
		}
	}
	s.record(ctx, domain.Activity{UserID: userID, BoardID: next.BoardID, TaskID: next.ID, Action: "task_moved"})
	return next, nil
}

// UpdateStatus moves a task to the column matching status.
func (s *Service) UpdateStatus(ctx context.Context, userID, taskID, status string) (domain.Task, error) {
	if status == "" {
		return domain.Task{}, domain.Validationf("status is required")
	}
	return s.Update(ctx, userID, taskID, domain.TaskPatch{Status: &status})
}

// Assign sets or clears the agent of a task.
func (s *Service) Assign(ctx context.Context, userID, taskID string, agentID *string) (domain.Task, error) {
	patch := domain.TaskPatch{AssignedAgentID: domain.Null[string]()}
	if agentID != nil && *agentID != "" {
		patch.AssignedAgentID = domain.Some(*agentID)
	}
	return s.Update(ctx, userID, taskID, patch)
}

// Delete removes a task and compacts the positions of its former siblings.
func (s *Service) Delete(ctx context.Context, userID, taskID string) (domain.Task, error) {
	if taskID == "" {
		return domain.Task{}, domain.Validationf("id is required")
	}
	cur, err := s.getTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.store.DeleteTask(ctx, userID, taskID); err != nil {
		return domain.Task{}, err
	}
	if err := s.compact(ctx, userID, cur.BoardID, cur.ColumnID, cur.ID); err != nil {
		return domain.Task{}, fmt.Errorf("task %s deleted, compacting column %s: %w", taskID, cur.ColumnID, err)
	}
	s.record(ctx, domain.Activity{UserID: userID, BoardID: cur.BoardID, TaskID: cur.ID, Action: "task_deleted"})
	return cur, nil
}

func (s *Service) getTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	t, err := s.store.GetTask(ctx, userID, taskID)
	if domain.IsNotFound(err) {
		return domain.Task{}, domain.NotFoundf("task %s", taskID)
	}
	return t, err
}

func (s *Service) fetchBoard(ctx context.Context, userID, boardID string) (domain.Board, error) {
	b, err := s.store.FetchBoard(ctx, userID, boardID)
	if domain.IsNotFound(err) {
		return domain.Board{}, domain.NotFoundf("board %s", boardID)
	}
	return b, err
}

// columnTasks returns the ordered tasks of a column without exclude.
func (s *Service) columnTasks(ctx context.Context, userID, boardID, columnID, exclude string) ([]domain.Task, error) {
	all, err := s.store.ListTasks(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(all))
	for _, t := range all {
		if t.ColumnID == columnID && t.ID != exclude {
			out = append(out, t)
		}
	}
	board.SortTasks(out)
	return out, nil
}

// place inserts t into the ordered siblings at index and persists every task
// whose position changed, t last.
func (s *Service) place(ctx context.Context, userID string, t *domain.Task, siblings []domain.Task, index int) error {
	ids := make([]string, len(siblings))
	for i := range siblings {
		ids[i] = siblings[i].ID
	}
	_, pos := board.PositionsAfterInsert(ids, t.ID, index)
	for i := range siblings {
		if p := pos[siblings[i].ID]; p != siblings[i].Position {
			siblings[i].Position = p
			if err := s.store.PutTask(ctx, userID, siblings[i]); err != nil {
				return err
			}
		}
	}
	t.Position = pos[t.ID]
	return s.store.PutTask(ctx, userID, *t)
}

// compact rewrites the positions of a column to 0..n-1, skipping exclude.
func (s *Service) compact(ctx context.Context, userID, boardID, columnID, exclude string) error {
	siblings, err := s.columnTasks(ctx, userID, boardID, columnID, exclude)
	if err != nil {
		return err
	}
	for _, i := range board.Compact(siblings) {
		if err := s.store.PutTask(ctx, userID, siblings[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, a domain.Activity) {
	if s.activity == nil {
		return
	}
	if a.At.IsZero() {
		a.At = s.now().UTC()
	}
	if err := s.activity.Record(ctx, a); err != nil {
		s.logger.WithFields(log.Fields{
			"action": a.Action,
			"task":   a.TaskID,
			"error":  err.Error(),
		}).Warn("activity record failed")
	}
}
