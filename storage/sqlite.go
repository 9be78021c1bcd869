package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

//go:embed schema.sql
var schemaSQL string

// SQLite stores boards and tasks in a local SQLite database. It backs
// development servers and the integration tests.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps writes serialized and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) FetchBoard(ctx context.Context, userID, boardID string) (domain.Board, error) {
	var cols string
	err := s.db.QueryRowContext(ctx,
		`SELECT columns FROM boards WHERE user_id = ? AND board_id = ?`, userID, boardID).Scan(&cols)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Board{}, domain.NotFoundf("board %s", boardID)
	}
	if err != nil {
		return domain.Board{}, err
	}
	b := domain.Board{ID: boardID}
	if err := json.Unmarshal([]byte(cols), &b.Columns); err != nil {
		return domain.Board{}, fmt.Errorf("board %s: columns: %w", boardID, err)
	}
	return b, nil
}

func (s *SQLite) SaveBoard(ctx context.Context, userID string, b domain.Board) error {
	cols, err := json.Marshal(b.Columns)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO boards (user_id, board_id, columns) VALUES (?, ?, ?)
		ON CONFLICT(user_id, board_id) DO UPDATE SET columns = excluded.columns`,
		userID, b.ID, string(cols))
	return err
}

const taskColumns = `task_id, board_id, column_id, position, title, description, status, priority,
	story_points, due_date, milestone_id, prd_id, assigned_agent_id, ai_context, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                    domain.Task
		priority, aiContext  string
		createdAt, updatedAt string
		storyPoints          sql.NullInt64
		dueDate, milestone   sql.NullString
		prd, agent           sql.NullString
	)
	err := row.Scan(&t.ID, &t.BoardID, &t.ColumnID, &t.Position, &t.Title, &t.Description, &t.Status, &priority,
		&storyPoints, &dueDate, &milestone, &prd, &agent, &aiContext, &createdAt, &updatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	t.AIContext = json.RawMessage(aiContext)
	if storyPoints.Valid {
		v := int(storyPoints.Int64)
		t.StoryPoints = &v
	}
	t.MilestoneID = nullString(milestone)
	t.PRDID = nullString(prd)
	t.AssignedAgentID = nullString(agent)
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Task{}, err
	}
	if dueDate.Valid {
		d, err := parseTime(dueDate.String)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = &d
	}
	t.NormalizeAIContext()
	return t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *SQLite) ListTasks(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND board_id = ? ORDER BY column_id, position, created_at, task_id`,
		userID, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLite) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND task_id = ?`, userID, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.NotFoundf("task %s", taskID)
	}
	return t, err
}

func (s *SQLite) PutTask(ctx context.Context, userID string, t domain.Task) error {
	t.NormalizeAIContext()
	var due any
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	var points any
	if t.StoryPoints != nil {
		points = *t.StoryPoints
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (user_id, `+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, task_id) DO UPDATE SET
			board_id = excluded.board_id,
			column_id = excluded.column_id,
			position = excluded.position,
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			priority = excluded.priority,
			story_points = excluded.story_points,
			due_date = excluded.due_date,
			milestone_id = excluded.milestone_id,
			prd_id = excluded.prd_id,
			assigned_agent_id = excluded.assigned_agent_id,
			ai_context = excluded.ai_context,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		userID, t.ID, t.BoardID, t.ColumnID, t.Position, t.Title, t.Description, t.Status, string(t.Priority),
		points, due, optString(t.MilestoneID), optString(t.PRDID), optString(t.AssignedAgentID), string(t.AIContext),
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLite) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND task_id = ?`, userID, taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundf("task %s", taskID)
	}
	return nil
}
