package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ParsePriority normalizes s. An empty string maps to medium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", Validationf("unknown priority %q", s)
	}
	return p, nil
}

// Task represents a single card on a board.
type Task struct {
	ID              string          `json:"id"`
	BoardID         string          `json:"board_id"`
	ColumnID        string          `json:"column_id"`
	Position        int             `json:"position"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Status          string          `json:"status"`
	Priority        Priority        `json:"priority"`
	StoryPoints     *int            `json:"story_points,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	MilestoneID     *string         `json:"milestone_id,omitempty"`
	PRDID           *string         `json:"prd_id,omitempty"`
	AssignedAgentID *string         `json:"assigned_agent_id,omitempty"`
	AIContext       json.RawMessage `json:"ai_context"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var emptyObject = json.RawMessage(`{}`)

// Clone returns a deep copy so callers can hand tasks across goroutines.
func (t Task) Clone() Task {
	out := t
	if t.StoryPoints != nil {
		v := *t.StoryPoints
		out.StoryPoints = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		out.DueDate = &v
	}
	out.MilestoneID = cloneString(t.MilestoneID)
	out.PRDID = cloneString(t.PRDID)
	out.AssignedAgentID = cloneString(t.AssignedAgentID)
	if t.AIContext != nil {
		out.AIContext = append(json.RawMessage(nil), t.AIContext...)
	}
	return out
}

// NormalizeAIContext replaces an absent ai_context with an empty object.
func (t *Task) NormalizeAIContext() {
	if len(t.AIContext) == 0 || string(t.AIContext) == "null" {
		t.AIContext = append(json.RawMessage(nil), emptyObject...)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Placement is the full authoritative snapshot of where a card sits.
type Placement struct {
	ColumnID string `json:"column_id"`
	Position int    `json:"position"`
	Status   string `json:"status"`
}

// Placement returns the placement fields of t.
func (t Task) Placement() Placement {
	return Placement{ColumnID: t.ColumnID, Position: t.Position, Status: t.Status}
}
