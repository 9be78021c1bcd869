package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Nullable carries a field that may be absent, explicitly null, or set.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Some returns a Nullable holding v.
func Some[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }

// Null returns a Nullable that clears the field.
func Null[T any]() Nullable[T] { return Nullable[T]{Set: true} }

// IsZero lets omitzero drop absent fields when marshalling.
func (n Nullable[T]) IsZero() bool { return !n.Set }

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) apply(dst **T) {
	if !n.Set {
		return
	}
	if n.Value == nil {
		*dst = nil
		return
	}
	v := *n.Value
	*dst = &v
}

// TaskPatch is a partial task update. Absent fields are left untouched.
type TaskPatch struct {
	Title           *string             `json:"title,omitempty"`
	Description     *string             `json:"description,omitempty"`
	ColumnID        *string             `json:"column_id,omitempty"`
	Status          *string             `json:"status,omitempty"`
	Position        *int                `json:"position,omitempty"`
	Priority        *Priority           `json:"priority,omitempty"`
	StoryPoints     Nullable[int]       `json:"story_points,omitzero"`
	DueDate         Nullable[time.Time] `json:"due_date,omitzero"`
	MilestoneID     Nullable[string]    `json:"milestone_id,omitzero"`
	PRDID           Nullable[string]    `json:"prd_id,omitzero"`
	AssignedAgentID Nullable[string]    `json:"assigned_agent_id,omitzero"`
	AIContext       json.RawMessage     `json:"ai_context,omitempty"`
}

// PlacementPatch builds the patch a drag or keyboard move sends for one card.
func PlacementPatch(p Placement) TaskPatch {
	col, status, pos := p.ColumnID, p.Status, p.Position
	return TaskPatch{ColumnID: &col, Status: &status, Position: &pos}
}

// Empty reports whether the patch carries no field at all.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ColumnID == nil && p.Status == nil &&
		p.Position == nil && p.Priority == nil && !p.StoryPoints.Set && !p.DueDate.Set &&
		!p.MilestoneID.Set && !p.PRDID.Set && !p.AssignedAgentID.Set && p.AIContext == nil
}

// Validate checks field values without looking at stored state.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Validationf("title must not be empty")
	}
	if p.ColumnID != nil && *p.ColumnID == "" {
		return Validationf("column_id must not be empty")
	}
	if p.Status != nil && *p.Status == "" {
		return Validationf("status must not be empty")
	}
	if p.ColumnID != nil && p.Status != nil && *p.ColumnID != *p.Status {
		return Validationf("status %q does not match column_id %q", *p.Status, *p.ColumnID)
	}
	if p.Position != nil && *p.Position < 0 {
		return Validationf("position must not be negative")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return Validationf("unknown priority %q", *p.Priority)
	}
	if p.StoryPoints.Value != nil && *p.StoryPoints.Value < 0 {
		return Validationf("story_points must not be negative")
	}
	if p.AIContext != nil && !json.Valid(p.AIContext) {
		return Validationf("ai_context is not valid JSON")
	}
	return nil
}

// TargetColumn returns the column the patch moves the task into, if any.
func (p TaskPatch) TargetColumn() (string, bool) {
	switch {
	case p.ColumnID != nil:
		return *p.ColumnID, true
	case p.Status != nil:
		return *p.Status, true
	}
	return "", false
}

// Apply merges the patch into t. Status and column always end up equal.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if col, ok := p.TargetColumn(); ok {
		t.ColumnID = col
	}
	t.Status = t.ColumnID
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	p.StoryPoints.apply(&t.StoryPoints)
	p.DueDate.apply(&t.DueDate)
	p.MilestoneID.apply(&t.MilestoneID)
	p.PRDID.apply(&t.PRDID)
	p.AssignedAgentID.apply(&t.AssignedAgentID)
	if p.AIContext != nil {
		t.AIContext = append(json.RawMessage(nil), p.AIContext...)
		t.NormalizeAIContext()
	}
}

// TaskDraft is the payload for creating a task.
type TaskDraft struct {
	ID              string          `json:"id,omitempty"`
	BoardID         string          `json:"board_id"`
	ColumnID        string          `json:"column_id,omitempty"`
	Status          string          `json:"status,omitempty"`
	Position        *int            `json:"position,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Priority        Priority        `json:"priority,omitempty"`
	StoryPoints     *int            `json:"story_points,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	MilestoneID     *string         `json:"milestone_id,omitempty"`
	PRDID           *string         `json:"prd_id,omitempty"`
	AssignedAgentID *string         `json:"assigned_agent_id,omitempty"`
	AIContext       json.RawMessage `json:"ai_context,omitempty"`
}

// Validate checks the draft on its own.
func (d TaskDraft) Validate() error {
	if d.BoardID == "" {
		return Validationf("board_id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return Validationf("title is required")
	}
	if d.ColumnID != "" && d.Status != "" && d.ColumnID != d.Status {
		return Validationf("status %q does not match column_id %q", d.Status, d.ColumnID)
	}
	if d.Position != nil && *d.Position < 0 {
		return Validationf("position must not be negative")
	}
	if d.Priority != "" && !d.Priority.Valid() {
		return Validationf("unknown priority %q", d.Priority)
	}
	if d.StoryPoints != nil && *d.StoryPoints < 0 {
		return Validationf("story_points must not be negative")
	}
	if d.AIContext != nil && !json.Valid(d.AIContext) {
		return Validationf("ai_context is not valid JSON")
	}
	return nil
}

// Column returns the requested column, falling back to status.
func (d TaskDraft) Column() string {
	if d.ColumnID != "" {
		return d.ColumnID
	}
	return d.Status
}

// Task materializes the draft. Position and timestamps are left to the caller.
func (d TaskDraft) Task(id, column string) Task {
	t := Task{
		ID:              id,
		BoardID:         d.BoardID,
		ColumnID:        column,
		Status:          column,
		Title:           strings.TrimSpace(d.Title),
		Description:     d.Description,
		Priority:        d.Priority,
		StoryPoints:     d.StoryPoints,
		DueDate:         d.DueDate,
		MilestoneID:     d.MilestoneID,
		PRDID:           d.PRDID,
		AssignedAgentID: d.AssignedAgentID,
		AIContext:       d.AIContext,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.NormalizeAIContext()
	return t.Clone()
}
