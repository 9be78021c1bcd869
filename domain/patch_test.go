package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestTaskPatchNullableDecoding(t *testing.T) {
	var p TaskPatch
	if err := json.Unmarshal([]byte(`{"story_points":null,"milestone_id":"m2"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.StoryPoints.Set || p.StoryPoints.Value != nil {
		t.Fatalf("expected explicit null story_points, got %+v", p.StoryPoints)
	}
	if !p.MilestoneID.Set || *p.MilestoneID.Value != "m2" {
		t.Fatalf("expected milestone set, got %+v", p.MilestoneID)
	}
	if p.PRDID.Set || p.AssignedAgentID.Set {
		t.Fatalf("absent fields must stay unset")
	}

	points, agent := 8, "agent-1"
	task := Task{StoryPoints: &points, AssignedAgentID: &agent}
	p.Apply(&task)
	if task.StoryPoints != nil {
		t.Fatalf("expected story_points cleared")
	}
	if task.AssignedAgentID == nil || *task.AssignedAgentID != agent {
		t.Fatalf("absent field must not be touched")
	}
	if *task.MilestoneID != "m2" {
		t.Fatalf("expected milestone applied")
	}
}

func TestTaskPatchMarshalOmitsAbsentFields(t *testing.T) {
	data, err := json.Marshal(PlacementPatch(Placement{ColumnID: "done", Status: "done", Position: 2}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"column_id":"done","status":"done","position":2}` {
		t.Fatalf("unexpected wire form: %s", data)
	}

	data, err = json.Marshal(TaskPatch{AssignedAgentID: Null[string](), StoryPoints: Some(3)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"story_points":3,"assigned_agent_id":null}` {
		t.Fatalf("unexpected wire form: %s", data)
	}
}

func TestTaskPatchApplyKeepsStatusAndColumnTogether(t *testing.T) {
	tests := []struct {
		name  string
		patch TaskPatch
		want  string
	}{
		{name: "column only", patch: TaskPatch{ColumnID: ptr("review")}, want: "review"},
		{name: "status only", patch: TaskPatch{Status: ptr("done")}, want: "done"},
		{name: "both", patch: TaskPatch{ColumnID: ptr("todo"), Status: ptr("todo")}, want: "todo"},
		{name: "neither", patch: TaskPatch{Title: ptr("  renamed ")}, want: "backlog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{ColumnID: "backlog", Status: "stale", Title: "x"}
			tt.patch.Apply(&task)
			if task.ColumnID != tt.want || task.Status != tt.want {
				t.Fatalf("column=%q status=%q, want %q", task.ColumnID, task.Status, tt.want)
			}
		})
	}
	task := Task{ColumnID: "todo", Status: "todo"}
	TaskPatch{Title: ptr("  renamed ")}.Apply(&task)
	if task.Title != "renamed" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}
}

func TestTaskPatchValidate(t *testing.T) {
	neg := -1
	bad := Priority("urgent")
	tests := []struct {
		name  string
		patch TaskPatch
	}{
		{name: "blank title", patch: TaskPatch{Title: ptr("   ")}},
		{name: "empty column", patch: TaskPatch{ColumnID: ptr("")}},
		{name: "status mismatch", patch: TaskPatch{ColumnID: ptr("todo"), Status: ptr("done")}},
		{name: "negative position", patch: TaskPatch{Position: &neg}},
		{name: "unknown priority", patch: TaskPatch{Priority: &bad}},
		{name: "negative points", patch: TaskPatch{StoryPoints: Some(-2)}},
		{name: "invalid ai_context", patch: TaskPatch{AIContext: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.patch.Validate(); !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if !(TaskPatch{}).Empty() || (TaskPatch{PRDID: Null[string]()}).Empty() {
		t.Fatalf("Empty misreports nullable fields")
	}
}

func TestTaskDraftMaterializes(t *testing.T) {
	d := TaskDraft{BoardID: "b1", Status: "todo", Title: "  Draft ", AIContext: json.RawMessage(`null`)}
	if err := d.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if d.Column() != "todo" {
		t.Fatalf("expected status to select the column, got %q", d.Column())
	}
	task := d.Task("t1", d.Column())
	if task.Title != "Draft" || task.Priority != PriorityMedium || string(task.AIContext) != "{}" || task.Status != "todo" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestErrorHelpers(t *testing.T) {
	err := NotFoundf("task %s", "missing-id")
	if !IsNotFound(err) || IsValidation(err) {
		t.Fatalf("unexpected classification for %v", err)
	}
	if !strings.Contains(err.Error(), "missing-id") || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unexpected message: %v", err)
	}
	if !errors.Is(Validationf("bad %d", 1), ErrValidation) {
		t.Fatalf("expected validation sentinel")
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := ParsePriority(""); err != nil || p != PriorityMedium {
		t.Fatalf("empty priority: %v %v", p, err)
	}
	if p, err := ParsePriority(" HIGH "); err != nil || p != PriorityHigh {
		t.Fatalf("mixed case priority: %v %v", p, err)
	}
	if _, err := ParsePriority("urgent"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	agent := "a1"
	orig := Task{AssignedAgentID: &agent, AIContext: json.RawMessage(`{"k":1}`)}
	cp := orig.Clone()
	*cp.AssignedAgentID = "a2"
	cp.AIContext[2] = 'x'
	if *orig.AssignedAgentID != "a1" || string(orig.AIContext) != `{"k":1}` {
		t.Fatalf("clone shares memory with original")
	}
}

func ptr[T any](v T) *T { return &v }
