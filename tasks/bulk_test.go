package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

func op(kind, data string) domain.BulkOperation {
	return domain.BulkOperation{Operation: kind, Data: json.RawMessage(data)}
}

func TestBulkCreateAndMissingUpdate(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.Bulk(context.Background(), "u1", []domain.BulkOperation{
		op(domain.OpCreate, `{"title":"X","board_id":"b1"}`),
		op(domain.OpUpdate, `{"id":"missing-id","title":"Y"}`),
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.Summary.Success != 1 || res.Summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}
	first, second := res.Results[0], res.Results[1]
	if first.Index != 0 || !first.Success {
		t.Fatalf("create should succeed: %+v", first)
	}
	created, ok := first.Result.(domain.Task)
	if !ok || created.Title != "X" {
		t.Fatalf("unexpected create result: %#v", first.Result)
	}
	if second.Index != 1 || second.Success || !strings.Contains(second.Error, "not found") {
		t.Fatalf("update should fail with not found: %+v", second)
	}
	if _, ok := store.tasks[created.ID]; !ok {
		t.Fatalf("created task %s was not stored", created.ID)
	}
}

func TestBulkRejectsBadBatchBeforeSideEffects(t *testing.T) {
	tooMany := make([]domain.BulkOperation, domain.MaxBulkOperations+1)
	for i := range tooMany {
		tooMany[i] = op(domain.OpCreate, fmt.Sprintf(`{"title":"t%d","board_id":"b1"}`, i))
	}

	tests := []struct {
		name string
		ops  []domain.BulkOperation
	}{
		{name: "empty", ops: nil},
		{name: "too many", ops: tooMany},
		{name: "unknown operation", ops: []domain.BulkOperation{
			op(domain.OpCreate, `{"title":"ok","board_id":"b1"}`),
			op("archive", `{"id":"a"}`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store)
			_, err := svc.Bulk(context.Background(), "u1", tt.ops)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if store.puts != 0 {
				t.Fatalf("expected no writes, got %d", store.puts)
			}
		})
	}
}

func TestBulkMaxBatchBoundary(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, WithMaxBatch(3))
	ops := []domain.BulkOperation{
		op(domain.OpCreate, `{"title":"a","board_id":"b1"}`),
		op(domain.OpCreate, `{"title":"b","board_id":"b1"}`),
		op(domain.OpCreate, `{"title":"c","board_id":"b1"}`),
	}
	res, err := svc.Bulk(context.Background(), "u1", ops)
	if err != nil {
		t.Fatalf("bulk at limit: %v", err)
	}
	if res.Summary.Success != 3 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	assertColumn(t, store, "backlog", "gen-1@0", "gen-2@1", "gen-3@2")

	if _, err := svc.Bulk(context.Background(), "u1", append(ops, ops[0])); !domain.IsValidation(err) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestBulkFailuresAreIndependent(t *testing.T) {
	store := newMemStore()
	store.seed("a", "todo", 0)
	store.seed("b", "todo", 1)
	store.seed("c", "todo", 2)
	store.putErr["b"] = errors.New("storage unavailable")
	svc := newTestService(store)

	res, err := svc.Bulk(context.Background(), "u1", []domain.BulkOperation{
		op(domain.OpUpdate, `{"id":"b","title":"B2"}`),
		op(domain.OpUpdate, `{"id":"c","priority":"high"}`),
		op(domain.OpDelete, `{"id":"nope"}`),
		op(domain.OpCreate, `{"board_id":"b1"}`),
		op(domain.OpUpdate, `{"id":"a","bogus":`),
		op(domain.OpDelete, `{"id":"c"}`),
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	got := make([]bool, len(res.Results))
	for i, r := range res.Results {
		if r.Index != i {
			t.Fatalf("result %d has index %d", i, r.Index)
		}
		got[i] = r.Success
	}
	want := []bool{false, true, false, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d success = %v, want %v (%+v)", i, got[i], want[i], res.Results[i])
		}
	}
	if res.Summary.Success != 2 || res.Summary.Failed != 4 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if !strings.Contains(res.Results[0].Error, "storage unavailable") {
		t.Fatalf("expected storage error, got %q", res.Results[0].Error)
	}
	if res.Results[5].Result != (DeletedTask{ID: "c", Deleted: true}) {
		t.Fatalf("unexpected delete result: %#v", res.Results[5].Result)
	}
	if updated, ok := res.Results[1].Result.(domain.Task); !ok || updated.Priority != domain.PriorityHigh {
		t.Fatalf("update after failure was not applied: %#v", res.Results[1].Result)
	}
	assertColumn(t, store, "todo", "a@0", "b@1")
}

func TestBulkOperationsSeeEarlierOnes(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	res, err := svc.Bulk(context.Background(), "u1", []domain.BulkOperation{
		op(domain.OpCreate, `{"id":"n1","title":"one","board_id":"b1","column_id":"todo"}`),
		op(domain.OpCreate, `{"id":"n2","title":"two","board_id":"b1","column_id":"todo"}`),
		op(domain.OpUpdate, `{"id":"n1","status":"done"}`),
		op(domain.OpUpdate, `{"id":"n2","assigned_agent_id":"agent-1","story_points":3}`),
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.Summary.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", res.Results)
	}
	assertColumn(t, store, "todo", "n2@0")
	assertColumn(t, store, "done", "n1@0")
	n2 := store.tasks["n2"]
	if n2.AssignedAgentID == nil || *n2.AssignedAgentID != "agent-1" || n2.StoryPoints == nil || *n2.StoryPoints != 3 {
		t.Fatalf("unexpected n2: %+v", n2)
	}
}

func TestBulkStopsOnCancelledContext(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Bulk(ctx, "u1", []domain.BulkOperation{op(domain.OpCreate, `{"title":"x","board_id":"b1"}`)})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.Summary.Failed != 1 || store.puts != 0 {
		t.Fatalf("expected cancelled operation to fail without writes: %+v", res)
	}
}
