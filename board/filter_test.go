package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

func strPtr(s string) *string { return &s }

func filterBoard(t *testing.T) *Session {
	t.Helper()
	mk := func(id string, pos int, p domain.Priority, title, agent, milestone string) domain.Task {
		c := card(id, "todo", pos)
		c.Priority = p
		c.Title = title
		if agent != "" {
			c.AssignedAgentID = strPtr(agent)
		}
		if milestone != "" {
			c.MilestoneID = strPtr(milestone)
		}
		return c
	}
	snap := domain.BoardSnapshot{
		Board: domain.Board{ID: "b1", Columns: []domain.Column{{ID: "todo"}, {ID: "done", Position: 1}}},
		Tasks: []domain.Task{
			mk("t1", 0, domain.PriorityHigh, "Write parser", "agent-1", "m1"),
			mk("t2", 1, domain.PriorityLow, "Fix CI", "agent-2", ""),
			mk("t3", 2, domain.PriorityCritical, "Outage follow-up", "", "m1"),
			mk("t4", 3, domain.PriorityMedium, "Parser docs", "agent-1", "m2"),
			mk("t5", 4, domain.PriorityHigh, "Release", "agent-2", "m2"),
		},
	}
	s := NewSession(WithDebug(true))
	require.NoError(t, s.LoadBoard(snap))
	return s
}

func visibleIDs(cols []FilteredColumn, column string) []string {
	for _, c := range cols {
		if c.ID == column {
			ids := []string{}
			for _, task := range c.Cards {
				ids = append(ids, task.ID)
			}
			return ids
		}
	}
	return nil
}

func TestFilteredColumnsPriority(t *testing.T) {
	s := filterBoard(t)
	f := NewFilter("", []domain.Priority{domain.PriorityHigh, domain.PriorityCritical}, nil, nil)

	cols := FilteredColumns(s, f)
	require.Len(t, cols, 2)
	assert.Equal(t, []string{"t1", "t3", "t5"}, visibleIDs(cols, "todo"))
	assert.Equal(t, 5, cols[0].Total)
	assert.Empty(t, visibleIDs(cols, "done"))
}

func TestFilteredColumnsCombinesDimensions(t *testing.T) {
	s := filterBoard(t)

	tests := []struct {
		name   string
		filter FilterState
		want   []string
	}{
		{name: "empty filter returns everything", filter: FilterState{}, want: []string{"t1", "t2", "t3", "t4", "t5"}},
		{name: "search matches case insensitively", filter: NewFilter("PARSER", nil, nil, nil), want: []string{"t1", "t4"}},
		{name: "assignee set is an OR", filter: NewFilter("", nil, []string{"agent-1", "agent-2"}, nil), want: []string{"t1", "t2", "t4", "t5"}},
		{name: "unassigned cards never match an assignee filter", filter: NewFilter("", nil, []string{"agent-9"}, nil), want: []string{}},
		{name: "dimensions are ANDed", filter: NewFilter("", []domain.Priority{domain.PriorityHigh}, []string{"agent-2"}, []string{"m2"}), want: []string{"t5"}},
		{name: "milestone and search", filter: NewFilter("parser", nil, nil, []string{"m1"}), want: []string{"t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, visibleIDs(FilteredColumns(s, tt.filter), "todo"))
		})
	}
}

func TestFilteredColumnsDoesNotMutate(t *testing.T) {
	s := filterBoard(t)
	before := s.Snapshot()

	cols := FilteredColumns(s, NewFilter("release", nil, nil, nil))
	cols[0].Cards[0].Title = "changed"
	cols[0].Cards[0].Position = 99

	assert.Equal(t, before, s.Snapshot())
}

func TestSearchMatchesDescription(t *testing.T) {
	task := domain.Task{Title: "Deploy", Description: "Rotate the TLS certificates"}
	assert.True(t, NewFilter("tls", nil, nil, nil).Match(&task))
	assert.False(t, NewFilter("dns", nil, nil, nil).Match(&task))
	assert.True(t, FilterState{Search: "   "}.IsEmpty())
}

func TestStoreIndexMapsFilteredSlots(t *testing.T) {
	s := filterBoard(t)
	high := NewFilter("", []domain.Priority{domain.PriorityHigh, domain.PriorityCritical}, nil, nil)

	// visible todo column is [t1, t3, t5]
	assert.Equal(t, 0, StoreIndex(s, "todo", high, 0, "x"))
	assert.Equal(t, 1, StoreIndex(s, "todo", high, 1, "x"))
	assert.Equal(t, 3, StoreIndex(s, "todo", high, 2, "x"))
	assert.Equal(t, 5, StoreIndex(s, "todo", high, 7, "x"))

	// t1 is moving within its own column, so it no longer counts
	assert.Equal(t, 2, StoreIndex(s, "todo", high, 1, "t1"))

	assert.Equal(t, 4, StoreIndex(s, "todo", FilterState{}, 9, "t2"))
	assert.Equal(t, 2, StoreIndex(s, "todo", FilterState{}, 2, "x"))
}
