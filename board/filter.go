package board

import (
	"strings"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// FilterState narrows what a board view shows. It is never persisted.
type FilterState struct {
	Search    string
	Priority  map[domain.Priority]bool
	Assignee  map[string]bool
	Milestone map[string]bool
}

// NewFilter builds a FilterState from plain slices.
func NewFilter(search string, priorities []domain.Priority, assignees, milestones []string) FilterState {
	f := FilterState{Search: search}
	for _, p := range priorities {
		if f.Priority == nil {
			f.Priority = make(map[domain.Priority]bool)
		}
		f.Priority[p] = true
	}
	f.Assignee = setOf(assignees)
	f.Milestone = setOf(milestones)
	return f
}

func setOf(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// IsEmpty reports whether no filter dimension is active.
func (f FilterState) IsEmpty() bool {
	return strings.TrimSpace(f.Search) == "" && len(f.Priority) == 0 && len(f.Assignee) == 0 && len(f.Milestone) == 0
}

// Match applies every active dimension (AND) with set membership inside a
// dimension (OR).
func (f FilterState) Match(t *domain.Task) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if len(f.Priority) > 0 && !f.Priority[t.Priority] {
		return false
	}
	if len(f.Assignee) > 0 && (t.AssignedAgentID == nil || !f.Assignee[*t.AssignedAgentID]) {
		return false
	}
	if len(f.Milestone) > 0 && (t.MilestoneID == nil || !f.Milestone[*t.MilestoneID]) {
		return false
	}
	return true
}

// FilteredColumn is a column with the cards that survived a filter.
type FilteredColumn struct {
	domain.Column
	Cards []domain.Task
	// Total is the unfiltered number of cards in the column.
	Total int
}

// FilteredColumns projects v through f. It only reads v, and surviving cards
// keep their relative order.
func FilteredColumns(v View, f FilterState) []FilteredColumn {
	cols := v.Columns()
	out := make([]FilteredColumn, 0, len(cols))
	for _, c := range cols {
		cards := v.Cards(c.ID)
		fc := FilteredColumn{Column: c, Total: len(cards), Cards: make([]domain.Task, 0, len(cards))}
		for i := range cards {
			if f.Match(&cards[i]) {
				fc.Cards = append(fc.Cards, cards[i])
			}
		}
		out = append(out, fc)
	}
	return out
}

// StoreIndex translates a slot of the filtered column into a MoveCard target
// index of the unfiltered column, so a drop lands right after the card the
// user saw above it. Both indexes exclude movingID, which leaves its slot
// before it is reinserted.
func StoreIndex(v View, columnID string, f FilterState, visibleIndex int, movingID string) int {
	cards := v.Cards(columnID)
	if f.IsEmpty() {
		return clampVisible(cards, movingID, visibleIndex)
	}
	if visibleIndex <= 0 {
		return 0
	}
	seen := 0
	store := 0
	for i := range cards {
		if cards[i].ID == movingID {
			continue
		}
		store++
		if f.Match(&cards[i]) {
			seen++
			if seen == visibleIndex {
				return store
			}
		}
	}
	return store
}

func clampVisible(cards []domain.Task, movingID string, index int) int {
	n := len(cards)
	for i := range cards {
		if cards[i].ID == movingID {
			n--
			break
		}
	}
	return clamp(index, 0, n)
}
