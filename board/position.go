package board

import (
	"sort"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// PositionsAfterInsert returns ids with id inserted at index and the dense
// positions of the resulting order. index is clamped to [0, len(ids)].
func PositionsAfterInsert(ids []string, id string, index int) ([]string, map[string]int) {
	index = clamp(index, 0, len(ids))
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	out = append(out, ids[index:]...)
	return out, Positions(out)
}

// PositionsAfterRemove returns ids without the element at index and the
// compacted positions of what is left. An out of range index removes nothing.
func PositionsAfterRemove(ids []string, index int) ([]string, map[string]int) {
	if index < 0 || index >= len(ids) {
		out := append([]string(nil), ids...)
		return out, Positions(out)
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:index]...)
	out = append(out, ids[index+1:]...)
	return out, Positions(out)
}

// Positions maps every id to its index.
func Positions(ids []string) map[string]int {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	return pos
}

// SortTasks orders tasks by (position, created_at, id). Equal positions can
// arrive from external writes; the fallback keeps every card exactly once.
func SortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return lessTask(&tasks[i], &tasks[j])
	})
}

func lessTask(a, b *domain.Task) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortColumns orders columns by (position, id).
func SortColumns(cols []domain.Column) {
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].Position != cols[j].Position {
			return cols[i].Position < cols[j].Position
		}
		return cols[i].ID < cols[j].ID
	})
}

// Compact rewrites positions of already ordered tasks to 0..n-1 and returns
// the indexes whose position changed.
func Compact(tasks []domain.Task) []int {
	var changed []int
	for i := range tasks {
		if tasks[i].Position != i {
			tasks[i].Position = i
			changed = append(changed, i)
		}
	}
	return changed
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
