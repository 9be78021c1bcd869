package domain

// Column is an ordered bucket of tasks. Its ID doubles as the task status.
type Column struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Board is the aggregate of ordered columns.
type Board struct {
	ID      string   `json:"id"`
	Columns []Column `json:"columns"`
}

// BoardSnapshot is the seed for a board session.
type BoardSnapshot struct {
	Board Board  `json:"board"`
	Tasks []Task `json:"tasks"`
}

// Column statuses used when a board has no stored column configuration.
const (
	StatusBacklog    = "backlog"
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

// DefaultColumns returns the column set of a freshly created board.
func DefaultColumns() []Column {
	return []Column{
		{ID: StatusBacklog, Name: "Backlog", Position: 0},
		{ID: StatusTodo, Name: "To Do", Position: 1},
		{ID: StatusInProgress, Name: "In Progress", Position: 2},
		{ID: StatusReview, Name: "Review", Position: 3},
		{ID: StatusDone, Name: "Done", Position: 4},
	}
}

// HasColumn reports whether the board contains a column with the given id.
func (b Board) HasColumn(id string) bool {
	for _, c := range b.Columns {
		if c.ID == id {
			return true
		}
	}
	return false
}

// FirstColumn returns the left-most column id, or "" for an empty board.
func (b Board) FirstColumn() string {
	first := ""
	best := 0
	for i, c := range b.Columns {
		if i == 0 || c.Position < best {
			first = c.ID
			best = c.Position
		}
	}
	return first
}
