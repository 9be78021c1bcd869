package board

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

var (
	ErrUnknownCard    = fmt.Errorf("card %w", domain.ErrNotFound)
	ErrUnknownColumn  = fmt.Errorf("column %w", domain.ErrNotFound)
	ErrColumnNotEmpty = errors.New("column still holds cards")
	ErrDuplicateID    = fmt.Errorf("%w: duplicate id", domain.ErrValidation)
	ErrWrongColumn    = fmt.Errorf("%w: card is not in the source column", domain.ErrValidation)
)

// View is the read side of a board consumed by rendering and filtering.
type View interface {
	Columns() []domain.Column
	Cards(columnID string) []domain.Task
}

// ColumnPatch updates column attributes other than order.
type ColumnPatch struct {
	Name *string
}

// Session is the working copy of one opened board. It owns columns, cards and
// their order for the lifetime of the view.
//
// A Session has a single writer: all calls must come from the goroutine that
// runs the board's event loop. Gateway outcomes are fed back through
// Dispatcher.Acknowledge on that same goroutine.
type Session struct {
	boardID  string
	columns  []domain.Column
	order    map[string][]string
	cards    map[string]*domain.Task
	selected string
	focused  string
	failures map[string]error

	debug  bool
	logger *log.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithDebug makes invariant violations panic instead of being logged.
func WithDebug(debug bool) Option {
	return func(s *Session) { s.debug = debug }
}

// WithLogger sets the logger used for release-mode invariant reports.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession returns an empty session.
func NewSession(opts ...Option) *Session {
	s := &Session{logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.reset("")
	return s
}

func (s *Session) reset(boardID string) {
	s.boardID = boardID
	s.columns = nil
	s.order = make(map[string][]string)
	s.cards = make(map[string]*domain.Task)
	s.selected = ""
	s.focused = ""
	s.failures = make(map[string]error)
}

// BoardID returns the id of the loaded board.
func (s *Session) BoardID() string { return s.boardID }

// LoadBoard replaces the session state with snap. Cards are ordered by
// (position, created_at, id) and given dense positions. A snapshot holding a
// card whose column is not on the board is rejected and the session is left
// untouched.
func (s *Session) LoadBoard(snap domain.BoardSnapshot) error {
	cols := append([]domain.Column(nil), snap.Board.Columns...)
	SortColumns(cols)
	known := make(map[string]bool, len(cols))
	for i := range cols {
		if cols[i].ID == "" || known[cols[i].ID] {
			return fmt.Errorf("load board %s: column %q: %w", snap.Board.ID, cols[i].ID, ErrDuplicateID)
		}
		known[cols[i].ID] = true
		cols[i].Position = i
	}

	grouped := make(map[string][]domain.Task, len(cols))
	seen := make(map[string]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("load board %s: card %q: %w", snap.Board.ID, t.ID, ErrDuplicateID)
		}
		seen[t.ID] = true
		if !known[t.ColumnID] {
			return fmt.Errorf("load board %s: card %s references column %q: %w", snap.Board.ID, t.ID, t.ColumnID, ErrUnknownColumn)
		}
		grouped[t.ColumnID] = append(grouped[t.ColumnID], t.Clone())
	}

	s.reset(snap.Board.ID)
	s.columns = cols
	for _, c := range cols {
		tasks := grouped[c.ID]
		SortTasks(tasks)
		Compact(tasks)
		ids := make([]string, 0, len(tasks))
		for i := range tasks {
			t := tasks[i]
			t.Status = t.ColumnID
			s.cards[t.ID] = &t
			ids = append(ids, t.ID)
		}
		s.order[c.ID] = ids
	}
	s.verify("load")
	return nil
}

// Columns returns the columns in board order.
func (s *Session) Columns() []domain.Column {
	return append([]domain.Column(nil), s.columns...)
}

// Column returns the column with the given id.
func (s *Session) Column(id string) (domain.Column, bool) {
	i := s.columnIndex(id)
	if i < 0 {
		return domain.Column{}, false
	}
	return s.columns[i], true
}

// CardIDs returns the ordered card ids of a column.
func (s *Session) CardIDs(columnID string) []string {
	return append([]string(nil), s.order[columnID]...)
}

// Cards returns copies of the cards of a column in order.
func (s *Session) Cards(columnID string) []domain.Task {
	ids := s.order[columnID]
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.cards[id].Clone())
	}
	return out
}

// CardByID returns a copy of the card.
func (s *Session) CardByID(id string) (domain.Task, bool) {
	t, ok := s.cards[id]
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// IndexOf returns the column and index of a card.
func (s *Session) IndexOf(id string) (string, int, bool) {
	t, ok := s.cards[id]
	if !ok {
		return "", -1, false
	}
	return t.ColumnID, t.Position, true
}

// Len returns the number of cards on the board.
func (s *Session) Len() int { return len(s.cards) }

// MoveCard moves a card from one column to a target index of another, or
// reorders it within a column when both ids match. The index is clamped to
// the destination bounds. Positions of both columns are recomputed and the
// card's column, status and position are updated in the same pass.
func (s *Session) MoveCard(cardID, fromColumnID, toColumnID string, targetIndex int) error {
	card, ok := s.cards[cardID]
	if !ok {
		return fmt.Errorf("move %s: %w", cardID, ErrUnknownCard)
	}
	if card.ColumnID != fromColumnID {
		return fmt.Errorf("move %s from %s: %w", cardID, fromColumnID, ErrWrongColumn)
	}
	if s.columnIndex(toColumnID) < 0 {
		return fmt.Errorf("move %s to %s: %w", cardID, toColumnID, ErrUnknownColumn)
	}

	src, _ := PositionsAfterRemove(s.order[fromColumnID], card.Position)
	if fromColumnID == toColumnID {
		dst, pos := PositionsAfterInsert(src, cardID, targetIndex)
		s.order[toColumnID] = dst
		s.applyPositions(pos)
	} else {
		dst, pos := PositionsAfterInsert(s.order[toColumnID], cardID, targetIndex)
		s.order[fromColumnID] = src
		s.order[toColumnID] = dst
		s.applyPositions(Positions(src))
		s.applyPositions(pos)
	}
	card.ColumnID = toColumnID
	card.Status = toColumnID
	s.verify("move_card")
	return nil
}

// AddCard inserts a card into its column at index, or at the end when index
// is negative.
func (s *Session) AddCard(card domain.Task, index int) error {
	if card.ID == "" {
		return fmt.Errorf("add card: %w", domain.Validationf("card id is required"))
	}
	if _, exists := s.cards[card.ID]; exists {
		return fmt.Errorf("add card %s: %w", card.ID, ErrDuplicateID)
	}
	if s.columnIndex(card.ColumnID) < 0 {
		return fmt.Errorf("add card %s to %s: %w", card.ID, card.ColumnID, ErrUnknownColumn)
	}
	ids := s.order[card.ColumnID]
	if index < 0 {
		index = len(ids)
	}
	c := card.Clone()
	c.Status = c.ColumnID
	c.NormalizeAIContext()
	s.cards[c.ID] = &c
	dst, pos := PositionsAfterInsert(ids, c.ID, index)
	s.order[c.ColumnID] = dst
	s.applyPositions(pos)
	s.verify("add_card")
	return nil
}

// RemoveCard deletes a card and compacts the positions of its former siblings.
func (s *Session) RemoveCard(cardID string) (domain.Task, error) {
	card, ok := s.cards[cardID]
	if !ok {
		return domain.Task{}, fmt.Errorf("remove %s: %w", cardID, ErrUnknownCard)
	}
	rest, pos := PositionsAfterRemove(s.order[card.ColumnID], card.Position)
	s.order[card.ColumnID] = rest
	s.applyPositions(pos)
	delete(s.cards, cardID)
	delete(s.failures, cardID)
	if s.selected == cardID {
		s.selected = ""
	}
	if s.focused == cardID {
		s.focused = ""
	}
	s.verify("remove_card")
	return card.Clone(), nil
}

// AddColumn inserts a column at index, or at the right edge when index is negative.
func (s *Session) AddColumn(col domain.Column, index int) error {
	if col.ID == "" {
		return fmt.Errorf("add column: %w", domain.Validationf("column id is required"))
	}
	if s.columnIndex(col.ID) >= 0 {
		return fmt.Errorf("add column %s: %w", col.ID, ErrDuplicateID)
	}
	if index < 0 {
		index = len(s.columns)
	}
	_, pos := PositionsAfterInsert(s.columnIDs(), col.ID, index)
	s.columns = append(s.columns, col)
	s.order[col.ID] = []string{}
	s.applyColumnPositions(pos)
	s.verify("add_column")
	return nil
}

// UpdateColumn renames a column.
func (s *Session) UpdateColumn(columnID string, patch ColumnPatch) error {
	i := s.columnIndex(columnID)
	if i < 0 {
		return fmt.Errorf("update column %s: %w", columnID, ErrUnknownColumn)
	}
	if patch.Name != nil {
		s.columns[i].Name = *patch.Name
	}
	return nil
}

// RemoveColumn deletes an empty column. Cards are never deleted or moved
// implicitly: a column that still holds cards yields ErrColumnNotEmpty.
func (s *Session) RemoveColumn(columnID string) error {
	i := s.columnIndex(columnID)
	if i < 0 {
		return fmt.Errorf("remove column %s: %w", columnID, ErrUnknownColumn)
	}
	if n := len(s.order[columnID]); n > 0 {
		return fmt.Errorf("remove column %s with %d cards: %w", columnID, n, ErrColumnNotEmpty)
	}
	_, pos := PositionsAfterRemove(s.columnIDs(), i)
	s.columns = append(s.columns[:i], s.columns[i+1:]...)
	delete(s.order, columnID)
	s.applyColumnPositions(pos)
	s.verify("remove_column")
	return nil
}

// MoveColumn moves a column to targetIndex, clamped to the board bounds.
func (s *Session) MoveColumn(columnID string, targetIndex int) error {
	i := s.columnIndex(columnID)
	if i < 0 {
		return fmt.Errorf("move column %s: %w", columnID, ErrUnknownColumn)
	}
	rest, _ := PositionsAfterRemove(s.columnIDs(), i)
	_, pos := PositionsAfterInsert(rest, columnID, targetIndex)
	s.applyColumnPositions(pos)
	s.verify("move_column")
	return nil
}

// SelectCard marks a card as selected. An empty id clears the selection.
func (s *Session) SelectCard(id string) error {
	if id != "" {
		if _, ok := s.cards[id]; !ok {
			return fmt.Errorf("select %s: %w", id, ErrUnknownCard)
		}
	}
	s.selected = id
	return nil
}

// Selected returns the selected card id.
func (s *Session) Selected() string { return s.selected }

// SetFocusedCard moves keyboard focus. An empty id clears it.
func (s *Session) SetFocusedCard(id string) error {
	if id != "" {
		if _, ok := s.cards[id]; !ok {
			return fmt.Errorf("focus %s: %w", id, ErrUnknownCard)
		}
	}
	s.focused = id
	return nil
}

// Focused returns the focused card id.
func (s *Session) Focused() string { return s.focused }

// MarkSyncFailed records that the last persistence attempt for a card failed.
// The card keeps its optimistic placement.
func (s *Session) MarkSyncFailed(id string, err error) {
	if _, ok := s.cards[id]; !ok {
		return
	}
	if err == nil {
		err = domain.ErrGateway
	}
	s.failures[id] = err
}

// ClearSyncFailed drops the failure marker of a card.
func (s *Session) ClearSyncFailed(id string) { delete(s.failures, id) }

// SyncFailure returns the last sync error of a card, or nil.
func (s *Session) SyncFailure(id string) error { return s.failures[id] }

// Snapshot returns the current board and cards.
func (s *Session) Snapshot() domain.BoardSnapshot {
	snap := domain.BoardSnapshot{Board: domain.Board{ID: s.boardID, Columns: s.Columns()}}
	for _, c := range s.columns {
		snap.Tasks = append(snap.Tasks, s.Cards(c.ID)...)
	}
	return snap
}

func (s *Session) columnIndex(id string) int {
	for i := range s.columns {
		if s.columns[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) columnIDs() []string {
	ids := make([]string, len(s.columns))
	for i, c := range s.columns {
		ids[i] = c.ID
	}
	return ids
}

func (s *Session) applyPositions(pos map[string]int) {
	for id, p := range pos {
		if c, ok := s.cards[id]; ok {
			c.Position = p
		}
	}
}

func (s *Session) applyColumnPositions(pos map[string]int) {
	for i := range s.columns {
		s.columns[i].Position = pos[s.columns[i].ID]
	}
	SortColumns(s.columns)
}

// CheckInvariants verifies that every column's ordered list holds exactly the
// cards pointing at it, with positions 0..n-1, and that column positions are
// dense.
func (s *Session) CheckInvariants() error {
	for i, c := range s.columns {
		if c.Position != i {
			return fmt.Errorf("column %s at index %d has position %d: %w", c.ID, i, c.Position, domain.ErrInvariant)
		}
	}
	listed := 0
	for _, c := range s.columns {
		for i, id := range s.order[c.ID] {
			card, ok := s.cards[id]
			if !ok {
				return fmt.Errorf("column %s lists unknown card %s: %w", c.ID, id, domain.ErrInvariant)
			}
			if card.ColumnID != c.ID {
				return fmt.Errorf("card %s listed in %s but points at %s: %w", id, c.ID, card.ColumnID, domain.ErrInvariant)
			}
			if card.Status != card.ColumnID {
				return fmt.Errorf("card %s status %q differs from column %q: %w", id, card.Status, card.ColumnID, domain.ErrInvariant)
			}
			if card.Position != i {
				return fmt.Errorf("card %s at index %d of %s has position %d: %w", id, i, c.ID, card.Position, domain.ErrInvariant)
			}
			listed++
		}
	}
	if len(s.order) != len(s.columns) {
		return fmt.Errorf("%d ordered lists for %d columns: %w", len(s.order), len(s.columns), domain.ErrInvariant)
	}
	if listed != len(s.cards) {
		return fmt.Errorf("%d cards listed but %d stored: %w", listed, len(s.cards), domain.ErrInvariant)
	}
	return nil
}

func (s *Session) verify(op string) {
	err := s.CheckInvariants()
	if err == nil {
		return
	}
	if s.debug {
		panic(fmt.Sprintf("board %s after %s: %v", s.boardID, op, err))
	}
	s.logger.WithFields(log.Fields{
		"board": s.boardID,
		"op":    op,
		"error": err.Error(),
	}).Error("board.invariant.violation")
}
