package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// Gateway is the durable store behind a board session. Implementations own
// their timeouts; the dispatcher only tells success from failure.
type Gateway interface {
	UpdateCard(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	CreateCard(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	DeleteCard(ctx context.Context, id string) error
	UpdateColumnOrder(ctx context.Context, boardID string, columns []domain.Column) error
}

// ResultKind names the gateway call a Result belongs to.
type ResultKind string

const (
	KindMove        ResultKind = "move"
	KindCreate      ResultKind = "create"
	KindDelete      ResultKind = "delete"
	KindColumnOrder ResultKind = "column_order"
)

// Result is the outcome of one asynchronous gateway call.
type Result struct {
	Kind      ResultKind
	CardID    string
	Placement domain.Placement
	Columns   []domain.Column
	Task      *domain.Task
	Err       error
	// Seq orders the gateway calls issued for CardID; later calls carry
	// larger values.
	Seq uint64
}

var (
	ErrDragInProgress = errors.New("a drag is already in progress")
	ErrNoDrag         = errors.New("no drag in progress")
	ErrClosed         = errors.New("dispatcher is closed")
)

type dragState struct {
	cardID      string
	startColumn string
	startIndex  int
}

// Dispatcher turns finished gestures into one optimistic Session update plus
// one gateway call. Failed calls never roll the session back; they surface on
// Results and, once acknowledged, as the card's sync failure marker.
type Dispatcher struct {
	session *Session
	gateway Gateway
	logger  *log.Logger
	sender  *sender
	filter  FilterState
	drag    *dragState
	now     func() time.Time
	newID   func() string
	// latest is the Seq of the newest call issued per card.
	latest map[string]uint64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	sender senderConfig
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// WithWorkers bounds the number of concurrent gateway calls.
func WithWorkers(n int) DispatcherOption {
	return func(c *dispatcherConfig) { c.sender.workers = n }
}

// WithBuffer sets how many calls may queue before the handoff timeout applies.
func WithBuffer(n int) DispatcherOption {
	return func(c *dispatcherConfig) { c.sender.buffer = n }
}

// WithHandoffTimeout sets how long a gesture waits for a free queue slot.
func WithHandoffTimeout(d time.Duration) DispatcherOption {
	return func(c *dispatcherConfig) { c.sender.handoffTimeout = d }
}

// WithCallTimeout bounds each gateway call. Zero leaves it to the gateway.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(c *dispatcherConfig) { c.sender.callTimeout = d }
}

// WithDispatchLogger sets the dispatcher logger.
func WithDispatchLogger(logger *log.Logger) DispatcherOption {
	return func(c *dispatcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIDGenerator overrides client id generation for inline creates.
func WithIDGenerator(fn func() string) DispatcherOption {
	return func(c *dispatcherConfig) { c.newID = fn }
}

// WithClock overrides the timestamp source for inline creates.
func WithClock(fn func() time.Time) DispatcherOption {
	return func(c *dispatcherConfig) { c.now = fn }
}

// NewDispatcher binds a session to a gateway.
func NewDispatcher(session *Session, gateway Gateway, opts ...DispatcherOption) *Dispatcher {
	if session == nil {
		panic("board.NewDispatcher: session is nil")
	}
	if gateway == nil {
		panic("board.NewDispatcher: gateway is nil")
	}
	cfg := dispatcherConfig{
		sender: senderConfig{workers: 4, buffer: 64, handoffTimeout: 15 * time.Millisecond},
		logger: log.StandardLogger(),
		now:    time.Now,
		newID:  newTaskID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{
		session: session,
		gateway: gateway,
		logger:  cfg.logger,
		sender:  newSender(cfg.sender, cfg.logger),
		now:     cfg.now,
		newID:   cfg.newID,
		latest:  make(map[string]uint64),
	}
}

func newTaskID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Results delivers gateway outcomes. The host loop must drain it and pass
// each Result to Acknowledge.
func (d *Dispatcher) Results() <-chan Result { return d.sender.out }

// Acknowledge applies a gateway outcome to the session's sync markers and
// returns the outcome's error for user notification. Only the newest call
// issued for a card updates its marker, whatever order results arrive in.
func (d *Dispatcher) Acknowledge(r Result) error {
	if r.CardID != "" && d.latest[r.CardID] == r.Seq {
		if r.Err != nil {
			d.session.MarkSyncFailed(r.CardID, r.Err)
		} else {
			d.session.ClearSyncFailed(r.CardID)
		}
	}
	return r.Err
}

// SetFilter records what the user currently sees, so target indexes of
// gestures map back onto the unfiltered order.
func (d *Dispatcher) SetFilter(f FilterState) { d.filter = f }

// Filter returns the active filter.
func (d *Dispatcher) Filter() FilterState { return d.filter }

// Dragging returns the id of the card being dragged.
func (d *Dispatcher) Dragging() string {
	if d.drag == nil {
		return ""
	}
	return d.drag.cardID
}

// BeginDrag records the card's placement at drag start.
func (d *Dispatcher) BeginDrag(cardID string) error {
	if d.drag != nil {
		return ErrDragInProgress
	}
	col, idx, ok := d.session.IndexOf(cardID)
	if !ok {
		return fmt.Errorf("begin drag %s: %w", cardID, ErrUnknownCard)
	}
	d.drag = &dragState{cardID: cardID, startColumn: col, startIndex: idx}
	return nil
}

// DragOver moves the dragged card into the hovered column right away so the
// board gives continuous feedback. A negative visibleIndex means the end of
// the column. Hovering the card's own column without a slot does nothing.
func (d *Dispatcher) DragOver(columnID string, visibleIndex int) error {
	if d.drag == nil {
		return ErrNoDrag
	}
	return d.place(d.drag.cardID, columnID, visibleIndex)
}

// Drop finishes the drag. When columnID is set the card is first placed at
// that slot. Exactly one gateway update is issued if the card ended up
// somewhere other than where the drag started; dispatched reports whether it
// was. A drop that cannot be placed ends the drag with the card back at its
// drag-start slot and no gateway call.
func (d *Dispatcher) Drop(ctx context.Context, columnID string, visibleIndex int) (bool, error) {
	if d.drag == nil {
		return false, ErrNoDrag
	}
	drag := d.drag
	d.drag = nil
	if columnID != "" {
		if err := d.place(drag.cardID, columnID, visibleIndex); err != nil {
			if rerr := d.restore(drag); rerr != nil {
				return false, errors.Join(err, rerr)
			}
			return false, err
		}
	}
	col, idx, ok := d.session.IndexOf(drag.cardID)
	if !ok {
		return false, fmt.Errorf("drop %s: %w", drag.cardID, ErrUnknownCard)
	}
	if col == drag.startColumn && idx == drag.startIndex {
		return false, nil
	}
	return true, d.syncPlacement(ctx, drag.cardID)
}

// CancelDrag aborts the drag and puts the card back where it started. No
// gateway call is made.
func (d *Dispatcher) CancelDrag() error {
	if d.drag == nil {
		return ErrNoDrag
	}
	drag := d.drag
	d.drag = nil
	return d.restore(drag)
}

// restore puts a dragged card back at its drag-start slot.
func (d *Dispatcher) restore(drag *dragState) error {
	col, _, ok := d.session.IndexOf(drag.cardID)
	if !ok {
		return nil
	}
	return d.session.MoveCard(drag.cardID, col, drag.startColumn, drag.startIndex)
}

func (d *Dispatcher) place(cardID, columnID string, visibleIndex int) error {
	col, _, ok := d.session.IndexOf(cardID)
	if !ok {
		return fmt.Errorf("place %s: %w", cardID, ErrUnknownCard)
	}
	if col == columnID && visibleIndex < 0 {
		return nil
	}
	target := len(d.session.CardIDs(columnID))
	if visibleIndex >= 0 {
		target = StoreIndex(d.session, columnID, d.filter, visibleIndex, cardID)
	}
	return d.session.MoveCard(cardID, col, columnID, target)
}

// MoveCard applies a programmatic move and syncs it. A move that leaves the
// card where it is issues no gateway call.
func (d *Dispatcher) MoveCard(ctx context.Context, cardID, toColumnID string, targetIndex int) (bool, error) {
	col, idx, ok := d.session.IndexOf(cardID)
	if !ok {
		return false, fmt.Errorf("move %s: %w", cardID, ErrUnknownCard)
	}
	if err := d.session.MoveCard(cardID, col, toColumnID, targetIndex); err != nil {
		return false, err
	}
	newCol, newIdx, _ := d.session.IndexOf(cardID)
	if newCol == col && newIdx == idx {
		return false, nil
	}
	return true, d.syncPlacement(ctx, cardID)
}

// MoveToAdjacentColumn is the keyboard "move left/right" command. dir < 0
// moves left, dir > 0 moves right; the card lands at the end of the column.
// Moving past the board edge is a no-op.
func (d *Dispatcher) MoveToAdjacentColumn(ctx context.Context, cardID string, dir int) (bool, error) {
	col, _, ok := d.session.IndexOf(cardID)
	if !ok {
		return false, fmt.Errorf("move %s: %w", cardID, ErrUnknownCard)
	}
	cols := d.session.Columns()
	cur := -1
	for i, c := range cols {
		if c.ID == col {
			cur = i
			break
		}
	}
	next := cur
	switch {
	case dir < 0:
		next--
	case dir > 0:
		next++
	}
	if next == cur || next < 0 || next >= len(cols) {
		return false, nil
	}
	target := cols[next].ID
	return d.MoveCard(ctx, cardID, target, len(d.session.CardIDs(target)))
}

// MoveWithinColumn is the keyboard "move up/down" command.
func (d *Dispatcher) MoveWithinColumn(ctx context.Context, cardID string, delta int) (bool, error) {
	col, idx, ok := d.session.IndexOf(cardID)
	if !ok {
		return false, fmt.Errorf("move %s: %w", cardID, ErrUnknownCard)
	}
	return d.MoveCard(ctx, cardID, col, idx+delta)
}

// MoveColumn reorders a column and sends the full new column list.
func (d *Dispatcher) MoveColumn(ctx context.Context, columnID string, targetIndex int) ([]domain.Column, bool, error) {
	before, ok := d.session.Column(columnID)
	if !ok {
		return nil, false, fmt.Errorf("move column %s: %w", columnID, ErrUnknownColumn)
	}
	if err := d.session.MoveColumn(columnID, targetIndex); err != nil {
		return nil, false, err
	}
	cols := d.session.Columns()
	after, _ := d.session.Column(columnID)
	if after.Position == before.Position {
		return cols, false, nil
	}
	boardID := d.session.BoardID()
	sent := append([]domain.Column(nil), cols...)
	err := d.submit(ctx, Result{Kind: KindColumnOrder, Columns: sent}, func(ctx context.Context) (Result, error) {
		return Result{Kind: KindColumnOrder, Columns: sent}, d.gateway.UpdateColumnOrder(ctx, boardID, sent)
	})
	return cols, true, err
}

// AddCardInline creates a card at the end of a column with a client chosen
// id and persists it with that same id.
func (d *Dispatcher) AddCardInline(ctx context.Context, columnID, title string) (domain.Task, error) {
	draft := domain.TaskDraft{
		ID:       d.newID(),
		BoardID:  d.session.BoardID(),
		ColumnID: columnID,
		Title:    title,
	}
	if err := draft.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := d.now().UTC()
	card := draft.Task(draft.ID, columnID)
	card.CreatedAt = now
	card.UpdatedAt = now
	if err := d.session.AddCard(card, -1); err != nil {
		return domain.Task{}, err
	}
	added, _ := d.session.CardByID(card.ID)
	pos := added.Position
	draft.Position = &pos
	res := Result{Kind: KindCreate, CardID: added.ID, Placement: added.Placement()}
	err := d.submit(ctx, res, func(ctx context.Context) (Result, error) {
		t, err := d.gateway.CreateCard(ctx, draft)
		r := res
		if err == nil {
			r.Task = &t
		}
		return r, err
	})
	return added, err
}

// DeleteCard removes a card locally and deletes it through the gateway. The
// session compacts the remaining positions; the backend does the same.
func (d *Dispatcher) DeleteCard(ctx context.Context, cardID string) (domain.Task, error) {
	removed, err := d.session.RemoveCard(cardID)
	if err != nil {
		return domain.Task{}, err
	}
	if d.drag != nil && d.drag.cardID == cardID {
		d.drag = nil
	}
	res := Result{Kind: KindDelete, CardID: cardID, Placement: removed.Placement()}
	err = d.submit(ctx, res, func(ctx context.Context) (Result, error) {
		return res, d.gateway.DeleteCard(ctx, cardID)
	})
	return removed, err
}

func (d *Dispatcher) syncPlacement(ctx context.Context, cardID string) error {
	card, ok := d.session.CardByID(cardID)
	if !ok {
		return fmt.Errorf("sync %s: %w", cardID, ErrUnknownCard)
	}
	p := card.Placement()
	res := Result{Kind: KindMove, CardID: cardID, Placement: p}
	return d.submit(ctx, res, func(ctx context.Context) (Result, error) {
		t, err := d.gateway.UpdateCard(ctx, cardID, domain.PlacementPatch(p))
		r := res
		if err == nil {
			r.Task = &t
		}
		return r, err
	})
}

func (d *Dispatcher) submit(ctx context.Context, res Result, call func(context.Context) (Result, error)) error {
	if res.CardID != "" {
		d.latest[res.CardID]++
		res.Seq = d.latest[res.CardID]
	}
	if ok := d.sender.submit(syncJob{ctx: ctx, result: res, call: call}); !ok {
		return ErrClosed
	}
	return nil
}

// Close stops accepting gestures and waits for in-flight gateway calls.
// Results are still delivered while waiting; Results is closed afterwards.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.sender.close(ctx)
}
