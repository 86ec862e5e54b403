package latis

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrReentrant is returned when a callback calls back into a mutating
// Sheet API while another mutation is in flight. Re-entrance from
// within on_change/on_edited_time is disallowed: it is detected and
// rejected rather than allowed to deadlock or corrupt in-flight state.
var ErrReentrant = errors.New("latis: reentrant call into sheet mutating API")

// Cell is a sheet cell: its coordinate, its parsed expression, and its
// most recently computed Amount -- or, if the most recent evaluation
// failed, the error that replaced it.
type Cell struct {
	XY         XY
	Expression Expression
	Amount     Amount
	Err        error
}

// SheetOption configures a Sheet at construction, in the functional-
// options style used for its Clock and metadata wiring.
type SheetOption func(*Sheet)

// WithClock overrides the sheet's time source; useful for deterministic
// created_time/edited_time in tests.
func WithClock(c Clock) SheetOption {
	return func(s *Sheet) { s.clock = c }
}

// WithTitle sets the sheet's initial title.
func WithTitle(title string) SheetOption {
	return func(s *Sheet) { s.initialTitle = title }
}

// WithAuthor sets the sheet's initial author.
func WithAuthor(author string) SheetOption {
	return func(s *Sheet) { s.initialAuthor = author }
}

// Sheet is the engine: cells, the dependency graph, metadata, and the
// two observer callbacks, all co-owned and mutated only through Sheet's
// own methods. No owning pointers exist between cells.
type Sheet struct {
	mu    sync.Mutex
	cells map[XY]*Cell
	graph *Graph

	metadata *Metadata
	clock    Clock

	onChange     func(XY, Cell)
	onEditedTime func(t time.Time)

	// inMutation guards re-entrance independently of mu: it is set
	// with a CompareAndSwap before mu is ever touched, so a callback
	// that calls back into Set/Clear fails the swap immediately instead
	// of blocking on mu, which is unlocked for the duration of the
	// callback itself (see recomputeDescendants).
	inMutation atomic.Bool

	initialTitle  string
	initialAuthor string
}

// NewSheet constructs an empty Sheet.
func NewSheet(opts ...SheetOption) *Sheet {
	s := &Sheet{
		cells: make(map[XY]*Cell),
		graph: NewGraph(),
		clock: WallClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metadata = newMetadata(s.clock, s.initialTitle, s.initialAuthor)
	return s
}

// RegisterOnChange installs the callback fired once per descendant
// recomputed during Set/Clear fan-out (never for the cell directly
// written).
func (s *Sheet) RegisterOnChange(fn func(xy XY, cell Cell)) {
	s.onChange = fn
}

// RegisterOnEditedTime installs the callback fired whenever edited_time
// advances.
func (s *Sheet) RegisterOnEditedTime(fn func(t time.Time)) {
	s.onEditedTime = fn
}

func (s *Sheet) Title() string  { return s.metadata.Title() }
func (s *Sheet) Author() string { return s.metadata.Author() }

// CreatedTime and EditedTime expose the sheet's metadata timestamps.
func (s *Sheet) CreatedTime() time.Time { return s.metadata.CreatedTime() }
func (s *Sheet) EditedTime() time.Time  { return s.metadata.EditedTime() }

// Height reports one past the highest occupied row, 0 if the sheet is
// empty -- used by a renderer to size a grid.
func (s *Sheet) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for xy := range s.cells {
		if xy.Row+1 > max {
			max = xy.Row + 1
		}
	}
	return max
}

// Width reports one past the highest occupied column.
func (s *Sheet) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for xy := range s.cells {
		if xy.Col+1 > max {
			max = xy.Col + 1
		}
	}
	return max
}

// Get returns the cell's cached amount, or NotFound.
func (s *Sheet) Get(xy XY) (Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[xy]
	if !ok {
		return Amount{}, newError(NotFound, -1, "no cell at %s", xy.A1())
	}
	if cell.Err != nil {
		return Amount{}, cell.Err
	}
	return cell.Amount, nil
}

func (s *Sheet) lookupFunc() LookupFunc {
	return func(xy XY) (Amount, bool) {
		cell, ok := s.cells[xy]
		if !ok || cell.Err != nil {
			return Amount{}, false
		}
		return cell.Amount, true
	}
}

// Set is the central operation: lex+parse text, stage the dependency-
// graph edge rewrite, evaluate, commit, and fan recompute out over the
// descendant set in topological order.
//
// A cell that references another cell not yet written still commits:
// its edges are kept and it is stored with an EvalError, exactly like a
// descendant that loses a dependency in recomputeDescendants. That
// forward-reference edge is what lets a later Set on the missing cell
// find and recompute this one. Only a cycle (tx.Confirm failing) leaves
// the graph untouched and aborts before anything is written.
func (s *Sheet) Set(xy XY, text string) (Amount, error) {
	if !s.inMutation.CompareAndSwap(false, true) {
		return Amount{}, ErrReentrant
	}
	defer s.inMutation.Store(false)

	s.mu.Lock()

	expr, err := Parse(text)
	if err != nil {
		s.mu.Unlock()
		return Amount{}, err
	}

	refs := expr.ReferencedCells()
	oldParents := s.graph.GetParentsOf(xy)

	tx := s.graph.Begin()
	for src := range oldParents {
		tx.StageRemoval(src, xy)
	}
	for r := range refs {
		tx.Stage(r, xy)
	}
	if !tx.Confirm() {
		s.mu.Unlock()
		return Amount{}, newError(CycleError, -1, "Set(%s, ...) would create a dependency cycle", xy.A1())
	}

	amount, evalErr := Evaluate(expr, s.lookupFunc())
	s.cells[xy] = &Cell{XY: xy, Expression: expr, Amount: amount, Err: evalErr}

	s.recomputeDescendants(s.graph.GetDescendantsOf(xy))

	s.metadata.editedTime = s.clock.Now()
	editedTime := s.metadata.editedTime
	onEditedTime := s.onEditedTime

	s.mu.Unlock()

	if onEditedTime != nil {
		onEditedTime(editedTime)
	}

	return amount, evalErr
}

// recomputeDescendants re-evaluates every cell in descendants, in the
// topological order the caller computed, updating its cached amount and
// firing on_change. A descendant whose own evaluation fails gets its
// EvalError stored and still triggers on_change, carrying the error
// state forward rather than aborting the fan-out.
//
// descendants must already be computed by the caller: Clear needs the
// traversal done before it removes the node's edges from the graph, so
// the list can't be derived here from a single xy.
//
// Must be called with s.mu held. It releases s.mu for the duration of
// each on_change call and re-acquires it before continuing, so a
// reentrant call from within the callback finds inMutation already set
// and fails its CompareAndSwap instead of blocking on s.mu.
func (s *Sheet) recomputeDescendants(descendants []XY) {
	for _, d := range descendants {
		cell, ok := s.cells[d]
		if !ok {
			continue
		}
		amount, err := Evaluate(cell.Expression, s.lookupFunc())
		cell.Amount = amount
		cell.Err = err

		if s.onChange == nil {
			continue
		}
		fn := s.onChange
		snapshot := *cell
		s.mu.Unlock()
		fn(d, snapshot)
		s.mu.Lock()
	}
}

// Clear removes the cell and its incident edges, then recomputes
// descendants exactly as Set does. Descendants that now reference a
// missing cell evaluate to EvalError and still emit on_change,
// surfacing the break rather than masking it.
func (s *Sheet) Clear(xy XY) error {
	if !s.inMutation.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer s.inMutation.Store(false)

	s.mu.Lock()

	descendants := s.graph.GetDescendantsOf(xy)
	delete(s.cells, xy)
	s.graph.Remove(xy)

	s.recomputeDescendants(descendants)

	s.metadata.editedTime = s.clock.Now()
	editedTime := s.metadata.editedTime
	onEditedTime := s.onEditedTime

	s.mu.Unlock()

	if onEditedTime != nil {
		onEditedTime(editedTime)
	}
	return nil
}

// Load replays a batch of (xy, text) pairs through Set, in the order
// given, to rebuild a sheet's cells and dependency graph from stored
// formula text; it does not itself read any file format, leaving that
// to a persistence collaborator. Records are not required to be in
// dependency order: a record referencing a cell not yet loaded commits
// with an EvalError exactly as a live forward-reference Set does, and
// that error is not fatal to the load -- only a lex, parse, or cycle
// error aborts it.
func Load(records []CellRecord, opts ...SheetOption) (*Sheet, error) {
	s := NewSheet(opts...)
	for _, r := range records {
		_, err := s.Set(r.XY, r.Text)
		if err == nil {
			continue
		}
		if kind, ok := KindOf(err); ok && kind == EvalError {
			continue
		}
		return nil, err
	}
	return s, nil
}

// CellRecord is the logical shape Load and a future persistence
// collaborator exchange: a coordinate plus the formula text (or bare
// literal) that produced the cell.
type CellRecord struct {
	XY   XY
	Text string
}
