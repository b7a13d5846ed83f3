// Package inflight tracks completion cells for operations that are
// still in flight, keyed by a generated id. It is the bookkeeping
// half of a request/response pipeline: a caller registers an armed
// cell per request, a router completes cells as responses arrive, and
// teardown drains whatever is left.
package inflight

import (
	"sync"
	"sync/atomic"

	"deedles.dev/awaitable"
	"deedles.dev/awaitable/metric"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by [Table.Complete] when no cell is pending
// under the given id.
var ErrNotFound = errors.New("inflight: no pending cell for id")

// A Table holds in-flight cells by id. Ids are unique for the
// lifetime of the table and never zero.
//
// The zero value is ready to use.
type Table[I, O any] struct {
	seq atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*awaitable.Cell[I, O]
}

// New returns a new, empty table.
func New[I, O any]() *Table[I, O] {
	return new(Table[I, O])
}

// Add registers a fresh cell armed with input and returns its id
// along with the cell itself.
func (t *Table[I, O]) Add(input I) (uint64, *awaitable.Cell[I, O]) {
	cell := awaitable.NewArmed[I, O](input)
	return t.put(cell), cell
}

// AddEmpty registers a fresh armed cell with no input.
func (t *Table[I, O]) AddEmpty() (uint64, *awaitable.Cell[I, O]) {
	cell := awaitable.New[I, O]()
	cell.ResetEmpty()
	return t.put(cell), cell
}

func (t *Table[I, O]) put(cell *awaitable.Cell[I, O]) uint64 {
	id := t.seq.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		t.pending = make(map[uint64]*awaitable.Cell[I, O])
	}
	t.pending[id] = cell
	return id
}

// Get returns the cell registered under id, if one is still pending.
func (t *Table[I, O]) Get(id uint64) (*awaitable.Cell[I, O], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cell, ok := t.pending[id]
	return cell, ok
}

// Complete removes the cell registered under id and completes it with
// output, waking its consumer. It returns [ErrNotFound] if nothing is
// pending under id.
func (t *Table[I, O]) Complete(id uint64, output O) error {
	cell, ok := t.take(id)
	if !ok {
		return ErrNotFound
	}
	return errors.WithMessagef(cell.Complete(output), "cell %d", id)
}

// Evict removes the cell registered under id without completing it,
// reporting whether there was one. It is how a consumer abandons an
// operation it no longer wants the result of.
func (t *Table[I, O]) Evict(id uint64) bool {
	_, ok := t.take(id)
	return ok
}

func (t *Table[I, O]) take(id uint64) (*awaitable.Cell[I, O], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cell, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return cell, ok
}

// Drain removes every pending cell and completes each one with
// output, waking their consumers. It returns the number of cells it
// completed; a cell already completed through its own handle is
// removed but not counted, and its delivered output stays in place.
// Cells are completed with the table lock released, so wakers may
// re-enter the table.
func (t *Table[I, O]) Drain(output O) int {
	t.mu.Lock()
	cells := make([]*awaitable.Cell[I, O], 0, len(t.pending))
	for id, cell := range t.pending {
		cells = append(cells, cell)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	drained := 0
	for _, cell := range cells {
		if cell.Complete(output) == nil {
			drained++
		}
	}
	return drained
}

// Len returns the number of cells still pending.
func (t *Table[I, O]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// PendingMetric describes the table's pending count as a gauge for
// [metric.Collector.Add]. The name distinguishes tables sharing a
// registry.
func (t *Table[I, O]) PendingMetric(name string) metric.Metric {
	return metric.Metric{
		Name:        "awaitable_inflight_pending",
		Description: "Number of operations currently in flight.",
		Labels:      []string{"table"},
		Collect: func() []metric.Value {
			return []metric.Value{metric.ValueOf(t.Len(), name)}
		},
	}
}
