package itemstore

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/buildchain/internal/item"
)

// Status is the production state of one item within a build.
type Status int

const (
	// Pending means at least one producer has not finished.
	Pending Status = iota
	// Produced means every producer finished and a value is available.
	Produced
	// NotProduced means every producer finished without a usable value.
	NotProduced
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Produced:
		return "produced"
	case NotProduced:
		return "not produced"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Slot describes how one item is produced in a chain.
type Slot struct {
	ID item.ID
	// Producers are the effective producer steps, in chain order. Values read
	// from a multi item follow this order.
	Producers []string
	// Overridden producers may still record the item; their values are
	// silently dropped.
	Overridden []string
}

type entry struct {
	step  string
	value any
}

type slot struct {
	id         item.ID
	producers  map[string]int // step -> position
	overridden map[string]bool
	remaining  int
	finished   map[string]bool
	failed     map[string]bool
	seeded     []any
	entries    []entry
}

// Store holds the values of one build. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	registry *item.Registry
	slots    map[item.ID]*slot
	// byStep lists the slots each step is an effective producer of.
	byStep map[string][]*slot
}

// New creates a store for the given layout. A nil registry disables type
// checks.
func New(registry *item.Registry, layout []Slot) *Store {
	s := &Store{
		registry: registry,
		slots:    make(map[item.ID]*slot, len(layout)),
		byStep:   make(map[string][]*slot),
	}
	for _, l := range layout {
		sl := &slot{
			id:         l.ID,
			producers:  make(map[string]int, len(l.Producers)),
			overridden: make(map[string]bool, len(l.Overridden)),
			remaining:  len(l.Producers),
			finished:   make(map[string]bool),
			failed:     make(map[string]bool),
		}
		for i, p := range l.Producers {
			sl.producers[p] = i
			s.byStep[p] = append(s.byStep[p], sl)
		}
		for _, p := range l.Overridden {
			sl.overridden[p] = true
		}
		s.slots[l.ID] = sl
	}
	return s
}

// Seed stores caller supplied initial values for id.
func (s *Store) Seed(id item.ID, values ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("%w: initial item %s is not part of the chain", ErrUndeclared, id)
	}
	for _, v := range values {
		if err := s.checkType(id, v); err != nil {
			return err
		}
	}
	if !id.IsMulti() && len(sl.seeded)+len(values) > 1 {
		return fmt.Errorf("%w: initial item %s accepts a single value", ErrDoubleWrite, id)
	}
	sl.seeded = append(sl.seeded, values...)
	return nil
}

// Record stores value for id on behalf of step. Single and optional items
// accept one value per build; multi items append.
func (s *Store) Record(step string, id item.ID, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("%w: step %q recorded unknown item %s", ErrUndeclared, step, id)
	}
	if sl.overridden[step] {
		return nil
	}
	if _, ok := sl.producers[step]; !ok {
		return fmt.Errorf("%w: step %q does not produce %s", ErrUndeclared, step, id)
	}
	if sl.finished[step] {
		return fmt.Errorf("%w: step %q recorded %s", ErrProducerFinished, step, id)
	}
	if err := s.checkType(id, value); err != nil {
		return fmt.Errorf("step %q: %w", step, err)
	}
	if !id.IsMulti() && (len(sl.entries) > 0 || len(sl.seeded) > 0) {
		return fmt.Errorf("%w: %s was already recorded by %q", ErrDoubleWrite, id, sl.owner())
	}
	sl.entries = append(sl.entries, entry{step: step, value: value})
	return nil
}

// ProducerDone marks step as terminal for every item it produces. Values
// recorded by a step that did not succeed are dropped.
func (s *Store) ProducerDone(step string, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sl := range s.byStep[step] {
		if sl.finished[step] {
			continue
		}
		sl.finished[step] = true
		sl.remaining--
		if !succeeded {
			sl.failed[step] = true
			kept := sl.entries[:0]
			for _, e := range sl.entries {
				if e.step != step {
					kept = append(kept, e)
				}
			}
			sl.entries = kept
		}
	}
}

// Read returns the values recorded for id. Multi items are ordered by
// producer, then by record order. An item that was not produced reads as an
// empty slice.
func (s *Store) Read(id item.ID) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndeclared, id)
	}
	if sl.remaining > 0 {
		return nil, fmt.Errorf("%w: %s has %d unfinished producer(s)", ErrReadBeforeProduced, id, sl.remaining)
	}
	return sl.values(), nil
}

// Status reports the production state of id. Unknown items are NotProduced.
func (s *Store) Status(id item.ID) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[id]
	if !ok {
		return NotProduced
	}
	if sl.remaining > 0 {
		return Pending
	}
	if len(sl.seeded) == 0 && len(sl.entries) == 0 {
		return NotProduced
	}
	return Produced
}

// Snapshot copies the current values of the given items. Items that are
// still pending or unknown are left out.
func (s *Store) Snapshot(ids ...item.ID) map[item.ID][]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[item.ID][]any, len(ids))
	for _, id := range ids {
		sl, ok := s.slots[id]
		if !ok || sl.remaining > 0 {
			continue
		}
		out[id] = sl.values()
	}
	return out
}

func (s *Store) checkType(id item.ID, value any) error {
	if s.registry == nil || s.registry.Accepts(id, value) {
		return nil
	}
	t, _ := s.registry.Type(id)
	return fmt.Errorf("%w: %s holds %s, got %T", ErrTypeMismatch, id, t.GoType, value)
}

func (sl *slot) owner() string {
	if len(sl.entries) > 0 {
		return sl.entries[0].step
	}
	return "initial"
}

// values must be called with the store lock held.
func (sl *slot) values() []any {
	out := make([]any, 0, len(sl.seeded)+len(sl.entries))
	out = append(out, sl.seeded...)
	if len(sl.entries) == 0 {
		return out
	}
	// Group by producer position.
	buckets := make([][]any, len(sl.producers))
	for _, e := range sl.entries {
		pos := sl.producers[e.step]
		buckets[pos] = append(buckets[pos], e.value)
	}
	for _, b := range buckets {
		out = append(out, b...)
	}
	return out
}
