// Package tracking implements the snapshot change tracker shared by the session
// implementations of every backend.
package tracking

import (
	"fmt"
	"reflect"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
)

type entry[E entity.Entity] struct {
	current  E
	snapshot E
}

// Changes is the set of pending writes of a session.
type Changes[E entity.Entity] struct {
	Added    []E
	Modified []E
	Removed  []E
}

// Len is the number of entities the changes touch.
func (c Changes[E]) Len() int {
	return len(c.Added) + len(c.Modified) + len(c.Removed)
}

// Tracker records loaded entities and staged changes. Entities are identified by
// pointer, so the caller must keep mutating the instances it was given.
type Tracker[E entity.Entity] struct {
	tracked []entry[E]
	index   map[uintptr]int
	added   []E
	removed map[uintptr]E
	order   []uintptr
}

func New[E entity.Entity]() *Tracker[E] {
	return &Tracker[E]{
		index:   make(map[uintptr]int),
		removed: make(map[uintptr]E),
	}
}

func identity[E entity.Entity](e E) uintptr {
	return reflect.ValueOf(e).Pointer()
}

// Track remembers the current state of entities so later changes can be detected.
// Entities already tracked keep their original snapshot.
func (t *Tracker[E]) Track(entities ...E) {
	for _, e := range entities {
		if entity.IsAbsent(e) {
			continue
		}
		id := identity(e)
		if _, ok := t.index[id]; ok {
			continue
		}
		t.index[id] = len(t.tracked)
		t.tracked = append(t.tracked, entry[E]{current: e, snapshot: entity.Clone(e)})
	}
}

// Stage records entities to insert.
func (t *Tracker[E]) Stage(entities ...E) {
	for _, e := range entities {
		if !entity.IsAbsent(e) {
			t.added = append(t.added, e)
		}
	}
}

// Remove records entities to delete. Removing a staged addition just unstages it.
func (t *Tracker[E]) Remove(entities ...E) {
	for _, e := range entities {
		if entity.IsAbsent(e) {
			continue
		}
		id := identity(e)
		if t.unstage(id) {
			continue
		}
		if _, ok := t.removed[id]; ok {
			continue
		}
		t.removed[id] = e
		t.order = append(t.order, id)
	}
}

func (t *Tracker[E]) unstage(id uintptr) bool {
	for i, a := range t.added {
		if identity(a) == id {
			t.added = append(t.added[:i], t.added[i+1:]...)
			return true
		}
	}
	return false
}

// Modified lists tracked entities that differ from their snapshot and are not
// scheduled for removal.
func (t *Tracker[E]) Modified() []E {
	var out []E
	for _, en := range t.tracked {
		if _, gone := t.removed[identity(en.current)]; gone {
			continue
		}
		if !entity.Equal(en.current, en.snapshot) {
			out = append(out, en.current)
		}
	}
	return out
}

// Original returns the snapshot taken when e was first tracked.
func (t *Tracker[E]) Original(e E) (E, bool) {
	i, ok := t.index[identity(e)]
	if !ok {
		var zero E
		return zero, false
	}
	return t.tracked[i].snapshot, true
}

// CheckIdentity fails when a tracked entity's id no longer matches the id it was
// loaded with. Backends write modified rows by their current id, so a changed id
// would overwrite another row.
func (t *Tracker[E]) CheckIdentity() error {
	for _, en := range t.tracked {
		before, after := en.snapshot.Audit().ID, en.current.Audit().ID
		if before != after {
			return apperrors.Invalid("save", fmt.Sprintf("%s id changed from %d to %d", entity.TypeName[E](), before, after))
		}
	}
	return nil
}

// Changes collects everything SaveChanges has to write.
func (t *Tracker[E]) Changes() Changes[E] {
	c := Changes[E]{
		Added:    append([]E(nil), t.added...),
		Modified: t.Modified(),
	}
	for _, id := range t.order {
		c.Removed = append(c.Removed, t.removed[id])
	}
	return c
}

// AcceptAll is called after a successful commit: added entities become tracked,
// snapshots are refreshed and removed entities are forgotten.
func (t *Tracker[E]) AcceptAll() {
	added := t.added
	t.added = nil

	kept := t.tracked[:0]
	for _, en := range t.tracked {
		if _, gone := t.removed[identity(en.current)]; gone {
			continue
		}
		kept = append(kept, entry[E]{current: en.current, snapshot: entity.Clone(en.current)})
	}
	t.tracked = kept
	t.index = make(map[uintptr]int, len(kept))
	for i, en := range kept {
		t.index[identity(en.current)] = i
	}
	t.removed = make(map[uintptr]E)
	t.order = nil
	t.Track(added...)
}
