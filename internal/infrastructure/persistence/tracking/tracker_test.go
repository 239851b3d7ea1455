package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
)

type note struct {
	entity.Base
	Text string
}

func TestTracker_Modified(t *testing.T) {
	tr := New[*note]()
	a := &note{Base: entity.Base{ID: 1}, Text: "a"}
	b := &note{Base: entity.Base{ID: 2}, Text: "b"}
	tr.Track(a, b)

	assert.Empty(t, tr.Modified())

	a.Text = "changed"
	assert.Equal(t, []*note{a}, tr.Modified())

	orig, ok := tr.Original(a)
	require.True(t, ok)
	assert.Equal(t, "a", orig.Text)

	tr.Track(a)
	orig, _ = tr.Original(a)
	assert.Equal(t, "a", orig.Text, "re-tracking keeps the first snapshot")
}

func TestTracker_RemoveWinsOverModify(t *testing.T) {
	tr := New[*note]()
	a := &note{Base: entity.Base{ID: 1}, Text: "a"}
	tr.Track(a)
	a.Text = "x"
	tr.Remove(a, a)

	c := tr.Changes()
	assert.Empty(t, c.Modified)
	assert.Equal(t, []*note{a}, c.Removed)
	assert.Equal(t, 1, c.Len())
}

func TestTracker_RemoveStagedAddition(t *testing.T) {
	tr := New[*note]()
	n := &note{Text: "new"}
	tr.Stage(n)
	tr.Remove(n)

	assert.Zero(t, tr.Changes().Len())
}

func TestTracker_AcceptAll(t *testing.T) {
	tr := New[*note]()
	kept := &note{Base: entity.Base{ID: 1}, Text: "a"}
	gone := &note{Base: entity.Base{ID: 2}, Text: "b"}
	added := &note{Text: "c"}
	tr.Track(kept, gone)
	tr.Stage(added)
	tr.Remove(gone)
	kept.Text = "a2"

	tr.AcceptAll()

	assert.Zero(t, tr.Changes().Len())
	_, ok := tr.Original(gone)
	assert.False(t, ok)

	added.Text = "c2"
	assert.Equal(t, []*note{added}, tr.Modified(), "added entities are tracked after commit")
}

func TestTracker_IgnoresAbsent(t *testing.T) {
	tr := New[*note]()
	var missing *note
	tr.Track(missing)
	tr.Stage(missing)
	tr.Remove(missing)
	assert.Zero(t, tr.Changes().Len())
}

func TestTracker_CheckIdentity(t *testing.T) {
	tr := New[*note]()
	a := &note{Base: entity.Base{ID: 1}, Text: "a"}
	b := &note{Base: entity.Base{ID: 2}, Text: "b"}
	tr.Track(a, b)
	require.NoError(t, tr.CheckIdentity())

	a.Text = "edited"
	require.NoError(t, tr.CheckIdentity())

	a.ID = 2
	err := tr.CheckIdentity()
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "note id changed from 1 to 2")

	a.ID = 1
	tr.Remove(b)
	b.ID = 9
	assert.Error(t, tr.CheckIdentity(), "removed rows are deleted by id too")
}
