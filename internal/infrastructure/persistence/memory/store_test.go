package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/query"
	"repokit/internal/specification"
)

type task struct {
	entity.Base
	Title string
	Owner string
}

var taskTitle = specification.NewField("title", func(t *task) string { return t.Title })

func plan(t *testing.T, spec *specification.Specification[*task], opts query.Options[*task]) query.Plan[*task] {
	t.Helper()
	p, err := query.NewPlan("test", spec, opts)
	require.NoError(t, err)
	return p
}

func seed(t *testing.T, store *Store[*task], titles ...string) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx)
	require.NoError(t, err)
	for _, title := range titles {
		s.Add(&task{Title: title})
	}
	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	require.Equal(t, len(titles), n)
}

func TestStore_AddAssignsIDsInOrder(t *testing.T) {
	store := NewStore[*task]()
	seed(t, store, "a", "b", "c")

	all := store.All()
	require.Len(t, all, 3)
	for i, row := range all {
		assert.Equal(t, int64(i+1), row.ID)
		assert.Equal(t, uint32(1), row.Version)
	}
}

func TestSession_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	seed(t, store, "a")

	s, _ := store.Open(ctx)
	rows, err := s.Find(ctx, plan(t, specification.True[*task](), query.Options[*task]{}))
	require.NoError(t, err)
	rows[0].Title = "mutated"

	got, _ := store.Get(1)
	assert.Equal(t, "a", got.Title)
	assert.Empty(t, s.Modified(), "untracked reads are not change-tracked")
}

func TestSession_TrackedUpdateIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	seed(t, store, "a", "b")

	s, _ := store.Open(ctx)
	rows, err := s.Find(ctx, plan(t, taskTitle.Eq("b"), query.Options[*task]{Track: true}))
	require.NoError(t, err)
	rows[0].Title = "b2"

	assert.Len(t, s.Modified(), 1)
	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := store.Get(2)
	assert.Equal(t, "b2", got.Title)
	assert.Equal(t, uint32(2), got.Version)
	assert.Empty(t, s.Modified())
}

func TestSession_ConcurrentUpdateConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	seed(t, store, "a")
	tracked := query.Options[*task]{Track: true}

	first, _ := store.Open(ctx)
	second, _ := store.Open(ctx)
	r1, _ := first.Find(ctx, plan(t, specification.True[*task](), tracked))
	r2, _ := second.Find(ctx, plan(t, specification.True[*task](), tracked))

	r1[0].Title = "first"
	_, err := first.SaveChanges(ctx)
	require.NoError(t, err)

	r2[0].Title = "second"
	_, err = second.SaveChanges(ctx)
	assert.True(t, apperrors.IsConflict(err))

	got, _ := store.Get(1)
	assert.Equal(t, "first", got.Title)
}

func TestSession_ChangedIDIsRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	seed(t, store, "a", "b")

	s, _ := store.Open(ctx)
	rows, err := s.Find(ctx, plan(t, taskTitle.Eq("a"), query.Options[*task]{Track: true}))
	require.NoError(t, err)
	rows[0].ID = 2

	_, err = s.SaveChanges(ctx)
	assert.True(t, apperrors.IsInvalidArgument(err))

	got, _ := store.Get(2)
	assert.Equal(t, "b", got.Title)
	assert.Equal(t, uint32(1), got.Version)
}

func TestSession_SaveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	seed(t, store, "a", "b")
	tracked := query.Options[*task]{Track: true}

	stale, _ := store.Open(ctx)
	rows, _ := stale.Find(ctx, plan(t, taskTitle.Eq("a"), tracked))

	other, _ := store.Open(ctx)
	gone, _ := other.Find(ctx, plan(t, taskTitle.Eq("a"), tracked))
	other.Remove(gone...)
	_, err := other.SaveChanges(ctx)
	require.NoError(t, err)

	rows[0].Title = "a2"
	stale.Add(&task{Title: "new"})
	_, err = stale.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	assert.Equal(t, 1, store.Len(), "the staged insert must not be applied")
}

func TestSession_CancelledSaveCommitsNothing(t *testing.T) {
	store := NewStore[*task]()
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := store.Open(ctx)
	s.Add(&task{Title: "a"})
	cancel()

	_, err := s.SaveChanges(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.Len())
}

func TestSession_CountAndExistsIgnorePaging(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	seed(t, store, "a", "b", "c")
	s, _ := store.Open(ctx)

	n, err := s.Count(ctx, plan(t, specification.True[*task](), query.Options[*task]{Skip: 5}))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := s.Exists(ctx, plan(t, taskTitle.Eq("c"), query.Options[*task]{Skip: 5}))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSession_Relations(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task](WithRelation[*task]("Owner", func(ctx context.Context, rows []*task) error {
		for _, r := range rows {
			r.Owner = "owner-of-" + r.Title
		}
		return nil
	}))
	seed(t, store, "a")
	s, _ := store.Open(ctx)

	rows, err := s.Find(ctx, plan(t, specification.True[*task](), query.Options[*task]{Include: []string{"Owner"}}))
	require.NoError(t, err)
	assert.Equal(t, "owner-of-a", rows[0].Owner)

	_, err = s.Find(ctx, plan(t, specification.True[*task](), query.Options[*task]{Include: []string{"Missing"}}))
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestSession_AddRejectsPersistedEntity(t *testing.T) {
	ctx := context.Background()
	store := NewStore[*task]()
	s, _ := store.Open(ctx)
	s.Add(&task{Base: entity.Base{ID: 9}})

	_, err := s.SaveChanges(ctx)
	assert.True(t, apperrors.IsInvalidArgument(err))
}
