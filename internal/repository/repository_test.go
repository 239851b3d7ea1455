package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/infrastructure/persistence/memory"
	"repokit/internal/query"
	"repokit/internal/repository"
	"repokit/internal/specification"
)

type record struct {
	entity.Base
	Name  string
	Score int
}

var (
	recordName  = specification.NewField("name", func(r *record) string { return r.Name })
	recordScore = specification.NewField("score", func(r *record) int { return r.Score })
	recordByID  = query.By("id", func(r *record) int64 { return r.ID })
)

// fixedClock returns start and advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func newRepo(t *testing.T, names ...string) (*repository.Repository[*record], *memory.Store[*record]) {
	t.Helper()
	store := memory.NewStore[*record]()
	repo := repository.New[*record](store, repository.WithClock(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)))
	for _, n := range names {
		_, err := repo.Add(context.Background(), &record{Name: n})
		require.NoError(t, err)
	}
	return repo, store
}

func ids(rows []*record) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, "a", "b", "a")
	isA := recordName.Eq("a")

	rows, err := repo.GetSlice(ctx, isA, query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(rows))

	rows, err = repo.GetSlice(ctx, isA, query.Options[*record]{Sort: []query.SortKey[*record]{recordByID}, Direction: query.Descending})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids(rows))

	n, err := repo.Count(ctx, isA, query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPagination_TenElements(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, "0", "1", "2", "3", "4", "5", "6", "7", "8", "9")

	rows, err := repo.GetSlice(ctx, specification.True[*record](), query.Options[*record]{
		Sort: []query.SortKey[*record]{recordByID}, Skip: 2, Take: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, ids(rows))
}

func TestAdd_ReturnsIDAndStampsCreation(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)

	id, err := repo.Add(ctx, &record{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.False(t, got.CreatedWhen.IsZero())
	assert.Equal(t, got.CreatedWhen, got.UpdatedWhen)

	_, err = repo.Add(ctx, nil)
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestAddRange(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)

	err := repo.AddRange(ctx, []*record{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	err = repo.AddRange(ctx, []*record{{Name: "c"}, nil})
	assert.True(t, apperrors.IsInvalidArgument(err))
	assert.Equal(t, 2, store.Len())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a", "b", "b")

	err := repo.Delete(ctx, recordName.Eq("zzz"))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "record")
	assert.Contains(t, err.Error(), "name = zzz")

	err = repo.Delete(ctx, recordName.Eq("b"))
	assert.True(t, apperrors.IsInvalidArgument(err), "ambiguous delete is rejected")
	assert.Equal(t, 3, store.Len())

	require.NoError(t, repo.Delete(ctx, recordName.Eq("a")))
	ok, err := repo.Any(ctx, recordName.Eq("a"), query.Options[*record]{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRange(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a", "b", "b")

	require.NoError(t, repo.DeleteRange(ctx, recordName.Eq("b")))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, repo.DeleteRange(ctx, recordName.Eq("nothing")), "no match is not an error")
}

func TestUpdate_StampsUpdatedWhen(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a")
	before, _ := store.Get(1)

	err := repo.Update(ctx, recordName.Eq("a"), func(r *record) { r.Score = 7 }, query.Options[*record]{})
	require.NoError(t, err)

	after, _ := store.Get(1)
	assert.Equal(t, 7, after.Score)
	assert.True(t, after.UpdatedWhen.After(before.UpdatedWhen))
	assert.False(t, after.UpdatedWhen.Before(after.CreatedWhen))
	assert.Equal(t, before.Version+1, after.Version)

	err = repo.Update(ctx, recordName.Eq("zzz"), func(r *record) {}, query.Options[*record]{})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdate_StrictlyIncreasesWithStoppedClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore[*record]()
	repo := repository.New[*record](store, repository.WithClock(func() time.Time { return frozen }))

	_, err := repo.Add(ctx, &record{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, recordName.Eq("a"), func(r *record) { r.Score++ }, query.Options[*record]{}))

	got, _ := store.Get(1)
	assert.True(t, got.UpdatedWhen.After(got.CreatedWhen))
}

func TestUpdate_UnchangedEntityIsNotStamped(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a")
	before, _ := store.Get(1)

	require.NoError(t, repo.Update(ctx, recordName.Eq("a"), func(r *record) {}, query.Options[*record]{}))

	after, _ := store.Get(1)
	assert.Equal(t, before.UpdatedWhen, after.UpdatedWhen)
	assert.Equal(t, before.Version, after.Version)
}

func TestUpdateRange(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a", "b", "a")

	err := repo.UpdateRange(ctx, recordName.Eq("a"), func(rows []*record) {
		for _, r := range rows {
			r.Score = 100
		}
	}, query.Options[*record]{})
	require.NoError(t, err)

	for _, r := range store.All() {
		if r.Name == "a" {
			assert.Equal(t, 100, r.Score)
		} else {
			assert.Zero(t, r.Score)
		}
	}
}

func TestUpdate_RejectsIDChange(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a", "b")

	err := repo.Update(ctx, recordName.Eq("a"), func(r *record) { r.ID = 2 }, query.Options[*record]{})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArgument(err))

	first, _ := store.Get(1)
	assert.Equal(t, "a", first.Name)
	assert.Equal(t, uint32(1), first.Version)
	second, _ := store.Get(2)
	assert.Equal(t, "b", second.Name)
	assert.Equal(t, uint32(1), second.Version)
}

func TestUpdateRange_RejectsIDChange(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t, "a", "b", "c")

	err := repo.UpdateRange(ctx, recordName.In("a", "b"), func(rows []*record) {
		for _, r := range rows {
			r.Score = 5
		}
		rows[0].ID = 3
	}, query.Options[*record]{})
	assert.True(t, apperrors.IsInvalidArgument(err))

	for _, r := range store.All() {
		assert.Zero(t, r.Score, "row %d", r.ID)
		assert.Equal(t, uint32(1), r.Version)
	}
	third, _ := store.Get(3)
	assert.Equal(t, "c", third.Name)
}

func TestFirstOrDefault(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, "a", "b")

	got, err := repo.FirstOrDefault(ctx, specification.True[*record](), query.Options[*record]{Sort: []query.SortKey[*record]{recordByID}, Direction: query.Descending})
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	none, err := repo.FirstOrDefault(ctx, recordName.Eq("zzz"), query.Options[*record]{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestProjectionVariants(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t, "b", "a", "b", "c")
	name := func(r *record) string { return r.Name }
	all := specification.True[*record]()

	names, err := repository.GetProjected(ctx, repo, all, name, query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "b", "c"}, names)

	first, ok, err := repository.FirstProjected(ctx, repo, recordName.Eq("c"), func(r *record) int64 { return r.ID }, query.Options[*record]{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), first)

	distinct, err := repository.GetDistinctItems(ctx, repo, all, name, query.Options[*record]{Direction: query.Descending})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, distinct)

	n, err := repository.CountDistinct(ctx, repo, all, name, query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	grouped, err := repository.GetDistinctGroupedItems(ctx, repo, all, name, func(k string) string { return k }, recordByID, query.Options[*record]{Direction: query.Descending})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, grouped)

	optimized, err := repository.GetDistinctGroupedItemsOptimized(ctx, repo, all, name, func(k string) string { return k }, nil, query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, optimized)

	dupes, err := repository.GetGroupedItems(ctx, repo, all, name,
		func(groups []query.Group[string, *record]) []query.Group[string, *record] {
			var out []query.Group[string, *record]
			for _, g := range groups {
				if len(g.Items) > 1 {
					out = append(out, g)
				}
			}
			return out
		},
		func(g query.Group[string, *record]) string { return g.Key },
		nil, query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, dupes)
}

func TestAny_IndependentOfIncludes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore[*record](memory.WithRelation[*record]("Extra", func(context.Context, []*record) error { return nil }))
	repo := repository.New[*record](store)

	ok, err := repo.Any(ctx, specification.True[*record](), query.Options[*record]{Include: []string{"Extra"}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Add(ctx, &record{Name: "a"})
	require.NoError(t, err)

	for _, include := range [][]string{nil, {"Extra"}} {
		ok, err := repo.Any(ctx, specification.True[*record](), query.Options[*record]{Include: include})
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestCancelledContext(t *testing.T) {
	repo, store := newRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Add(ctx, &record{Name: "a"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCancelled(err))
	assert.Zero(t, store.Len())

	_, err = repo.GetSlice(ctx, specification.True[*record](), query.Options[*record]{})
	assert.ErrorIs(t, err, context.Canceled)
}

// mockSession records calls so save ordering can be asserted.
type mockSession struct {
	mock.Mock
}

func (m *mockSession) Find(ctx context.Context, plan query.Plan[*record]) ([]*record, error) {
	args := m.Called(ctx, plan)
	rows, _ := args.Get(0).([]*record)
	return rows, args.Error(1)
}

func (m *mockSession) Count(ctx context.Context, plan query.Plan[*record]) (int, error) {
	args := m.Called(ctx, plan)
	return args.Int(0), args.Error(1)
}

func (m *mockSession) Exists(ctx context.Context, plan query.Plan[*record]) (bool, error) {
	args := m.Called(ctx, plan)
	return args.Bool(0), args.Error(1)
}

func (m *mockSession) Add(entities ...*record)    { m.Called(entities) }
func (m *mockSession) Remove(entities ...*record) { m.Called(entities) }

func (m *mockSession) Modified() []*record {
	args := m.Called()
	rows, _ := args.Get(0).([]*record)
	return rows
}

func (m *mockSession) SaveChanges(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func openerFor(s repository.Session[*record]) repository.Opener[*record] {
	return repository.OpenerFunc[*record](func(context.Context) (repository.Session[*record], error) { return s, nil })
}

func TestSave_StampsModifiedBeforeCommit(t *testing.T) {
	// Arrange
	ctx := context.Background()
	now := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	loaded := &record{Base: entity.Base{ID: 1, CreatedWhen: now.Add(-time.Hour), UpdatedWhen: now.Add(-time.Hour)}, Name: "a"}
	session := new(mockSession)
	session.On("Find", mock.Anything, mock.MatchedBy(func(p query.Plan[*record]) bool { return p.Hints.Track && p.Take == 1 })).
		Return([]*record{loaded}, nil)
	session.On("Modified").Return([]*record{loaded})
	session.On("SaveChanges", mock.Anything).Run(func(mock.Arguments) {
		assert.Equal(t, now, loaded.UpdatedWhen, "stamp must precede commit")
	}).Return(1, nil)
	repo := repository.New[*record](openerFor(session), repository.WithClock(func() time.Time { return now }))

	// Act
	err := repo.Update(ctx, recordName.Eq("a"), func(r *record) { r.Name = "b" }, query.Options[*record]{})

	// Assert
	require.NoError(t, err)
	session.AssertExpectations(t)
}

func TestSave_PersistenceErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("unique constraint violated")
	session := new(mockSession)
	session.On("Add", mock.Anything).Return()
	session.On("Modified").Return([]*record(nil))
	session.On("SaveChanges", mock.Anything).Return(0, dbErr)
	repo := repository.New[*record](openerFor(session))

	_, err := repo.Add(ctx, &record{Name: "a"})
	assert.Same(t, dbErr, err)
}

func TestDecorate_AppliesInOrder(t *testing.T) {
	var order []string
	wrap := func(name string) repository.Decorator[*record] {
		return func(s repository.Session[*record]) repository.Session[*record] {
			order = append(order, name)
			return s
		}
	}
	opener := repository.Decorate[*record](memory.NewStore[*record](), wrap("inner"), nil, wrap("outer"))

	_, err := opener.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestConcurrentCallersShareRepository(t *testing.T) {
	ctx := context.Background()
	repo, store := newRepo(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Add(ctx, &record{Name: "x", Score: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
	n, err := repo.Count(ctx, recordScore.Eq(1), query.Options[*record]{})
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
