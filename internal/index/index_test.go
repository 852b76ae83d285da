package index_test

import (
	"sync"
	"testing"

	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01T00:00:00Z and neighbours.
const (
	day1     model.Timestamp = 1704067200
	day1Late model.Timestamp = day1 + 3600
	day2     model.Timestamp = day1 + model.SecondsPerDay
)

func seeded() *index.Index {
	idx := index.New()
	idx.Add("alice", "login", "dev-1", day1)
	idx.Add("bob", "login", "dev-2", day1Late)
	idx.Add("alice", "update", "dev-1", day2)
	idx.Add("alice", "login", "", day2+10)
	return idx
}

func TestSearchByDimension(t *testing.T) {
	idx := seeded()

	got, ok := idx.SearchByUser("alice")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{day2 + 10, day2, day1}, got)

	got, ok = idx.SearchByAction("login")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{day2 + 10, day1Late, day1}, got)

	got, ok = idx.SearchByEntity("dev-1")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{day2, day1}, got)

	got, ok = idx.SearchByDate("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{day1Late, day1}, got)

	_, ok = idx.SearchByUser("carol")
	assert.False(t, ok)
	_, ok = idx.SearchByEntity("")
	assert.False(t, ok, "empty entity is never indexed")
}

func TestSearchByDimension_ReturnsCopy(t *testing.T) {
	idx := seeded()
	got, _ := idx.SearchByUser("alice")
	got[0] = 0

	again, _ := idx.SearchByUser("alice")
	assert.Equal(t, day2+10, again[0])
}

func TestSearch_Intersection(t *testing.T) {
	idx := seeded()

	got := idx.Search(index.Query{User: "alice", Action: "login"})
	assert.Equal(t, []model.Timestamp{day2 + 10, day1}, got)

	got = idx.Search(index.Query{User: "alice", Action: "login", Date: "2024-01-01"})
	assert.Equal(t, []model.Timestamp{day1}, got)

	got = idx.Search(index.Query{Action: "login", Entity: "dev-2"})
	assert.Equal(t, []model.Timestamp{day1Late}, got)
}

func TestSearch_EmptyResults(t *testing.T) {
	idx := seeded()

	assert.Empty(t, idx.Search(index.Query{}))
	assert.NotNil(t, idx.Search(index.Query{}))
	assert.Empty(t, idx.Search(index.Query{User: "carol"}))
	assert.Empty(t, idx.Search(index.Query{User: "alice", Action: "missing"}))
	assert.Empty(t, idx.Search(index.Query{User: "bob", Action: "update"}))
}

func TestSearch_SingleDimensionMatchesLookup(t *testing.T) {
	idx := seeded()
	byUser, _ := idx.SearchByUser("alice")
	assert.Equal(t, byUser, idx.Search(index.Query{User: "alice"}))
}

func TestAdd_KeepsDuplicates(t *testing.T) {
	idx := index.New()
	idx.Add("alice", "login", "", day1)
	idx.Add("alice", "login", "", day1)

	got, _ := idx.SearchByUser("alice")
	assert.Len(t, got, 2)
	assert.Equal(t, 2, idx.Len())
}

func TestAdd_NormalizesKeys(t *testing.T) {
	idx := index.New()
	idx.Add(" josé ", "login", "", day1)

	got, ok := idx.SearchByUser("josé")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{day1}, got)
}

func TestVersionChangesOnMutation(t *testing.T) {
	idx := index.New()
	v := idx.Version()
	idx.Add("a", "b", "", day1)
	assert.NotEqual(t, v, idx.Version())

	v = idx.Version()
	idx.Search(index.Query{User: "a"})
	assert.Equal(t, v, idx.Version(), "reads do not bump the version")
}

func TestKeys(t *testing.T) {
	idx := seeded()
	assert.Equal(t, []string{"alice", "bob"}, idx.Keys(index.ByUser))
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, idx.Keys(index.ByDate))
}

func TestConcurrentAddAndSearch(t *testing.T) {
	idx := index.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			idx.Add("u", "a", "", day1+model.Timestamp(i))
		}(i)
		go func() {
			defer wg.Done()
			idx.Search(index.Query{User: "u", Action: "a"})
		}()
	}
	wg.Wait()

	got, _ := idx.SearchByUser("u")
	assert.Len(t, got, 50)
}
