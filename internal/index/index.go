// Package index maintains the in-memory search index over audit lines.
//
// The index maps user, action, entity and UTC date keys to the timestamps
// of the lines that carried them. It is derived state: the log files on
// disk are authoritative and Rebuild recreates the index from them.
package index

import (
	"sort"
	"sync"

	"github.com/auditvault/auditvault/pkg/model"
	"github.com/auditvault/auditvault/pkg/pathutil"
)

// Dimension names one of the four index maps.
type Dimension string

const (
	ByUser   Dimension = "user"
	ByAction Dimension = "action"
	ByEntity Dimension = "entity"
	ByDate   Dimension = "date"
)

// Query selects entries by any combination of dimensions. Empty fields are
// not part of the query.
type Query struct {
	User   string `json:"user,omitempty"`
	Action string `json:"action,omitempty"`
	Entity string `json:"entity,omitempty"`
	Date   string `json:"date,omitempty"`
}

// IsEmpty reports whether no dimension is supplied.
func (q Query) IsEmpty() bool {
	return q.User == "" && q.Action == "" && q.Entity == "" && q.Date == ""
}

func (q Query) normalized() Query {
	return Query{
		User:   pathutil.NormalizeKey(q.User),
		Action: pathutil.NormalizeKey(q.Action),
		Entity: pathutil.NormalizeKey(q.Entity),
		Date:   pathutil.NormalizeKey(q.Date),
	}
}

// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	maps    map[Dimension]map[string][]model.Timestamp
	entries int
	version uint64
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.maps = map[Dimension]map[string][]model.Timestamp{
		ByUser:   {},
		ByAction: {},
		ByEntity: {},
		ByDate:   {},
	}
	idx.entries = 0
	idx.version++
}

// Add records ts under each non-empty key and under the UTC date of ts.
// Postings are append-only; duplicates are kept.
func (idx *Index) Add(user, action, entity string, ts model.Timestamp) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(user, action, entity, ts)
}

// AddFields indexes extracted line fields.
func (idx *Index) AddFields(f model.LogFields) {
	idx.Add(f.UserID, f.Action, f.EntityID, f.Timestamp)
}

func (idx *Index) add(user, action, entity string, ts model.Timestamp) {
	put := func(dim Dimension, key string) {
		key = pathutil.NormalizeKey(key)
		if key == "" {
			return
		}
		idx.maps[dim][key] = append(idx.maps[dim][key], ts)
	}
	put(ByUser, user)
	put(ByAction, action)
	put(ByEntity, entity)
	put(ByDate, ts.DateKey())
	idx.entries++
	idx.version++
}

// SearchByUser returns the timestamps indexed under user, newest first.
// The boolean is false when the key is unknown.
func (idx *Index) SearchByUser(user string) ([]model.Timestamp, bool) {
	return idx.lookup(ByUser, user)
}

// SearchByAction returns the timestamps indexed under action, newest first.
func (idx *Index) SearchByAction(action string) ([]model.Timestamp, bool) {
	return idx.lookup(ByAction, action)
}

// SearchByEntity returns the timestamps indexed under entity, newest first.
func (idx *Index) SearchByEntity(entity string) ([]model.Timestamp, bool) {
	return idx.lookup(ByEntity, entity)
}

// SearchByDate returns the timestamps indexed under a YYYY-MM-DD date,
// newest first.
func (idx *Index) SearchByDate(date string) ([]model.Timestamp, bool) {
	return idx.lookup(ByDate, date)
}

func (idx *Index) lookup(dim Dimension, key string) ([]model.Timestamp, bool) {
	idx.mu.RLock()
	postings, ok := idx.maps[dim][pathutil.NormalizeKey(key)]
	idx.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := append([]model.Timestamp(nil), postings...)
	sortDesc(out)
	return out, true
}

// Search intersects the postings of every supplied dimension and returns
// the result newest first. A supplied dimension with no postings yields an
// empty result, as does an empty query. Duplicates within the first
// dimension's postings survive the intersection.
//
// Unknown keys are not skipped: with alice indexed and no entity "doc-9",
// Search(Query{User: "alice", Entity: "doc-9"}) is empty, not alice's list.
func (idx *Index) Search(q Query) []model.Timestamp {
	q = q.normalized()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result []model.Timestamp
	first := true
	for _, term := range []struct {
		dim Dimension
		key string
	}{
		{ByUser, q.User},
		{ByAction, q.Action},
		{ByEntity, q.Entity},
		{ByDate, q.Date},
	} {
		if term.key == "" {
			continue
		}
		postings := idx.maps[term.dim][term.key]
		if len(postings) == 0 {
			return []model.Timestamp{}
		}
		if first {
			result = append([]model.Timestamp(nil), postings...)
			first = false
			continue
		}
		set := make(map[model.Timestamp]struct{}, len(postings))
		for _, ts := range postings {
			set[ts] = struct{}{}
		}
		kept := result[:0]
		for _, ts := range result {
			if _, ok := set[ts]; ok {
				kept = append(kept, ts)
			}
		}
		result = kept
	}

	if result == nil {
		return []model.Timestamp{}
	}
	sortDesc(result)
	return result
}

// Keys returns the sorted keys of one dimension.
func (idx *Index) Keys(dim Dimension) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	keys := make([]string, 0, len(idx.maps[dim]))
	for k := range idx.maps[dim] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries added since the last reset.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries
}

// Version changes on every mutation. Caches keyed on it are stale once it
// moves.
func (idx *Index) Version() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.version
}

func sortDesc(ts []model.Timestamp) {
	sort.Slice(ts, func(i, j int) bool { return ts[i] > ts[j] })
}
