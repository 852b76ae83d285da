package index_test

import (
	"fmt"

	"github.com/auditvault/auditvault/internal/index"
)

func ExampleIndex_Search() {
	idx := index.New()
	idx.Add("alice", "login", "doc-1", 1704067200)
	idx.Add("alice", "update", "doc-1", 1704153600)
	idx.Add("bob", "login", "doc-2", 1704153600)

	fmt.Println(idx.Search(index.Query{User: "alice"}))
	fmt.Println(idx.Search(index.Query{User: "alice", Action: "login"}))
	// A supplied key with no postings empties the result.
	fmt.Println(idx.Search(index.Query{User: "alice", Entity: "doc-9"}))
	// Output:
	// [1704153600 1704067200]
	// [1704067200]
	// []
}
