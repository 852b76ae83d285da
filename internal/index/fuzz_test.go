package index

import (
	"testing"

	"github.com/auditvault/auditvault/pkg/pathutil"
)

// FuzzExtractFields checks that arbitrary lines never panic and that
// accepted lines always carry the two required fields.
func FuzzExtractFields(f *testing.F) {
	f.Add(`{"user_id":"alice","action":"login","timestamp":1700000000}`)
	f.Add(`{"user_id":42,"action":"x","timestamp":"2024-06-01T12:00:00Z"}`)
	f.Add(`{"user_id":"","action":"login"}`)
	f.Add(`{"user_id":"a","action":"b","timestamp":1e300}`)
	f.Add(`not json`)
	f.Add(`{`)
	f.Add("")
	f.Fuzz(func(t *testing.T, line string) {
		fields, ok := ExtractFields(line)
		if !ok {
			return
		}
		if fields.UserID == "" || fields.Action == "" {
			t.Fatalf("accepted %q without user or action", line)
		}
		if pathutil.NormalizeKey(pathutil.NormalizeKey(fields.UserID)) != pathutil.NormalizeKey(fields.UserID) {
			t.Fatalf("key normalisation is not idempotent for %q", fields.UserID)
		}
	})
}
