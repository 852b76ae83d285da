package index_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/auditvault/auditvault/internal/index"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name string
		line string
		want model.LogFields
		ok   bool
	}{
		{
			name: "full record",
			line: `{"user_id":"alice","action":"login","entity_id":"dev-1","timestamp":1704067200}`,
			want: model.LogFields{UserID: "alice", Action: "login", EntityID: "dev-1", Timestamp: day1, HasTimestamp: true},
			ok:   true,
		},
		{
			name: "numeric ids and rfc3339",
			line: `{"user_id":42,"action":"export","entity_id":7,"timestamp":"2024-01-01T01:00:00Z"}`,
			want: model.LogFields{UserID: "42", Action: "export", EntityID: "7", Timestamp: day1Late, HasTimestamp: true},
			ok:   true,
		},
		{
			name: "string seconds",
			line: `{"user_id":"a","action":"b","timestamp":"1704067200"}`,
			want: model.LogFields{UserID: "a", Action: "b", Timestamp: day1, HasTimestamp: true},
			ok:   true,
		},
		{
			name: "fractional seconds",
			line: `{"user_id":"a","action":"b","timestamp":1704067200.75}`,
			want: model.LogFields{UserID: "a", Action: "b", Timestamp: day1, HasTimestamp: true},
			ok:   true,
		},
		{
			name: "missing timestamp",
			line: `  {"user_id":"a","action":"b"}  `,
			want: model.LogFields{UserID: "a", Action: "b"},
			ok:   true,
		},
		{name: "missing user", line: `{"action":"b","timestamp":1}`},
		{name: "empty action", line: `{"user_id":"a","action":"","timestamp":1}`},
		{name: "object user", line: `{"user_id":{"x":1},"action":"b"}`},
		{name: "not json", line: `user_id=a action=b`},
		{name: "truncated", line: `{"user_id":"a","action":`},
		{name: "empty", line: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := index.ExtractFields(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractFields_FormatLineRoundTrip(t *testing.T) {
	line, err := model.AuditEvent{
		UserID:    "alice",
		Action:    "login",
		EntityID:  "dev-1",
		Timestamp: day1.Time(),
		Details:   map[string]any{"ip": "10.0.0.1"},
	}.FormatLine()
	require.NoError(t, err)

	got, ok := index.ExtractFields(line)
	require.True(t, ok)
	assert.Equal(t, model.LogFields{UserID: "alice", Action: "login", EntityID: "dev-1", Timestamp: day1, HasTimestamp: true}, got)
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "audit.log")
	daily := filepath.Join(dir, "2024-01-01.log")

	require.NoError(t, os.WriteFile(main, []byte(
		`{"user_id":"alice","action":"login","timestamp":1704153600}`+"\n"+
			`garbage`+"\n"+
			`{"user_id":"bob","action":"login"}`+"\n"), 0644))
	require.NoError(t, os.WriteFile(daily, []byte(
		`{"user_id":"alice","action":"update","entity_id":"r1","timestamp":1704067200}`+"\n"), 0644))

	idx := index.New()
	idx.Add("stale", "entry", "", day1)

	stats, err := idx.Rebuild([]string{main, daily, filepath.Join(dir, "missing.log")}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, index.RebuildStats{Files: 2, Lines: 4, Indexed: 2, Skipped: 2}, stats)
	assert.Equal(t, 2, idx.Len())

	_, ok := idx.SearchByUser("stale")
	assert.False(t, ok, "rebuild discards previous postings")

	got, ok := idx.SearchByUser("alice")
	require.True(t, ok)
	assert.Equal(t, []model.Timestamp{day2, day1}, got)

	_, ok = idx.SearchByUser("bob")
	assert.False(t, ok, "lines without timestamps are skipped on rebuild")
}

func TestRebuild_OversizedLineSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	huge := `{"user_id":"mallory","action":"upload","timestamp":1704067200,"blob":"` +
		strings.Repeat("x", index.MaxLineSize+1024) + `"}`
	content := `{"user_id":"alice","action":"login","timestamp":1704067200}` + "\n" +
		huge + "\n" +
		`{"user_id":"bob","action":"login","timestamp":1704153600}` + "\r\n" +
		`{"user_id":"carol","action":"login","timestamp":1704153600}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	idx := index.New()
	stats, err := idx.Rebuild([]string{path}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, index.RebuildStats{Files: 1, Lines: 4, Indexed: 3, Skipped: 1}, stats)

	for _, user := range []string{"alice", "bob", "carol"} {
		_, ok := idx.SearchByUser(user)
		assert.True(t, ok, user)
	}
	_, ok := idx.SearchByUser("mallory")
	assert.False(t, ok)
}

func TestRebuild_ReadError(t *testing.T) {
	idx := index.New()
	_, err := idx.Rebuild([]string{t.TempDir()}, nil)
	assert.Error(t, err, "a directory cannot be scanned as a log file")
	assert.Equal(t, 0, idx.Len())
}
