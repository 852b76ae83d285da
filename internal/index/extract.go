package index

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/auditvault/auditvault/pkg/model"
)

// ExtractFields pulls the indexed fields out of one audit line. The line must
// be a JSON object carrying non-empty user_id and action values; anything
// else reports false and is simply not indexed. Identifier values may be
// strings or numbers. The timestamp may be Unix seconds or an RFC 3339
// string; when absent or unparseable HasTimestamp is false.
func ExtractFields(line string) (model.LogFields, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return model.LogFields{}, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return model.LogFields{}, false
	}

	f := model.LogFields{
		UserID:   scalar(obj[model.FieldUserID]),
		Action:   scalar(obj[model.FieldAction]),
		EntityID: scalar(obj[model.FieldEntityID]),
	}
	if f.UserID == "" || f.Action == "" {
		return model.LogFields{}, false
	}
	f.Timestamp, f.HasTimestamp = parseTimestamp(obj[model.FieldTimestamp])
	return f, true
}

func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func parseTimestamp(v any) (model.Timestamp, bool) {
	switch v := v.(type) {
	case json.Number:
		return fromNumber(v.String())
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return model.FromTime(t), true
		}
		return fromNumber(v)
	}
	return 0, false
}

func fromNumber(s string) (model.Timestamp, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return model.Timestamp(n), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return model.Timestamp(int64(f)), true
}
