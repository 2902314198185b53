package bridge

import "time"

// Reserved session-context keys.
const (
	HistoryKey     = "conversationHistory"
	LastUpdatedKey = "lastUpdated"
)

// MaxHistory is the number of conversation turns kept at rest. Older entries
// drop FIFO.
const MaxHistory = 50

// HistoryEntry is one turn in a session's conversation history.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// GetString safely extracts a string value from a map.
func GetString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// GetMap safely extracts a nested map from a map.
func GetMap(m map[string]any, k string) (map[string]any, bool) {
	if v, ok := m[k]; ok {
		if mm, ok2 := v.(map[string]any); ok2 {
			return mm, true
		}
	}
	return nil, false
}

// GetSlice safely extracts a list value from a map.
func GetSlice(m map[string]any, k string) ([]any, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.([]any); ok2 {
			return s, true
		}
	}
	return nil, false
}

// History decodes the conversationHistory list from a session context.
// Entries that do not look like {role, content, ts} maps are skipped.
func History(ctx map[string]any) []HistoryEntry {
	raw, ok := GetSlice(ctx, HistoryKey)
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := HistoryEntry{}
		e.Role, _ = GetString(m, "role")
		e.Content, _ = GetString(m, "content")
		switch ts := m["ts"].(type) {
		case float64:
			e.TS = int64(ts)
		case int64:
			e.TS = ts
		}
		out = append(out, e)
	}
	return out
}

// AppendHistory appends one turn to the conversationHistory list, truncates
// to the most recent MaxHistory entries, and stamps lastUpdated. The map is
// mutated in place; the caller holds whatever lock serializes the session row.
func AppendHistory(ctx map[string]any, role, content string, now time.Time) {
	raw, _ := GetSlice(ctx, HistoryKey)
	raw = append(raw, map[string]any{
		"role":    role,
		"content": content,
		"ts":      now.UTC().UnixMilli(),
	})
	if len(raw) > MaxHistory {
		raw = raw[len(raw)-MaxHistory:]
	}
	ctx[HistoryKey] = raw
	ctx[LastUpdatedKey] = now.UTC().UnixMilli()
}

// MergeScalars merges arbitrary keys into the root of a session context and
// stamps lastUpdated. The reserved history key is never overwritten here.
func MergeScalars(ctx map[string]any, vars map[string]any, now time.Time) {
	for k, v := range vars {
		if k == HistoryKey {
			continue
		}
		ctx[k] = v
	}
	ctx[LastUpdatedKey] = now.UTC().UnixMilli()
}

// Variables returns the session context without its reserved keys, the shape
// handed to the AI runtime as state variables.
func Variables(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if k == HistoryKey || k == LastUpdatedKey {
			continue
		}
		out[k] = v
	}
	return out
}
