package bridge

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendHistoryCap(t *testing.T) {
	ctx := map[string]any{}
	now := time.UnixMilli(1700000000000).UTC()

	for i := 0; i < 51; i++ {
		AppendHistory(ctx, "user", fmt.Sprintf("msg-%d", i), now.Add(time.Duration(i)*time.Second))
	}

	hist := History(ctx)
	if len(hist) != MaxHistory {
		t.Fatalf("history length = %d, want %d", len(hist), MaxHistory)
	}
	// Oldest entry dropped FIFO: msg-0 gone, msg-1 first, msg-50 last.
	if hist[0].Content != "msg-1" {
		t.Errorf("first entry = %q, want msg-1", hist[0].Content)
	}
	if hist[len(hist)-1].Content != "msg-50" {
		t.Errorf("last entry = %q, want msg-50", hist[len(hist)-1].Content)
	}
}

func TestAppendHistoryStampsLastUpdated(t *testing.T) {
	ctx := map[string]any{}
	now := time.UnixMilli(1700000000000).UTC()
	AppendHistory(ctx, "assistant", "hi", now)

	ts, ok := ctx[LastUpdatedKey].(int64)
	if !ok || ts != 1700000000000 {
		t.Fatalf("lastUpdated = %v, want 1700000000000", ctx[LastUpdatedKey])
	}
	hist := History(ctx)
	if len(hist) != 1 || hist[0].Role != "assistant" || hist[0].TS != 1700000000000 {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestMergeScalars(t *testing.T) {
	now := time.UnixMilli(1700000000000).UTC()
	ctx := map[string]any{}
	AppendHistory(ctx, "user", "hello", now)

	MergeScalars(ctx, map[string]any{
		"name":     "sam",
		"plan":     "pro",
		HistoryKey: "should not clobber",
	}, now.Add(time.Second))

	if got, _ := GetString(ctx, "name"); got != "sam" {
		t.Errorf("name = %q, want sam", got)
	}
	if len(History(ctx)) != 1 {
		t.Errorf("history clobbered by merge: %v", ctx[HistoryKey])
	}
	if ts, _ := ctx[LastUpdatedKey].(int64); ts != 1700000001000 {
		t.Errorf("lastUpdated = %v, want 1700000001000", ctx[LastUpdatedKey])
	}
}

func TestVariablesStripsReservedKeys(t *testing.T) {
	now := time.Now()
	ctx := map[string]any{"color": "blue"}
	AppendHistory(ctx, "user", "hello", now)

	vars := Variables(ctx)
	if _, ok := vars[HistoryKey]; ok {
		t.Error("conversationHistory leaked into variables")
	}
	if _, ok := vars[LastUpdatedKey]; ok {
		t.Error("lastUpdated leaked into variables")
	}
	if vars["color"] != "blue" {
		t.Errorf("color = %v, want blue", vars["color"])
	}
}

func TestHistoryDecodeTolerant(t *testing.T) {
	// Shape after a JSONB round trip: []any of map[string]any with float64 ts.
	ctx := map[string]any{
		HistoryKey: []any{
			map[string]any{"role": "user", "content": "a", "ts": float64(1)},
			"garbage entry",
			map[string]any{"role": "assistant", "content": "b", "ts": float64(2)},
		},
	}
	hist := History(ctx)
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Content != "a" || hist[1].Content != "b" {
		t.Errorf("unexpected entries: %+v", hist)
	}
}
