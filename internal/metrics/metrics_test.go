package metrics

import "testing"

func TestRegistryRecordsPerFunctionCounters(t *testing.T) {
	r := NewRegistry()
	r.RecordColdStart("fn-1")
	r.RecordColdStart("fn-1")
	r.RecordWarmStart("fn-1")
	r.RecordRateLimitHit("fn-1")
	r.SetLanguage("fn-1", "javascript")

	cold, warm, rateLimit, lang := r.Snapshot("fn-1")
	if cold != 2 {
		t.Fatalf("got %d cold starts, want 2", cold)
	}
	if warm != 1 {
		t.Fatalf("got %d warm starts, want 1", warm)
	}
	if rateLimit != 1 {
		t.Fatalf("got %d rate limit hits, want 1", rateLimit)
	}
	if lang != "javascript" {
		t.Fatalf("got language %q, want javascript", lang)
	}
}

func TestRegistrySnapshotOfUnknownFunctionIsZero(t *testing.T) {
	r := NewRegistry()
	cold, warm, rateLimit, lang := r.Snapshot("never-seen")
	if cold != 0 || warm != 0 || rateLimit != 0 || lang != "" {
		t.Fatalf("expected zero values for an unrecorded function, got cold=%d warm=%d rateLimit=%d lang=%q", cold, warm, rateLimit, lang)
	}
}

func TestFunctionIDsTracksEveryRecordedFunction(t *testing.T) {
	r := NewRegistry()
	r.RecordColdStart("fn-a")
	r.RecordWarmStart("fn-b")

	ids := r.FunctionIDs()
	if len(ids) != 2 {
		t.Fatalf("got %d function ids, want 2", len(ids))
	}
}
