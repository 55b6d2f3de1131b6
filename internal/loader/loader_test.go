package loader

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/fncore/internal/circuitbreaker"
	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/modulecache"
	"github.com/oriys/fncore/internal/sandbox"
)

func newTestLoader() *Loader {
	return New(Config{
		DefaultTimeout: time.Second,
		Cache:          modulecache.Config{MaxCacheSize: 100},
		Breaker:        circuitbreaker.Config{FailureThreshold: 3, SuccessThreshold: 1, ResetTimeout: 50 * time.Millisecond},
	}, nil, sandbox.NewRunner(sandbox.Config{}))
}

const okHandler = `export default {fetch: function(req) { return {status:200, body:{ok:true}} }}`

func TestLoadFunctionSucceeds(t *testing.T) {
	l := newTestLoader()
	result, err := l.LoadFunction(context.Background(), LoadRequest{ID: "A", Code: []byte(okHandler)})
	if err != nil {
		t.Fatal(err)
	}
	if result.Stub.ID() != "A" {
		t.Fatalf("expected stub id A, got %s", result.Stub.ID())
	}
}

func TestLoadFunctionDedupAcrossIDs(t *testing.T) {
	l := newTestLoader()

	if _, err := l.LoadFunction(context.Background(), LoadRequest{ID: "X", Code: []byte(okHandler)}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.LoadFunction(context.Background(), LoadRequest{ID: "Y", Code: []byte(okHandler)}); err != nil {
		t.Fatal(err)
	}

	stats := l.CacheStats()
	if stats.Dedups != 1 {
		t.Fatalf("expected 1 dedup (spec S2), got %d", stats.Dedups)
	}
}

func TestGetCoalescesConcurrentCallers(t *testing.T) {
	fetcher := NewMemoryFetcher()
	var calls atomic.Int64
	fetcher.Register("Z", &countingStub{id: "Z", calls: &calls})

	l := New(Config{
		DefaultTimeout: time.Second,
		Cache:          modulecache.Config{MaxCacheSize: 100},
	}, fetcher, sandbox.NewRunner(sandbox.Config{}))

	stubs := make([]domain.Stub, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := l.Get(context.Background(), "Z")
			if err != nil {
				t.Error(err)
				return
			}
			stubs[i] = s
		}(i)
	}
	wg.Wait()
	for i, s := range stubs {
		if s != stubs[0] {
			t.Fatalf("caller %d got a different stub; concurrent Gets were not served by one load", i)
		}
	}
}

func TestGetTripsBreakerAfterConsecutiveFailures(t *testing.T) {
	fetcher := NewMemoryFetcher() // never registers "W", so Metadata always 404s
	l := New(Config{
		DefaultTimeout: time.Second,
		Cache:          modulecache.Config{MaxCacheSize: 100},
		Breaker:        circuitbreaker.Config{FailureThreshold: 3, SuccessThreshold: 1, ResetTimeout: 20 * time.Millisecond},
	}, fetcher, sandbox.NewRunner(sandbox.Config{}))

	for i := 0; i < 3; i++ {
		if _, err := l.Get(context.Background(), "W"); err == nil {
			t.Fatal("expected FunctionNotFound from upstream")
		}
	}

	_, err := l.Get(context.Background(), "W")
	if err == nil {
		t.Fatal("expected CircuitBreakerOpen after 3 consecutive failures")
	}
	if l.BreakerState("W") != "open" {
		t.Fatalf("expected breaker open, got %s", l.BreakerState("W"))
	}
}

// countingStub is a minimal domain.Stub registered with the
// MemoryFetcher; calls counts how often its Fetch is invoked.
type countingStub struct {
	id    string
	calls *atomic.Int64
}

func (s *countingStub) ID() string       { return s.id }
func (s *countingStub) CodeHash() string { return s.id }
func (s *countingStub) Fetch(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	s.calls.Add(1)
	return &domain.ExecutionResult{Success: true}, &domain.Response{Status: 200}, nil
}
func (s *countingStub) Scheduled(ctx context.Context) (*domain.ExecutionResult, error) { return nil, nil }
func (s *countingStub) Queue(ctx context.Context, messages json.RawMessage) (*domain.ExecutionResult, error) {
	return nil, nil
}
func (s *countingStub) Connect(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	return nil, nil, nil
}
