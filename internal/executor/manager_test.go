package executor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/loader"
)

// fakeLoader is a stubLoader test double that hands back a scripted
// result (or blocks until released) without touching a real sandbox.
type fakeLoader struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	failure error
	result  *domain.ExecutionResult
}

func (f *fakeLoader) LoadFunction(ctx context.Context, req loader.LoadRequest) (*loader.LoadResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failure != nil {
		return nil, f.failure
	}
	return &loader.LoadResult{Stub: &fakeStub{result: f.result}}, nil
}

type fakeStub struct{ result *domain.ExecutionResult }

func (s *fakeStub) ID() string       { return "fake" }
func (s *fakeStub) CodeHash() string { return "hash" }
func (s *fakeStub) Fetch(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	r := *s.result
	return &r, &domain.Response{Status: 200}, nil
}
func (s *fakeStub) Scheduled(ctx context.Context) (*domain.ExecutionResult, error) { return nil, nil }
func (s *fakeStub) Queue(ctx context.Context, msgs json.RawMessage) (*domain.ExecutionResult, error) {
	return nil, nil
}
func (s *fakeStub) Connect(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	return nil, nil, nil
}

func testConfig() Config {
	return Config{
		MaxConcurrentExecutions: 2,
		MaxQueueSize:            2,
		ExecutionTimeout:        time.Second,
		WarmIdleTimeout:         50 * time.Millisecond,
		MaxConsoleOutputSize:    100,
		LogRetention:            time.Hour,
	}
}

func TestExecuteAdmitsAndSettles(t *testing.T) {
	ld := &fakeLoader{result: &domain.ExecutionResult{Success: true}}
	m := NewManager(testConfig(), ld, nil)

	result, err := m.Execute(context.Background(), ExecuteRequest{FunctionID: "F1"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !result.ColdStart {
		t.Fatal("first execution for a function should report coldStart=true")
	}

	result2, err := m.Execute(context.Background(), ExecuteRequest{FunctionID: "F1"})
	if err != nil {
		t.Fatal(err)
	}
	if result2.ColdStart {
		t.Fatal("second execution should report coldStart=false")
	}
}

func TestQueueFullRejectsWithQueueWordInMessage(t *testing.T) {
	ld := &fakeLoader{result: &domain.ExecutionResult{Success: true}, block: make(chan struct{})}
	cfg := testConfig()
	cfg.MaxConcurrentExecutions = 1
	cfg.MaxQueueSize = 1
	m := NewManager(cfg, ld, nil)

	var wg sync.WaitGroup
	// occupy the single active slot
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Execute(context.Background(), ExecuteRequest{FunctionID: "F2"})
	}()
	time.Sleep(20 * time.Millisecond)

	// fills the single queue slot
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Execute(context.Background(), ExecuteRequest{FunctionID: "F2"})
	}()
	time.Sleep(20 * time.Millisecond)

	result, err := m.Execute(context.Background(), ExecuteRequest{FunctionID: "F2"})
	if err != nil {
		t.Fatalf("queue-full must surface as an unsuccessful result, not a Go error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected an unsuccessful result, got %+v", result)
	}
	if result.Error == nil || !contains(result.Error.Message, "queue") {
		t.Fatalf("expected error.message to mention 'queue', got %+v", result.Error)
	}

	close(ld.block)
	wg.Wait()
}

func TestAbortCancelsActiveExecution(t *testing.T) {
	ld := &fakeLoader{result: &domain.ExecutionResult{Success: true}, block: make(chan struct{})}
	m := NewManager(testConfig(), ld, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), ExecuteRequest{FunctionID: "F3"})
		done <- err
	}()

	// wait until the execution is registered as active
	deadline := time.After(time.Second)
	for {
		state := m.GetState()
		if state.ActiveExecutions > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("execution never became active")
		case <-time.After(time.Millisecond):
		}
	}

	state := m.GetState()
	if len(state.ActiveExecutionIDs) != 1 {
		t.Fatalf("expected exactly one active execution, got %+v", state.ActiveExecutionIDs)
	}
	if !m.Abort(state.ActiveExecutionIDs[0]) {
		t.Fatal("expected Abort to find the active execution")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aborted execution never returned")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
