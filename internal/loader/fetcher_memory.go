package loader

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/oriys/fncore/internal/domain"
)

// MemoryFetcher is an in-process Fetcher test double: functions are
// registered directly by the caller instead of resolved over HTTP.
// Used in tests and local smoke-testing where no external loader
// service is available.
type MemoryFetcher struct {
	mu        sync.RWMutex
	functions map[string]Metadata
	handlers  map[string]domain.Stub
}

// NewMemoryFetcher constructs an empty MemoryFetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		functions: make(map[string]Metadata),
		handlers:  make(map[string]domain.Stub),
	}
}

// Register makes functionID resolvable as an "external" function,
// proxying every capability call to stub.
func (f *MemoryFetcher) Register(functionID string, stub domain.Stub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.functions[functionID] = Metadata{ID: functionID, Status: "external"}
	f.handlers[functionID] = stub
}

func (f *MemoryFetcher) Metadata(ctx context.Context, functionID string) (Metadata, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	meta, ok := f.functions[functionID]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return meta, nil
}

func (f *MemoryFetcher) stub(functionID string) (domain.Stub, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.handlers[functionID]
	return s, ok
}

func (f *MemoryFetcher) Fetch(ctx context.Context, functionID string, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	s, ok := f.stub(functionID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return s.Fetch(ctx, req)
}

func (f *MemoryFetcher) Connect(ctx context.Context, functionID string, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	s, ok := f.stub(functionID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return s.Connect(ctx, req)
}

func (f *MemoryFetcher) Scheduled(ctx context.Context, functionID string) (*domain.ExecutionResult, error) {
	s, ok := f.stub(functionID)
	if !ok {
		return nil, ErrNotFound
	}
	return s.Scheduled(ctx)
}

func (f *MemoryFetcher) Queue(ctx context.Context, functionID string, messages json.RawMessage) (*domain.ExecutionResult, error) {
	s, ok := f.stub(functionID)
	if !ok {
		return nil, ErrNotFound
	}
	return s.Queue(ctx, messages)
}
