// Package loader implements the Module Loader (spec §4.C): it
// orchestrates fetch -> compile -> instantiate, drives the circuit
// breaker and the module cache, and emits ready-to-invoke domain.Stub
// values to the Function Executor.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/fncore/internal/circuitbreaker"
	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/modulecache"
	"github.com/oriys/fncore/internal/sandbox"
)

// Fetcher is the upstream capability the Loader consumes to resolve and
// proxy invocations for functions hosted by an external runtime (spec
// §6 "Loader upstream fetcher"). It is also the two-path execution
// backend's "platform-native sandbox capability" side: when Metadata
// reports status "external", Get proxies through Fetch/Connect; any
// other status makes Get fail with LoadError. Local code is loaded only
// through LoadFunction.
type Fetcher interface {
	// Metadata resolves function id to {id, status}. A 404-equivalent
	// must be reported via the ErrNotFound sentinel so the Loader can
	// map it to domain.NewFunctionNotFound.
	Metadata(ctx context.Context, functionID string) (Metadata, error)
	// Fetch proxies a fetch(Request) -> Response call to the external
	// runtime hosting functionID.
	Fetch(ctx context.Context, functionID string, req domain.Request) (*domain.ExecutionResult, *domain.Response, error)
	// Connect proxies a connect(Request) -> Response call.
	Connect(ctx context.Context, functionID string, req domain.Request) (*domain.ExecutionResult, *domain.Response, error)
	// Scheduled proxies a scheduled() call.
	Scheduled(ctx context.Context, functionID string) (*domain.ExecutionResult, error)
	// Queue proxies a queue() call.
	Queue(ctx context.Context, functionID string, messages json.RawMessage) (*domain.ExecutionResult, error)
}

// Metadata is the JSON shape returned by a Fetcher's metadata lookup.
type Metadata struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "external" or "local"
}

// ErrNotFound is the sentinel a Fetcher returns from Metadata when the
// function is unknown upstream; the Loader maps it to FunctionNotFound.
var ErrNotFound = fmt.Errorf("loader: function not found upstream")

// StatusError is returned by a Fetcher for a non-2xx, non-404 upstream
// response, carrying the status code for LoaderServiceError.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("loader: upstream returned status %d", e.StatusCode)
}

// LoadRequest is the `loadFunction` input (spec §4.C).
type LoadRequest struct {
	ID      string
	Code    []byte
	Tests   []byte
	Script  []byte
	Opts    LoadOptions
}

// LoadOptions carries the per-call load overrides (spec §6 Loader config).
type LoadOptions struct {
	Timeout time.Duration
}

// LoadResult is the `loadFunction` output: the stub plus what the
// sandbox captured while instantiating it (spec §4.C "Captures
// stdout/stderr-equivalent calls into a logs buffer merged into the
// LoadResult").
type LoadResult struct {
	Stub    domain.Stub
	Console []domain.ConsoleEntry
	Tests   *domain.TestRunSummary
}

// Config holds the Loader's own parameters (spec §6 "Loader: {timeout,
// maxCacheSize, cacheTTL, circuitBreaker: {...}}").
type Config struct {
	DefaultTimeout time.Duration
	Cache          modulecache.Config
	Breaker        circuitbreaker.Config
}

// Loader is the Module Loader component (C). It is safe for concurrent
// use: internal state (cache, breaker registry) is already
// self-synchronized.
type Loader struct {
	cfg      Config
	cache    *modulecache.Cache
	breakers *circuitbreaker.Registry
	fetcher  Fetcher          // optional; nil means local-only
	sandbox  *sandbox.Runner  // local fallback evaluator
}

// New constructs a Loader. fetcher may be nil, in which case Get fails
// with NoLoaderConfigured and functions are served only through
// LoadFunction by the local sandbox.Runner.
func New(cfg Config, fetcher Fetcher, runner *sandbox.Runner) *Loader {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	return &Loader{
		cfg:      cfg,
		cache:    modulecache.New(cfg.Cache),
		breakers: circuitbreaker.NewRegistry(cfg.Breaker),
		fetcher:  fetcher,
		sandbox:  runner,
	}
}

// Get implements the spec §4.C `get(functionId) -> Stub` cache-backed
// retrieval path for functions resolved through the Fetcher. The
// Function Executor does not use it; it loads through LoadFunction.
func (l *Loader) Get(ctx context.Context, functionID string) (domain.Stub, error) {
	if err := l.breakers.Admit(functionID); err != nil {
		return nil, err
	}

	stub, err := l.cache.Get(ctx, functionID, l.loadFromUpstream)
	if err != nil {
		l.breakers.RecordFailure(functionID)
		return nil, err
	}
	l.breakers.RecordSuccess(functionID)
	return stub, nil
}

// loadFromUpstream is the modulecache.Loader used by Get on a cache
// miss: it resolves metadata and wires an external stub through the
// Fetcher; metadata with any status other than "external" is a LoadError.
func (l *Loader) loadFromUpstream(ctx context.Context, functionID string) (domain.Stub, string, error) {
	if l.fetcher == nil {
		return nil, "", domain.NewNoLoaderConfigured()
	}

	ctx, cancel := context.WithTimeout(ctx, l.effectiveTimeout(LoadOptions{}))
	defer cancel()

	meta, err := l.fetcher.Metadata(ctx, functionID)
	if err != nil {
		return nil, "", l.classifyFetchError(ctx, err)
	}

	if meta.Status == "external" {
		stub := &externalStub{id: functionID, codeHash: functionID, fetcher: l.fetcher}
		return stub, stub.codeHash, nil
	}

	return nil, "", domain.NewLoadError("upstream metadata did not resolve to an external handler; use LoadFunction for local code")
}

// LoadFunction implements the spec §4.C `loadFunction({id, code, tests?,
// script?, opts}) -> LoadResult` full load+validate path: it always
// produces a stub backed by the local sandbox, deduplicating on content
// hash via the cache's LoadFunction protocol (spec §4.B).
func (l *Loader) LoadFunction(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	if err := l.breakers.Admit(req.ID); err != nil {
		return nil, err
	}

	codeHash := domain.ContentHash(req.Code, req.Tests, req.Script)

	var loadErr error
	var result *LoadResult

	stub, err := l.cache.LoadFunction(req.ID, codeHash, func() (domain.Stub, error) {
		timeout := l.effectiveTimeout(req.Opts)
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		outcome, runErr := l.sandbox.Instantiate(runCtx, sandbox.InstantiateRequest{
			FunctionID:   req.ID,
			Code:         req.Code,
			Tests:        req.Tests,
			Script:       req.Script,
			CodeHash:     codeHash,
			BlockNetwork: l.sandbox.BlockNetwork(),
		})
		if runErr != nil {
			loadErr = domain.NewCompilationError(runErr.Error())
			return nil, loadErr
		}

		result = &LoadResult{Stub: outcome.Stub, Console: outcome.Console, Tests: outcome.Tests}
		return outcome.Stub, nil
	})

	if err != nil {
		l.breakers.RecordFailure(req.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, err
	}
	l.breakers.RecordSuccess(req.ID)

	if result == nil {
		// Deduplicated against an existing entry: no fresh LoadResult was
		// produced, so report the clone with an empty console/tests view.
		result = &LoadResult{Stub: stub}
	}
	return result, nil
}

// Invalidate drops functionID from the cache, forcing the next Get or
// LoadFunction to reload it.
func (l *Loader) Invalidate(functionID string) {
	l.cache.Invalidate(functionID)
}

// CacheStats exposes the cache's hit/miss/dedup counters for the
// Metrics Exporter and /state diagnostics.
func (l *Loader) CacheStats() modulecache.Stats {
	return l.cache.Stats()
}

// BreakerState exposes per-function breaker state for diagnostics.
func (l *Loader) BreakerState(functionID string) string {
	return l.breakers.Get(functionID).State().String()
}

func (l *Loader) effectiveTimeout(opts LoadOptions) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return l.cfg.DefaultTimeout
}

func (l *Loader) classifyFetchError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return domain.NewLoadTimeout(l.cfg.DefaultTimeout.Milliseconds())
	}
	if err == ErrNotFound {
		return domain.NewFunctionNotFound("")
	}
	var statusErr *StatusError
	if ok := asStatusError(err, &statusErr); ok {
		return domain.NewLoaderServiceError(statusErr.StatusCode)
	}
	return domain.NewLoadError(err.Error())
}

func asStatusError(err error, target **StatusError) bool {
	se, ok := err.(*StatusError)
	if !ok {
		return false
	}
	*target = se
	return true
}

// externalStub proxies every capability through the Fetcher, used when
// metadata resolves to an externally-hosted handler (spec §4.C
// two-path execution backend, external branch).
type externalStub struct {
	id       string
	codeHash string
	fetcher  Fetcher
}

func (s *externalStub) ID() string       { return s.id }
func (s *externalStub) CodeHash() string { return s.codeHash }

func (s *externalStub) Fetch(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	return s.fetcher.Fetch(ctx, s.id, req)
}

func (s *externalStub) Scheduled(ctx context.Context) (*domain.ExecutionResult, error) {
	return s.fetcher.Scheduled(ctx, s.id)
}

func (s *externalStub) Queue(ctx context.Context, messages json.RawMessage) (*domain.ExecutionResult, error) {
	return s.fetcher.Queue(ctx, s.id, messages)
}

func (s *externalStub) Connect(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	return s.fetcher.Connect(ctx, s.id, req)
}
