package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/loader"
	"github.com/oriys/fncore/internal/logstore"
	"github.com/oriys/fncore/internal/metrics"
)

// stubLoader is the narrow slice of *loader.Loader an actor needs,
// small enough to fake in tests without a real sandbox.
type stubLoader interface {
	LoadFunction(ctx context.Context, req loader.LoadRequest) (*loader.LoadResult, error)
}

type executeOutcome struct {
	result *domain.ExecutionResult
	err    error
}

type queuedRequest struct {
	ctx      context.Context
	req      ExecuteRequest
	resultCh chan executeOutcome
}

// functionActor is the single-writer state machine for one FunctionId
// (spec §4.E). All mutable state is guarded by mu; invocations themselves
// run outside the lock so distinct functions and queued same-function
// requests never block each other longer than admission bookkeeping.
type functionActor struct {
	functionID string
	cfg        Config
	ld         stubLoader
	store      *logstore.Store
	metrics    *metrics.Registry

	onActive   func(executionID string)
	onInactive func(executionID string)

	mu          sync.Mutex
	activeCount int
	activeIDs   map[string]context.CancelFunc
	queue       []*queuedRequest
	isWarm      bool
	loaded      bool
	lastExecutionTime int64
	idleTimer   *time.Timer
}

func newFunctionActor(functionID string, cfg Config, ld stubLoader, store *logstore.Store, metricsReg *metrics.Registry, onActive, onInactive func(string)) *functionActor {
	return &functionActor{
		functionID: functionID,
		cfg:        cfg,
		ld:         ld,
		store:      store,
		metrics:    metricsReg,
		onActive:   onActive,
		onInactive: onInactive,
		activeIDs:  make(map[string]context.CancelFunc),
	}
}

// Execute runs the spec §4.E admission protocol: admit, queue, or return
// an unsuccessful result when the queue is full (spec §7: queue-full is
// an ExecutionResult, not a Go error). Queued callers block until
// dispatched or ctx is done.
func (a *functionActor) Execute(ctx context.Context, req ExecuteRequest) (*domain.ExecutionResult, error) {
	a.mu.Lock()
	if a.activeCount < a.cfg.MaxConcurrentExecutions {
		a.activeCount++
		coldStart := !a.loaded
		a.loaded = true
		a.mu.Unlock()
		return a.invokeAndSettle(ctx, req, coldStart)
	}
	if len(a.queue) >= a.cfg.MaxQueueSize {
		a.mu.Unlock()
		if a.metrics != nil {
			a.metrics.RecordRateLimitHit(a.functionID)
		}
		return &domain.ExecutionResult{
			Success: false,
			Error:   &domain.ResultError{Message: domain.NewQueueFull(a.functionID).Message},
		}, nil
	}
	qr := &queuedRequest{ctx: ctx, req: req, resultCh: make(chan executeOutcome, 1)}
	a.queue = append(a.queue, qr)
	a.mu.Unlock()

	select {
	case out := <-qr.resultCh:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release decrements the active count and, if a queued request fits
// under the concurrency budget, dispatches the next one in FIFO order.
func (a *functionActor) release() {
	a.mu.Lock()
	a.activeCount--
	var next *queuedRequest
	if len(a.queue) > 0 && a.activeCount < a.cfg.MaxConcurrentExecutions {
		next = a.queue[0]
		a.queue = a.queue[1:]
		a.activeCount++
	}
	a.mu.Unlock()

	if next != nil {
		go func() {
			result, err := a.invokeAndSettle(next.ctx, next.req, false)
			next.resultCh <- executeOutcome{result: result, err: err}
		}()
	}
}

func (a *functionActor) invokeAndSettle(ctx context.Context, req ExecuteRequest, coldStart bool) (_ *domain.ExecutionResult, outErr error) {
	defer a.release()

	executionID := uuid.NewString()
	startTime := time.Now().UnixMilli()
	if a.store != nil {
		_ = a.store.AppendExecution(ctx, domain.ExecutionRecord{
			ID: executionID, FunctionID: a.functionID, StartTime: startTime,
		})
	}

	timeout := a.cfg.ExecutionTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	a.mu.Lock()
	a.activeIDs[executionID] = cancel
	a.mu.Unlock()
	if a.onActive != nil {
		a.onActive(executionID)
	}
	defer func() {
		a.mu.Lock()
		delete(a.activeIDs, executionID)
		a.mu.Unlock()
		if a.onInactive != nil {
			a.onInactive(executionID)
		}
		cancel()
	}()

	if a.metrics != nil {
		if coldStart {
			a.metrics.RecordColdStart(a.functionID)
		} else {
			a.metrics.RecordWarmStart(a.functionID)
		}
	}

	result := a.run(execCtx, req, executionID, coldStart)

	endTime := time.Now().UnixMilli()
	rec := domain.ExecutionRecord{
		ID:            executionID,
		FunctionID:    a.functionID,
		StartTime:     startTime,
		EndTime:       endTime,
		DurationMs:    endTime - startTime,
		Success:       result.Success,
		ConsoleOutput: result.ConsoleOutput,
		Metrics:       result.Metrics,
	}
	if result.Error != nil {
		rec.Error = result.Error.Message
	}
	if a.store != nil {
		_ = a.store.SettleExecution(ctx, rec)
	}

	a.mu.Lock()
	if result.Success {
		a.isWarm = true
	}
	a.lastExecutionTime = endTime
	a.scheduleIdleAlarmLocked()
	a.mu.Unlock()

	return result, nil
}

// run performs the cold/warm load plus the sandbox invocation itself and
// always returns a populated ExecutionResult: handler exceptions and load
// failures surface as success:false rows, never as a returned error (spec
// §4.E failure semantics).
func (a *functionActor) run(ctx context.Context, req ExecuteRequest, executionID string, coldStart bool) *domain.ExecutionResult {
	loaded, err := a.ld.LoadFunction(ctx, loader.LoadRequest{
		ID: a.functionID, Code: req.Code, Tests: req.Tests, Script: req.Script,
	})
	if err != nil {
		return &domain.ExecutionResult{
			ExecutionID: executionID,
			Success:     false,
			ColdStart:   coldStart,
			Error:       &domain.ResultError{Message: err.Error()},
		}
	}

	result, _, err := loaded.Stub.Fetch(ctx, req.Request)
	if err != nil {
		aborted := ctx.Err() != nil && !isDeadlineExceeded(ctx)
		timedOut := isDeadlineExceeded(ctx)
		return &domain.ExecutionResult{
			ExecutionID:   executionID,
			Success:       false,
			ColdStart:     coldStart,
			TimedOut:      timedOut,
			Aborted:       aborted,
			ConsoleOutput: loaded.Console,
			Tests:         loaded.Tests,
			Error:         &domain.ResultError{Message: err.Error()},
		}
	}
	if result == nil {
		result = &domain.ExecutionResult{Success: true}
	}
	result.ExecutionID = executionID
	result.ColdStart = coldStart
	if result.ConsoleOutput == nil {
		result.ConsoleOutput = loaded.Console
	}
	if result.Tests == nil {
		result.Tests = loaded.Tests
	}
	return result
}

func isDeadlineExceeded(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}

// scheduleIdleAlarmLocked (re)arms the idle-cleanup timer. Caller holds mu.
func (a *functionActor) scheduleIdleAlarmLocked() {
	if a.cfg.WarmIdleTimeout <= 0 {
		return
	}
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.idleTimer = time.AfterFunc(a.cfg.WarmIdleTimeout, a.onIdleAlarm)
}

func (a *functionActor) onIdleAlarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	idleFor := time.Now().UnixMilli() - a.lastExecutionTime
	if idleFor >= a.cfg.WarmIdleTimeout.Milliseconds() {
		a.isWarm = false
		a.loaded = false
	}
}

// cancelExecution aborts an in-flight invocation (spec Abort / §5
// cancellation handle).
func (a *functionActor) cancelExecution(executionID string) bool {
	a.mu.Lock()
	cancel, ok := a.activeIDs[executionID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (a *functionActor) snapshot() (isWarm bool, lastExecutionTime int64, active []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	isWarm = a.isWarm
	lastExecutionTime = a.lastExecutionTime
	active = make([]string, 0, len(a.activeIDs))
	for id := range a.activeIDs {
		active = append(active, id)
	}
	return isWarm, lastExecutionTime, active
}
