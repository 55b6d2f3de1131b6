package executor

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/logstore"
	"github.com/oriys/fncore/internal/metrics"
)

// Manager hosts one functionActor per FunctionId (spec §4.E "one logical
// instance per FunctionId") and exposes the aggregate read surface the
// HTTP contract's parameterless GET /state implies: a union view across
// every actor the process currently hosts.
type Manager struct {
	cfg     Config
	ld      stubLoader
	store   *logstore.Store
	metrics *metrics.Registry

	mu          sync.Mutex
	actors      map[string]*functionActor
	executionOf map[string]string // executionID -> functionID, for Abort

	stopSweep chan struct{}
}

// NewManager constructs a Manager. ld is typically a *loader.Loader;
// store may be nil (execution records and queries become no-ops).
func NewManager(cfg Config, ld stubLoader, store *logstore.Store) *Manager {
	m := &Manager{
		cfg:         cfg,
		ld:          ld,
		store:       store,
		actors:      make(map[string]*functionActor),
		executionOf: make(map[string]string),
	}
	return m
}

// WithMetrics attaches a metrics.Registry that every actor reports
// cold/warm-start and rate-limit-hit counters into. Optional: a nil
// Registry (the zero value of this call never happening) simply means
// the Metrics Exporter sees no ephemeral counters for this process.
func (m *Manager) WithMetrics(reg *metrics.Registry) *Manager {
	m.metrics = reg
	return m
}

func (m *Manager) actorFor(functionID string) *functionActor {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[functionID]
	if ok {
		return a
	}
	a = newFunctionActor(functionID, m.cfg, m.ld, m.store, m.metrics,
		func(executionID string) {
			m.mu.Lock()
			m.executionOf[executionID] = functionID
			m.mu.Unlock()
		},
		func(executionID string) {
			m.mu.Lock()
			delete(m.executionOf, executionID)
			m.mu.Unlock()
		},
	)
	m.actors[functionID] = a
	return a
}

// Execute runs the Function Executor protocol for req.FunctionID.
func (m *Manager) Execute(ctx context.Context, req ExecuteRequest) (*domain.ExecutionResult, error) {
	return m.actorFor(req.FunctionID).Execute(ctx, req)
}

// GetState returns the aggregate ExecutorState across every hosted actor.
func (m *Manager) GetState() domain.ExecutorState {
	m.mu.Lock()
	actors := make([]*functionActor, 0, len(m.actors))
	loaded := make([]string, 0, len(m.actors))
	for id, a := range m.actors {
		actors = append(actors, a)
		loaded = append(loaded, id)
	}
	m.mu.Unlock()

	state := domain.ExecutorState{LoadedFunctions: loaded}
	var activeIDs []string
	for _, a := range actors {
		isWarm, lastExec, active := a.snapshot()
		if isWarm {
			state.IsWarm = true
		}
		if lastExec > state.LastExecutionTime {
			state.LastExecutionTime = lastExec
		}
		activeIDs = append(activeIDs, active...)
	}
	state.ActiveExecutionIDs = activeIDs
	state.ActiveExecutions = len(activeIDs)
	return state
}

// GetExecutionLog returns one execution record by id, regardless of
// which function it belongs to.
func (m *Manager) GetExecutionLog(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.GetExecution(ctx, executionID)
}

// GetExecutionLogs returns every record for functionID, newest first.
func (m *Manager) GetExecutionLogs(ctx context.Context, functionID string) ([]domain.ExecutionRecord, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.QueryExecutionsByFunction(ctx, functionID)
}

// GetAggregateMetrics returns the per-function rollup.
func (m *Manager) GetAggregateMetrics(ctx context.Context, functionID string) (*domain.AggregateMetrics, error) {
	if m.store == nil {
		return &domain.AggregateMetrics{}, nil
	}
	return m.store.AggregateMetrics(ctx, functionID)
}

// Abort cancels an in-flight execution. Returns false if no active
// execution with that id is known.
func (m *Manager) Abort(executionID string) bool {
	m.mu.Lock()
	functionID, ok := m.executionOf[executionID]
	var a *functionActor
	if ok {
		a = m.actors[functionID]
	}
	m.mu.Unlock()
	if a == nil {
		return false
	}
	return a.cancelExecution(executionID)
}

// CleanupOldLogs sweeps execution records and log rows past retention
// (spec §4.E step 6). Safe to call on a timer or on demand.
func (m *Manager) CleanupOldLogs(ctx context.Context) error {
	if m.store == nil || m.cfg.LogRetention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-m.cfg.LogRetention).UnixMilli()
	if _, err := m.store.DeleteExecutionsOlderThan(ctx, cutoff); err != nil {
		return err
	}
	_, err := m.store.DeleteLogsOlderThan(ctx, cutoff)
	return err
}

// StartRetentionSweep runs CleanupOldLogs on interval until ctx is done.
func (m *Manager) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.CleanupOldLogs(ctx)
			}
		}
	}()
}
