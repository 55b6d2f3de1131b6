// Package circuitbreaker implements the per-function circuit breaker that
// protects the Module Loader from repeatedly hammering a failing upstream.
//
// # State machine
//
//	Closed ──(failures ≥ failureThreshold)──► Open ──(resetTimeoutMs elapsed)──► HalfOpen
//	  ▲                                                                              │
//	  └──────────────(successes ≥ successThreshold)───────────────────────────────────┘
//	                  (any probe fails) ────────────────────────────────────────► Open
//
// # Why consecutive counters, not a sliding window
//
// The breaker only needs to answer "has this function failed enough times
// in a row to stop bothering upstream", not "what fraction of recent
// traffic failed" — a single success in Closed resets the run, so a
// transient blip never accumulates toward the threshold across unrelated
// failures separated by successes.
//
// # Concurrency
//
// All public methods (Allow, RecordSuccess, RecordFailure, State) are safe
// for concurrent use; they acquire the internal mutex for every call.
// The Registry uses a separate read-write mutex so the common read path
// (Get for an existing breaker) does not contend with the rare write path
// (new function registered).
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/oriys/fncore/internal/domain"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, requests pass through
	StateOpen                  // Requests are rejected
	StateHalfOpen              // Limited probe requests are allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration (spec §4.A parameters).
type Config struct {
	FailureThreshold    int           // consecutive closed-state failures before tripping
	SuccessThreshold    int           // consecutive half-open successes before closing
	ResetTimeout        time.Duration // how long the breaker stays open before probing
	MaxHalfOpenRequests int           // concurrent probes admitted in half-open
}

// Breaker is a per-function circuit breaker.
type Breaker struct {
	mu              sync.Mutex
	cfg             Config
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time
	halfOpenInFlight int
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.MaxHalfOpenRequests <= 0 {
		cfg.MaxHalfOpenRequests = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, lastStateChange: time.Now()}
}

// Allow reports whether a request should be admitted, transitioning
// Open -> HalfOpen inline on the request path when resetTimeout has
// elapsed (spec §4.A: "the transition is done inline on the request path").
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastStateChange) >= b.cfg.ResetTimeout {
			b.transitionTo(StateHalfOpen)
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenInFlight < b.cfg.MaxHalfOpenRequests {
			b.halfOpenInFlight++
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a successful invocation.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.failures > 0 {
			b.failures = 0
		}
	case StateHalfOpen:
		b.successes++
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionTo(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure records a failed invocation.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.lastFailureTime = now

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// Probe failed, reopen immediately.
		b.transitionTo(StateOpen)
		b.halfOpenInFlight = 0
	}
}

// State returns the current breaker state, applying the automatic
// Open -> HalfOpen transition if the reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastStateChange) >= b.cfg.ResetTimeout {
		b.transitionTo(StateHalfOpen)
	}
	return b.state
}

// Reset forces the breaker back to Closed with counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
	b.failures = 0
	b.successes = 0
	b.halfOpenInFlight = 0
}

// LastFailure returns the time of the most recent recorded failure, used
// to populate domain.NewCircuitBreakerOpen.
func (b *Breaker) LastFailure() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailureTime
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// transitionTo must be called under lock.
func (b *Breaker) transitionTo(s State) {
	if s == StateHalfOpen {
		b.successes = 0
	}
	b.state = s
	b.lastStateChange = time.Now()
}

// Registry holds per-function circuit breakers, created lazily (spec §3
// "Circuit Breaker State... created lazily; survives process lifetime,
// not persisted").
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry creates a new breaker registry. Every breaker it creates
// lazily shares cfg; cfg with a zero FailureThreshold disables breaking
// entirely (Admit then always allows, and RecordSuccess/RecordFailure
// do nothing).
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for a function, creating one on first access.
func (r *Registry) Get(functionID string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[functionID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[functionID]; ok {
		return b
	}
	b = New(r.cfg)
	r.breakers[functionID] = b
	return b
}

// Admit is the spec's `admit(functionId) -> {ok, rejected}` operation,
// returning a domain.Error when the breaker rejects.
func (r *Registry) Admit(functionID string) error {
	if r.cfg.FailureThreshold <= 0 {
		return nil
	}
	b := r.Get(functionID)
	if b.Allow() {
		return nil
	}
	return domain.NewCircuitBreakerOpen(b.Failures(), b.LastFailure().UnixMilli())
}

// RecordSuccess records a success for functionID's breaker, creating the
// breaker on first use.
func (r *Registry) RecordSuccess(functionID string) {
	if r.cfg.FailureThreshold <= 0 {
		return
	}
	r.Get(functionID).RecordSuccess()
}

// RecordFailure records a failure for functionID's breaker, creating the
// breaker on first use.
func (r *Registry) RecordFailure(functionID string) {
	if r.cfg.FailureThreshold <= 0 {
		return
	}
	r.Get(functionID).RecordFailure()
}

// Remove deletes the breaker for a function (e.g. when the function is
// evicted from the cache).
func (r *Registry) Remove(functionID string) {
	r.mu.Lock()
	delete(r.breakers, functionID)
	r.mu.Unlock()
}

// Snapshot returns a map of function ID to breaker state for observability.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State().String()
	}
	return out
}
