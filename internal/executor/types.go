// Package executor implements the Function Executor (spec §4.E): one
// actor per FunctionId owning its own queue, concurrency budget, warm
// state, and execution log, invoking the Sandbox Runner via the Module
// Loader and writing results to the Log/Metric Store.
package executor

import (
	"time"

	"github.com/oriys/fncore/internal/domain"
)

// Config holds the parameters named in spec §4.E.
type Config struct {
	MaxConcurrentExecutions int
	MaxQueueSize            int
	ExecutionTimeout        time.Duration
	WarmIdleTimeout         time.Duration
	MaxConsoleOutputSize    int
	LogRetention            time.Duration
}

// DefaultConfig mirrors reasonable defaults for a single-process deployment.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExecutions: 10,
		MaxQueueSize:            100,
		ExecutionTimeout:        30 * time.Second,
		WarmIdleTimeout:         5 * time.Minute,
		MaxConsoleOutputSize:    200,
		LogRetention:            24 * time.Hour,
	}
}

// ExecuteRequest is the Function Executor's execute({...}) protocol input.
type ExecuteRequest struct {
	FunctionID string
	Code       []byte
	Tests      []byte
	Script     []byte
	Request    domain.Request
	TimeoutMs  int64
}
