package domain

import "encoding/json"

// ConsoleLevel is the level tag on a captured console write.
type ConsoleLevel string

const (
	ConsoleLog   ConsoleLevel = "log"
	ConsoleInfo  ConsoleLevel = "info"
	ConsoleWarn  ConsoleLevel = "warn"
	ConsoleError ConsoleLevel = "error"
	ConsoleDebug ConsoleLevel = "debug"
	ConsoleFatal ConsoleLevel = "fatal"
)

// ConsoleEntry is one buffered console write from a sandboxed invocation.
type ConsoleEntry struct {
	Level     ConsoleLevel `json:"level"`
	Message   string       `json:"message"`
	Timestamp int64        `json:"timestamp"` // unix millis
}

// ExecutionMetrics captures the resource footprint of a single invocation.
type ExecutionMetrics struct {
	DurationMs      int64 `json:"durationMs"`
	CPUTimeMs       int64 `json:"cpuTimeMs"`
	MemoryUsedBytes int64 `json:"memoryUsedBytes"`
	StartTime       int64 `json:"startTime"`
	EndTime         int64 `json:"endTime"`
	TimedOut        bool  `json:"timedOut,omitempty"`
	Aborted         bool  `json:"aborted,omitempty"`
}

// TestResult is one `it(...)` outcome from a tests subrun.
type TestResult struct {
	Name     string  `json:"name"`
	Passed   bool    `json:"passed"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration"`
}

// TestRunSummary aggregates a tests subrun (spec §4.D step 7).
type TestRunSummary struct {
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Tests  []TestResult `json:"tests"`
}

// ExecutionResult is what the Sandbox Runner hands back to the Executor,
// and (serialized) what the HTTP contract returns for /execute.
type ExecutionResult struct {
	ExecutionID            string            `json:"executionId"`
	Success                bool              `json:"success"`
	ColdStart               bool              `json:"coldStart"`
	TimedOut                bool              `json:"timedOut"`
	Aborted                 bool              `json:"aborted"`
	Queued                  bool              `json:"queued,omitempty"`
	Metrics                 *ExecutionMetrics `json:"metrics,omitempty"`
	ConsoleOutput           []ConsoleEntry    `json:"consoleOutput,omitempty"`
	ConsoleOutputTruncated  bool              `json:"consoleOutputTruncated,omitempty"`
	Output                  json.RawMessage   `json:"output,omitempty"`
	Error                   *ResultError      `json:"error,omitempty"`
	Tests                   *TestRunSummary   `json:"tests,omitempty"`
	ScriptResult            json.RawMessage   `json:"scriptResult,omitempty"`
}

// ResultError is the {message} shape the spec mandates for ExecutionResult.error.
type ResultError struct {
	Message string `json:"message"`
}

// ExecutionRecord is the append-only row an Executor writes per invocation
// (spec §3 "Execution Record"). EndTime/Duration/Success/Error/Metrics
// start nil/zero and transition to their final value exactly once.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	FunctionID    string          `json:"functionId"`
	StartTime     int64           `json:"startTime"`
	EndTime       int64           `json:"endTime"`
	HasEnded      bool            `json:"-"`
	DurationMs    int64           `json:"duration"`
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	ConsoleOutput []ConsoleEntry  `json:"consoleOutput"`
	Metrics       *ExecutionMetrics `json:"metrics,omitempty"`
}

// AggregateMetrics is the per-function rollup returned by
// Executor.getAggregateMetrics and mirrored by the Log/Metric Store.
type AggregateMetrics struct {
	Total           int64   `json:"total"`
	Successful      int64   `json:"successful"`
	Failed          int64   `json:"failed"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
	MinDurationMs   float64 `json:"minDurationMs"`
	MaxDurationMs   float64 `json:"maxDurationMs"`
	P50DurationMs   float64 `json:"p50DurationMs"`
	P95DurationMs   float64 `json:"p95DurationMs"`
	P99DurationMs   float64 `json:"p99DurationMs"`
	AvgMemoryBytes  float64 `json:"avgMemoryBytes"`
	TotalMemoryBytes int64  `json:"totalMemoryBytes"`
}

// ExecutorState is the public read model for GET /state (spec §3
// "Executor State").
type ExecutorState struct {
	IsWarm              bool     `json:"isWarm"`
	LastExecutionTime   int64    `json:"lastExecutionTime,omitempty"`
	LoadedFunctions     []string `json:"loadedFunctions"`
	ActiveExecutions    int      `json:"activeExecutions"`
	ActiveExecutionIDs  []string `json:"activeExecutionIds"`
}
