// Package sandbox implements the Sandbox Runner (spec §4.D): it
// evaluates a function's code in an isolated goja.Runtime per
// invocation, captures console output, denies network/filesystem
// access, enforces a timeout/cancellation policy, and runs the
// describe/it/expect tests subrun and the script subrun described in
// spec §4.D steps 7-8.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dop251/goja"

	"github.com/oriys/fncore/internal/domain"
)

// Config holds the runner's own parameters.
type Config struct {
	MaxConsoleOutputSize int
	DefaultTimeout       time.Duration
	// BlockNetwork, when set, makes the sandboxed `fetch` global always
	// throw (spec §4.D "If blockNetwork is set, fetch throws..."). When
	// unset, `fetch` resolves to a fixed stub response, since this
	// sandbox has no outbound transport to proxy a real call through.
	BlockNetwork bool
}

// Runner is the Sandbox Runner component (D). It holds no per-function
// state; every call it makes operates on a fresh goja.Runtime.
type Runner struct {
	cfg Config
}

// BlockNetwork reports this Runner's configured network policy, for
// the Loader to thread into each InstantiateRequest it builds.
func (r *Runner) BlockNetwork() bool { return r.cfg.BlockNetwork }

// NewRunner constructs a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxConsoleOutputSize <= 0 {
		cfg.MaxConsoleOutputSize = 200
	}
	return &Runner{cfg: cfg}
}

// InstantiateRequest is the module-load input (spec §4.D: code, tests,
// script for the load-time validate+tests+script subrun).
type InstantiateRequest struct {
	FunctionID   string
	Code         []byte
	Tests        []byte
	Script       []byte
	CodeHash     string
	BlockNetwork bool
}

// InstantiateResult is what Instantiate hands back to the Loader for
// its LoadResult (spec §4.C "Captures ... into a logs buffer merged
// into the LoadResult").
type InstantiateResult struct {
	Stub    domain.Stub
	Console []domain.ConsoleEntry
	Tests   *domain.TestRunSummary
}

// Instantiate compiles code (and tests/script, if present) once,
// validates the module loads and exposes a capability surface, runs
// the tests and script subruns, and returns a Stub whose later
// invocations each get a fresh module context (spec §4.D "Isolation").
func (r *Runner) Instantiate(ctx context.Context, req InstantiateRequest) (*InstantiateResult, error) {
	program, err := goja.Compile(req.FunctionID, wrapSource(string(req.Code)), false)
	if err != nil {
		return nil, fmt.Errorf("compilation error: %w", err)
	}

	var testsProgram, scriptProgram *goja.Program
	if len(req.Tests) > 0 {
		testsProgram, err = goja.Compile(req.FunctionID+":tests", string(req.Tests), false)
		if err != nil {
			return nil, fmt.Errorf("compilation error: tests: %w", err)
		}
	}
	if len(req.Script) > 0 {
		scriptProgram, err = goja.Compile(req.FunctionID+":script", asyncIIFE(string(req.Script)), false)
		if err != nil {
			return nil, fmt.Errorf("compilation error: script: %w", err)
		}
	}

	stub := &moduleStub{
		id:            req.FunctionID,
		codeHash:      req.CodeHash,
		program:       program,
		testsProgram:  testsProgram,
		scriptProgram: scriptProgram,
		runner:        r,
		blockNetwork:  req.BlockNetwork,
	}

	console, tests, caps, err := stub.validate()
	if err != nil {
		return nil, err
	}
	stub.capabilities = caps

	return &InstantiateResult{Stub: stub, Console: console, Tests: tests}, nil
}

// wrapSource rewrites a leading ESM-style `export default` into a
// CommonJS-interop assignment so the module can be run as a classic
// script (spec design note "module registry without dynamic globals":
// the exports container is an in-scope record, not a dynamic global).
func wrapSource(src string) string {
	return replaceFirst(src, "export default", "module.exports.default =") + "\n"
}

func replaceFirst(src, old, new string) string {
	idx := indexOf(src, old)
	if idx < 0 {
		return src
	}
	return src[:idx] + new + src[idx+len(old):]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// asyncIIFE wraps a script subrun body as an async IIFE with module
// exports injected into scope (spec §4.D step 8).
func asyncIIFE(src string) string {
	return "(async function(){\n" + src + "\n})()"
}

type capabilitySet struct {
	fetch, scheduled, queue, connect bool
}

// moduleStub is the concrete domain.Stub backing locally-evaluated
// functions.
type moduleStub struct {
	id, codeHash                         string
	program, testsProgram, scriptProgram *goja.Program
	runner                                *Runner
	capabilities                          capabilitySet
	blockNetwork                          bool
}

func (s *moduleStub) ID() string       { return s.id }
func (s *moduleStub) CodeHash() string { return s.codeHash }

// validate runs the module once at instantiation time to detect its
// capability surface and execute the tests/script subruns (spec §4.D
// steps 1, 7, 8). Tie-break: tests run before the script.
func (s *moduleStub) validate() ([]domain.ConsoleEntry, *domain.TestRunSummary, capabilitySet, error) {
	rt := goja.New()
	console := newConsoleSink(s.runner.cfg.MaxConsoleOutputSize)
	bindGlobals(rt, console, s.blockNetwork)

	if _, err := rt.RunProgram(s.program); err != nil {
		return console.entries, nil, capabilitySet{}, err
	}

	target, presence := extractExports(rt)
	_ = target
	caps := capabilitySet{fetch: presence["fetch"], scheduled: presence["scheduled"], queue: presence["queue"], connect: presence["connect"]}

	var tests *domain.TestRunSummary
	if s.testsProgram != nil {
		h := newTestHarness()
		bindTestHarness(rt, h)
		if _, err := rt.RunProgram(s.testsProgram); err != nil {
			return console.entries, nil, caps, fmt.Errorf("tests: %w", err)
		}
		tests = h.summary()
	}

	if s.scriptProgram != nil {
		if _, err := rt.RunProgram(s.scriptProgram); err != nil {
			return console.entries, tests, caps, fmt.Errorf("script: %w", err)
		}
	}

	return console.entries, tests, caps, nil
}

// extractExports reads the `module.exports` record assembled by the
// user's code and returns it (preferring a `.default` property, the
// ESM-interop case) along with which of the four capability handlers
// are present as callable functions.
func extractExports(rt *goja.Runtime) (*goja.Object, map[string]bool) {
	presence := map[string]bool{}
	moduleVal := rt.Get("module")
	if moduleVal == nil || goja.IsUndefined(moduleVal) {
		return nil, presence
	}
	exportsVal := moduleVal.ToObject(rt).Get("exports")
	if exportsVal == nil || goja.IsUndefined(exportsVal) {
		return nil, presence
	}
	exportsObj := exportsVal.ToObject(rt)
	target := exportsObj
	if def := exportsObj.Get("default"); def != nil && !goja.IsUndefined(def) {
		if defObj := def.ToObject(rt); defObj != nil {
			target = defObj
		}
	}
	for _, name := range []string{"fetch", "scheduled", "queue", "connect"} {
		if v := target.Get(name); v != nil && !goja.IsUndefined(v) {
			if _, ok := goja.AssertFunction(v); ok {
				presence[name] = true
			}
		}
	}
	return target, presence
}

// invoke runs the module fresh (spec §4.D "Isolation": globals set by
// one execution are not observable by another) and calls the named
// handler with arg, racing it against ctx per spec §4.D steps 5-6. When
// wantsResponse is set, a successful call's return value is converted
// into a domain.Response (used by Fetch/Connect).
func (s *moduleStub) invoke(ctx context.Context, handlerName string, arg any, wantsResponse bool) (*domain.ExecutionResult, *domain.Response, error) {
	start := time.Now()
	rt := goja.New()
	console := newConsoleSink(s.runner.cfg.MaxConsoleOutputSize)
	bindGlobals(rt, console, s.blockNetwork)

	if _, err := rt.RunProgram(s.program); err != nil {
		return &domain.ExecutionResult{
			Success: false,
			Error:   &domain.ResultError{Message: fmt.Sprintf("CompilationError: %s", err.Error())},
		}, nil, nil
	}

	target, presence := extractExports(rt)
	if !presence[handlerName] {
		return &domain.ExecutionResult{
			Success: false,
			Error:   &domain.ResultError{Message: fmt.Sprintf("handler %q is not implemented", handlerName)},
		}, nil, nil
	}
	handler, _ := goja.AssertFunction(target.Get(handlerName))

	type callOutcome struct {
		val goja.Value
		err error
	}
	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		var argVal goja.Value
		if arg != nil {
			argVal = rt.ToValue(arg)
		} else {
			argVal = goja.Undefined()
		}
		v, err := handler(goja.Undefined(), argVal)
		done <- callOutcome{val: v, err: err}
	}()

	var outcome callOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		rt.Interrupt("execution cancelled")
		outcome = <-done
		end := time.Now()
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		metrics := &domain.ExecutionMetrics{
			DurationMs: end.Sub(start).Milliseconds(),
			StartTime:  start.UnixMilli(),
			EndTime:    end.UnixMilli(),
			TimedOut:   timedOut,
			Aborted:    !timedOut,
		}
		msg := "execution aborted"
		if timedOut {
			msg = "Execution timeout exceeded"
		}
		return &domain.ExecutionResult{
			Success:                false,
			TimedOut:               timedOut,
			Aborted:                !timedOut,
			ConsoleOutput:          console.entries,
			ConsoleOutputTruncated: console.truncated,
			Metrics:                metrics,
			Error:                  &domain.ResultError{Message: msg},
		}, nil, nil
	}

	end := time.Now()
	metrics := &domain.ExecutionMetrics{
		DurationMs: end.Sub(start).Milliseconds(),
		// goja does not expose CPU/memory accounting; wall-clock
		// duration is the best available proxy for both.
		CPUTimeMs: end.Sub(start).Milliseconds(),
		StartTime: start.UnixMilli(),
		EndTime:   end.UnixMilli(),
	}

	if outcome.err != nil {
		return &domain.ExecutionResult{
			Success:                false,
			ConsoleOutput:          console.entries,
			ConsoleOutputTruncated: console.truncated,
			Metrics:                metrics,
			Error:                  &domain.ResultError{Message: outcome.err.Error()},
		}, nil, nil
	}

	result := &domain.ExecutionResult{
		Success:                true,
		ConsoleOutput:          console.entries,
		ConsoleOutputTruncated: console.truncated,
		Metrics:                metrics,
	}

	if !wantsResponse {
		return result, nil, nil
	}

	resp, convErr := valueToResponse(rt, outcome.val)
	if convErr != nil {
		result.Success = false
		result.Error = &domain.ResultError{Message: convErr.Error()}
		return result, nil, nil
	}
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["X-Execution-Duration"] = strconv.FormatInt(metrics.DurationMs, 10)
	return result, resp, nil
}

// Fetch implements domain.Stub.Fetch: runs the module's fetch handler
// against req and adds the X-Execution-Duration header to every
// response (spec §4.C sandboxed stub behavior).
func (s *moduleStub) Fetch(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	result, resp, err := s.invoke(ctx, "fetch", requestPayload(req), true)
	return result, resp, err
}

// Scheduled implements domain.Stub.Scheduled.
func (s *moduleStub) Scheduled(ctx context.Context) (*domain.ExecutionResult, error) {
	result, _, err := s.invoke(ctx, "scheduled", nil, false)
	return result, err
}

// Queue implements domain.Stub.Queue.
func (s *moduleStub) Queue(ctx context.Context, messages json.RawMessage) (*domain.ExecutionResult, error) {
	var parsed any
	if len(messages) > 0 {
		_ = json.Unmarshal(messages, &parsed)
	}
	result, _, err := s.invoke(ctx, "queue", parsed, false)
	return result, err
}

// Connect implements domain.Stub.Connect.
func (s *moduleStub) Connect(ctx context.Context, req domain.Request) (*domain.ExecutionResult, *domain.Response, error) {
	result, resp, err := s.invoke(ctx, "connect", requestPayload(req), true)
	return result, resp, err
}
