package sandbox

import (
	"time"

	"github.com/dop251/goja"

	"github.com/oriys/fncore/internal/domain"
)

// testHarness implements the minimal registration-based describe/it/expect
// harness from spec §4.D step 7. describe groups are run eagerly (there is
// no deferred scheduling); it bodies run synchronously and any thrown
// assertion is reported as that test's failure rather than aborting the run.
type testHarness struct {
	results []domain.TestResult
}

func newTestHarness() *testHarness {
	return &testHarness{}
}

func (h *testHarness) summary() *domain.TestRunSummary {
	s := &domain.TestRunSummary{Tests: h.results}
	for _, t := range h.results {
		s.Total++
		if t.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// bindTestHarness installs describe/it/expect globals on rt, recording
// results into h as the tests program runs.
func bindTestHarness(rt *goja.Runtime, h *testHarness) {
	_ = rt.Set("describe", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			return goja.Undefined()
		}
		// describe blocks register their `it`s synchronously; errors
		// inside the block itself surface as a runtime error for the
		// tests subrun as a whole.
		if _, err := fn(goja.Undefined()); err != nil {
			panic(err)
		}
		return goja.Undefined()
	})

	_ = rt.Set("it", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			h.results = append(h.results, domain.TestResult{Name: name, Passed: false, Error: "test body is not a function"})
			return goja.Undefined()
		}

		start := time.Now()
		_, err := fn(goja.Undefined())
		duration := float64(time.Since(start).Microseconds()) / 1000.0

		result := domain.TestResult{Name: name, Duration: duration}
		if err != nil {
			result.Passed = false
			result.Error = err.Error()
		} else {
			result.Passed = true
		}
		h.results = append(h.results, result)
		return goja.Undefined()
	})

	_ = rt.Set("expect", func(call goja.FunctionCall) goja.Value {
		return newExpectation(rt, call.Argument(0))
	})
}

// newExpectation builds the object returned by expect(value): toBe,
// toEqual, toBeTruthy, toBeFalsy, toContain, toMatch, toThrow. A failed
// assertion panics with a TypeError, which goja converts into the error
// returned from the enclosing it() callable invocation.
func newExpectation(rt *goja.Runtime, actual goja.Value) goja.Value {
	obj := rt.NewObject()

	fail := func(format string, args ...any) {
		panic(rt.NewTypeError(format, args...))
	}

	_ = obj.Set("toBe", func(call goja.FunctionCall) goja.Value {
		expected := call.Argument(0)
		if !actual.SameAs(expected) {
			fail("expected %s to be %s", actual.String(), expected.String())
		}
		return goja.Undefined()
	})

	_ = obj.Set("toEqual", func(call goja.FunctionCall) goja.Value {
		expected := call.Argument(0)
		if !deepEqualValues(rt, actual, expected) {
			fail("expected %s to equal %s", actual.String(), expected.String())
		}
		return goja.Undefined()
	})

	_ = obj.Set("toBeTruthy", func(call goja.FunctionCall) goja.Value {
		if !actual.ToBoolean() {
			fail("expected %s to be truthy", actual.String())
		}
		return goja.Undefined()
	})

	_ = obj.Set("toBeFalsy", func(call goja.FunctionCall) goja.Value {
		if actual.ToBoolean() {
			fail("expected %s to be falsy", actual.String())
		}
		return goja.Undefined()
	})

	_ = obj.Set("toContain", func(call goja.FunctionCall) goja.Value {
		needle := call.Argument(0).String()
		if !containsValue(rt, actual, needle) {
			fail("expected %s to contain %s", actual.String(), needle)
		}
		return goja.Undefined()
	})

	_ = obj.Set("toMatch", func(call goja.FunctionCall) goja.Value {
		pattern := call.Argument(0).String()
		matched, err := regexpMatch(pattern, actual.String())
		if err != nil {
			fail("invalid pattern %s: %v", pattern, err)
		}
		if !matched {
			fail("expected %s to match %s", actual.String(), pattern)
		}
		return goja.Undefined()
	})

	_ = obj.Set("toThrow", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(actual)
		if !ok {
			fail("expected a function to call toThrow() against")
		}
		if _, err := fn(goja.Undefined()); err == nil {
			fail("expected function to throw")
		}
		return goja.Undefined()
	})

	return obj
}
