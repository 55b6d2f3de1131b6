package domain

import "fmt"

// Kind is a stable error identifier threaded through return values in
// place of a subclass hierarchy — see the loader and executor error
// taxonomies.
type Kind string

const (
	KindFunctionNotFound    Kind = "FunctionNotFound"
	KindLoaderServiceError  Kind = "LoaderServiceError"
	KindLoadTimeout         Kind = "LoadTimeout"
	KindCompilationError    Kind = "CompilationError"
	KindCircuitBreakerOpen  Kind = "CircuitBreakerOpen"
	KindNoLoaderConfigured  Kind = "NoLoaderConfigured"
	KindLoadError           Kind = "LoadError"
	KindExecutionTimeout    Kind = "ExecutionTimeout"
	KindExecutionAborted    Kind = "ExecutionAborted"
	KindQueueFull           Kind = "QueueFull"
	KindUserError           Kind = "UserError"
	KindBadRequest          Kind = "BadRequest"
	KindNotFound            Kind = "NotFound"
	KindMethodNotAllowed    Kind = "MethodNotAllowed"
)

// Error is the single concrete error type for the core: a Kind plus an
// arbitrary field bag, rather than one Go type per Kind. Fields carries
// kind-specific details (status code, timeout, failure count, ...) under
// the keys its constructor sets (e.g. NewCircuitBreakerOpen stores the
// failure count under Fields["failures"]).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Is supports errors.Is(err, &Error{Kind: KindX}) comparisons by Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, message string, fields map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Fields: fields}
}

func NewFunctionNotFound(functionID string) *Error {
	return newErr(KindFunctionNotFound, "function not found", map[string]any{"functionId": functionID})
}

func NewLoaderServiceError(statusCode int) *Error {
	return newErr(KindLoaderServiceError, fmt.Sprintf("loader service returned status %d", statusCode), map[string]any{"statusCode": statusCode})
}

func NewLoadTimeout(timeoutMs int64) *Error {
	return newErr(KindLoadTimeout, "load timed out", map[string]any{"timeoutMs": timeoutMs})
}

func NewCompilationError(details string) *Error {
	return newErr(KindCompilationError, details, map[string]any{"details": details})
}

func NewCircuitBreakerOpen(failures int, lastFailureUnixMs int64) *Error {
	return newErr(KindCircuitBreakerOpen, "circuit breaker is open", map[string]any{
		"failures":        failures,
		"lastFailureTime": lastFailureUnixMs,
	})
}

func NewNoLoaderConfigured() *Error {
	return newErr(KindNoLoaderConfigured, "no upstream fetcher configured", nil)
}

func NewLoadError(message string) *Error {
	return newErr(KindLoadError, message, nil)
}

func NewExecutionTimeout(timeoutMs int64) *Error {
	return newErr(KindExecutionTimeout, "execution timeout exceeded", map[string]any{"timeoutMs": timeoutMs})
}

func NewExecutionAborted() *Error {
	return newErr(KindExecutionAborted, "execution aborted", nil)
}

func NewQueueFull(functionID string) *Error {
	return newErr(KindQueueFull, "request rejected: queue is full", map[string]any{"functionId": functionID})
}

func NewUserError(message, stack string) *Error {
	fields := map[string]any{}
	if stack != "" {
		fields["stack"] = stack
	}
	return newErr(KindUserError, message, fields)
}

func NewBadRequest(message string) *Error {
	return newErr(KindBadRequest, message, nil)
}

func NewNotFound(message string) *Error {
	return newErr(KindNotFound, message, nil)
}

func NewMethodNotAllowed(method string) *Error {
	return newErr(KindMethodNotAllowed, "method not allowed", map[string]any{"method": method})
}
