package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/oriys/fncore/internal/domain"
)

// requestPayload converts a domain.Request into the plain Go value
// handed to rt.ToValue before being passed into the module's handler.
func requestPayload(req domain.Request) map[string]any {
	headers := make(map[string]any, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}
	payload := map[string]any{
		"method":  req.Method,
		"url":     req.URL,
		"headers": headers,
	}
	if len(req.Body) > 0 {
		var body any
		if err := json.Unmarshal(req.Body, &body); err == nil {
			payload["body"] = body
		} else {
			payload["body"] = string(req.Body)
		}
	}
	return payload
}

// resolvePromise returns the settled value of val if it is a Promise
// that has already settled synchronously (spec §4.D note: handlers are
// expected to be synchronous-returning or resolve without further
// suspension); a still-pending promise is reported as an error.
func resolvePromise(val goja.Value) (goja.Value, error) {
	if val == nil {
		return nil, nil
	}
	p, ok := val.Export().(*goja.Promise)
	if !ok {
		return val, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("unhandled promise rejection: %s", p.Result().String())
	default:
		return nil, fmt.Errorf("handler returned a promise that did not settle synchronously")
	}
}

// valueToResponse converts a handler's returned value into a
// domain.Response, resolving a synchronously-settled promise first.
func valueToResponse(rt *goja.Runtime, val goja.Value) (*domain.Response, error) {
	resolved, err := resolvePromise(val)
	if err != nil {
		return nil, err
	}
	resp := &domain.Response{Status: 200, Headers: map[string]string{}}
	if resolved == nil || goja.IsUndefined(resolved) || goja.IsNull(resolved) {
		return resp, nil
	}

	obj := resolved.ToObject(rt)
	if obj == nil {
		return resp, nil
	}
	if s := obj.Get("status"); s != nil && !goja.IsUndefined(s) {
		resp.Status = int(s.ToInteger())
	}
	if h := obj.Get("headers"); h != nil && !goja.IsUndefined(h) {
		if hObj := h.ToObject(rt); hObj != nil {
			for _, k := range hObj.Keys() {
				resp.Headers[k] = hObj.Get(k).String()
			}
		}
	}
	if b := obj.Get("body"); b != nil && !goja.IsUndefined(b) {
		if raw, err := json.Marshal(b.Export()); err == nil {
			resp.Body = raw
		}
	}
	return resp, nil
}
