// Package domain holds the types shared across the loader, executor,
// sandbox and observability packages: function identity, the sandbox
// capability surface, execution records and the error-kind taxonomy.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Runtime labels the language a function's code is written in. The core
// never compiles or type-checks against this value — it is carried for
// display and for the "language" label on exported metrics.
type Runtime string

const (
	RuntimeJS   Runtime = "javascript"
	RuntimeTS   Runtime = "typescript"
	RuntimeWasm Runtime = "wasm"
)

// FunctionSpec is the minimal registration record the Loader and Executor
// need to talk about a function by more than a bare string id.
type FunctionSpec struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Runtime          Runtime `json:"runtime"`
	RegisteredAtUnix int64   `json:"registered_at_unix"`
}

// ContentHash computes the content-addressed fingerprint of a function's
// code, tests and script bodies, concatenated in that order. Identical
// hashes are expected to share the underlying Stub (spec's deduplication
// rule).
func ContentHash(code, tests, script []byte) string {
	h := sha256.New()
	h.Write(code)
	h.Write([]byte{0})
	h.Write(tests)
	h.Write([]byte{0})
	h.Write(script)
	return hex.EncodeToString(h.Sum(nil))
}
