package sandbox

import (
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/oriys/fncore/internal/domain"
)

// consoleSink is the invocation-local console buffer bound into a
// goja.Runtime as the global `console` object (spec §4.D step 3:
// "route console writes into a per-invocation ordered buffer tagged
// with level and timestamp; cap buffer size").
type consoleSink struct {
	entries   []domain.ConsoleEntry
	truncated bool
	maxSize   int
}

func newConsoleSink(maxSize int) *consoleSink {
	return &consoleSink{maxSize: maxSize}
}

func (c *consoleSink) write(level domain.ConsoleLevel, args []goja.Value) {
	if len(c.entries) >= c.maxSize {
		c.truncated = true
		return
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	c.entries = append(c.entries, domain.ConsoleEntry{
		Level:     level,
		Message:   strings.Join(parts, " "),
		Timestamp: time.Now().UnixMilli(),
	})
}

// bindGlobals installs console, the network shim, and a require() that
// rejects dynamic module loading, on a fresh Runtime (spec §4.D steps 2
// and 4). When blockNetwork is set, the global `fetch` always throws;
// otherwise it resolves to a fixed stub response, since this sandbox has
// no outbound network transport to proxy a real fetch through.
func bindGlobals(rt *goja.Runtime, console *consoleSink, blockNetwork bool) {
	obj := rt.NewObject()
	bind := func(level domain.ConsoleLevel) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			console.write(level, call.Arguments)
			return goja.Undefined()
		}
	}
	obj.Set("log", bind(domain.ConsoleLog))
	obj.Set("info", bind(domain.ConsoleInfo))
	obj.Set("warn", bind(domain.ConsoleWarn))
	obj.Set("error", bind(domain.ConsoleError))
	obj.Set("debug", bind(domain.ConsoleDebug))
	obj.Set("fatal", bind(domain.ConsoleFatal))
	_ = rt.Set("console", obj)

	if blockNetwork {
		_ = rt.Set("fetch", func(call goja.FunctionCall) goja.Value {
			panic(rt.NewTypeError("network access is disabled in the sandbox"))
		})
	} else {
		_ = rt.Set("fetch", func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(map[string]any{"status": 0, "body": nil})
		})
	}
	_ = rt.Set("require", func(call goja.FunctionCall) goja.Value {
		panic(rt.NewTypeError("dynamic module loading is disabled in the sandbox"))
	})

	module := rt.NewObject()
	_ = module.Set("exports", rt.NewObject())
	_ = rt.Set("module", module)
	_ = rt.Set("exports", mustGet(module, "exports"))
}

func mustGet(o *goja.Object, name string) goja.Value {
	return o.Get(name)
}
