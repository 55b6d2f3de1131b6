package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oriys/fncore/internal/db"
	"github.com/oriys/fncore/internal/executor"
	"github.com/oriys/fncore/internal/loader"
	"github.com/oriys/fncore/internal/logstore"
	"github.com/oriys/fncore/internal/metrics"
	"github.com/oriys/fncore/internal/registry"
	"github.com/oriys/fncore/internal/sandbox"
)

const echoHandlerSource = `
module.exports.default = {
  fetch(req) {
    return { status: 200, body: JSON.stringify({ ok: true }) };
  }
};
`

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	logs, err := logstore.Open(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}

	runner := sandbox.NewRunner(sandbox.Config{DefaultTimeout: 5 * time.Second})
	ld := loader.New(loader.Config{DefaultTimeout: 5 * time.Second}, nil, runner)

	metricsReg := metrics.NewRegistry()
	mgr := executor.NewManager(executor.Config{
		MaxConcurrentExecutions: 4,
		MaxQueueSize:            4,
		ExecutionTimeout:        5 * time.Second,
	}, ld, logs).WithMetrics(metricsReg)
	exporter := metrics.NewExporter(metricsReg, logs)
	specs := registry.New(nil)

	return &Handler{Executor: mgr, Logs: logs, Exporter: exporter, Specs: specs}
}

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	h := newTestHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, h
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestPostExecuteRunsHandlerAndSettles(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/execute", executeRequestBody{
		FunctionID: "greeter",
		Code:       echoHandlerSource,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if success, _ := result["success"].(bool); !success {
		t.Fatalf("got result %+v, want success=true", result)
	}
	if coldStart, _ := result["coldStart"].(bool); !coldStart {
		t.Fatalf("expected the first invocation to be a cold start: %+v", result)
	}
}

func TestPostExecuteRequiresFunctionID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/execute", executeRequestBody{Code: echoHandlerSource})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
}

func TestGetStateReflectsExecutedFunctions(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/execute", executeRequestBody{FunctionID: "greeter", Code: echoHandlerSource}).Body.Close()

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var state map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	loaded, _ := state["loadedFunctions"].([]any)
	if len(loaded) != 1 {
		t.Fatalf("got loadedFunctions %+v, want one entry", loaded)
	}
}

func TestGetExecutionLogsAfterExecute(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/execute", executeRequestBody{FunctionID: "greeter", Code: echoHandlerSource}).Body.Close()

	resp, err := http.Get(srv.URL + "/logs/greeter")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d execution records, want 1", len(records))
	}
}

func TestPostAndQueryLogEntry(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/logs", postLogBody{
		FunctionID: "greeter",
		Level:      "info",
		Message:    "hello from a log entry",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("got status %d, want 201", resp.StatusCode)
	}

	page, err := http.Get(srv.URL + "/logs?functionId=greeter")
	if err != nil {
		t.Fatal(err)
	}
	defer page.Body.Close()
	if page.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", page.StatusCode)
	}
}

func TestGetLogPageRequiresFunctionID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/logs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", resp.StatusCode)
	}
}

func TestGetMetricsExportDefaultsToPrometheusText(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}

func TestGetMetricsExportJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/export?format=json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("got Content-Type %q, want application/json", ct)
	}
}

func TestFunctionSpecRegisterGetAndList(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/functions", registry.Spec{ID: "greeter", Name: "Greeter", Language: "javascript"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/functions/greeter")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", getResp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/functions")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var specs []registry.Spec
	if err := json.NewDecoder(listResp.Body).Decode(&specs); err != nil {
		t.Fatal(err)
	}
	if len(specs) != 1 {
		t.Fatalf("got %d specs, want 1", len(specs))
	}
}

func TestGetFunctionSpecUnknownReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/functions/does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", resp.StatusCode)
	}
}
