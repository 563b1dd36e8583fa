package ampyobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ampy.local/ampy-graph/sdk/go/runnable"
)

func double(_ context.Context, x int, _ *runnable.Config) (int, error) {
	return x * 2, nil
}

func newTestHandle(t *testing.T) (*Handle, *tracetest.InMemoryExporter, *observer.ObservedLogs) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	core, logs := observer.New(zap.DebugLevel)
	h, err := Init(context.Background(), Config{
		ServiceName:    "graph-test",
		ServiceVersion: "0.0.1",
		Environment:    "dev",
		Exporter:       exp,
		Logger:         zap.New(core),
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h, exp, logs
}

func flushedSpan(t *testing.T, h *Handle, exp *tracetest.InMemoryExporter, name string) tracetest.SpanStub {
	t.Helper()
	if err := h.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	for _, s := range exp.GetSpans() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no exported span named %q", name)
	return tracetest.SpanStub{}
}

func TestCallbackManagerRecordsRun(t *testing.T) {
	h, exp, logs := newTestHandle(t)
	node := runnable.New(double, runnable.WithName("double"), runnable.WithTags("math"))

	got, err := node.Invoke(context.Background(), 21, &runnable.Config{Callbacks: h.CallbackManager()})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != 42 {
		t.Errorf("Invoke = %d, want 42", got)
	}

	span := flushedSpan(t, h, exp, "double")

	if n := testutil.ToFloat64(h.Runs.Runs.WithLabelValues("double", OutcomeOK)); n != 1 {
		t.Errorf("runs_total{ok} = %v, want 1", n)
	}
	if n := testutil.ToFloat64(h.Runs.InFlight.WithLabelValues("double")); n != 0 {
		t.Errorf("runs_in_flight = %v, want 0", n)
	}
	if n := testutil.CollectAndCount(h.Runs.Latency); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}

	ends := logs.FilterMessage("run.end").All()
	if len(ends) != 1 {
		t.Fatalf("run.end lines = %d, want 1", len(ends))
	}
	fields := ends[0].ContextMap()
	if fields["run_name"] != "double" || fields["service"] != "graph-test" {
		t.Errorf("run.end fields = %v", fields)
	}
	if fields["trace_id"] != span.SpanContext.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", fields["trace_id"], span.SpanContext.TraceID())
	}
	if logs.FilterMessage("run.start").Len() != 1 {
		t.Error("missing run.start line")
	}
}

func TestCallbackManagerRecordsFailure(t *testing.T) {
	h, _, logs := newTestHandle(t)
	boom := errors.New("boom")
	node := runnable.New(func(context.Context, int, *runnable.Config) (int, error) {
		return 0, boom
	}, runnable.WithName("fails"))

	_, err := node.Invoke(context.Background(), 1, &runnable.Config{Callbacks: h.CallbackManager()})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n := testutil.ToFloat64(h.Runs.Runs.WithLabelValues("fails", OutcomeError)); n != 1 {
		t.Errorf("runs_total{error} = %v, want 1", n)
	}
	if logs.FilterMessage("run.error").Len() != 1 {
		t.Error("missing run.error line")
	}
}

func TestLoggerAddsRunFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(core), Config{ServiceName: "svc", Environment: "dev"})

	ctx := runnable.WithConfig(context.Background(), &runnable.Config{
		RunName:  "planner",
		Tags:     []string{"a"},
		Metadata: map[string]any{MetaThreadID: "t-1"},
	})
	l.Info(ctx, "hello", F("k", "v"))
	l.Warn(context.Background(), "bare")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	got := entries[0].ContextMap()
	if got["run_name"] != "planner" || got[MetaThreadID] != "t-1" || got["k"] != "v" || got["env"] != "dev" {
		t.Errorf("fields = %v", got)
	}
	if _, ok := entries[1].ContextMap()["run_name"]; ok {
		t.Error("bare context should not carry run fields")
	}
}

func TestLoggerSkipsDisabledLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewZapLogger(zap.New(core), Config{ServiceName: "svc"}).With(F("node", "router"))

	ctx := runnable.WithConfig(context.Background(), &runnable.Config{RunName: "planner"})
	l.Debug(ctx, "dropped")
	l.Error(ctx, "kept", F("attempt", 2))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Fatalf("entries = %v, want only kept", entries)
	}
	got := entries[0].ContextMap()
	if got["node"] != "router" || got["service"] != "svc" || got["run_name"] != "planner" || got["attempt"] != int64(2) {
		t.Errorf("fields = %v", got)
	}
}

func TestLoggerInsideRun(t *testing.T) {
	h, _, logs := newTestHandle(t)
	node := runnable.New(func(ctx context.Context, x int, _ *runnable.Config) (int, error) {
		h.Logger.Info(ctx, "inside")
		return x, nil
	}, runnable.WithName("planner"), runnable.WithTags("plan"))

	_, err := node.Invoke(context.Background(), 1, &runnable.Config{
		RunName:   "custom",
		RunID:     "rid-1",
		Callbacks: h.CallbackManager(),
	})
	if err != nil {
		t.Fatal(err)
	}

	inside := logs.FilterMessage("inside").All()
	if len(inside) != 1 {
		t.Fatalf("inside lines = %d, want 1", len(inside))
	}
	got := inside[0].ContextMap()
	if got["run_id"] != "rid-1" || got["run_name"] != "custom" {
		t.Errorf("fields = %v, want run_id=rid-1 run_name=custom", got)
	}
	if _, ok := got["tags"]; !ok {
		t.Errorf("fields = %v, want tags", got)
	}

	end := logs.FilterMessage("run.end").All()
	if len(end) != 1 || end[0].ContextMap()["run_id"] != "rid-1" {
		t.Errorf("run.end lines = %v", end)
	}
}

func TestPropagationRoundTrip(t *testing.T) {
	h, _, _ := newTestHandle(t)
	ctx, span := h.Tracer("client").Start(context.Background(), "call")
	defer span.End()

	headers := map[string]string{}
	InjectTrace(ctx, headers)
	if headers[HeaderTraceParent] == "" {
		t.Fatal("traceparent not injected")
	}

	remote := trace.SpanContextFromContext(ExtractTrace(context.Background(), headers))
	if remote.TraceID() != span.SpanContext().TraceID() || !remote.IsRemote() {
		t.Errorf("extracted %v, want remote context of trace %s", remote, span.SpanContext().TraceID())
	}
}

func TestHTTPServerMiddlewareJoinsTrace(t *testing.T) {
	h, exp, logs := newTestHandle(t)
	node := runnable.New(double, runnable.WithName("double"))

	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", func(w http.ResponseWriter, r *http.Request) {
		if _, err := node.Invoke(r.Context(), 2, nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := HTTPServerMiddleware(h)(mux)

	ctx, client := h.Tracer("client").Start(context.Background(), "client")
	req := httptest.NewRequest(http.MethodGet, "/invoke", nil)
	InjectHTTP(ctx, req.Header)
	client.End()
	if req.Header.Get(HeaderTraceParent) == "" {
		t.Fatal("traceparent not injected")
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	server := flushedSpan(t, h, exp, "GET /invoke")
	run := flushedSpan(t, h, exp, "double")
	if server.Parent.SpanID() != client.SpanContext().SpanID() {
		t.Error("server span does not continue the client trace")
	}
	if run.Parent.SpanID() != server.SpanContext.SpanID() {
		t.Error("node span is not a child of the server span")
	}
	if n := testutil.ToFloat64(h.Runs.Runs.WithLabelValues("double", OutcomeOK)); n != 1 {
		t.Errorf("runs_total{ok} = %v, want 1", n)
	}

	reqLogs := logs.FilterMessage("http.request").All()
	if len(reqLogs) != 1 {
		t.Fatalf("http.request lines = %d", len(reqLogs))
	}
	if got := reqLogs[0].ContextMap()["status"]; got != int64(http.StatusAccepted) {
		t.Errorf("status field = %v (%T)", got, got)
	}
}

func TestMetricsHandlerServesRuns(t *testing.T) {
	h, _, _ := newTestHandle(t)
	node := runnable.New(double, runnable.WithName("double"))
	if _, err := node.Invoke(context.Background(), 1, &runnable.Config{Callbacks: h.CallbackManager()}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `ampy_graph_runs_total{node="double",outcome="ok"} 1`) {
		t.Errorf("metrics output missing run counter:\n%s", rec.Body.String())
	}
}
