package ampyobs

import (
	"context"
	"time"

	"ampy.local/ampy-graph/sdk/go/runnable"
)

type loggingHandler struct {
	l Logger
}

// LoggingHandler logs run.start, run.end and run.error for every run.
func LoggingHandler(l Logger) runnable.Handler {
	return loggingHandler{l: l}
}

// fields identifies run itself. The ambient config on a handler's ctx belongs
// to the caller's run, so it is masked to keep run_id unambiguous.
func (h loggingHandler) fields(ctx context.Context, run runnable.RunInfo) (context.Context, Logger) {
	l := h.l.With(F("run_id", run.RunID), F("run_name", run.Name))
	if run.ParentRunID != "" {
		l = l.With(F("parent_run_id", run.ParentRunID))
	}
	return runnable.WithConfig(ctx, nil), l
}

func (h loggingHandler) OnRunStart(ctx context.Context, run runnable.RunInfo) {
	ctx, l := h.fields(ctx, run)
	l.Debug(ctx, "run.start", F("tags", run.Tags))
}

func (h loggingHandler) OnRunEnd(ctx context.Context, run runnable.RunInfo, _ any) {
	ctx, l := h.fields(ctx, run)
	l.Info(ctx, "run.end",
		F("outcome", OutcomeOK),
		F("latency_ms", time.Since(run.StartTime).Milliseconds()),
	)
}

func (h loggingHandler) OnRunError(ctx context.Context, run runnable.RunInfo, err error) {
	ctx, l := h.fields(ctx, run)
	l.Error(ctx, "run.error",
		F("outcome", OutcomeError),
		F("latency_ms", time.Since(run.StartTime).Milliseconds()),
		F("error", err),
	)
}

type metricsHandler struct {
	m *RunMetrics
}

// MetricsHandler records run counts, latency and in-flight runs per node.
func MetricsHandler(m *RunMetrics) runnable.Handler {
	return metricsHandler{m: m}
}

func (h metricsHandler) OnRunStart(_ context.Context, run runnable.RunInfo) {
	h.m.InFlight.WithLabelValues(run.Name).Inc()
}

func (h metricsHandler) OnRunEnd(_ context.Context, run runnable.RunInfo, _ any) {
	h.finish(run, OutcomeOK)
}

func (h metricsHandler) OnRunError(_ context.Context, run runnable.RunInfo, _ error) {
	h.finish(run, OutcomeError)
}

func (h metricsHandler) finish(run runnable.RunInfo, outcome string) {
	h.m.InFlight.WithLabelValues(run.Name).Dec()
	h.m.Runs.WithLabelValues(run.Name, outcome).Inc()
	h.m.Latency.WithLabelValues(run.Name).Observe(float64(time.Since(run.StartTime).Microseconds()) / 1000)
}
