package runnable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "ampy.local/ampy-graph/runnable"

// RunInfo describes one run as seen by handlers.
type RunInfo struct {
	RunID       string
	ParentRunID string
	Name        string
	Tags        []string
	Metadata    map[string]any
	Input       any
	StartTime   time.Time
}

// Handler receives run lifecycle events. Implementations must be safe for
// concurrent use; a manager fans each event out to all of its handlers.
type Handler interface {
	OnRunStart(ctx context.Context, run RunInfo)
	OnRunEnd(ctx context.Context, run RunInfo, output any)
	OnRunError(ctx context.Context, run RunInfo, err error)
}

// CallbackManager opens traced runs and dispatches their events.
// A manager returned by RunManager.Child parents new runs to that run.
type CallbackManager struct {
	tracer   trace.Tracer
	handlers []Handler

	parentRunID   string
	parentRunName string
	parentSpan    trace.SpanContext
}

// NewCallbackManager returns a root manager. A nil tracer falls back to the
// global OTel tracer provider.
func NewCallbackManager(tracer trace.Tracer, handlers ...Handler) *CallbackManager {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return &CallbackManager{tracer: tracer, handlers: handlers}
}

// DefaultCallbackManager is used when neither the call nor the ambient
// context supplies a manager.
func DefaultCallbackManager() *CallbackManager {
	return NewCallbackManager(nil)
}

// WithHandlers returns a copy of m with extra handlers appended.
func (m *CallbackManager) WithHandlers(handlers ...Handler) *CallbackManager {
	out := *m
	out.handlers = append(append(make([]Handler, 0, len(m.handlers)+len(handlers)), m.handlers...), handlers...)
	return &out
}

// Handlers returns the handlers of m.
func (m *CallbackManager) Handlers() []Handler {
	return append([]Handler(nil), m.handlers...)
}

// ParentRunID is empty for a root manager.
func (m *CallbackManager) ParentRunID() string { return m.parentRunID }

// ParentRunName is the name of the run m is parented to, if any.
func (m *CallbackManager) ParentRunName() string { return m.parentRunName }

// StartRun opens a span for a run named name and notifies handlers.
// The span is parented to the manager's parent run when it has one, else to
// the span current on ctx; with neither it is a root span.
func (m *CallbackManager) StartRun(ctx context.Context, name string, input any, cfg *Config) (context.Context, *RunManager) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.parentSpan.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, m.parentSpan)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	info := RunInfo{
		RunID:       runID,
		ParentRunID: m.parentRunID,
		Name:        name,
		Tags:        cloneTags(cfg.Tags),
		Metadata:    cfg.Metadata,
		Input:       input,
		StartTime:   time.Now(),
	}

	attrs := []attribute.KeyValue{
		attribute.String("run.id", runID),
		attribute.String("run.name", name),
	}
	if m.parentRunID != "" {
		attrs = append(attrs, attribute.String("run.parent_id", m.parentRunID))
	}
	if len(info.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("run.tags", info.Tags))
	}
	ctx, span := m.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	defer func() {
		if r := recover(); r != nil {
			span.End()
			panic(r)
		}
	}()
	for _, h := range m.handlers {
		h.OnRunStart(ctx, info)
	}
	return ctx, &RunManager{manager: m, span: span, ctx: ctx, info: info}
}

// RunManager is the handle of one open run.
type RunManager struct {
	manager *CallbackManager
	span    trace.Span
	ctx     context.Context
	info    RunInfo
	once    sync.Once
}

// Info returns the run's description.
func (r *RunManager) Info() RunInfo { return r.info }

// RunID returns the run's id.
func (r *RunManager) RunID() string { return r.info.RunID }

// SpanContext returns the span context of the run.
func (r *RunManager) SpanContext() trace.SpanContext { return r.span.SpanContext() }

// Child returns a manager whose runs are children of r.
func (r *RunManager) Child() *CallbackManager {
	return &CallbackManager{
		tracer:        r.manager.tracer,
		handlers:      r.manager.handlers,
		parentRunID:   r.info.RunID,
		parentRunName: r.info.Name,
		parentSpan:    r.span.SpanContext(),
	}
}

// End closes the run as succeeded. Only the first End or Fail has effect.
func (r *RunManager) End(output any) {
	r.once.Do(func() {
		r.span.SetStatus(codes.Ok, "")
		r.span.End()
		for _, h := range r.manager.handlers {
			h.OnRunEnd(r.ctx, r.info, output)
		}
	})
}

// Fail closes the run as failed. Only the first End or Fail has effect.
func (r *RunManager) Fail(err error) {
	r.once.Do(func() {
		msg := ""
		if err != nil {
			r.span.RecordError(err)
			msg = err.Error()
		}
		r.span.SetStatus(codes.Error, msg)
		r.span.End()
		for _, h := range r.manager.handlers {
			h.OnRunError(r.ctx, r.info, err)
		}
	})
}

// PanicError reports a panic that escaped a traced run.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("runnable: panic: %v", e.Value)
}
