package ampyobs

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured lines that carry the trace and the graph run
// current on ctx.
type Logger interface {
	With(kv ...zap.Field) Logger
	Info(ctx context.Context, msg string, kv ...zap.Field)
	Warn(ctx context.Context, msg string, kv ...zap.Field)
	Error(ctx context.Context, msg string, kv ...zap.Field)
	Debug(ctx context.Context, msg string, kv ...zap.Field)
}

type zapLogger struct {
	z *zap.Logger
}

func newLogger(cfg Config) Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "message"
	enc.StacktraceKey = "stack"
	enc.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(t.UTC().Format(time.RFC3339Nano))
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stdout), zap.DebugLevel)
	return NewZapLogger(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)), cfg)
}

// NewZapLogger wraps z, stamping every line with the service identity of cfg.
func NewZapLogger(z *zap.Logger, cfg Config) Logger {
	return &zapLogger{z: z.With(
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Environment),
		zap.String("service_version", cfg.ServiceVersion),
	)}
}

func (l *zapLogger) With(kv ...zap.Field) Logger {
	return &zapLogger{z: l.z.With(kv...)}
}

func (l *zapLogger) Debug(ctx context.Context, msg string, kv ...zap.Field) {
	l.write(ctx, zapcore.DebugLevel, msg, kv)
}

func (l *zapLogger) Info(ctx context.Context, msg string, kv ...zap.Field) {
	l.write(ctx, zapcore.InfoLevel, msg, kv)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, kv ...zap.Field) {
	l.write(ctx, zapcore.WarnLevel, msg, kv)
}

func (l *zapLogger) Error(ctx context.Context, msg string, kv ...zap.Field) {
	l.write(ctx, zapcore.ErrorLevel, msg, kv)
}

// write resolves trace and run fields only for lines the core will keep.
func (l *zapLogger) write(ctx context.Context, level zapcore.Level, msg string, kv []zap.Field) {
	ce := l.z.Check(level, msg)
	if ce == nil {
		return
	}
	run := runFields(ctx)
	fields := make([]zap.Field, 0, 2+len(run)+len(kv))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, run...)
	ce.Write(append(fields, kv...)...)
}

// F builds a field without importing zap at the call site.
func F(k string, v any) zap.Field { return zap.Any(k, v) }
