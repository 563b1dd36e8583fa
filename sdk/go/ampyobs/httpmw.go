package ampyobs

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ampy.local/ampy-graph/sdk/go/runnable"
)

// HTTPServerMiddleware continues the caller's W3C trace, opens a server span
// and installs a run config carrying the handle's callback manager, so every
// node invoked while serving the request joins the request's trace.
func HTTPServerMiddleware(hdl *Handle) func(next http.Handler) http.Handler {
	tr := hdl.Tracer("http.server")
	callbacks := hdl.CallbackManager()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ExtractHTTP(r.Context(), r.Header)
			ctx, span := tr.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			ctx = runnable.WithConfig(ctx, &runnable.Config{Callbacks: callbacks})

			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(ww, r.WithContext(ctx))

			hdl.Logger.Info(ctx, "http.request",
				F("method", r.Method),
				F("path", r.URL.Path),
				F("status", ww.status),
				F("latency_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
