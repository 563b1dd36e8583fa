package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"

	"ampy.local/ampy-graph/sdk/go/ampyobs"
	"ampy.local/ampy-graph/sdk/go/runnable"
	"ampy.local/ampy-graph/sdk/go/seq"
)

func upper(_ context.Context, s string, _ *runnable.Config) (any, error) {
	return strings.ToUpper(s), nil
}

func reverse(_ context.Context, s string, _ *runnable.Config) (any, error) {
	r := []rune(s)
	slices.Reverse(r)
	return string(r), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	obs, err := ampyobs.Init(ctx, ampyobs.Config{
		ServiceName:    "ampy-graph-router",
		ServiceVersion: "0.1.0",
		Environment:    "dev",
		CollectorGRPC:  "127.0.0.1:4317",
	})
	if err != nil {
		log.Fatalf("init obs: %v", err)
	}
	defer obs.Shutdown(context.Background())

	workers := map[string]*runnable.Callable[string, any]{
		"upper":   runnable.New(upper, runnable.WithTags("worker")),
		"reverse": runnable.New(reverse, runnable.WithTags("worker")),
	}
	router := runnable.New(func(_ context.Context, s string, cfg *runnable.Config) (any, error) {
		route, _ := cfg.Configurable["route"].(string)
		w, ok := workers[route]
		if !ok {
			return nil, fmt.Errorf("unknown route %q", route)
		}
		return w, nil
	}, runnable.WithName("router"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Metrics.Handler())
	mux.HandleFunc("/invoke", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := router.Invoke(r.Context(), q.Get("text"), &runnable.Config{
			Configurable: map[string]any{"route": q.Get("route")},
			Metadata:     map[string]any{ampyobs.MetaThreadID: q.Get("thread")},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, out)
	})
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		texts := r.URL.Query()["text"]
		results, err := seq.Gather(r.Context(), func(yield func(string, error) bool) {
			for _, t := range texts {
				out, err := router.Invoke(r.Context(), t, &runnable.Config{
					Configurable: map[string]any{"route": r.URL.Query().Get("route")},
				})
				if !yield(fmt.Sprint(out), err) {
					return
				}
			}
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for p, v := range seq.Prefix(slices.Values(results), r.URL.Query().Get("route")) {
			fmt.Fprintf(w, "%s\t%s\n", p, v)
		}
	})

	srv := &http.Server{
		Addr:    ":9464",
		Handler: ampyobs.HTTPServerMiddleware(obs)(mux),
	}

	go func() {
		log.Println("router: serving on http://localhost:9464  (GET /invoke?route=upper&text=hi, /batch, /metrics)")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	_ = srv.Shutdown(context.Background())
	fmt.Println("bye")
}
