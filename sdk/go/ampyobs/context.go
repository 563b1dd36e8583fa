package ampyobs

import (
	"context"

	"go.uber.org/zap"

	"ampy.local/ampy-graph/sdk/go/runnable"
)

// Metadata keys lifted onto log lines when present on the ambient run config.
const (
	MetaThreadID = "thread_id"
	MetaGraphID  = "graph_id"
	MetaStep     = "step"
)

// runFields describes the run config current on ctx, if one is installed.
func runFields(ctx context.Context) []zap.Field {
	cfg, ok := runnable.ConfigFromContext(ctx)
	if !ok {
		return nil
	}
	out := make([]zap.Field, 0, 6)
	name := cfg.RunName
	if cb := cfg.Callbacks; cb != nil && cb.ParentRunID() != "" {
		// Inside a run the derived config's callbacks point at that run.
		out = append(out, zap.String("run_id", cb.ParentRunID()))
		if name == "" {
			name = cb.ParentRunName()
		}
	}
	if name != "" {
		out = append(out, zap.String("run_name", name))
	}
	if len(cfg.Tags) > 0 {
		out = append(out, zap.Strings("tags", cfg.Tags))
	}
	for _, k := range []string{MetaThreadID, MetaGraphID, MetaStep} {
		if v, ok := cfg.Metadata[k]; ok {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
